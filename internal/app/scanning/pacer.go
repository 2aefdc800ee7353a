package scanning

import (
	"context"
	"time"
)

// pacer spaces a job's submissions by a fixed delay and, when configured,
// also waits on a limiter shared with other jobs.
type pacer struct {
	delay   time.Duration
	limiter Limiter
	last    time.Time
}

func newPacer(delay time.Duration, limiter Limiter) *pacer {
	return &pacer{delay: delay, limiter: limiter}
}

// wait blocks until the next submission may proceed. The first call only
// waits on the shared limiter.
func (p *pacer) wait(ctx context.Context) error {
	if !p.last.IsZero() && p.delay > 0 {
		if remaining := p.delay - time.Since(p.last); remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	p.last = time.Now()
	return nil
}
