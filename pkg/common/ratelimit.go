package common

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a process-wide token bucket shared by every caller of a
// rate-limited downstream. Limits can be adjusted while callers are waiting.
// A non-positive rate disables limiting.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
}

// NewRateLimiter creates a RateLimiter allowing rps events per second with the
// given burst. Burst is raised to one when rps is positive.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(toLimit(rps), normalizeBurst(rps, burst))}
}

// Wait blocks until an event is allowed or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	rl.mu.RLock()
	l := rl.limiter
	rl.mu.RUnlock()
	return l.Wait(ctx)
}

// Allow reports whether an event may happen now without waiting.
func (rl *RateLimiter) Allow() bool {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Allow()
}

// Limit returns the current events-per-second ceiling; zero when disabled.
func (rl *RateLimiter) Limit() float64 {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	if rl.limiter.Limit() == rate.Inf {
		return 0
	}
	return float64(rl.limiter.Limit())
}

// UpdateLimits adjusts the rate and burst, e.g. when an API quota changes.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(toLimit(rps))
	rl.limiter.SetBurst(normalizeBurst(rps, burst))
}

func toLimit(rps float64) rate.Limit {
	if rps <= 0 {
		return rate.Inf
	}
	return rate.Limit(rps)
}

func normalizeBurst(rps float64, burst int) int {
	if rps > 0 && burst < 1 {
		return 1
	}
	return burst
}
