package scanning

import (
	"context"
	"time"

	"github.com/google/uuid"

	domain "github.com/ahrav/scanguard/internal/domain/scanning"
)

// Summary is the final state of a scan run.
type Summary struct {
	JobID         uuid.UUID
	Status        domain.JobStatus
	FilesScanned  int
	FilesInfected int
	FilesSkipped  int
	FileErrors    int
	StartedAt     time.Time
	CompletedAt   time.Time
}

// Handle tracks one background scan run.
type Handle struct {
	jobID  uuid.UUID
	done   chan struct{}
	cancel context.CancelFunc

	// Written once before done is closed.
	summary Summary
	err     error
}

func newHandle(jobID uuid.UUID, cancel context.CancelFunc) *Handle {
	return &Handle{jobID: jobID, done: make(chan struct{}), cancel: cancel}
}

// JobID returns the id of the job this run owns.
func (h *Handle) JobID() uuid.UUID { return h.jobID }

// Done is closed when the run has finished and its job is completed.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes or ctx is done. Cancelling ctx does not
// stop the run.
func (h *Handle) Wait(ctx context.Context) (Summary, error) {
	select {
	case <-h.done:
		return h.summary, h.err
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	}
}

func (h *Handle) finish(s Summary, err error) {
	h.summary = s
	h.err = err
	close(h.done)
}
