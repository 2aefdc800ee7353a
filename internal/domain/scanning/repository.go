package scanning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobRepository persists scan jobs. Jobs are never deleted.
type JobRepository interface {
	// CreateJob inserts a new job.
	CreateJob(ctx context.Context, job *Job) error
	// UpdateJob overwrites the job's status, counters and timestamps.
	UpdateJob(ctx context.Context, job *Job) error
	// GetJob returns ErrJobNotFound when no job exists for jobID.
	GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error)
	// ListJobs returns jobs newest first.
	ListJobs(ctx context.Context, limit int) ([]*Job, error)
	// CountJobs returns the total number of jobs.
	CountJobs(ctx context.Context) (int, error)
}

// FileResultRepository persists per-file outcomes.
type FileResultRepository interface {
	// SaveResult appends a record.
	SaveResult(ctx context.Context, result FileResult) error
	// ListResults returns a job's records newest first.
	ListResults(ctx context.Context, jobID uuid.UUID, skip, limit int) ([]FileResult, error)
	// CountsForJob aggregates a job's records.
	CountsForJob(ctx context.Context, jobID uuid.UUID) (ResultCounts, error)
	// History groups records by job, newest job first.
	History(ctx context.Context, limit int) ([]JobHistory, error)
	// Totals aggregates records across all jobs.
	Totals(ctx context.Context) (ResultCounts, error)
}

// ResultCounts are aggregate record counts.
type ResultCounts struct {
	Total    int
	Infected int
	Clean    int
	Errors   int
}

// JobHistory is one row of grouped scan history.
type JobHistory struct {
	JobID        uuid.UUID
	FilesScanned int
	Infected     int
	LastScanned  time.Time
}
