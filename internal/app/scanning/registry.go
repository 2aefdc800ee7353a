package scanning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/common/timeutil"
)

// Paging defaults for registry queries.
const (
	DefaultResultsLimit = 50
	MaxResultsLimit     = 500
	DefaultHistoryLimit = 20
	RecentJobsLimit     = 5
)

// Progress texts reported by Status.
const (
	ProgressComplete   = "100%"
	ProgressInProgress = "In Progress..."
)

// QuarantineCounter reports how many files are currently quarantined.
type QuarantineCounter interface {
	CountActive(ctx context.Context) (int, error)
}

// JobStatusView is a job's state with totals recomputed from its records.
type JobStatusView struct {
	JobID         uuid.UUID
	Directory     string
	Mode          domain.ScanMode
	Status        domain.JobStatus
	StartedAt     time.Time
	CompletedAt   *time.Time
	FilesScanned  int
	FilesInfected int
	TotalFiles    int
	Infected      int
	Clean         int
	Errors        int
	Progress      string
}

// JobOverview is a compact job row for listings.
type JobOverview struct {
	JobID         uuid.UUID
	Directory     string
	Mode          domain.ScanMode
	Status        domain.JobStatus
	StartedAt     time.Time
	CompletedAt   *time.Time
	FilesScanned  int
	FilesInfected int
}

// DashboardStats aggregates activity across all jobs.
type DashboardStats struct {
	TotalJobs        int
	TotalFiles       int
	TotalInfected    int
	QuarantineActive int
	RecentJobs       []JobOverview
	LastUpdated      time.Time
}

// Registry answers read-only questions about jobs and their results.
type Registry struct {
	jobs       domain.JobRepository
	results    domain.FileResultRepository
	quarantine QuarantineCounter
	clock      timeutil.Provider

	logger *logger.Logger
	tracer trace.Tracer
}

// NewRegistry creates a Registry.
func NewRegistry(
	jobs domain.JobRepository,
	results domain.FileResultRepository,
	quarantine QuarantineCounter,
	log *logger.Logger,
	tracer trace.Tracer,
) *Registry {
	return &Registry{
		jobs:       jobs,
		results:    results,
		quarantine: quarantine,
		clock:      timeutil.Default(),
		logger:     log.With("component", "scan_registry"),
		tracer:     tracer,
	}
}

// Status returns the job with totals recomputed from its file records.
func (r *Registry) Status(ctx context.Context, jobID uuid.UUID) (JobStatusView, error) {
	ctx, span := r.tracer.Start(ctx, "scan_registry.status",
		trace.WithAttributes(attribute.String("job_id", jobID.String())))
	defer span.End()

	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return JobStatusView{}, err
	}
	counts, err := r.results.CountsForJob(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		return JobStatusView{}, fmt.Errorf("counting results for job %s: %w", jobID, err)
	}

	ov := overview(job)
	view := JobStatusView{
		JobID:         ov.JobID,
		Directory:     ov.Directory,
		Mode:          ov.Mode,
		Status:        ov.Status,
		StartedAt:     ov.StartedAt,
		CompletedAt:   ov.CompletedAt,
		FilesScanned:  ov.FilesScanned,
		FilesInfected: ov.FilesInfected,
		TotalFiles:    counts.Total,
		Infected:      counts.Infected,
		Clean:         counts.Clean,
		Errors:        counts.Errors,
		Progress:      ProgressInProgress,
	}
	if job.Status() == domain.JobStatusCompleted {
		view.Progress = ProgressComplete
	}
	return view, nil
}

// Results pages a job's file records newest first, without raw payloads.
// A zero limit selects DefaultResultsLimit; larger limits are capped.
func (r *Registry) Results(ctx context.Context, jobID uuid.UUID, skip, limit int) ([]domain.FileResult, error) {
	if skip < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: skip and limit must not be negative", domain.ErrInvalidInput)
	}
	if limit == 0 {
		limit = DefaultResultsLimit
	}
	limit = min(limit, MaxResultsLimit)

	ctx, span := r.tracer.Start(ctx, "scan_registry.results",
		trace.WithAttributes(
			attribute.String("job_id", jobID.String()),
			attribute.Int("skip", skip),
			attribute.Int("limit", limit),
		))
	defer span.End()

	if _, err := r.jobs.GetJob(ctx, jobID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	results, err := r.results.ListResults(ctx, jobID, skip, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("listing results for job %s: %w", jobID, err)
	}
	for i := range results {
		results[i].RawPayload = nil
	}
	return results, nil
}

// History returns one row per job, newest first.
func (r *Registry) History(ctx context.Context, limit int) ([]domain.JobHistory, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidInput)
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}

	ctx, span := r.tracer.Start(ctx, "scan_registry.history")
	defer span.End()

	return r.results.History(ctx, limit)
}

// Dashboard aggregates totals across all jobs and lists the most recent.
func (r *Registry) Dashboard(ctx context.Context) (DashboardStats, error) {
	ctx, span := r.tracer.Start(ctx, "scan_registry.dashboard")
	defer span.End()

	totalJobs, err := r.jobs.CountJobs(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("counting jobs: %w", err)
	}
	totals, err := r.results.Totals(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("aggregating results: %w", err)
	}
	active, err := r.quarantine.CountActive(ctx)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("counting quarantine: %w", err)
	}
	recent, err := r.jobs.ListJobs(ctx, RecentJobsLimit)
	if err != nil {
		return DashboardStats{}, fmt.Errorf("listing recent jobs: %w", err)
	}

	stats := DashboardStats{
		TotalJobs:        totalJobs,
		TotalFiles:       totals.Total,
		TotalInfected:    totals.Infected,
		QuarantineActive: active,
		RecentJobs:       make([]JobOverview, 0, len(recent)),
		LastUpdated:      r.clock.Now(),
	}
	for _, j := range recent {
		stats.RecentJobs = append(stats.RecentJobs, overview(j))
	}
	return stats, nil
}

func overview(j *domain.Job) JobOverview {
	ov := JobOverview{
		JobID:         j.JobID(),
		Directory:     j.Directory(),
		Mode:          j.Mode(),
		Status:        j.Status(),
		StartedAt:     j.StartTime(),
		FilesScanned:  j.FilesScanned(),
		FilesInfected: j.FilesInfected(),
	}
	if end, ok := j.EndTime(); ok {
		ov.CompletedAt = &end
	}
	return ov
}
