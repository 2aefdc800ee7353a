// Package postgres provides PostgreSQL-backed scanning repositories.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/internal/infra/storage"
)

var _ scanning.JobRepository = (*jobStore)(nil)

// jobStore implements scanning.JobRepository using PostgreSQL as the backing store.
type jobStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewJobStore creates a new PostgreSQL-backed job repository with tracing capabilities.
func NewJobStore(pool *pgxpool.Pool, tracer trace.Tracer) *jobStore {
	return &jobStore{db: pool, tracer: tracer}
}

const (
	createJobQuery = `
INSERT INTO scan_jobs (job_id, directory, mode, status, files_scanned, files_infected, started_at, completed_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateJobQuery = `
UPDATE scan_jobs
SET status = $2, files_scanned = $3, files_infected = $4, completed_at = $5, updated_at = $6
WHERE job_id = $1`

	selectJobColumns = `SELECT job_id, directory, mode, status, files_scanned, files_infected, started_at, completed_at, updated_at FROM scan_jobs`

	getJobQuery   = selectJobColumns + ` WHERE job_id = $1`
	listJobsQuery = selectJobColumns + ` ORDER BY started_at DESC, job_id LIMIT $1`
	countJobQuery = `SELECT count(*) FROM scan_jobs`
)

// CreateJob persists a new scan job.
func (r *jobStore) CreateJob(ctx context.Context, job *scanning.Job) error {
	dbAttrs := storage.DBAttributes(
		attribute.String("job_id", job.JobID().String()),
		attribute.String("status", job.Status().String()),
		attribute.String("directory", job.Directory()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_job", dbAttrs, func(ctx context.Context) error {
		tl := job.GetTimeline()
		endTime, hasEndTime := job.EndTime()
		_, err := r.db.Exec(ctx, createJobQuery,
			pgtype.UUID{Bytes: job.JobID(), Valid: true},
			job.Directory(),
			job.Mode().String(),
			job.Status().String(),
			job.FilesScanned(),
			job.FilesInfected(),
			pgtype.Timestamptz{Time: job.StartTime(), Valid: true},
			pgtype.Timestamptz{Time: endTime, Valid: hasEndTime},
			pgtype.Timestamptz{Time: tl.LastUpdate(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("CreateJob insert error: %w", err)
		}
		return nil
	})
}

// UpdateJob modifies an existing job's status, counters and timestamps.
func (r *jobStore) UpdateJob(ctx context.Context, job *scanning.Job) error {
	dbAttrs := storage.DBAttributes(
		attribute.String("job_id", job.JobID().String()),
		attribute.String("status", job.Status().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_job", dbAttrs, func(ctx context.Context) error {
		endTime, hasEndTime := job.EndTime()
		tag, err := r.db.Exec(ctx, updateJobQuery,
			pgtype.UUID{Bytes: job.JobID(), Valid: true},
			job.Status().String(),
			job.FilesScanned(),
			job.FilesInfected(),
			pgtype.Timestamptz{Time: endTime, Valid: hasEndTime},
			pgtype.Timestamptz{Time: job.LastUpdateTime(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("UpdateJob query error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return scanning.ErrJobNotFound
		}
		return nil
	})
}

// GetJob retrieves a job by id.
func (r *jobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*scanning.Job, error) {
	var job *scanning.Job
	dbAttrs := storage.DBAttributes(attribute.String("job_id", jobID.String()))

	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_job", dbAttrs, func(ctx context.Context) error {
		var err error
		job, err = scanJob(r.db.QueryRow(ctx, getJobQuery, pgtype.UUID{Bytes: jobID, Valid: true}))
		if errors.Is(err, pgx.ErrNoRows) {
			return scanning.ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("GetJob query error: %w", err)
		}
		return nil
	})
	return job, err
}

// ListJobs returns jobs newest first. A non-positive limit returns every job.
func (r *jobStore) ListJobs(ctx context.Context, limit int) ([]*scanning.Job, error) {
	var jobs []*scanning.Job
	dbAttrs := storage.DBAttributes(attribute.Int("limit", limit))

	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_jobs", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, listJobsQuery, pgtype.Int8{Int64: int64(limit), Valid: limit > 0})
		if err != nil {
			return fmt.Errorf("ListJobs query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			job, err := scanJob(rows)
			if err != nil {
				return fmt.Errorf("ListJobs scan error: %w", err)
			}
			jobs = append(jobs, job)
		}
		return rows.Err()
	})
	return jobs, err
}

// CountJobs returns the total number of jobs.
func (r *jobStore) CountJobs(ctx context.Context) (int, error) {
	var n int64
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.count_jobs", storage.DefaultDBAttributes, func(ctx context.Context) error {
		if err := r.db.QueryRow(ctx, countJobQuery).Scan(&n); err != nil {
			return fmt.Errorf("CountJobs query error: %w", err)
		}
		return nil
	})
	return int(n), err
}

func scanJob(row pgx.Row) (*scanning.Job, error) {
	var (
		id                      pgtype.UUID
		directory, mode, status string
		scanned, infected       int32
		startedAt               time.Time
		completedAt             pgtype.Timestamptz
		updatedAt               time.Time
	)
	if err := row.Scan(&id, &directory, &mode, &status, &scanned, &infected, &startedAt, &completedAt, &updatedAt); err != nil {
		return nil, err
	}

	var end time.Time
	if completedAt.Valid {
		end = completedAt.Time
	}

	return scanning.ReconstructJob(
		uuid.UUID(id.Bytes),
		directory,
		scanning.ScanMode(mode),
		scanning.ParseJobStatus(status),
		int(scanned),
		int(infected),
		scanning.ReconstructTimeline(startedAt, end, updatedAt),
	), nil
}
