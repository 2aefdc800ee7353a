package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/internal/domain/verdict"
	"github.com/ahrav/scanguard/internal/infra/storage"
)

var _ scanning.FileResultRepository = (*fileResultStore)(nil)

// fileResultStore implements scanning.FileResultRepository on PostgreSQL.
type fileResultStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewFileResultStore creates a PostgreSQL-backed file result repository.
func NewFileResultStore(pool *pgxpool.Pool, tracer trace.Tracer) *fileResultStore {
	return &fileResultStore{db: pool, tracer: tracer}
}

const (
	saveResultQuery = `
INSERT INTO file_scan_results
    (job_id, path, name, size_bytes, digest, status, threat_level, threat_names,
     detection_count, total_engines, raw_payload, error_reason, scanned_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	// Raw payloads are never returned by listings.
	listResultsQuery = `
SELECT job_id, path, name, size_bytes, digest, status, threat_level, threat_names,
       detection_count, total_engines, error_reason, scanned_at
FROM file_scan_results
WHERE job_id = $1
ORDER BY scanned_at DESC, id DESC
OFFSET $2 LIMIT $3`

	countsSelect = `
SELECT count(*),
       count(*) FILTER (WHERE status = 'infected'),
       count(*) FILTER (WHERE status = 'clean'),
       count(*) FILTER (WHERE status = 'error')
FROM file_scan_results`

	countsForJobQuery = countsSelect + ` WHERE job_id = $1`

	historyQuery = `
SELECT job_id, count(*), count(*) FILTER (WHERE status = 'infected'), max(scanned_at)
FROM file_scan_results
GROUP BY job_id
ORDER BY max(scanned_at) DESC, job_id
LIMIT $1`
)

// SaveResult appends a file scan record.
func (s *fileResultStore) SaveResult(ctx context.Context, res scanning.FileResult) error {
	dbAttrs := storage.DBAttributes(
		attribute.String("job_id", res.JobID.String()),
		attribute.String("status", res.Status.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.save_file_result", dbAttrs, func(ctx context.Context) error {
		names := res.ThreatNames
		if names == nil {
			names = []string{}
		}
		_, err := s.db.Exec(ctx, saveResultQuery,
			pgtype.UUID{Bytes: res.JobID, Valid: true},
			res.Path,
			res.Name,
			res.Size,
			res.Digest,
			res.Status.String(),
			res.ThreatLevel.String(),
			names,
			res.DetectionCount,
			res.TotalEngines,
			[]byte(res.RawPayload),
			pgtype.Text{String: res.ErrorReason, Valid: res.ErrorReason != ""},
			res.ScannedAt,
		)
		if err != nil {
			return fmt.Errorf("SaveResult insert error: %w", err)
		}
		return nil
	})
}

// ListResults returns a page of a job's records, newest first.
func (s *fileResultStore) ListResults(ctx context.Context, jobID uuid.UUID, skip, limit int) ([]scanning.FileResult, error) {
	out := make([]scanning.FileResult, 0)
	dbAttrs := storage.DBAttributes(
		attribute.String("job_id", jobID.String()),
		attribute.Int("skip", skip),
		attribute.Int("limit", limit),
	)

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_file_results", dbAttrs, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, listResultsQuery,
			pgtype.UUID{Bytes: jobID, Valid: true},
			skip,
			pgtype.Int8{Int64: int64(limit), Valid: limit > 0},
		)
		if err != nil {
			return fmt.Errorf("ListResults query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id                  pgtype.UUID
				r                   scanning.FileResult
				status, level       string
				detections, engines int32
				errReason           pgtype.Text
			)
			if err := rows.Scan(&id, &r.Path, &r.Name, &r.Size, &r.Digest, &status, &level,
				&r.ThreatNames, &detections, &engines, &errReason, &r.ScannedAt); err != nil {
				return fmt.Errorf("ListResults scan error: %w", err)
			}
			r.JobID = uuid.UUID(id.Bytes)
			r.Status = verdict.ParseStatus(status)
			r.ThreatLevel = verdict.ParseThreatLevel(level)
			r.DetectionCount = int(detections)
			r.TotalEngines = int(engines)
			r.ErrorReason = errReason.String
			if r.ThreatNames == nil {
				r.ThreatNames = []string{}
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}

// CountsForJob aggregates a job's records.
func (s *fileResultStore) CountsForJob(ctx context.Context, jobID uuid.UUID) (scanning.ResultCounts, error) {
	var c scanning.ResultCounts
	dbAttrs := storage.DBAttributes(attribute.String("job_id", jobID.String()))

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.count_file_results", dbAttrs, func(ctx context.Context) error {
		var err error
		c, err = scanCounts(s.db.QueryRow(ctx, countsForJobQuery, pgtype.UUID{Bytes: jobID, Valid: true}))
		return err
	})
	return c, err
}

// Totals aggregates every record.
func (s *fileResultStore) Totals(ctx context.Context) (scanning.ResultCounts, error) {
	var c scanning.ResultCounts
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.total_file_results", storage.DefaultDBAttributes, func(ctx context.Context) error {
		var err error
		c, err = scanCounts(s.db.QueryRow(ctx, countsSelect))
		return err
	})
	return c, err
}

// History groups records by job, most recently scanned job first.
func (s *fileResultStore) History(ctx context.Context, limit int) ([]scanning.JobHistory, error) {
	out := make([]scanning.JobHistory, 0)
	dbAttrs := storage.DBAttributes(attribute.Int("limit", limit))

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.scan_history", dbAttrs, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, historyQuery, pgtype.Int8{Int64: int64(limit), Valid: limit > 0})
		if err != nil {
			return fmt.Errorf("History query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id              pgtype.UUID
				total, infected int64
				last            time.Time
			)
			if err := rows.Scan(&id, &total, &infected, &last); err != nil {
				return fmt.Errorf("History scan error: %w", err)
			}
			out = append(out, scanning.JobHistory{
				JobID:        uuid.UUID(id.Bytes),
				FilesScanned: int(total),
				Infected:     int(infected),
				LastScanned:  last,
			})
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCounts(row rowScanner) (scanning.ResultCounts, error) {
	var total, infected, clean, errs int64
	if err := row.Scan(&total, &infected, &clean, &errs); err != nil {
		return scanning.ResultCounts{}, fmt.Errorf("counts query error: %w", err)
	}
	return scanning.ResultCounts{
		Total:    int(total),
		Infected: int(infected),
		Clean:    int(clean),
		Errors:   int(errs),
	}, nil
}
