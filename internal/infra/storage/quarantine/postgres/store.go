// Package postgres provides a PostgreSQL-backed quarantine repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/domain/quarantine"
	"github.com/ahrav/scanguard/internal/domain/verdict"
	"github.com/ahrav/scanguard/internal/infra/storage"
)

var _ quarantine.Repository = (*store)(nil)

type store struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewStore creates a PostgreSQL-backed quarantine repository.
func NewStore(pool *pgxpool.Pool, tracer trace.Tracer) *store {
	return &store{db: pool, tracer: tracer}
}

const (
	createRecordQuery = `
INSERT INTO quarantine_records
    (id, original_path, storage_path, file_name, threat_level, threat_names, digest, quarantined_at, restored, restored_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	selectRecordColumns = `
SELECT id, original_path, storage_path, file_name, threat_level, threat_names, digest, quarantined_at, restored, restored_at
FROM quarantine_records`

	getRecordQuery   = selectRecordColumns + ` WHERE id = $1`
	listRecordsQuery = selectRecordColumns + ` ORDER BY quarantined_at DESC, id`

	updateRecordQuery = `UPDATE quarantine_records SET restored = $2, restored_at = $3 WHERE id = $1`
	deleteRecordQuery = `DELETE FROM quarantine_records WHERE id = $1`
	countActiveQuery  = `SELECT count(*) FROM quarantine_records WHERE restored = FALSE`
)

// Create inserts a new record.
func (s *store) Create(ctx context.Context, r *quarantine.Record) error {
	dbAttrs := storage.DBAttributes(
		attribute.String("quarantine_id", r.ID.String()),
		attribute.String("threat_level", r.ThreatLevel.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.create_quarantine_record", dbAttrs, func(ctx context.Context) error {
		names := r.ThreatNames
		if names == nil {
			names = []string{}
		}
		_, err := s.db.Exec(ctx, createRecordQuery,
			pgtype.UUID{Bytes: r.ID, Valid: true},
			r.OriginalPath,
			r.StoragePath,
			r.FileName,
			r.ThreatLevel.String(),
			names,
			r.Digest,
			r.QuarantinedAt,
			r.Restored,
			restoredAt(r),
		)
		if err != nil {
			return fmt.Errorf("create quarantine record error: %w", err)
		}
		return nil
	})
}

// Get returns the record for id.
func (s *store) Get(ctx context.Context, id uuid.UUID) (*quarantine.Record, error) {
	var rec *quarantine.Record
	dbAttrs := storage.DBAttributes(attribute.String("quarantine_id", id.String()))

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_quarantine_record", dbAttrs, func(ctx context.Context) error {
		var err error
		rec, err = scanRecord(s.db.QueryRow(ctx, getRecordQuery, pgtype.UUID{Bytes: id, Valid: true}))
		if errors.Is(err, pgx.ErrNoRows) {
			return quarantine.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get quarantine record error: %w", err)
		}
		return nil
	})
	return rec, err
}

// Update persists the restore state of r.
func (s *store) Update(ctx context.Context, r *quarantine.Record) error {
	dbAttrs := storage.DBAttributes(
		attribute.String("quarantine_id", r.ID.String()),
		attribute.Bool("restored", r.Restored),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.update_quarantine_record", dbAttrs, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, updateRecordQuery, pgtype.UUID{Bytes: r.ID, Valid: true}, r.Restored, restoredAt(r))
		if err != nil {
			return fmt.Errorf("update quarantine record error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return quarantine.ErrNotFound
		}
		return nil
	})
}

// Delete permanently removes the record for id.
func (s *store) Delete(ctx context.Context, id uuid.UUID) error {
	dbAttrs := storage.DBAttributes(attribute.String("quarantine_id", id.String()))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.delete_quarantine_record", dbAttrs, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, deleteRecordQuery, pgtype.UUID{Bytes: id, Valid: true})
		if err != nil {
			return fmt.Errorf("delete quarantine record error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return quarantine.ErrNotFound
		}
		return nil
	})
}

// List returns every record, newest first.
func (s *store) List(ctx context.Context) ([]*quarantine.Record, error) {
	out := make([]*quarantine.Record, 0)

	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.list_quarantine_records", storage.DefaultDBAttributes, func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, listRecordsQuery)
		if err != nil {
			return fmt.Errorf("list quarantine records error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return fmt.Errorf("list quarantine records scan error: %w", err)
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// CountActive returns the number of records not yet restored.
func (s *store) CountActive(ctx context.Context) (int, error) {
	var n int64
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.count_active_quarantine", storage.DefaultDBAttributes, func(ctx context.Context) error {
		if err := s.db.QueryRow(ctx, countActiveQuery).Scan(&n); err != nil {
			return fmt.Errorf("count active quarantine error: %w", err)
		}
		return nil
	})
	return int(n), err
}

func restoredAt(r *quarantine.Record) pgtype.Timestamptz {
	if r.RestoredAt == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *r.RestoredAt, Valid: true}
}

func scanRecord(row pgx.Row) (*quarantine.Record, error) {
	var (
		id    pgtype.UUID
		level string
		at    pgtype.Timestamptz
		rec   quarantine.Record
	)
	if err := row.Scan(&id, &rec.OriginalPath, &rec.StoragePath, &rec.FileName, &level,
		&rec.ThreatNames, &rec.Digest, &rec.QuarantinedAt, &rec.Restored, &at); err != nil {
		return nil, err
	}
	rec.ID = uuid.UUID(id.Bytes)
	rec.ThreatLevel = verdict.ParseThreatLevel(level)
	if rec.ThreatNames == nil {
		rec.ThreatNames = []string{}
	}
	if at.Valid {
		t := at.Time
		rec.RestoredAt = &t
	}
	return &rec, nil
}
