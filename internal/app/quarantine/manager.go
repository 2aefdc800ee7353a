// Package quarantine moves infected files out of reach and tracks them so they
// can later be restored or purged.
package quarantine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/scanguard/internal/domain/events"
	domain "github.com/ahrav/scanguard/internal/domain/quarantine"
	"github.com/ahrav/scanguard/internal/domain/verdict"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/common/timeutil"
)

// Option configures a Manager.
type Option func(*Manager)

// WithTimeProvider overrides the clock used for record timestamps.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(m *Manager) { m.clock = tp }
}

// WithPublisher sets the publisher for quarantine domain events.
func WithPublisher(p events.DomainEventPublisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// Manager owns the quarantine directory and the records describing it.
// Operations on the same record id are serialized.
type Manager struct {
	dir       string
	repo      domain.Repository
	publisher events.DomainEventPublisher
	clock     timeutil.Provider
	locks     *idLocks

	// move is swapped in tests to simulate filesystem failures.
	move func(src, dst string) error

	reconciler *reconciler

	logger *logger.Logger
	tracer trace.Tracer
}

// NewManager creates the quarantine directory if needed and returns a manager
// rooted there.
func NewManager(
	dir string,
	repo domain.Repository,
	log *logger.Logger,
	tracer trace.Tracer,
	opts ...Option,
) (*Manager, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving quarantine dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("creating quarantine dir %s: %w", abs, err)
	}

	m := &Manager{
		dir:       abs,
		repo:      repo,
		publisher: events.NopPublisher{},
		clock:     timeutil.Default(),
		locks:     newIDLocks(),
		move:      moveFile,
		logger:    log.With("component", "quarantine_manager"),
		tracer:    tracer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.reconciler = newReconciler(m)

	return m, nil
}

// Dir returns the absolute quarantine directory.
func (m *Manager) Dir() string { return m.dir }

// Quarantine moves the file at path into storage and records it. On any error
// the file is left where it was, unless an *InconsistentStateError is returned.
func (m *Manager) Quarantine(
	ctx context.Context,
	path, digest string,
	c verdict.Classification,
) (*domain.Record, error) {
	ctx, span := m.tracer.Start(ctx, "quarantine.quarantine",
		trace.WithAttributes(
			attribute.String("path", path),
			attribute.String("threat_level", c.ThreatLevel.String()),
		))
	defer span.End()

	rec, err := m.quarantine(ctx, path, digest, c)
	observeOp("quarantine", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quarantine failed")
		m.logger.Error(ctx, "failed to quarantine file", "path", path, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("record_id", rec.ID.String()))

	m.logger.Info(ctx, "file quarantined",
		"record_id", rec.ID,
		"path", rec.OriginalPath,
		"threat_level", rec.ThreatLevel,
	)
	m.publish(ctx, rec.ID, domain.NewFileQuarantinedEvent(rec))

	return rec, nil
}

func (m *Manager) quarantine(
	ctx context.Context,
	path, digest string,
	c verdict.Classification,
) (*domain.Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %w", domain.ErrQuarantineFailed, path, err)
	}

	rec := domain.NewRecord(m.dir, abs, digest, c, m.clock.Now())
	unlock := m.locks.lock(rec.ID)
	defer unlock()

	if err := m.move(abs, rec.StoragePath); err != nil {
		return nil, fmt.Errorf("%w: moving %s: %w", domain.ErrQuarantineFailed, abs, err)
	}

	if err := m.repo.Create(ctx, rec); err != nil {
		if rbErr := m.move(rec.StoragePath, abs); rbErr != nil {
			return nil, &domain.InconsistentStateError{
				ID:       rec.ID,
				Path:     rec.StoragePath,
				Op:       "quarantine",
				Err:      err,
				Rollback: rbErr,
			}
		}
		return nil, fmt.Errorf("%w: saving record: %w", domain.ErrQuarantineFailed, err)
	}

	return rec, nil
}

// Restore moves a quarantined file back to its original path and marks the
// record restored. It refuses with ErrDestinationExists when something now
// occupies the original path.
func (m *Manager) Restore(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	ctx, span := m.tracer.Start(ctx, "quarantine.restore",
		trace.WithAttributes(attribute.String("record_id", id.String())))
	defer span.End()

	unlock := m.locks.lock(id)
	defer unlock()

	rec, err := m.restore(ctx, id)
	observeOp("restore", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "restore failed")
		return nil, err
	}

	m.logger.Info(ctx, "file restored", "record_id", id, "path", rec.OriginalPath)
	m.publish(ctx, id, domain.NewFileRestoredEvent(rec))

	return rec, nil
}

func (m *Manager) restore(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	rec, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Restored {
		return nil, domain.ErrAlreadyRestored
	}

	exists, err := fileExists(rec.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", rec.StoragePath, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileMissing, rec.StoragePath)
	}

	occupied, err := pathOccupied(rec.OriginalPath)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", rec.OriginalPath, err)
	}
	if occupied {
		return nil, fmt.Errorf("%w: %s", domain.ErrDestinationExists, rec.OriginalPath)
	}

	if err := os.MkdirAll(filepath.Dir(rec.OriginalPath), 0o755); err != nil {
		return nil, fmt.Errorf("recreating %s: %w", filepath.Dir(rec.OriginalPath), err)
	}
	if err := m.move(rec.StoragePath, rec.OriginalPath); err != nil {
		return nil, fmt.Errorf("moving %s back: %w", rec.ID, err)
	}

	if err := rec.MarkRestored(m.clock.Now()); err != nil {
		return nil, err
	}
	if err := m.repo.Update(ctx, rec); err != nil {
		if rbErr := m.move(rec.OriginalPath, rec.StoragePath); rbErr != nil {
			return nil, &domain.InconsistentStateError{
				ID:       rec.ID,
				Path:     rec.OriginalPath,
				Op:       "restore",
				Err:      err,
				Rollback: rbErr,
			}
		}
		return nil, fmt.Errorf("marking %s restored: %w", rec.ID, err)
	}

	return rec, nil
}

// Purge deletes the quarantined file and its record. A file already gone
// from storage is not an error. Restored records may be purged too; only the
// record goes and the restored file is left where it is.
func (m *Manager) Purge(ctx context.Context, id uuid.UUID) error {
	ctx, span := m.tracer.Start(ctx, "quarantine.purge",
		trace.WithAttributes(attribute.String("record_id", id.String())))
	defer span.End()

	unlock := m.locks.lock(id)
	defer unlock()

	err := m.purge(ctx, id)
	observeOp("purge", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge failed")
		return err
	}

	m.logger.Info(ctx, "quarantine record purged", "record_id", id)
	m.publish(ctx, id, domain.NewFilePurgedEvent(id))
	return nil
}

func (m *Manager) purge(ctx context.Context, id uuid.UUID) error {
	rec, err := m.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := os.Remove(rec.StoragePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", rec.StoragePath, err)
	}

	return m.repo.Delete(ctx, id)
}

// List returns every record, newest first.
func (m *Manager) List(ctx context.Context) ([]*domain.Record, error) {
	return m.repo.List(ctx)
}

// CountActive returns the number of records still in quarantine.
func (m *Manager) CountActive(ctx context.Context) (int, error) {
	return m.repo.CountActive(ctx)
}

func (m *Manager) publish(ctx context.Context, id uuid.UUID, evt events.DomainEvent) {
	if err := m.publisher.PublishDomainEvent(ctx, evt, events.WithKey(id.String())); err != nil {
		m.logger.Warn(ctx, "failed to publish quarantine event",
			"event_type", evt.EventType(),
			"error", err,
		)
	}
}
