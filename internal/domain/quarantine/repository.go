package quarantine

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists quarantine records.
type Repository interface {
	// Create inserts a new record.
	Create(ctx context.Context, r *Record) error
	// Get returns ErrNotFound when no record exists for id.
	Get(ctx context.Context, id uuid.UUID) (*Record, error)
	// Update overwrites the restore state. Returns ErrNotFound for unknown ids.
	Update(ctx context.Context, r *Record) error
	// Delete removes a record permanently. Returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns all records newest first.
	List(ctx context.Context) ([]*Record, error)
	// CountActive returns the number of records not yet restored.
	CountActive(ctx context.Context) (int, error)
}
