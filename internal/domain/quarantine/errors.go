package quarantine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record exists for an id.
	ErrNotFound = errors.New("quarantine record not found")

	// ErrAlreadyRestored is returned when restoring a record twice.
	ErrAlreadyRestored = errors.New("quarantine record already restored")

	// ErrFileMissing is returned when the quarantined file is gone from storage.
	ErrFileMissing = errors.New("quarantined file missing")

	// ErrDestinationExists is returned when restoring onto a path that is
	// occupied. Nothing is moved.
	ErrDestinationExists = errors.New("restore destination already exists")

	// ErrQuarantineFailed wraps failures to move a file into storage.
	ErrQuarantineFailed = errors.New("quarantine failed")
)

// ReasonInconsistentState is the reason code surfaced for InconsistentStateError.
const ReasonInconsistentState = "inconsistent_state"

// InconsistentStateError reports that the filesystem and the record store
// disagree and the rollback could not repair it.
type InconsistentStateError struct {
	ID       uuid.UUID
	Path     string
	Op       string
	Err      error
	Rollback error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("%s: %s %s (file at %s): %v; rollback: %v",
		ReasonInconsistentState, e.Op, e.ID, e.Path, e.Err, e.Rollback)
}

func (e *InconsistentStateError) Unwrap() []error { return []error{e.Err, e.Rollback} }

// Reason returns the machine-readable reason code.
func (e *InconsistentStateError) Reason() string { return ReasonInconsistentState }
