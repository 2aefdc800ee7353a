package quarantine

import (
	"time"

	"github.com/google/uuid"
)

// IssueType classifies a disagreement between storage and records.
type IssueType string

const (
	// IssueOrphanedFile is a file in storage with no active record.
	IssueOrphanedFile IssueType = "orphaned_file"
	// IssueMissingFile is an active record whose file is absent.
	IssueMissingFile IssueType = "missing_file"
	// IssueStrayRestored is a restored record whose file is still in storage.
	IssueStrayRestored IssueType = "stray_restored"
)

// Issue is one reconciliation finding.
type Issue struct {
	Type     IssueType
	RecordID *uuid.UUID
	Path     string
}

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	StartedAt      time.Time
	CompletedAt    time.Time
	FilesChecked   int
	RecordsChecked int
	Issues         []Issue
}

// Count returns the number of issues of type t.
func (r *ReconcileReport) Count(t IssueType) int {
	n := 0
	for _, i := range r.Issues {
		if i.Type == t {
			n++
		}
	}
	return n
}
