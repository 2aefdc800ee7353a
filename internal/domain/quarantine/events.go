package quarantine

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/domain/events"
	"github.com/ahrav/scanguard/internal/domain/verdict"
)

// Event types relevant to quarantine records.
const (
	EventTypeFileQuarantined events.EventType = "FileQuarantined"
	EventTypeFileRestored    events.EventType = "FileRestored"
	EventTypeFilePurged      events.EventType = "FilePurged"
)

// FileQuarantinedEvent signals a file was moved into storage.
type FileQuarantinedEvent struct {
	occurredAt   time.Time
	ID           uuid.UUID
	OriginalPath string
	ThreatLevel  verdict.ThreatLevel
	Digest       string
}

// NewFileQuarantinedEvent creates a new file quarantined event.
func NewFileQuarantinedEvent(r *Record) FileQuarantinedEvent {
	return FileQuarantinedEvent{
		occurredAt:   time.Now(),
		ID:           r.ID,
		OriginalPath: r.OriginalPath,
		ThreatLevel:  r.ThreatLevel,
		Digest:       r.Digest,
	}
}

func (e FileQuarantinedEvent) EventType() events.EventType { return EventTypeFileQuarantined }
func (e FileQuarantinedEvent) OccurredAt() time.Time       { return e.occurredAt }

// FileRestoredEvent signals a file was moved back to its original path.
type FileRestoredEvent struct {
	occurredAt   time.Time
	ID           uuid.UUID
	OriginalPath string
}

// NewFileRestoredEvent creates a new file restored event.
func NewFileRestoredEvent(r *Record) FileRestoredEvent {
	return FileRestoredEvent{occurredAt: time.Now(), ID: r.ID, OriginalPath: r.OriginalPath}
}

func (e FileRestoredEvent) EventType() events.EventType { return EventTypeFileRestored }
func (e FileRestoredEvent) OccurredAt() time.Time       { return e.occurredAt }

// FilePurgedEvent signals a record and its file were permanently removed.
type FilePurgedEvent struct {
	occurredAt time.Time
	ID         uuid.UUID
}

// NewFilePurgedEvent creates a new file purged event.
func NewFilePurgedEvent(id uuid.UUID) FilePurgedEvent {
	return FilePurgedEvent{occurredAt: time.Now(), ID: id}
}

func (e FilePurgedEvent) EventType() events.EventType { return EventTypeFilePurged }
func (e FilePurgedEvent) OccurredAt() time.Time       { return e.occurredAt }
