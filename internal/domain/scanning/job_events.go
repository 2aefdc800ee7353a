package scanning

import (
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/domain/events"
	"github.com/ahrav/scanguard/internal/domain/verdict"
)

// Event types relevant to scan jobs.
const (
	EventTypeJobStarted   events.EventType = "ScanJobStarted"
	EventTypeJobCompleted events.EventType = "ScanJobCompleted"
	EventTypeFileInfected events.EventType = "FileInfected"
)

// JobStartedEvent signals that a new scan job began walking its directory.
type JobStartedEvent struct {
	occurredAt time.Time
	JobID      uuid.UUID
	Directory  string
	Mode       ScanMode
}

// NewJobStartedEvent creates a new scan job started event.
func NewJobStartedEvent(jobID uuid.UUID, directory string, mode ScanMode) JobStartedEvent {
	return JobStartedEvent{
		occurredAt: time.Now(),
		JobID:      jobID,
		Directory:  directory,
		Mode:       mode,
	}
}

func (e JobStartedEvent) EventType() events.EventType { return EventTypeJobStarted }
func (e JobStartedEvent) OccurredAt() time.Time       { return e.occurredAt }

// JobCompletedEvent signals that a scan job finished with frozen counters.
type JobCompletedEvent struct {
	occurredAt    time.Time
	JobID         uuid.UUID
	FilesScanned  int
	FilesInfected int
}

// NewJobCompletedEvent creates a new scan job completed event.
func NewJobCompletedEvent(jobID uuid.UUID, scanned, infected int) JobCompletedEvent {
	return JobCompletedEvent{
		occurredAt:    time.Now(),
		JobID:         jobID,
		FilesScanned:  scanned,
		FilesInfected: infected,
	}
}

func (e JobCompletedEvent) EventType() events.EventType { return EventTypeJobCompleted }
func (e JobCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }

// FileInfectedEvent signals that a file was classified as infected.
type FileInfectedEvent struct {
	occurredAt  time.Time
	JobID       uuid.UUID
	Path        string
	Digest      string
	ThreatLevel verdict.ThreatLevel
	ThreatNames []string
}

// NewFileInfectedEvent creates a new file infected event.
func NewFileInfectedEvent(r FileResult) FileInfectedEvent {
	return FileInfectedEvent{
		occurredAt:  time.Now(),
		JobID:       r.JobID,
		Path:        r.Path,
		Digest:      r.Digest,
		ThreatLevel: r.ThreatLevel,
		ThreatNames: r.ThreatNames,
	}
}

func (e FileInfectedEvent) EventType() events.EventType { return EventTypeFileInfected }
func (e FileInfectedEvent) OccurredAt() time.Time       { return e.occurredAt }
