package scanning

import "fmt"

// JobStatus represents the current state of a scan job.
type JobStatus string

const (
	// JobStatusInProgress indicates the directory walk is still running.
	JobStatusInProgress JobStatus = "in_progress"

	// JobStatusCompleted indicates the walk finished and counters are final.
	JobStatusCompleted JobStatus = "completed"
)

func (s JobStatus) String() string { return string(s) }

// ParseJobStatus converts a string to a JobStatus.
func ParseJobStatus(s string) JobStatus {
	switch JobStatus(s) {
	case JobStatusInProgress:
		return JobStatusInProgress
	case JobStatusCompleted:
		return JobStatusCompleted
	default:
		return "" // represents unspecified
	}
}

// ValidateTransition checks if a status transition is valid and returns an error if not.
func (s JobStatus) ValidateTransition(target JobStatus) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid job status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition enforces the job lifecycle: in_progress may only move to
// completed, and completed is terminal.
func (s JobStatus) isValidTransition(target JobStatus) bool {
	switch s {
	case JobStatusInProgress:
		return target == JobStatusCompleted
	default:
		return false
	}
}
