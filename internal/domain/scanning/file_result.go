package scanning

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/domain/verdict"
)

// FileResult is the immutable record of one file's scan outcome.
type FileResult struct {
	JobID          uuid.UUID
	Path           string
	Name           string
	Size           int64
	Digest         string
	Status         verdict.Status
	ThreatLevel    verdict.ThreatLevel
	ThreatNames    []string
	DetectionCount int
	TotalEngines   int
	// RawPayload is the reputation service's report; nil for error states.
	RawPayload json.RawMessage
	ScannedAt  time.Time
	// ErrorReason is set only for verdict.StatusError.
	ErrorReason string
}

// NewFileResult builds a FileResult from a classification. The payload is
// dropped for error states.
func NewFileResult(
	jobID uuid.UUID,
	path, name string,
	size int64,
	digest string,
	c verdict.Classification,
	payload json.RawMessage,
	scannedAt time.Time,
) FileResult {
	r := FileResult{
		JobID:          jobID,
		Path:           path,
		Name:           name,
		Size:           size,
		Digest:         digest,
		Status:         c.Status,
		ThreatLevel:    c.ThreatLevel,
		ThreatNames:    c.ThreatNames,
		DetectionCount: c.DetectionCount,
		TotalEngines:   c.TotalEngines,
		RawPayload:     payload,
		ScannedAt:      scannedAt,
	}
	if c.Status == verdict.StatusError {
		r.RawPayload = nil
		r.ErrorReason = c.Reason
	}
	if r.ThreatNames == nil {
		r.ThreatNames = []string{}
	}
	return r
}

// NewErrorResult builds an error FileResult for a file that failed before
// classification, such as an unreadable path.
func NewErrorResult(jobID uuid.UUID, path, name string, size int64, reason string, scannedAt time.Time) FileResult {
	return FileResult{
		JobID:       jobID,
		Path:        path,
		Name:        name,
		Size:        size,
		Status:      verdict.StatusError,
		ThreatLevel: verdict.ThreatLevelUnknown,
		ThreatNames: []string{},
		ScannedAt:   scannedAt,
		ErrorReason: reason,
	}
}
