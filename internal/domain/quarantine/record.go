// Package quarantine models files isolated after an infected verdict.
package quarantine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/domain/verdict"
)

// Record tracks one quarantined file. The file exists at StoragePath exactly
// when Restored is false, outside of the move window.
type Record struct {
	ID            uuid.UUID
	OriginalPath  string
	StoragePath   string
	FileName      string
	ThreatLevel   verdict.ThreatLevel
	ThreatNames   []string
	Digest        string
	QuarantinedAt time.Time
	Restored      bool
	RestoredAt    *time.Time
}

// NewRecord creates an active record for a file about to be moved into dir.
func NewRecord(dir, originalPath, digest string, c verdict.Classification, now time.Time) *Record {
	id := uuid.New()
	name := filepath.Base(originalPath)
	names := c.ThreatNames
	if names == nil {
		names = []string{}
	}
	return &Record{
		ID:            id,
		OriginalPath:  originalPath,
		StoragePath:   StoragePath(dir, id, name),
		FileName:      name,
		ThreatLevel:   c.ThreatLevel,
		ThreatNames:   names,
		Digest:        digest,
		QuarantinedAt: now,
	}
}

// StoragePath derives the collision-free location of a quarantined file.
func StoragePath(dir string, id uuid.UUID, fileName string) string {
	return filepath.Join(dir, StorageName(id, fileName))
}

// StorageName is the base name of a quarantined file.
func StorageName(id uuid.UUID, fileName string) string {
	return fmt.Sprintf("%s_%s", id, fileName)
}

// RecordIDFromStorageName recovers the record id from a name produced by
// StorageName.
func RecordIDFromStorageName(name string) (uuid.UUID, bool) {
	const idLen = 36
	if len(name) <= idLen || name[idLen] != '_' {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(name[:idLen])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// MarkRestored moves the record to its terminal restored state.
func (r *Record) MarkRestored(now time.Time) error {
	if r.Restored {
		return ErrAlreadyRestored
	}
	r.Restored = true
	r.RestoredAt = &now
	return nil
}
