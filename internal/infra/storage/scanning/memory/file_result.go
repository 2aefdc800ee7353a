package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/internal/domain/verdict"
)

var _ scanning.FileResultRepository = (*FileResultStore)(nil)

// FileResultStore is an in-memory scanning.FileResultRepository.
type FileResultStore struct {
	mu      sync.RWMutex
	results []scanning.FileResult
}

// NewFileResultStore creates an empty FileResultStore.
func NewFileResultStore() *FileResultStore { return new(FileResultStore) }

// SaveResult appends a copy of result.
func (s *FileResultStore) SaveResult(_ context.Context, result scanning.FileResult) error {
	result.ThreatNames = append([]string{}, result.ThreatNames...)
	if result.RawPayload != nil {
		result.RawPayload = append([]byte(nil), result.RawPayload...)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

// ListResults returns a job's records newest first with the raw payload
// stripped.
func (s *FileResultStore) ListResults(_ context.Context, jobID uuid.UUID, skip, limit int) ([]scanning.FileResult, error) {
	s.mu.RLock()
	var out []scanning.FileResult
	// Walk backwards so records saved later come first on timestamp ties.
	for i := len(s.results) - 1; i >= 0; i-- {
		if r := s.results[i]; r.JobID == jobID {
			r.RawPayload = nil
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, k int) bool { return out[i].ScannedAt.After(out[k].ScannedAt) })

	if skip >= len(out) {
		return []scanning.FileResult{}, nil
	}
	out = out[skip:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountsForJob aggregates a job's records.
func (s *FileResultStore) CountsForJob(_ context.Context, jobID uuid.UUID) (scanning.ResultCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c scanning.ResultCounts
	for _, r := range s.results {
		if r.JobID == jobID {
			addCount(&c, r)
		}
	}
	return c, nil
}

// History groups records by job, most recently scanned job first.
func (s *FileResultStore) History(_ context.Context, limit int) ([]scanning.JobHistory, error) {
	s.mu.RLock()
	byJob := make(map[uuid.UUID]*scanning.JobHistory)
	for _, r := range s.results {
		h, ok := byJob[r.JobID]
		if !ok {
			h = &scanning.JobHistory{JobID: r.JobID}
			byJob[r.JobID] = h
		}
		h.FilesScanned++
		if r.Status == verdict.StatusInfected {
			h.Infected++
		}
		if r.ScannedAt.After(h.LastScanned) {
			h.LastScanned = r.ScannedAt
		}
	}
	s.mu.RUnlock()

	out := make([]scanning.JobHistory, 0, len(byJob))
	for _, h := range byJob {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, k int) bool {
		return laterOrID(out[i].LastScanned, out[k].LastScanned, out[i].JobID, out[k].JobID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Totals aggregates every record.
func (s *FileResultStore) Totals(context.Context) (scanning.ResultCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c scanning.ResultCounts
	for _, r := range s.results {
		addCount(&c, r)
	}
	return c, nil
}

func addCount(c *scanning.ResultCounts, r scanning.FileResult) {
	c.Total++
	switch r.Status {
	case verdict.StatusInfected:
		c.Infected++
	case verdict.StatusClean:
		c.Clean++
	case verdict.StatusError:
		c.Errors++
	}
}

func laterOrID(a, b time.Time, ida, idb uuid.UUID) bool {
	if !a.Equal(b) {
		return a.After(b)
	}
	return ida.String() < idb.String()
}
