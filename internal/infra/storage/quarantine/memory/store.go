// Package memory provides an in-memory quarantine repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/domain/quarantine"
)

var _ quarantine.Repository = (*Store)(nil)

// Store is an in-memory quarantine.Repository.
type Store struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*quarantine.Record
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[uuid.UUID]*quarantine.Record)}
}

// Create stores a copy of r.
func (s *Store) Create(_ context.Context, r *quarantine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("quarantine record %s already exists", r.ID)
	}
	s.records[r.ID] = cloneRecord(r)
	return nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(_ context.Context, id uuid.UUID) (*quarantine.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, quarantine.ErrNotFound
	}
	return cloneRecord(r), nil
}

// Update replaces the stored record.
func (s *Store) Update(_ context.Context, r *quarantine.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[r.ID]; !ok {
		return quarantine.ErrNotFound
	}
	s.records[r.ID] = cloneRecord(r)
	return nil
}

// Delete removes the record for id.
func (s *Store) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return quarantine.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// List returns every record, newest first.
func (s *Store) List(context.Context) ([]*quarantine.Record, error) {
	s.mu.RLock()
	out := make([]*quarantine.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		if !out[i].QuarantinedAt.Equal(out[k].QuarantinedAt) {
			return out[i].QuarantinedAt.After(out[k].QuarantinedAt)
		}
		return out[i].ID.String() < out[k].ID.String()
	})
	return out, nil
}

// CountActive returns the number of records not yet restored.
func (s *Store) CountActive(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if !r.Restored {
			n++
		}
	}
	return n, nil
}

func cloneRecord(r *quarantine.Record) *quarantine.Record {
	c := *r
	c.ThreatNames = append([]string{}, r.ThreatNames...)
	if r.RestoredAt != nil {
		t := *r.RestoredAt
		c.RestoredAt = &t
	}
	return &c
}
