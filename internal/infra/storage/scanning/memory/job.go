// Package memory provides in-memory scanning repositories for tests and
// single-process deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/domain/scanning"
)

var _ scanning.JobRepository = (*JobStore)(nil)

// JobStore is an in-memory scanning.JobRepository.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*scanning.Job
}

// NewJobStore creates an empty JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[uuid.UUID]*scanning.Job)}
}

// CreateJob stores a copy of job.
func (s *JobStore) CreateJob(_ context.Context, job *scanning.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID()]; exists {
		return fmt.Errorf("job %s already exists", job.JobID())
	}
	s.jobs[job.JobID()] = cloneJob(job)
	return nil
}

// UpdateJob replaces the stored copy of job.
func (s *JobStore) UpdateJob(_ context.Context, job *scanning.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID()]; !exists {
		return scanning.ErrJobNotFound
	}
	s.jobs[job.JobID()] = cloneJob(job)
	return nil
}

// GetJob returns a copy of the stored job.
func (s *JobStore) GetJob(_ context.Context, jobID uuid.UUID) (*scanning.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, scanning.ErrJobNotFound
	}
	return cloneJob(job), nil
}

// ListJobs returns up to limit jobs, newest first. A non-positive limit
// returns every job.
func (s *JobStore) ListJobs(_ context.Context, limit int) ([]*scanning.Job, error) {
	s.mu.RLock()
	jobs := make([]*scanning.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, cloneJob(j))
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool { return jobs[i].StartTime().After(jobs[k].StartTime()) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

// CountJobs returns the number of stored jobs.
func (s *JobStore) CountJobs(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs), nil
}

func cloneJob(j *scanning.Job) *scanning.Job {
	tl := j.GetTimeline()
	return scanning.ReconstructJob(
		j.JobID(),
		j.Directory(),
		j.Mode(),
		j.Status(),
		j.FilesScanned(),
		j.FilesInfected(),
		scanning.ReconstructTimeline(tl.StartedAt(), tl.CompletedAt(), tl.LastUpdate()),
	)
}
