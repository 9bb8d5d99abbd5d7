package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dunamismax/imageoptimizer/internal/domain"
)

type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
	now  func() time.Time
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.Job),
		now:  time.Now,
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.Job, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, false, nil
	}
	return cloneJob(job), true, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	job.Status = status
	job.UpdatedAt = s.now().UTC()
	s.jobs[id] = job
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Transition(_ context.Context, id, from, to string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}
	if job.Status != from {
		return cloneJob(job), fmt.Errorf("%w: job %s is %s, not %s", ErrStatusConflict, id, job.Status, from)
	}

	job.Status = to
	job.UpdatedAt = s.now().UTC()
	s.jobs[id] = job
	return cloneJob(job), nil
}

func (s *MemoryJobStore) Finish(_ context.Context, id string, result JobResult) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, ErrJobNotFound
	}

	job.Status = result.Status
	job.Outputs = slices.Clone(result.Outputs)
	job.Skipped = slices.Clone(result.Skipped)
	job.Error = result.Error
	job.UpdatedAt = s.now().UTC()
	s.jobs[id] = job
	return cloneJob(job), nil
}

func cloneJob(job domain.Job) domain.Job {
	job.InputKeys = slices.Clone(job.InputKeys)
	job.Outputs = slices.Clone(job.Outputs)
	job.Skipped = slices.Clone(job.Skipped)
	job.Spec.Ranges = slices.Clone(job.Spec.Ranges)
	return job
}
