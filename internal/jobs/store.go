package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("job not found")

// Store persists whole job rows keyed by id.
type Store interface {
	UpsertJob(ctx context.Context, job *Job) error
	// GetJob returns ErrNotFound when no job has the id.
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobsByStatus(ctx context.Context, statuses ...Status) ([]*Job, error)
	DeleteJob(ctx context.Context, id string) error
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) UpsertJob(_ context.Context, job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.jobs[job.ID] = job.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) ListJobsByStatus(_ context.Context, statuses ...Status) ([]*Job, error) {
	want := make(map[Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	s.mu.RLock()
	ret := make([]*Job, 0)
	for _, job := range s.jobs {
		if len(want) == 0 || want[job.Status] {
			ret = append(ret, job.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(ret, func(i, k int) bool {
		return ret[i].CreatedAt.Before(ret[k].CreatedAt)
	})
	return ret, nil
}

func (s *MemoryStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}
