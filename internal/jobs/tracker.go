package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MimeLyc/sales-playbook/internal/apperr"
	"github.com/MimeLyc/sales-playbook/pkg/log"
)

// Tracker owns the in-memory copy of every job that is being driven by this
// process. All mutations go through Update, which serialises them per job and
// writes the whole row back to the store.
type Tracker struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	live map[string]*liveJob
}

type liveJob struct {
	mu   sync.Mutex
	job  *Job
	refs int
}

func NewTracker(store Store) *Tracker {
	return &Tracker{
		store: store,
		now:   time.Now,
		live:  make(map[string]*liveJob),
	}
}

// Create persists a new job.
func (t *Tracker) Create(ctx context.Context, job *Job) (*Job, error) {
	if job == nil {
		return nil, fmt.Errorf("job is nil")
	}
	snapshot := job.Clone()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = t.now()
	}
	snapshot.UpdatedAt = snapshot.CreatedAt
	if err := snapshot.Validate(); err != nil {
		return nil, apperr.WrapError(err, apperr.ErrValidation, "invalid job")
	}
	if err := t.store.UpsertJob(ctx, snapshot); err != nil {
		return nil, apperr.WrapError(err, apperr.ErrStorage, "persist job")
	}
	return snapshot.Clone(), nil
}

// Acquire pins the job in memory until the matching Release.
func (t *Tracker) Acquire(ctx context.Context, id string) error {
	t.mu.Lock()
	if entry, ok := t.live[id]; ok {
		entry.refs++
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	job, err := t.load(ctx, id)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.live[id]; ok {
		entry.refs++
		return nil
	}
	t.live[id] = &liveJob{job: job, refs: 1}
	return nil
}

func (t *Tracker) Release(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.live[id]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(t.live, id)
	}
}

// IsLive reports whether some goroutine of this process still drives the job.
func (t *Tracker) IsLive(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.live[id]
	return ok
}

// Update applies fn to the job and persists the result. If fn fails the job
// is left untouched. A persistence failure keeps the in-memory change and is
// returned to the caller.
func (t *Tracker) Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error) {
	t.mu.Lock()
	entry, pinned := t.live[id]
	t.mu.Unlock()

	if !pinned {
		if err := t.Acquire(ctx, id); err != nil {
			return nil, err
		}
		defer t.Release(id)
		t.mu.Lock()
		entry = t.live[id]
		t.mu.Unlock()
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	work := entry.job.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UpdatedAt = t.now()
	if err := work.Validate(); err != nil {
		return nil, apperr.WrapError(err, apperr.ErrValidation, "job update breaks invariants")
	}
	entry.job = work

	snapshot := work.Clone()
	if err := t.store.UpsertJob(ctx, snapshot); err != nil {
		log.Error("Failed to persist job %s: %v", id, err)
		return snapshot, apperr.WrapError(err, apperr.ErrStorage, "persist job")
	}
	return snapshot, nil
}

// Get prefers the live copy and falls back to the store.
func (t *Tracker) Get(ctx context.Context, id string) (*Job, error) {
	t.mu.Lock()
	entry, ok := t.live[id]
	t.mu.Unlock()
	if ok {
		entry.mu.Lock()
		defer entry.mu.Unlock()
		return entry.job.Clone(), nil
	}
	return t.load(ctx, id)
}

func (t *Tracker) load(ctx context.Context, id string) (*Job, error) {
	job, err := t.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NewErrorWithCause(apperr.ErrNotFound, fmt.Sprintf("batch job with ID %s not found", id), err)
		}
		return nil, apperr.WrapError(err, apperr.ErrStorage, "load job")
	}
	return job, nil
}
