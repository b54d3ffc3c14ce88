package analysis

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemoryStore keeps analyses in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (s *MemoryStore) SaveAnalysis(_ context.Context, a *Analysis) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.items[a.ID] = b
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAnalysis(_ context.Context, id string) (*Analysis, error) {
	s.mu.RLock()
	b, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var a Analysis
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *MemoryStore) ListAnalyses(_ context.Context, limit int) ([]*Analysis, error) {
	s.mu.RLock()
	out := make([]*Analysis, 0, len(s.items))
	for _, b := range s.items {
		var a Analysis
		if err := json.Unmarshal(b, &a); err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		out = append(out, &a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteAnalysis(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}
