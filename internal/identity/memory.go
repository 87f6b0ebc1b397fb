package identity

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, identity, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[normalize(identity)][key]
	return v, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, identity, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := normalize(identity)
	prefs, ok := s.data[id]
	if !ok {
		prefs = make(map[string]string)
		s.data[id] = prefs
	}
	prefs[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, identity, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := normalize(identity)
	prefs, ok := s.data[id]
	if !ok {
		return nil
	}
	delete(prefs, key)
	if len(prefs) == 0 {
		delete(s.data, id)
	}
	return nil
}
