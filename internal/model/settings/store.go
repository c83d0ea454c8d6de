package settings

import (
	"context"
	"sync"
)

// MemoryStore implements Store with a guarded map.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied values.
// Empty values are skipped so an unset env var does not enable a capability.
func NewMemoryStore(seed map[string]string) *MemoryStore {
	items := make(map[string]string, len(seed))
	for k, v := range seed {
		if v != "" {
			items[k] = v
		}
	}
	return &MemoryStore{items: items}
}

// Get looks up a setting by key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	if !IsKnown(key) {
		return "", false, ErrUnknownKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.items[key]
	return value, ok, nil
}

// Set upserts a setting.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	if !IsKnown(key) {
		return ErrUnknownKey
	}
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
	return nil
}
