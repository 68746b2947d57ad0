package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/transfertrack/backend/internal/domain/shared"
)

// MemoryStore implements Store with an in-memory map. Suitable for tests
// and throwaway sessions; entries still round-trip through JSON so encoding
// behavior matches the durable store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte

	// FailWrites makes every Put/Delete fail, simulating local I/O errors.
	FailWrites bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

// Get implements Store.Get
func (s *MemoryStore) Get(ctx context.Context, key string, out any) error {
	s.mu.RLock()
	value, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return shared.ErrNotFound
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("decode %q: %w: %w", key, shared.ErrLocalIO, err)
	}
	return nil
}

// Put implements Store.Put
func (s *MemoryStore) Put(ctx context.Context, key string, in any) error {
	if s.FailWrites {
		return fmt.Errorf("write %q: %w", key, shared.ErrLocalIO)
	}
	value, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %q: %w: %w", key, shared.ErrLocalIO, err)
	}
	s.mu.Lock()
	s.entries[key] = value
	s.mu.Unlock()
	return nil
}

// Delete implements Store.Delete
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if s.FailWrites {
		return fmt.Errorf("delete %q: %w", key, shared.ErrLocalIO)
	}
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Raw returns the stored bytes for key, for tests asserting on persisted
// payloads.
func (s *MemoryStore) Raw(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok
}
