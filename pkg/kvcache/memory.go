package kvcache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-memory Store used in tests and as a fallback
// when no cache directory is configured. Values do not survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is swappable in tests
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	return s.set(key, value, time.Time{})
}

func (s *MemoryStore) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.set(key, value, s.now().Add(ttl))
}

func (s *MemoryStore) set(key string, value []byte, expiresAt time.Time) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	s.mu.Lock()
	s.entries[key] = memoryEntry{value: stored, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
