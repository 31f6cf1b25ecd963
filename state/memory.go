package state

import (
	"slices"
	"sync"
)

// MemoryStore keeps values in a map. Nothing survives a restart; it backs
// tests and orchestrators run with persistence off.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy, so callers may modify it.
func (s *MemoryStore) Get(key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return copyBytes(v), nil
}

func (s *MemoryStore) Put(key string, value []byte) error {
	return s.mutate(key, func() { s.data[key] = copyBytes(value) })
}

func (s *MemoryStore) Delete(key string) error {
	return s.mutate(key, func() { delete(s.data, key) })
}

func (s *MemoryStore) mutate(key string, apply func()) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	apply()
	return nil
}

// Keys returns matching keys in sorted order.
func (s *MemoryStore) Keys(pattern string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var keys []string
	for k := range s.data {
		if MatchPattern(pattern, k) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// Close drops the data. Every later call returns ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.data = nil
	s.mu.Unlock()
	return nil
}

// copyBytes never returns nil, so a stored empty value reads back as
// empty rather than missing.
func copyBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
