// Package memory provides a map-backed storage.Store for tests and for
// embeddings that accept losing the spool on process exit.
package memory

import (
	"sync"

	"github.com/rzbill/flare/pkg/storage"
)

// Store is an in-memory key-value store. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[string]string
}

// New creates an empty store.
func New() *Store {
	return &Store{m: make(map[string]string)}
}

// Get implements storage.Store.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

// Set implements storage.Store.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

// Remove implements storage.Store.
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

var _ storage.Store = (*Store)(nil)
