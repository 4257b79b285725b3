// Package artifact stores named binary artifacts produced by graph runs:
// transcripts, tool outputs, generated files. Artifacts are keyed by run ID
// plus a caller-chosen name, so everything a run produced can be listed and
// retrieved after the fact.
//
// The in-memory store is suitable for tests, examples and single-process
// prototypes. Durable backends (object stores, databases) implement the same
// Store interface and can be swapped without touching calling code.
package artifact

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned when no artifact exists for the given run / name
// pair.
var ErrNotFound = errors.New("artifact not found")

// Store persists run-scoped artifacts.
type Store interface {
	// Save stores (or overwrites) the artifact bytes under the run and name.
	Save(runID, name string, data []byte) error
	// Get returns the stored artifact bytes or ErrNotFound.
	Get(runID, name string) ([]byte, error)
	// List returns the artifact names stored for the run, sorted.
	List(runID string) ([]string, error)
	// Delete removes the artifact if present or returns ErrNotFound.
	Delete(runID, name string) error
}

// InMemoryStore keeps all artifacts in a nested map guarded by an RWMutex.
// Data is copied on save and retrieval so callers can never mutate internal
// buffers. It enforces no retention limits or size quotas.
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][]byte // runID -> name -> data
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][]byte)}
}

// Save implements Store. The input slice is copied before storage.
func (s *InMemoryStore) Save(runID, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.artifacts[runID]; !exists {
		s.artifacts[runID] = make(map[string][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.artifacts[runID][name] = cp
	return nil
}

// Get implements Store, returning a copy of the stored bytes.
func (s *InMemoryStore) Get(runID, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.artifacts[runID]
	if !ok {
		return nil, ErrNotFound
	}
	data, ok := m[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List implements Store.
func (s *InMemoryStore) List(runID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.artifacts[runID]
	if !ok {
		return []string{}, nil
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(runID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.artifacts[runID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[name]; !ok {
		return ErrNotFound
	}
	delete(m, name)
	return nil
}
