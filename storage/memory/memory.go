// Package memory provides an in-process implementation of storage.Store.
package memory

import (
	"context"
	"sync"

	"github.com/motebus/Ultra-MCP-Servers/storage"
)

// Storage implements storage.Store with a map and an insertion-order index,
// both guarded by one mutex.
type Storage struct {
	mu      sync.RWMutex
	entries map[string]string
	order   []string
}

// New creates an empty store.
func New() *Storage {
	return &Storage{entries: make(map[string]string)}
}

// Put creates or overwrites the entry.
func (s *Storage) Put(_ context.Context, name, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[name]; !exists {
		s.order = append(s.order, name)
	}
	s.entries[name] = content
	return nil
}

// Get returns the entry content or storage.ErrNotFound.
func (s *Storage) Get(_ context.Context, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.entries[name]
	if !ok {
		return "", storage.ErrNotFound
	}
	return content, nil
}

// List returns a snapshot of all entries in insertion order.
func (s *Storage) List(_ context.Context) ([]storage.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.Entry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, storage.Entry{Name: name, Content: s.entries[name]})
	}
	return out, nil
}

// Close is a no-op.
func (s *Storage) Close() error { return nil }

// Compile-time interface check
var _ storage.Store = (*Storage)(nil)
