// Package storage holds the named text entries (notes, search results) the
// Ultra MCP servers expose as resources. Backends live in the memory and
// redis subpackages.
package storage

import (
	"context"
	"errors"
)

// Store is a collection of named text entries.
//
// Put creates an entry on first write and overwrites its content on every
// later write; the entry keeps its original position. List returns entries
// in first-insertion order. Nothing in this package deletes entries.
type Store interface {
	Put(ctx context.Context, name, content string) error

	// Get returns ErrNotFound when no entry has the given name.
	Get(ctx context.Context, name string) (string, error)

	List(ctx context.Context) ([]Entry, error)

	// Close releases backend resources.
	Close() error
}

// Entry is one named text blob.
type Entry struct {
	Name    string
	Content string
}

// ErrNotFound is returned by Get for an unknown name.
var ErrNotFound = errors.New("storage: entry not found")

// Watcher is implemented by stores shared between processes.
type Watcher interface {
	// Watch calls fn for every write made by another process until ctx
	// is done.
	Watch(ctx context.Context, fn func(ctx context.Context, name string)) error
}

// Notifier is signalled after every successful Put.
type Notifier interface {
	Notify(ctx context.Context) error
}

// WithNotifier wraps s so that n is notified after each successful Put.
// A nil n returns s unchanged.
func WithNotifier(s Store, n Notifier) Store {
	if n == nil {
		return s
	}
	return &notifyingStore{Store: s, n: n}
}

type notifyingStore struct {
	Store
	n Notifier
}

func (s *notifyingStore) Put(ctx context.Context, name, content string) error {
	if err := s.Store.Put(ctx, name, content); err != nil {
		return err
	}
	return s.n.Notify(ctx)
}

// Unavailable returns a Store whose every operation fails with err. It
// stands in for a backend that could not be configured, so the failure
// surfaces on use instead of at startup.
func Unavailable(err error) Store {
	return unavailableStore{err: err}
}

type unavailableStore struct {
	err error
}

func (s unavailableStore) Put(context.Context, string, string) error { return s.err }

func (s unavailableStore) Get(context.Context, string) (string, error) { return "", s.err }

func (s unavailableStore) List(context.Context) ([]Entry, error) { return nil, s.err }

func (unavailableStore) Close() error { return nil }
