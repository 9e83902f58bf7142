// Package repository provides durable key-value storage for widget state.
//
// A Storage plays the part of the browser's durable storage for one
// embedding origin: flat string keys mapped to string values, with
// last-writer-wins semantics and no merge.
package repository

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrInvalidConfig    = errors.New("invalid storage configuration")
	ErrInvalidStoreType = errors.New("invalid storage type")
)

// Storage defines the key-value operations the widget needs.
type Storage interface {
	// Get returns the stored value. found is false when the key is absent,
	// which is not an error.
	Get(ctx context.Context, key string) (value string, found bool, err error)

	// Set replaces any prior value for key.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the storage.
	Close() error
}

// scoped namespaces every key under a fixed scope so several visitors can
// share one backing store without seeing each other's keys.
type scoped struct {
	inner Storage
	scope string
}

// WithScope returns a view of s whose keys live under scope.
// Closing the view does not close s.
func WithScope(s Storage, scope string) Storage {
	if scope == "" {
		return s
	}
	return &scoped{inner: s, scope: scope}
}

func (s *scoped) key(k string) string {
	return s.scope + "/" + k
}

// Get implements Storage.
func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.key(key))
}

// Set implements Storage.
func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.inner.Set(ctx, s.key(key), value)
}

// Delete implements Storage.
func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.key(key))
}

// Close implements Storage.
func (s *scoped) Close() error {
	return nil
}
