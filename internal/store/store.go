// Package store defines the versioned key-value Secret Store that all
// MFA state transitions go through. Conditional writes carry the
// version observed at read time, so concurrent handlers (including
// handlers in other replicas) serialize on the store instead of on
// in-process locks.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key does not exist.
	ErrNotFound = errors.New("store: key not found")
)

// Store is a durable key-value store with optimistic concurrency.
//
// Versions start at 1 on first write and increase by 1 on every
// successful write. ConditionalPut with expectedVersion 0 creates the
// key only if it is absent.
type Store interface {
	// Get returns the value and its current version.
	Get(ctx context.Context, key string) ([]byte, int64, error)

	// Put writes unconditionally.
	Put(ctx context.Context, key string, value []byte) error

	// ConditionalPut writes only if the current version equals
	// expectedVersion. Returns false (and no error) on a version
	// conflict, so callers can re-read and retry.
	ConditionalPut(ctx context.Context, key string, expectedVersion int64, value []byte) (bool, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
