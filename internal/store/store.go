// Package store defines the key-value persistence port of the league engine.
// Implementations include PostgreSQL (source of truth), Redis (standalone or
// as a read-through cache) and in-memory (for testing).
//
// Values are opaque whole-value blobs. There are no multi-key transactions;
// the only coordination primitive is a per-key compare-and-swap on a
// monotonically increasing version.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Item is a stored value with its version. Versions start at 1 and grow
// with every write; version 0 means the key is absent.
type Item struct {
	Value   []byte `json:"value"`
	Version int64  `json:"version"`
}

// Store is the persistence interface.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (Item, error)

	// Set replaces the value under key unconditionally.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists keys that start with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// CompareAndSwap writes value only if the stored version equals
	// version (0 = key must be absent). It reports whether the write
	// happened.
	CompareAndSwap(ctx context.Context, key string, version int64, value []byte) (bool, error)
}
