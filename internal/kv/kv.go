// Package kv defines the TTL-capable key/value store the session layer
// persists into, with Redis, SQLite, and in-memory implementations.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when a key is absent or expired. It is
// a normal outcome, distinct from connectivity or corruption failures.
var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal contract the session layer needs: string keys,
// opaque values, and a TTL applied on every write.
type Store interface {
	// Get returns the value at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetEx writes value at key with the given TTL, replacing any
	// existing value and its remaining TTL.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Exists reports whether key holds an unexpired value.
	Exists(ctx context.Context, key string) (bool, error)

	// Del removes key, reporting whether anything was removed.
	Del(ctx context.Context, key string) (bool, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	Close() error
}
