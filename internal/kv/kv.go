// Package kv provides flat string-keyed key-value backends used to persist
// haptic rules.
//
// Three backends are available:
//   - Memory: process-local map, used in tests and ephemeral setups
//   - SQLite: single-file database (github.com/mattn/go-sqlite3)
//   - NATS: JetStream KeyValue bucket (github.com/nats-io/nats.go)
//
// Every single-key operation is atomic. Multi-key updates are not
// transactional; callers that need atomicity keep related data in one value.
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Backend is a flat string-keyed key-value namespace.
type Backend interface {
	// Get returns the value stored at key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value at key, replacing any previous value.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
