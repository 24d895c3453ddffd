// Package kv provides durable string key-value storage.
//
// Values are opaque strings; callers JSON-encode structured data themselves.
// Three backends are available: SQLite (default, single host), Redis (shared)
// and an in-process Memory store used by tests and the "memory" backend.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is the key-value persistence contract.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// SetMany stores all entries atomically.
	SetMany(ctx context.Context, entries map[string]string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend string
	Path    string // sqlite database path
	Redis   RedisConfig
}

// Open creates the backend named in opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendSQLite:
		return NewSQLite(opts.Path)
	case BackendRedis:
		return NewRedis(opts.Redis)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// GetOr returns the value at key, or def when the key is absent or empty.
func GetOr(ctx context.Context, s Store, key, def string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) || (err == nil && v == "") {
		return def, nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}
