// Package testutil provides test infrastructure for codegen.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/danabrams/codegen/internal/kv"
)

// NewTestKV creates a SQLite-backed store in a temporary directory.
// The store is automatically closed when the test completes.
func NewTestKV(t *testing.T) *kv.SQLite {
	t.Helper()
	return NewTestKVWithPath(t, filepath.Join(t.TempDir(), "test.db"))
}

// NewTestKVWithPath creates a store at a specific path for tests that need
// to reopen the same database.
func NewTestKVWithPath(t *testing.T, dbPath string) *kv.SQLite {
	t.Helper()

	s, err := kv.NewSQLite(dbPath)
	if err != nil {
		t.Fatalf("NewTestKVWithPath: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}

// NewTestRedis creates a Redis-backed store on an in-process miniredis
// server. The server is returned so tests can inspect or fail it.
func NewTestRedis(t *testing.T) (*kv.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := kv.NewRedisFromClient(client, "test:")

	t.Cleanup(func() {
		s.Close()
	})

	return s, mr
}
