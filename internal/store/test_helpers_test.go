package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/revenantdb/revenant/internal/object"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// mustPut stores a value and fails the test on error.
func mustPut(t *testing.T, s *Store, v object.Value) string {
	t.Helper()
	hash, err := s.PutValue(context.Background(), v)
	if err != nil {
		t.Fatalf("PutValue() failed: %v", err)
	}
	return hash
}

// mustBeginCall opens a minimal call with one stored local.
func mustBeginCall(t *testing.T, s *Store, function string) string {
	t.Helper()
	hash := mustPut(t, s, object.Int(1))
	id, err := s.BeginCall(context.Background(), BeginCallParams{
		Function: function,
		File:     "app/main.py",
		Line:     10,
		Locals:   map[string]string{"x": hash},
	})
	if err != nil {
		t.Fatalf("BeginCall() failed: %v", err)
	}
	return id
}

// refcountOf reads an object's current refcount directly.
func refcountOf(t *testing.T, s *Store, hash string) int64 {
	t.Helper()
	rec, err := s.GetObject(context.Background(), hash)
	if err != nil {
		t.Fatalf("GetObject(%s) failed: %v", hash, err)
	}
	return rec.Refcount
}

// countObjects returns the number of rows in the objects table.
func countObjects(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM objects`).Scan(&n); err != nil {
		t.Fatalf("count objects: %v", err)
	}
	return n
}

var testTime = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
