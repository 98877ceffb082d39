// Package testutil provides shared helpers for tests: temporary stores and
// prebuilt value graphs with the shapes the engine has to get right
// (cycles, aliasing, unrepresentable leaves).
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/revenantdb/revenant/internal/store"
)

// TempStore opens a store backed by a fresh database file in a temporary
// directory. The store is closed when the test finishes.
func TempStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "revenant.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
