// Package testutil provides shared helpers for tests: temporary stores,
// serialized tree fixtures, journal rendering and log capture.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/arbor/internal/store"
)

// NewStore creates a store backed by a database in a test temp dir.
func NewStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// WriteFile writes a serialized fixture file, creating parent directories.
// Leading whitespace-only indentation from raw string literals is not
// stripped; callers pass ready-to-parse YAML.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

// RenderJournal renders a change journal one canonical line per change,
// suitable for golden comparison.
func RenderJournal(changes []store.Change) []byte {
	var b strings.Builder
	for _, c := range changes {
		fmt.Fprintln(&b, c.String())
	}
	return []byte(b.String())
}
