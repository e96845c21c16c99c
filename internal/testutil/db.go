package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/datalite/internal/datom"
)

// TempDBPath returns a database path inside a per-test temp directory.
//
// The file does not exist yet; opening it creates a fresh bootstrapped
// database. Cleanup happens automatically via t.TempDir().
func TempDBPath(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "datalite.db")
}

// Keyword parses a printed keyword like ":person/name", failing the
// test on malformed input. Keeps keyword literals terse in test tables.
func Keyword(t testing.TB, s string) datom.Keyword {
	t.Helper()
	kw, err := datom.ParseKeyword(s)
	if err != nil {
		t.Fatalf("parse keyword %q: %v", s, err)
	}
	return kw
}
