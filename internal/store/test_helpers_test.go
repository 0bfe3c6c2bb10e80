package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hitcount/internal/testutil"
)

// quietOptions returns Options that discard logs.
func quietOptions() Options {
	return Options{Logger: testutil.DiscardLogger()}
}

// testPath returns a fresh file path for kind inside a per-test directory.
func testPath(t *testing.T, kind Kind) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "hits."+string(kind))
}

// openTestCounter opens kind at path and fails the test on error.
func openTestCounter(t *testing.T, kind Kind, path string, opts Options) Counter {
	t.Helper()
	c, err := Open(context.Background(), kind, path, opts)
	require.NoError(t, err, "Open(%s)", kind)
	return c
}

// openTestBinary opens a BinaryStore and registers Close as cleanup.
func openTestBinary(t *testing.T, path string, opts Options) *BinaryStore {
	t.Helper()
	s, err := OpenBinary(context.Background(), path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
