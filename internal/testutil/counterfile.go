// Package testutil builds and renders counter files for tests.
package testutil

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/hitcount/internal/fingerprint"
	"github.com/roach88/hitcount/internal/layout"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Fingerprints hashes ids with the default hasher.
func Fingerprints(ids ...string) []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, len(ids))
	for i, id := range ids {
		out[i] = fingerprint.Default.Sum(id)
	}
	return out
}

// LegacyFile builds an unversioned file: two counters followed directly by
// fingerprints of ids.
func LegacyFile(count, unique uint32, ids ...string) []byte {
	h := layout.Header{Count: count, Unique: unique}.Encode()
	b := append([]byte(nil), h[:layout.VersionOffset]...)
	return appendFingerprints(b, ids)
}

// CurrentFile builds a current-format file holding fingerprints of ids.
func CurrentFile(h layout.Header, ids ...string) []byte {
	return appendFingerprints(h.Encode(), ids)
}

func appendFingerprints(b []byte, ids []string) []byte {
	for _, fp := range Fingerprints(ids...) {
		b = append(b, fp[:]...)
	}
	return b
}

// DumpSlots renders a binary counter file one slot per line.
func DumpSlots(b []byte) []byte {
	var buf bytes.Buffer
	for off := 0; off < len(b); off += layout.SlotSize {
		end := min(off+layout.SlotSize, len(b))
		label := "visitor"
		if off == 0 {
			label = "header"
		}
		fmt.Fprintf(&buf, "%04x %-7s %x\n", off, label, b[off:end])
	}
	return buf.Bytes()
}

// WriteFile writes content to path, failing the test on error.
func WriteFile(t testing.TB, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

// ReadFile reads path, failing the test on error.
func ReadFile(t testing.TB, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}
