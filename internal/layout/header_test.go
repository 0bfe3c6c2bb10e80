package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeader_EncodeDecode(t *testing.T) {
	h := Header{Count: 0x01020304, Unique: 7, Version: CurrentVersion}
	b := h.Encode()

	require.Len(t, b, HeaderSize)
	assert.Equal(t, []byte{1, 2, 3, 4}, b[0:4], "count is big-endian")
	assert.Equal(t, []byte{0, 0, 0, 7}, b[4:8])
	assert.Equal(t, []byte{0, 0, 0, 1}, b[8:12])
	assert.Equal(t, make([]byte, HeaderSize-12), b[12:], "padding is zero")

	assert.Equal(t, h, DecodeHeader(b))
}

func TestDecodeHeader_ShortInput(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want Header
	}{
		{"empty", nil, Header{}},
		{"partial count", []byte{0x01, 0x02}, Header{Count: 0x0102}},
		{"count only", []byte{0, 0, 0, 9}, Header{Count: 9}},
		{"partial unique", []byte{0, 0, 0, 9, 0, 5}, Header{Count: 9, Unique: 5}},
		{"legacy counters", []byte{0, 0, 0, 50, 0, 0, 0, 10}, Header{Count: 50, Unique: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeHeader(tt.in))
		})
	}
}

func TestReadHeader_ShortFile(t *testing.T) {
	f := tempFile(t, []byte{0, 0, 0, 3, 0, 0, 0, 2})

	h, err := ReadHeader(f)
	require.NoError(t, err)
	assert.Equal(t, Header{Count: 3, Unique: 2}, h)
}

func TestWriteFields_LeavesRestAlone(t *testing.T) {
	content := make([]byte, HeaderSize+SlotSize)
	for i := range content {
		content[i] = 0xAA
	}
	f := tempFile(t, content)

	require.NoError(t, WriteFields(f, Header{Count: 1, Unique: 1, Version: 1}))

	got := readAll(t, f)
	assert.Equal(t, []byte{0, 0, 0, 1, 0, 0, 0, 1, 0, 0, 0, 1}, got[:12])
	assert.Equal(t, content[12:], got[12:])
}

func TestAlignment(t *testing.T) {
	tests := []struct {
		size                       int64
		arrayLen, slots, pad, next int64
	}{
		{0, 0, 0, 0, HeaderSize},
		{HeaderSize, 0, 0, 0, HeaderSize},
		{HeaderSize + SlotSize, SlotSize, 1, 0, HeaderSize + SlotSize},
		{HeaderSize + SlotSize + 4, SlotSize + 4, 1, SlotSize - 4, HeaderSize + 2*SlotSize},
		{HeaderSize + 1, 1, 0, SlotSize - 1, HeaderSize + SlotSize},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.arrayLen, ArrayLen(tt.size), "ArrayLen(%d)", tt.size)
		assert.Equal(t, tt.slots, SlotCount(tt.size), "SlotCount(%d)", tt.size)
		assert.Equal(t, tt.pad, Misalignment(tt.size), "Misalignment(%d)", tt.size)
		assert.Equal(t, tt.next, AppendOffset(tt.size), "AppendOffset(%d)", tt.size)
	}
}

func tempFile(t *testing.T, content []byte) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hits.dat")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func readAll(t *testing.T, f *os.File) []byte {
	t.Helper()
	b, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return b
}

func TestWriteCount(t *testing.T) {
	legacy := []byte{0, 0, 0, 1, 0, 0, 0, 1, 0xDE, 0xAD, 0xBE, 0xEF}
	f := tempFile(t, legacy)

	require.NoError(t, WriteCount(f, 2))

	got := readAll(t, f)
	assert.Equal(t, []byte{0, 0, 0, 2}, got[:4])
	assert.Equal(t, legacy[4:], got[4:], "version slot must not be stamped")
}
