package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/hitcount/internal/fingerprint"
)

const (
	// FieldSize is the width of every header field.
	FieldSize = 4

	CountOffset   = 0
	UniqueOffset  = CountOffset + FieldSize
	VersionOffset = UniqueOffset + FieldSize

	// SlotSize is the width of one visitor array entry.
	SlotSize = fingerprint.Size

	// HeaderSize is the reserved header region, one slot wide.
	HeaderSize = SlotSize

	// VisitorsOffset is where the visitor array starts in the current format.
	VisitorsOffset = HeaderSize

	// LegacyVisitorsOffset is where unversioned files kept the visitor array.
	LegacyVisitorsOffset = VersionOffset
)

// CurrentVersion is the format version written by this package.
const CurrentVersion uint32 = 1

// Fails to compile if the header fields would overlap the visitor array.
const _ uint = HeaderSize - (VersionOffset + FieldSize) - 1

// Header holds the fixed-offset fields of a counter file.
type Header struct {
	Count   uint32
	Unique  uint32
	Version uint32
}

// DecodeHeader decodes b, which may be shorter than HeaderSize. A field that
// is cut short is decoded from the bytes that exist, and a field that is
// missing entirely decodes as zero.
func DecodeHeader(b []byte) Header {
	return Header{
		Count:   field(b, CountOffset),
		Unique:  field(b, UniqueOffset),
		Version: field(b, VersionOffset),
	}
}

func field(b []byte, off int) uint32 {
	if off >= len(b) {
		return 0
	}
	avail := b[off:min(off+FieldSize, len(b))]

	var buf [FieldSize]byte
	copy(buf[FieldSize-len(avail):], avail)
	return binary.BigEndian.Uint32(buf[:])
}

// Encode returns the full header region with the reserved bytes zeroed.
func (h Header) Encode() []byte {
	b := make([]byte, HeaderSize)
	h.putFields(b)
	return b
}

func (h Header) putFields(b []byte) {
	binary.BigEndian.PutUint32(b[CountOffset:], h.Count)
	binary.BigEndian.PutUint32(b[UniqueOffset:], h.Unique)
	binary.BigEndian.PutUint32(b[VersionOffset:], h.Version)
}

// ReadHeader reads the header region from r. Files shorter than HeaderSize
// are not an error; missing bytes decode as zero.
func ReadHeader(r io.ReaderAt) (Header, error) {
	buf := make([]byte, HeaderSize)
	n, err := r.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	return DecodeHeader(buf[:n]), nil
}

// WriteHeader writes the whole header region, zeroing the reserved bytes.
func WriteHeader(w io.WriterAt, h Header) error {
	if _, err := w.WriteAt(h.Encode(), 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

// WriteFields rewrites count, unique and version at their offsets, leaving
// the reserved bytes and the visitor array untouched.
func WriteFields(w io.WriterAt, h Header) error {
	b := make([]byte, VersionOffset+FieldSize)
	h.putFields(b)
	if _, err := w.WriteAt(b, 0); err != nil {
		return fmt.Errorf("write header fields: %w", err)
	}
	return nil
}

// WriteCount rewrites only the count field. Hits-only writers use it so
// they never stamp a version onto a file they have not migrated.
func WriteCount(w io.WriterAt, count uint32) error {
	var b [FieldSize]byte
	binary.BigEndian.PutUint32(b[:], count)
	if _, err := w.WriteAt(b[:], CountOffset); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	return nil
}

// ArrayLen returns the number of bytes in the visitor array of a file of
// the given size.
func ArrayLen(fileSize int64) int64 {
	return max(fileSize-VisitorsOffset, 0)
}

// SlotCount returns the number of whole slots in the visitor array.
func SlotCount(fileSize int64) int64 {
	return ArrayLen(fileSize) / SlotSize
}

// Misalignment returns how many zero bytes must be written at the end of a
// file of the given size before the next slot can be appended.
func Misalignment(fileSize int64) int64 {
	rem := ArrayLen(fileSize) % SlotSize
	if rem == 0 {
		return 0
	}
	return SlotSize - rem
}

// AppendOffset returns where the next slot goes in a file of the given size.
// Any gap between fileSize and the returned offset must be zero-filled.
func AppendOffset(fileSize int64) int64 {
	return VisitorsOffset + ArrayLen(fileSize) + Misalignment(fileSize)
}
