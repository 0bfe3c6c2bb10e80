package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/hitcount/internal/fingerprint"
	"github.com/roach88/hitcount/internal/layout"
)

// scanBufferSlots is how many slots a visitor scan reads per syscall.
const scanBufferSlots = 128

// BinaryStore is the packed binary backend described in internal/layout.
type BinaryStore struct {
	counters
	sess    *session
	version uint32
	opts    Options
	closed  bool
}

// OpenBinary opens or creates a binary counter file at path, migrating older
// formats in place.
func OpenBinary(ctx context.Context, path string, opts Options) (*BinaryStore, error) {
	opts = opts.withDefaults()

	sess, err := openSession(ctx, path, opts)
	if err != nil {
		return nil, newError("open", path, err)
	}

	s := &BinaryStore{sess: sess, opts: opts}
	if err := s.load(); err != nil {
		return nil, newError("open", path, errors.Join(err, sess.close(false)))
	}
	return s, nil
}

func (s *BinaryStore) load() error {
	size, err := s.sess.size()
	if err != nil {
		return err
	}
	if size == 0 {
		s.opts.Logger.Info("creating counter file", "path", s.sess.path, "backend", KindBinary)
		return s.reset()
	}

	h, err := layout.ReadHeader(s.sess.f)
	if err != nil {
		return err
	}

	engine := s.opts.Engine
	switch state := engine.Classify(h.Version); state {
	case layout.StateCurrent:
		s.setHeader(h)
		return nil

	case layout.StateUnrecoverable:
		dst, err := backup(s.sess.path, "err")
		if err != nil {
			return err
		}
		s.opts.Logger.Warn("unrecognized format version, starting over from defaults",
			"path", s.sess.path,
			"version", h.Version,
			"current", engine.Current,
			"backup", dst,
		)
		return s.reset()

	default:
		dst, err := backup(s.sess.path, fmt.Sprintf("%d.bak", h.Version))
		if err != nil {
			return err
		}
		upgraded, err := engine.Upgrade(s.sess.f, h)
		if err != nil {
			return err
		}
		s.opts.Logger.Info("migrated counter file",
			"path", s.sess.path,
			"from", h.Version,
			"to", upgraded.Version,
			"state", state,
			"backup", dst,
		)
		s.setHeader(upgraded)
		return nil
	}
}

// reset truncates the file to a fresh header holding the initial values.
func (s *BinaryStore) reset() error {
	if err := s.sess.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	h := layout.Header{
		Count:   s.opts.InitialCount,
		Unique:  s.opts.InitialUnique,
		Version: s.opts.Engine.Current,
	}
	if err := layout.WriteHeader(s.sess.f, h); err != nil {
		return err
	}
	s.setHeader(h)
	return nil
}

func (s *BinaryStore) setHeader(h layout.Header) {
	s.count = h.Count
	s.unique = h.Unique
	s.version = h.Version
}

// FormatVersion returns the format version of the open file.
func (s *BinaryStore) FormatVersion() uint32 {
	return s.version
}

// RecordHit implements Counter.
func (s *BinaryStore) RecordHit() error {
	if s.closed {
		return closedError("record hit", s.sess.path)
	}
	s.hit()
	return nil
}

// RecordVisitor implements Counter. It scans the visitor array on disk and
// appends the fingerprint if it is not there, so the cost is linear in the
// number of distinct visitors. The hit is counted only once the scan and any
// append succeed.
func (s *BinaryStore) RecordVisitor(id string) (bool, error) {
	if s.closed {
		return false, closedError("record visitor", s.sess.path)
	}

	fp := s.opts.Hasher.Sum(id)
	size, err := s.sess.size()
	if err != nil {
		return false, newError("record visitor", s.sess.path, err)
	}

	seen := false
	err = scanSlots(s.sess.f, size, func(slot []byte) bool {
		seen = fingerprint.Fingerprint(slot) == fp
		return !seen
	})
	if err != nil {
		return false, newError("record visitor", s.sess.path, err)
	}
	if seen {
		s.hit()
		return true, nil
	}

	if err := s.appendSlot(size, fp); err != nil {
		return false, newError("record visitor", s.sess.path, err)
	}
	s.hit()
	s.newVisitor()
	return false, nil
}

// appendSlot writes fp at the end of the visitor array, zero-padding first
// if the array does not end on a slot boundary.
func (s *BinaryStore) appendSlot(size int64, fp fingerprint.Fingerprint) error {
	off := layout.AppendOffset(size)
	gap := off - size
	if gap > 0 {
		s.opts.Logger.Debug("realigning visitor array", "path", s.sess.path, "padding", gap)
	}

	buf := make([]byte, gap+layout.SlotSize)
	copy(buf[gap:], fp[:])
	if _, err := s.sess.f.WriteAt(buf, size); err != nil {
		return fmt.Errorf("append visitor: %w", err)
	}
	return nil
}

// Visitors implements Counter. A trailing partial slot is ignored. Once an
// append has padded a partial slot back into alignment, that slot is whole
// and is returned like any other, so the result can hold one more entry
// than Unique for each realignment. The padded slot is not the
// fingerprint of any recorded visitor, so deduplication is unaffected.
func (s *BinaryStore) Visitors() ([]fingerprint.Fingerprint, error) {
	if s.closed {
		return nil, closedError("visitors", s.sess.path)
	}
	size, err := s.sess.size()
	if err != nil {
		return nil, newError("visitors", s.sess.path, err)
	}

	out := make([]fingerprint.Fingerprint, 0, layout.SlotCount(size))
	err = scanSlots(s.sess.f, size, func(slot []byte) bool {
		out = append(out, fingerprint.Fingerprint(slot))
		return true
	})
	if err != nil {
		return nil, newError("visitors", s.sess.path, err)
	}
	return out, nil
}

// Close implements Counter. The lock is released even if the header write
// fails.
func (s *BinaryStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	h := layout.Header{Count: s.count, Unique: s.unique, Version: s.opts.Engine.Current}
	err := layout.WriteFields(s.sess.f, h)
	return newError("close", s.sess.path, errors.Join(err, s.sess.close(s.opts.SyncOnClose)))
}

// scanSlots calls fn with each whole slot of the visitor array until fn
// returns false. The slot buffer is reused between calls.
func scanSlots(r io.ReaderAt, size int64, fn func(slot []byte) bool) error {
	sr := io.NewSectionReader(r, layout.VisitorsOffset, layout.ArrayLen(size))
	br := bufio.NewReaderSize(sr, scanBufferSlots*layout.SlotSize)
	slot := make([]byte, layout.SlotSize)

	for {
		_, err := io.ReadFull(br, slot)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("scan visitors: %w", err)
		}
		if !fn(slot) {
			return nil
		}
	}
}

var _ Counter = (*BinaryStore)(nil)

