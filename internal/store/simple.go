package store

import (
	"context"
	"errors"

	"github.com/roach88/hitcount/internal/fingerprint"
	"github.com/roach88/hitcount/internal/layout"
)

// SimpleStore counts hits on a binary counter file without tracking
// visitors. It reads the header but only ever writes the count field, so it
// can share a file with BinaryStore in any format version.
type SimpleStore struct {
	counters
	sess   *session
	opts   Options
	closed bool
}

// OpenSimple opens or creates a binary counter file at path for hit counting.
// A new file gets a full current header so BinaryStore can open it as is.
func OpenSimple(ctx context.Context, path string, opts Options) (*SimpleStore, error) {
	opts = opts.withDefaults()

	sess, err := openSession(ctx, path, opts)
	if err != nil {
		return nil, newError("open", path, err)
	}

	s := &SimpleStore{sess: sess, opts: opts}
	if err := s.load(); err != nil {
		return nil, newError("open", path, errors.Join(err, sess.close(false)))
	}
	return s, nil
}

func (s *SimpleStore) load() error {
	size, err := s.sess.size()
	if err != nil {
		return err
	}

	if size == 0 {
		s.opts.Logger.Info("creating counter file", "path", s.sess.path, "backend", KindSimple)
		h := layout.Header{
			Count:   s.opts.InitialCount,
			Unique:  s.opts.InitialUnique,
			Version: s.opts.Engine.Current,
		}
		if err := layout.WriteHeader(s.sess.f, h); err != nil {
			return err
		}
		s.count, s.unique = h.Count, h.Unique
		return nil
	}

	h, err := layout.ReadHeader(s.sess.f)
	if err != nil {
		return err
	}
	s.count, s.unique = h.Count, h.Unique
	return nil
}

// RecordHit implements Counter.
func (s *SimpleStore) RecordHit() error {
	if s.closed {
		return closedError("record hit", s.sess.path)
	}
	s.hit()
	return nil
}

// RecordVisitor counts a hit. Visitors are not tracked, so it always reports
// seen=true and Unique never changes.
func (s *SimpleStore) RecordVisitor(string) (bool, error) {
	if err := s.RecordHit(); err != nil {
		return false, err
	}
	return true, nil
}

// Visitors always returns nil.
func (s *SimpleStore) Visitors() ([]fingerprint.Fingerprint, error) {
	if s.closed {
		return nil, closedError("visitors", s.sess.path)
	}
	return nil, nil
}

// Close writes the count field and releases the file.
func (s *SimpleStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := layout.WriteCount(s.sess.f, s.count)
	return newError("close", s.sess.path, errors.Join(err, s.sess.close(s.opts.SyncOnClose)))
}

var _ Counter = (*SimpleStore)(nil)
