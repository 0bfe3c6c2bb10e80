package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/roach88/hitcount/internal/fingerprint"
)

// document is the on-disk shape of the JSON backend. Visitors are hex
// fingerprints.
type document struct {
	Count    uint32   `json:"count"`
	Unique   uint32   `json:"unique"`
	Visitors []string `json:"visitors"`
}

// DocumentStore keeps the whole record in memory and rewrites the file as a
// single JSON document on Close.
type DocumentStore struct {
	counters
	sess     *session
	visitors map[fingerprint.Fingerprint]struct{}
	opts     Options
	closed   bool
}

// OpenJSON opens or creates a JSON counter document at path. An unparseable
// document is backed up to <path>.err and replaced by defaults.
func OpenJSON(ctx context.Context, path string, opts Options) (*DocumentStore, error) {
	opts = opts.withDefaults()

	sess, err := openSession(ctx, path, opts)
	if err != nil {
		return nil, newError("open", path, err)
	}

	s := &DocumentStore{sess: sess, opts: opts}
	if err := s.load(); err != nil {
		return nil, newError("open", path, errors.Join(err, sess.close(false)))
	}
	return s, nil
}

func (s *DocumentStore) load() error {
	size, err := s.sess.size()
	if err != nil {
		return err
	}
	if size == 0 {
		s.opts.Logger.Info("creating counter file", "path", s.sess.path, "backend", KindJSON)
		s.defaults()
		return nil
	}

	var doc document
	dec := json.NewDecoder(io.NewSectionReader(s.sess.f, 0, size))
	decodeErr := dec.Decode(&doc)

	var visitors map[fingerprint.Fingerprint]struct{}
	if decodeErr == nil {
		visitors, decodeErr = parseVisitors(doc.Visitors)
	}
	if decodeErr != nil {
		dst, err := backup(s.sess.path, "err")
		if err != nil {
			return err
		}
		s.opts.Logger.Warn("unreadable counter document, starting over from defaults",
			"path", s.sess.path,
			"error", decodeErr,
			"backup", dst,
		)
		s.defaults()
		return nil
	}

	s.count, s.unique = doc.Count, doc.Unique
	s.visitors = visitors
	return nil
}

func parseVisitors(hexes []string) (map[fingerprint.Fingerprint]struct{}, error) {
	out := make(map[fingerprint.Fingerprint]struct{}, len(hexes))
	for i, h := range hexes {
		fp, err := fingerprint.Parse(h)
		if err != nil {
			return nil, fmt.Errorf("visitors[%d]: %w", i, err)
		}
		out[fp] = struct{}{}
	}
	return out, nil
}

func (s *DocumentStore) defaults() {
	s.count = s.opts.InitialCount
	s.unique = s.opts.InitialUnique
	s.visitors = make(map[fingerprint.Fingerprint]struct{})
}

// RecordHit implements Counter.
func (s *DocumentStore) RecordHit() error {
	if s.closed {
		return closedError("record hit", s.sess.path)
	}
	s.hit()
	return nil
}

// RecordVisitor implements Counter.
func (s *DocumentStore) RecordVisitor(id string) (bool, error) {
	if s.closed {
		return false, closedError("record visitor", s.sess.path)
	}
	s.hit()

	fp := s.opts.Hasher.Sum(id)
	if _, ok := s.visitors[fp]; ok {
		return true, nil
	}
	s.visitors[fp] = struct{}{}
	s.newVisitor()
	return false, nil
}

// Visitors implements Counter. The result is sorted.
func (s *DocumentStore) Visitors() ([]fingerprint.Fingerprint, error) {
	if s.closed {
		return nil, closedError("visitors", s.sess.path)
	}
	return s.sortedVisitors(), nil
}

func (s *DocumentStore) sortedVisitors() []fingerprint.Fingerprint {
	out := make([]fingerprint.Fingerprint, 0, len(s.visitors))
	for fp := range s.visitors {
		out = append(out, fp)
	}
	slices.SortFunc(out, func(a, b fingerprint.Fingerprint) int {
		return slices.Compare(a[:], b[:])
	})
	return out
}

// Close rewrites the document and releases the file.
func (s *DocumentStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.flush()
	return newError("close", s.sess.path, errors.Join(err, s.sess.close(s.opts.SyncOnClose)))
}

func (s *DocumentStore) flush() error {
	doc := document{
		Count:    s.count,
		Unique:   s.unique,
		Visitors: make([]string, 0, len(s.visitors)),
	}
	for _, fp := range s.sortedVisitors() {
		doc.Visitors = append(doc.Visitors, fp.String())
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := s.sess.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if _, err := s.sess.f.WriteAt(data, 0); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

var _ Counter = (*DocumentStore)(nil)
