package layout

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
)

// ErrUnrecoverable is returned by Engine.Upgrade for a version that has no
// upgrade path. Callers back up the file and start over from defaults.
var ErrUnrecoverable = errors.New("no upgrade path for format version")

// File is the subset of *os.File the engine needs.
type File interface {
	io.ReaderAt
	io.WriterAt
	Stat() (fs.FileInfo, error)
}

// State classifies a stored format version.
type State int

const (
	// StateCurrent needs no work.
	StateCurrent State = iota
	// StateLegacy is the unversioned layout: the version slot actually holds
	// the start of the visitor array.
	StateLegacy
	// StateUpgradable has an explicit rule in Engine.Rules.
	StateUpgradable
	// StateUnrecoverable is an older versioned layout with no rule.
	StateUnrecoverable
)

func (s State) String() string {
	switch s {
	case StateCurrent:
		return "current"
	case StateLegacy:
		return "legacy"
	case StateUpgradable:
		return "upgradable"
	case StateUnrecoverable:
		return "unrecoverable"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Rule upgrades a file stored at one older version to the Current layout.
// It receives the decoded header and returns the header to write back; the
// engine stamps the version.
type Rule func(f File, h Header) (Header, error)

// Engine decides how to bring a stored version up to Current.
type Engine struct {
	Current uint32
	Rules   map[uint32]Rule
}

// DefaultEngine returns the engine for CurrentVersion. No intermediate
// versions exist yet, so it carries no rules.
func DefaultEngine() *Engine {
	return &Engine{Current: CurrentVersion}
}

// Classify reports what Upgrade would do for version.
//
// Version 0 and any version newer than Current are both read as the legacy
// layout: in an unversioned file the version slot holds the first bytes of a
// fingerprint, which can decode to any value.
func (e *Engine) Classify(version uint32) State {
	switch {
	case version == e.Current:
		return StateCurrent
	case version == 0 || version > e.Current:
		return StateLegacy
	case e.Rules[version] != nil:
		return StateUpgradable
	default:
		return StateUnrecoverable
	}
}

// Upgrade rewrites f in place so that it is in the Current layout and
// returns the resulting header. Upgrading a current file is a no-op.
// Backups are the caller's responsibility and must be taken first.
func (e *Engine) Upgrade(f File, h Header) (Header, error) {
	switch e.Classify(h.Version) {
	case StateCurrent:
		return h, nil
	case StateLegacy:
		return e.upgradeLegacy(f, h)
	case StateUpgradable:
		out, err := e.Rules[h.Version](f, h)
		if err != nil {
			return h, fmt.Errorf("upgrade from version %d: %w", h.Version, err)
		}
		out.Version = e.Current
		if err := WriteFields(f, out); err != nil {
			return h, err
		}
		return out, nil
	default:
		return h, fmt.Errorf("version %d: %w", h.Version, ErrUnrecoverable)
	}
}

// upgradeLegacy moves [LegacyVisitorsOffset, EOF) to VisitorsOffset and
// writes a fresh header with zeroed padding. The tail is read fully before
// anything is written because the two ranges overlap.
func (e *Engine) upgradeLegacy(f File, h Header) (Header, error) {
	info, err := f.Stat()
	if err != nil {
		return h, fmt.Errorf("upgrade legacy: stat: %w", err)
	}

	if size := info.Size(); size > LegacyVisitorsOffset {
		tail := make([]byte, size-LegacyVisitorsOffset)
		if _, err := f.ReadAt(tail, LegacyVisitorsOffset); err != nil && !errors.Is(err, io.EOF) {
			return h, fmt.Errorf("upgrade legacy: read visitors: %w", err)
		}
		if _, err := f.WriteAt(tail, VisitorsOffset); err != nil {
			return h, fmt.Errorf("upgrade legacy: write visitors: %w", err)
		}
	}

	out := Header{Count: h.Count, Unique: h.Unique, Version: e.Current}
	if err := WriteHeader(f, out); err != nil {
		return h, fmt.Errorf("upgrade legacy: %w", err)
	}
	return out, nil
}
