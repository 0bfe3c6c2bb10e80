package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/roach88/hitcount/internal/fingerprint"
	"github.com/roach88/hitcount/internal/flock"
	"github.com/roach88/hitcount/internal/layout"
)

// Counter is an open hit counter session. See the package documentation for
// the lifecycle.
type Counter interface {
	// Count returns the total number of hits recorded so far.
	Count() uint32

	// Unique returns the number of distinct visitors recorded so far.
	Unique() uint32

	// RecordHit counts an anonymous hit.
	RecordHit() error

	// RecordVisitor counts a hit from id. It reports seen=true if id had
	// already been recorded, in which case Unique does not change.
	RecordVisitor(id string) (seen bool, err error)

	// Visitors returns every recorded fingerprint.
	Visitors() ([]fingerprint.Fingerprint, error)

	// Close flushes the counters and releases the file. Calling Close on a
	// closed store is a no-op.
	Close() error
}

// Kind selects a backend.
type Kind string

const (
	KindBinary Kind = "binary"
	KindSimple Kind = "simple"
	KindJSON   Kind = "json"
	KindSQLite Kind = "sqlite"
)

// Kinds lists every backend in a stable order.
var Kinds = []Kind{KindBinary, KindSimple, KindJSON, KindSQLite}

// ParseKind maps a backend name to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q: must be one of %v", s, Kinds)
}

// Options configures Open. The zero value is usable.
type Options struct {
	// InitialCount and InitialUnique seed a store created from scratch,
	// including one reset after an unreadable file. InitialUnique is
	// clamped to InitialCount.
	InitialCount  uint32
	InitialUnique uint32

	// Hasher fingerprints visitor identifiers. Default: fingerprint.Default.
	Hasher *fingerprint.Hasher

	// Logger receives create, migrate and recovery events.
	// Default: slog.Default().
	Logger *slog.Logger

	// LockPoll is the retry interval while waiting for the file lock under a
	// cancellable context. Default: flock.DefaultPoll.
	LockPoll time.Duration

	// SyncOnClose fsyncs the file before the lock is released.
	SyncOnClose bool

	// Engine migrates binary files. Default: layout.DefaultEngine().
	Engine *layout.Engine
}

func (o Options) withDefaults() Options {
	o.InitialUnique = min(o.InitialUnique, o.InitialCount)
	if o.Hasher == nil {
		o.Hasher = fingerprint.Default
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.LockPoll <= 0 {
		o.LockPoll = flock.DefaultPoll
	}
	if o.Engine == nil {
		o.Engine = layout.DefaultEngine()
	}
	return o
}

// Open opens the backend selected by kind at path. It blocks until the file
// lock is acquired or ctx is done.
func Open(ctx context.Context, kind Kind, path string, opts Options) (Counter, error) {
	switch kind {
	case KindBinary:
		s, err := OpenBinary(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindSimple:
		s, err := OpenSimple(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindJSON:
		s, err := OpenJSON(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case KindSQLite:
		s, err := OpenSQLite(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("open %s: unknown backend %q", path, kind)
	}
}

// counters is the in-memory count snapshot shared by every backend.
// Both values saturate instead of wrapping.
type counters struct {
	count  uint32
	unique uint32
}

func (c *counters) Count() uint32  { return c.count }
func (c *counters) Unique() uint32 { return c.unique }

func (c *counters) hit() {
	if c.count < math.MaxUint32 {
		c.count++
	}
}

func (c *counters) newVisitor() {
	if c.unique < math.MaxUint32 {
		c.unique++
	}
}
