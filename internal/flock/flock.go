// Package flock holds exclusive advisory locks on open files.
//
// Locks are flock(2) locks on the open file description, so they exclude
// other processes and also other descriptors opened on the same path by this
// process. They are released when the descriptor is closed, including when
// the process exits.
package flock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPoll is the retry interval used while waiting on a cancellable
// context.
const DefaultPoll = 10 * time.Millisecond

// ErrTimeout is returned when the context ends before the lock is acquired.
var ErrTimeout = errors.New("timed out waiting for file lock")

// Guard is a held lock. Release it exactly once; further calls are no-ops.
type Guard struct {
	f    *os.File
	held bool
}

// Acquire takes an exclusive lock on f, waiting as long as ctx allows.
//
// With a context that is never done (context.Background) it blocks in the
// kernel. Otherwise it retries a non-blocking lock every poll interval until
// it succeeds or ctx is done, in which case the error wraps both ErrTimeout
// and ctx.Err().
func Acquire(ctx context.Context, f *os.File, poll time.Duration) (*Guard, error) {
	fd := int(f.Fd())

	if ctx.Done() == nil {
		if err := flockRetry(fd, unix.LOCK_EX); err != nil {
			return nil, fmt.Errorf("flock %s: %w", f.Name(), err)
		}
		return &Guard{f: f, held: true}, nil
	}

	if poll <= 0 {
		poll = DefaultPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		err := flockRetry(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &Guard{f: f, held: true}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("flock %s: %w", f.Name(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("flock %s: %w: %w", f.Name(), ErrTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TryAcquire takes the lock only if nobody else holds it. It returns
// (nil, nil) when the file is locked elsewhere.
func TryAcquire(f *os.File) (*Guard, error) {
	err := flockRetry(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("flock %s: %w", f.Name(), err)
	}
	return &Guard{f: f, held: true}, nil
}

// Release drops the lock. It does not close the file.
func (g *Guard) Release() error {
	if g == nil || !g.held {
		return nil
	}
	g.held = false
	if err := flockRetry(int(g.f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", g.f.Name(), err)
	}
	return nil
}

func flockRetry(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
