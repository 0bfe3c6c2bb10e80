package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/hitcount/internal/flock"
)

// session is the locked file handle every backend owns between Open and
// Close.
type session struct {
	path    string
	f       *os.File
	guard   *flock.Guard
	release func()
}

// gates serializes sessions within this process, keyed by absolute path.
// A contender waits here without opening the file, so it never closes a
// descriptor on a file another session holds. Closing any descriptor drops
// the process's POSIX record locks on that file, which SQLite relies on.
var gates sync.Map // string -> chan struct{}

// enterGate waits for the in-process gate of path. The returned func leaves
// it.
func enterGate(ctx context.Context, path string) (func(), error) {
	key, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	v, _ := gates.LoadOrStore(key, make(chan struct{}, 1))
	gate := v.(chan struct{})

	select {
	case gate <- struct{}{}:
		return func() { <-gate }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w: %w", path, flock.ErrTimeout, ctx.Err())
	}
}

// openSession opens (creating if needed) and locks path. On error nothing is
// left open or locked.
func openSession(ctx context.Context, path string, opts Options) (*session, error) {
	release, err := enterGate(ctx, path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		release()
		return nil, err
	}

	guard, err := flock.TryAcquire(f)
	if err == nil && guard == nil {
		opts.Logger.Debug("waiting for counter lock", "path", path)
		guard, err = flock.Acquire(ctx, f, opts.LockPoll)
	}
	if err != nil {
		f.Close()
		release()
		return nil, err
	}

	return &session{path: path, f: f, guard: guard, release: release}, nil
}

func (s *session) size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	return info.Size(), nil
}

// close syncs if asked, then releases the lock and closes the handle. The
// lock is released even if the sync fails.
func (s *session) close(sync bool) error {
	var errs []error
	if sync {
		if err := s.f.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync: %w", err))
		}
	}
	if err := s.guard.Release(); err != nil {
		errs = append(errs, err)
	}
	if err := s.f.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}
	s.release()
	return errors.Join(errs...)
}

// backup copies the current contents of path to <path>.<suffix>. If that
// name is taken, a random suffix is added so no earlier backup is lost.
func backup(path, suffix string) (string, error) {
	dst := path + "." + suffix
	if _, err := os.Stat(dst); err == nil {
		dst += "." + uuid.NewString()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("backup: %w", err)
	}

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("backup %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("backup %s: %w", dst, err)
	}
	return dst, nil
}
