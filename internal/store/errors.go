package store

import (
	"errors"
	"fmt"

	"github.com/roach88/hitcount/internal/flock"
)

// ErrClosed is wrapped by every operation on a closed store.
var ErrClosed = errors.New("store is closed")

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeIO means the file could not be created, opened, read or written.
	ErrCodeIO ErrorCode = "IO"

	// ErrCodeClosed means the store was used after Close.
	ErrCodeClosed ErrorCode = "CLOSED"

	// ErrCodeLockTimeout means the context ended while waiting for the lock.
	ErrCodeLockTimeout ErrorCode = "LOCK_TIMEOUT"
)

// Error is returned by every store operation that fails.
type Error struct {
	Code ErrorCode
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	code := ErrCodeIO
	switch {
	case errors.Is(err, ErrClosed):
		code = ErrCodeClosed
	case errors.Is(err, flock.ErrTimeout):
		code = ErrCodeLockTimeout
	}
	return &Error{Code: code, Op: op, Path: path, Err: err}
}

func closedError(op, path string) error {
	return &Error{Code: ErrCodeClosed, Op: op, Path: path, Err: ErrClosed}
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsIOError reports whether err is a store I/O failure.
func IsIOError(err error) bool {
	return hasCode(err, ErrCodeIO)
}

// IsClosed reports whether err came from using a closed store.
func IsClosed(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

// IsLockTimeout reports whether Open gave up waiting for the file lock.
func IsLockTimeout(err error) bool {
	return hasCode(err, ErrCodeLockTimeout)
}
