package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/hitcount/internal/config"
	"github.com/roach88/hitcount/internal/store"
)

// CountResult is printed by the commands that report counter totals.
type CountResult struct {
	File    string `json:"file"`
	Backend string `json:"backend"`
	Version uint32 `json:"version,omitempty"`
	Count   uint32 `json:"count"`
	Unique  uint32 `json:"unique"`
	Seen    *bool  `json:"seen,omitempty"`
}

func (r CountResult) String() string {
	s := fmt.Sprintf("hits: %d\nunique visitors: %d", r.Count, r.Unique)
	if r.Seen != nil {
		if *r.Seen {
			s += "\nvisitor: returning"
		} else {
			s += "\nvisitor: new"
		}
	}
	return s
}

// versioned is implemented by backends with a format version tag.
type versioned interface {
	FormatVersion() uint32
}

func countResult(cfg *config.Config, c store.Counter) CountResult {
	r := CountResult{
		File:    cfg.File,
		Backend: cfg.Backend,
		Count:   c.Count(),
		Unique:  c.Unique(),
	}
	if v, ok := c.(versioned); ok {
		r.Version = v.FormatVersion()
	}
	return r
}

// loadConfig loads the config file and environment, then applies flag
// overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.File == "" && opts.Backend == "" {
		return cfg, nil
	}

	if opts.File != "" {
		cfg.File = opts.File
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid flags", err)
	}
	return cfg, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// withCounter opens the configured counter, runs fn against it and closes
// it. fn's result is printed only after Close succeeds so that reported
// totals are the persisted ones.
func withCounter(opts *RootOptions, cmd *cobra.Command, fn func(*config.Config, store.Counter) (any, error)) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	kind, err := cfg.Kind()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid backend", err)
	}

	if dir := filepath.Dir(cfg.File); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create counter directory", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.LockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.LockTimeout)
		defer cancel()
	}

	out := newFormatter(opts, cmd)
	out.VerboseLog("opening %s counter %s", kind, cfg.File)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	c, err := store.Open(ctx, kind, cfg.File, cfg.StoreOptions(logger))
	if err != nil {
		if store.IsLockTimeout(err) {
			return WrapExitError(ExitCommandError, "counter file is locked", err)
		}
		return WrapExitError(ExitCommandError, "failed to open counter", err)
	}

	result, err := fn(cfg, c)
	closeErr := c.Close()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to update counter", errors.Join(err, closeErr))
	}
	if closeErr != nil {
		return WrapExitError(ExitCommandError, "failed to close counter", closeErr)
	}

	return out.Success(result)
}
