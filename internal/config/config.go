// Package config loads hitcount settings from defaults, an optional YAML
// file and the environment, in that order of increasing precedence, and
// validates the result against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/hitcount/internal/fingerprint"
	"github.com/roach88/hitcount/internal/store"
)

//go:embed config.cue
var schemaSrc string

// Environment variables read by Load.
const (
	EnvInitialCount  = "INITIAL_COUNT"
	EnvInitialUnique = "INITIAL_UNIQUE_COUNT"
	EnvFile          = "HITCOUNT_FILE"
	EnvBackend       = "HITCOUNT_BACKEND"
	EnvLockTimeout   = "HITCOUNT_LOCK_TIMEOUT"
)

// DefaultFile is where the counter lives when nothing else is configured.
const DefaultFile = "data/hitcount.dat"

// Config holds every setting the CLI passes to the store.
type Config struct {
	// File is the counter file path.
	File string `yaml:"file" json:"file"`

	// Backend names the store backend (binary, simple, json, sqlite).
	Backend string `yaml:"backend" json:"backend"`

	// InitialCount and InitialUnique seed a newly created counter.
	InitialCount  uint32 `yaml:"initial_count" json:"initial_count"`
	InitialUnique uint32 `yaml:"initial_unique" json:"initial_unique"`

	// LockTimeout bounds the wait for the file lock. Zero waits forever.
	LockTimeout time.Duration `yaml:"lock_timeout" json:"lock_timeout"`

	// NormalizeVisitors applies Unicode NFC to identifiers before hashing.
	NormalizeVisitors bool `yaml:"normalize_visitors" json:"normalize_visitors"`

	// SyncOnClose fsyncs the counter file at the end of every session.
	SyncOnClose bool `yaml:"sync_on_close" json:"sync_on_close"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		File:    DefaultFile,
		Backend: string(store.KindBinary),
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped if path
// is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvFile); ok && v != "" {
		c.File = v
	}
	if v, ok := lookup(EnvBackend); ok && v != "" {
		c.Backend = v
	}
	if err := envUint32(lookup, EnvInitialCount, &c.InitialCount); err != nil {
		return err
	}
	if err := envUint32(lookup, EnvInitialUnique, &c.InitialUnique); err != nil {
		return err
	}
	if v, ok := lookup(EnvLockTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLockTimeout, err)
		}
		c.LockTimeout = d
	}
	return nil
}

func envUint32(lookup func(string) (string, bool), name string, dst *uint32) error {
	v, ok := lookup(name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = uint32(n)
	return nil
}

var compiledSchema = sync.OnceValues(func() (cue.Value, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSrc, cue.Filename("config.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, err
	}
	return v.LookupPath(cue.ParsePath("#Config")), nil
})

// Validate checks c against the CUE schema.
func (c *Config) Validate() error {
	schema, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	v := schema.Unify(schema.Context().Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// Kind returns the configured backend.
func (c *Config) Kind() (store.Kind, error) {
	return store.ParseKind(c.Backend)
}

// Hasher returns the visitor hasher c selects.
func (c *Config) Hasher() *fingerprint.Hasher {
	if c.NormalizeVisitors {
		return fingerprint.New(fingerprint.WithNormalization())
	}
	return fingerprint.Default
}

// StoreOptions translates c into store options.
func (c *Config) StoreOptions(logger *slog.Logger) store.Options {
	return store.Options{
		InitialCount:  c.InitialCount,
		InitialUnique: c.InitialUnique,
		Hasher:        c.Hasher(),
		Logger:        logger,
		SyncOnClose:   c.SyncOnClose,
	}
}
