package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/hitcount/internal/fingerprint"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Not yet initialized
// 1 - counter and visitors tables
const currentSchemaVersion = 1

// SQLiteStore keeps counters and visitors in a SQLite database. The counter
// row is written on Close; visitors are inserted as they are recorded.
type SQLiteStore struct {
	counters
	sess   *session
	db     *sql.DB
	opts   Options
	closed bool
}

// OpenSQLite opens or creates a SQLite counter database at path.
//
// The database is configured with:
//   - WAL mode
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//
// A file SQLite rejects as corrupt or not a database is backed up to
// <path>.err and recreated.
//
// Other sessions on the same path in this process wait on the in-process
// gate before opening the file, so they cannot drop SQLite's POSIX locks by
// closing their descriptor.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()

	sess, err := openSession(ctx, path, opts)
	if err != nil {
		return nil, newError("open", path, err)
	}

	s := &SQLiteStore{sess: sess, opts: opts}
	if err := s.load(ctx); err != nil {
		if s.db != nil {
			err = errors.Join(err, s.db.Close())
		}
		return nil, newError("open", path, errors.Join(err, sess.close(false)))
	}
	return s, nil
}

func (s *SQLiteStore) load(ctx context.Context) error {
	db, err := openDB(s.sess.path)
	if isCorrupt(err) {
		dst, backupErr := backup(s.sess.path, "err")
		if backupErr != nil {
			return errors.Join(err, backupErr)
		}
		s.opts.Logger.Warn("unreadable counter database, starting over from defaults",
			"path", s.sess.path,
			"error", err,
			"backup", dst,
		)
		if err := s.sess.f.Truncate(0); err != nil {
			return fmt.Errorf("truncate: %w", err)
		}
		db, err = openDB(s.sess.path)
	}
	if err != nil {
		return err
	}
	s.db = db

	res, err := db.ExecContext(ctx, `
		INSERT INTO counter (id, count, unique_count)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, s.opts.InitialCount, s.opts.InitialUnique)
	if err != nil {
		return fmt.Errorf("seed counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		s.opts.Logger.Info("creating counter file", "path", s.sess.path, "backend", KindSQLite)
	}

	var count, unique int64
	err = db.QueryRowContext(ctx, "SELECT count, unique_count FROM counter WHERE id = 1").Scan(&count, &unique)
	if err != nil {
		return fmt.Errorf("read counter: %w", err)
	}
	s.count, s.unique = clampUint32(count), clampUint32(unique)
	return nil
}

// openDB opens the database and applies pragmas and schema.
func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, and the file lock already
	// serializes sessions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations brings user_version up to currentSchemaVersion. A database
// from a newer build is refused rather than guessed at.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	// Version 1 is the initial schema, created above.
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// isCorrupt reports whether err means the file is not a usable database.
func isCorrupt(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrNotADB || serr.Code == sqlite3.ErrCorrupt
}

func clampUint32(v int64) uint32 {
	switch {
	case v < 0:
		return 0
	case v > int64(^uint32(0)):
		return ^uint32(0)
	default:
		return uint32(v)
	}
}

// RecordHit implements Counter.
func (s *SQLiteStore) RecordHit() error {
	if s.closed {
		return closedError("record hit", s.sess.path)
	}
	s.hit()
	return nil
}

// RecordVisitor implements Counter. A failed insert records nothing.
func (s *SQLiteStore) RecordVisitor(id string) (bool, error) {
	if s.closed {
		return false, closedError("record visitor", s.sess.path)
	}

	fp := s.opts.Hasher.Sum(id)
	res, err := s.db.Exec(`
		INSERT INTO visitors (fingerprint) VALUES (?)
		ON CONFLICT(fingerprint) DO NOTHING
	`, fp[:])
	if err != nil {
		return false, newError("record visitor", s.sess.path, fmt.Errorf("insert visitor: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, newError("record visitor", s.sess.path, err)
	}
	s.hit()
	if n == 0 {
		return true, nil
	}
	s.newVisitor()
	return false, nil
}

// Visitors implements Counter. The result is sorted.
func (s *SQLiteStore) Visitors() ([]fingerprint.Fingerprint, error) {
	if s.closed {
		return nil, closedError("visitors", s.sess.path)
	}

	rows, err := s.db.Query("SELECT fingerprint FROM visitors ORDER BY fingerprint")
	if err != nil {
		return nil, newError("visitors", s.sess.path, err)
	}
	defer rows.Close()

	var out []fingerprint.Fingerprint
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, newError("visitors", s.sess.path, err)
		}
		if fp, ok := fingerprint.FromBytes(raw); ok {
			out = append(out, fp)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, newError("visitors", s.sess.path, err)
	}
	return out, nil
}

// Close writes the counter row, closes the database, then releases the file.
func (s *SQLiteStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if _, err := s.db.Exec(
		"UPDATE counter SET count = ?, unique_count = ? WHERE id = 1",
		s.count, s.unique,
	); err != nil {
		errs = append(errs, fmt.Errorf("write counter: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}
	errs = append(errs, s.sess.close(s.opts.SyncOnClose))
	return newError("close", s.sess.path, errors.Join(errs...))
}

var _ Counter = (*SQLiteStore)(nil)
