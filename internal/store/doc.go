// Package store persists a hit counter: a total hit count and a deduplicated
// set of visitor fingerprints.
//
// Every backend follows the same session contract:
//
//	Open  -> exclusive advisory lock on the file, load or create, migrate
//	Record* / Visitors any number of times
//	Close -> flush counters, release the lock, close the handle
//
// The lock is held for the whole session and is released on every exit path,
// so sessions on the same path (from any process) are strictly serialized.
// A single open Counter is not safe for concurrent use by multiple
// goroutines.
//
// # Backends
//
//   - binary: the packed format in internal/layout. Visitors are appended
//     to the file as they are recorded; only the header is rewritten on Close.
//   - simple: hits only, on the binary format. Never migrates and never
//     touches the visitor array.
//   - json:   one JSON document rewritten whole on Close.
//   - sqlite: counters and visitors in SQLite tables.
//
// # Recovery
//
// Only I/O failures reach the caller. A file that cannot be interpreted is
// copied to a sibling backup (<path>.err, or <path>.<version>.bak before a
// migration) and the store starts over from the configured initial values.
// Backups never overwrite an existing file.
package store
