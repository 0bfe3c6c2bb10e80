// Package fingerprint turns visitor identifiers into fixed-width
// deduplication keys.
//
// A fingerprint is the unkeyed BLAKE2s-256 digest of the identifier's UTF-8
// bytes. It is a membership key, not a security boundary: identical
// identifiers always produce identical fingerprints, and the width (Size)
// is shared with the on-disk layout in internal/layout.
package fingerprint
