// Package layout defines the on-disk format of a hit counter file and the
// engine that upgrades older formats in place.
//
// # File Format
//
//	[0, 4)    count          big-endian uint32
//	[4, 8)    unique count   big-endian uint32
//	[8, 12)   format version big-endian uint32
//	[12, F)   reserved, zero
//	[F, EOF)  visitor array: dense F-byte fingerprint slots
//
// F is fingerprint.Size, so the header occupies exactly one slot and can grow
// without moving the visitor array. The array has no length prefix; its
// length is derived from the file size.
//
// Files written before the version field existed (version 0) stored the
// visitor array directly after the two counters, at byte 8. Engine.Upgrade
// moves that array to its current offset.
package layout
