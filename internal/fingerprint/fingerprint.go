package fingerprint

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2s"
	"golang.org/x/text/unicode/norm"
)

// Size is the width in bytes of a fingerprint.
const Size = blake2s.Size

// Fingerprint identifies a visitor.
type Fingerprint [Size]byte

// String returns the lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FromBytes copies b into a Fingerprint. It returns false unless len(b) is
// exactly Size.
func FromBytes(b []byte) (Fingerprint, bool) {
	var f Fingerprint
	if len(b) != Size {
		return f, false
	}
	copy(f[:], b)
	return f, true
}

// Parse decodes a hex-encoded fingerprint.
func Parse(s string) (Fingerprint, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parse fingerprint: %w", err)
	}
	f, ok := FromBytes(raw)
	if !ok {
		return Fingerprint{}, fmt.Errorf("parse fingerprint: got %d bytes, want %d", len(raw), Size)
	}
	return f, nil
}

// Option configures a Hasher.
type Option func(*Hasher)

// WithNormalization makes the Hasher apply Unicode NFC normalization before
// hashing, so canonically equivalent identifiers share a fingerprint.
func WithNormalization() Option {
	return func(h *Hasher) {
		h.normalize = true
	}
}

// Hasher maps identifiers to fingerprints. The zero value hashes raw bytes.
// A Hasher is immutable and safe for concurrent use.
type Hasher struct {
	normalize bool
}

// Default hashes raw identifier bytes with no normalization.
var Default = New()

// New returns a Hasher configured by opts.
func New(opts ...Option) *Hasher {
	h := &Hasher{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Normalizes reports whether the Hasher applies NFC normalization.
func (h *Hasher) Normalizes() bool {
	return h != nil && h.normalize
}

// Sum returns the fingerprint of id. A nil Hasher behaves like Default.
func (h *Hasher) Sum(id string) Fingerprint {
	if h.Normalizes() {
		id = norm.NFC.String(id)
	}
	return blake2s.Sum256([]byte(id))
}
