package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSum_KnownVector(t *testing.T) {
	// RFC 7693 appendix B.
	got := Default.Sum("abc")
	assert.Equal(t, "508c5e8c327c14e2e1a72ba34eeb452f37458b209ed63a294d999b4c86675982", got.String())
}

func TestSum_Deterministic(t *testing.T) {
	a := Default.Sum("203.0.113.7")
	b := New().Sum("203.0.113.7")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, Default.Sum("203.0.113.8"))
}

func TestSum_NilHasher(t *testing.T) {
	var h *Hasher
	assert.Equal(t, Default.Sum("x"), h.Sum("x"))
}

func TestSum_Normalization(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"

	assert.NotEqual(t, Default.Sum(composed), Default.Sum(decomposed))

	h := New(WithNormalization())
	assert.True(t, h.Normalizes())
	assert.Equal(t, h.Sum(composed), h.Sum(decomposed))
	assert.Equal(t, Default.Sum(composed), h.Sum(decomposed))
}

func TestSum_NormalizationLeavesASCIIAlone(t *testing.T) {
	h := New(WithNormalization())
	assert.Equal(t, Default.Sum("10.0.0.1,192.168.1.1"), h.Sum("10.0.0.1,192.168.1.1"))
}

func TestParse(t *testing.T) {
	want := Default.Sum("visitor")

	got, err := Parse(want.String())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Parse("zz")
	require.Error(t, err)

	_, err = Parse(strings.Repeat("ab", Size-1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 32")
}

func TestFromBytes(t *testing.T) {
	_, ok := FromBytes(make([]byte, Size-1))
	assert.False(t, ok)

	raw := make([]byte, Size)
	raw[0] = 0x7f
	f, ok := FromBytes(raw)
	require.True(t, ok)
	assert.Equal(t, raw, f[:])
}
