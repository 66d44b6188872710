package curve

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/gtank/ristretto255"
)

// Scalar is an integer modulo L.
//
// Scalars are used as:
//   - Secrets (instance x where the witness is W = x*G)
//   - Nonces (random k in the commitment R = k*G)
//   - Challenges (hash output reduced mod L)
//   - Responses (s = k + c*x mod L)
//
// A Scalar is always in canonical reduced form and is never mutated by the
// arithmetic methods, which return fresh values. The zero value is the
// scalar 0.
type Scalar struct {
	v ristretto255.Scalar
}

// NewScalar returns the scalar 0.
func NewScalar() *Scalar {
	return &Scalar{}
}

// ScalarFromUint64 returns n as a scalar.
func ScalarFromUint64(n uint64) *Scalar {
	var b [ScalarSize]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(n >> (8 * i))
	}

	s := &Scalar{}
	if _, err := s.v.SetCanonicalBytes(b[:]); err != nil {
		// Every uint64 is far below L.
		panic("curve: uint64 scalar rejected: " + err.Error())
	}
	return s
}

// ParseScalar decodes a canonical 32-byte little-endian scalar. Values that
// are not strictly below L are rejected, never reduced.
func ParseScalar(b []byte) (*Scalar, error) {
	if len(b) != ScalarSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrNonCanonicalEncoding, ScalarSize, len(b))
	}

	s := &Scalar{}
	if _, err := s.v.SetCanonicalBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNonCanonicalEncoding, err)
	}
	return s, nil
}

// ScalarFromUniformBytes reduces 64 bytes, read as a little-endian integer,
// modulo L. With uniformly random input the bias is below 2^-250.
func ScalarFromUniformBytes(b []byte) (*Scalar, error) {
	if len(b) != UniformSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrUnsupportedDigest, UniformSize, len(b))
	}

	s := &Scalar{}
	if _, err := s.v.SetUniformBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedDigest, err)
	}
	return s, nil
}

// ScalarFromDigest interprets a digest of 32 to 64 bytes as a little-endian
// integer and reduces it modulo L. This is a deterministic many-to-one map
// and must not be used for sampling secrets.
func ScalarFromDigest(d []byte) (*Scalar, error) {
	if len(d) < ScalarSize || len(d) > UniformSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrUnsupportedDigest, len(d))
	}

	var wide [UniformSize]byte
	copy(wide[:], d)
	return ScalarFromUniformBytes(wide[:])
}

// Bytes returns the canonical 32-byte little-endian encoding.
func (s *Scalar) Bytes() []byte {
	return s.v.Bytes()
}

// BigInt returns the scalar value as a big.Int.
func (s *Scalar) BigInt() *big.Int {
	return leToBig(s.Bytes())
}

// Add returns s + t mod L.
func (s *Scalar) Add(t *Scalar) *Scalar {
	out := &Scalar{}
	out.v.Add(&s.v, &t.v)
	return out
}

// Subtract returns s - t mod L.
func (s *Scalar) Subtract(t *Scalar) *Scalar {
	out := &Scalar{}
	out.v.Subtract(&s.v, &t.v)
	return out
}

// Multiply returns s * t mod L.
func (s *Scalar) Multiply(t *Scalar) *Scalar {
	out := &Scalar{}
	out.v.Multiply(&s.v, &t.v)
	return out
}

// Negate returns -s mod L.
func (s *Scalar) Negate() *Scalar {
	out := &Scalar{}
	out.v.Negate(&s.v)
	return out
}

// Invert returns s^-1 mod L, or ErrZeroInverse if s is zero.
func (s *Scalar) Invert() (*Scalar, error) {
	if s.IsZero() {
		return nil, ErrZeroInverse
	}

	out := &Scalar{}
	out.v.Invert(&s.v)
	return out, nil
}

// Equal reports whether s and t are the same scalar, in constant time.
func (s *Scalar) Equal(t *Scalar) bool {
	if s == nil || t == nil {
		return s == t
	}
	return s.v.Equal(&t.v) == 1
}

// IsZero reports whether s is the additive identity, in constant time.
func (s *Scalar) IsZero() bool {
	var zero ristretto255.Scalar
	return s.v.Equal(&zero) == 1
}

// Zeroize overwrites the scalar with 0. Call it on secrets and nonces once
// they are no longer needed.
func (s *Scalar) Zeroize() {
	if s == nil {
		return
	}
	s.v = ristretto255.Scalar{}
}

// MarshalText encodes the scalar as lowercase hex.
func (s *Scalar) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(s.Bytes())), nil
}

// UnmarshalText decodes a hex scalar produced by MarshalText.
func (s *Scalar) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNonCanonicalEncoding, err)
	}

	parsed, err := ParseScalar(b)
	if err != nil {
		return err
	}
	s.v = parsed.v
	return nil
}
