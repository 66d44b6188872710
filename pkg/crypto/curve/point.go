package curve

import (
	"encoding/hex"
	"fmt"

	"github.com/gtank/ristretto255"
)

// Point is an element of the ristretto255 group.
//
// Points are immutable: Add, Subtract, Negate and ScalarMult return new
// values. The identity element is a valid point; callers that need a
// non-identity point must check IsIdentity.
type Point struct {
	e *ristretto255.Element
}

// Basepoint returns the fixed generator G.
func Basepoint() *Point {
	return ScalarBaseMult(ScalarFromUint64(1))
}

// Identity returns the identity element.
func Identity() *Point {
	return &Point{e: ristretto255.NewIdentityElement()}
}

// ParsePoint decodes a canonical 32-byte ristretto255 encoding. Non-canonical
// encodings and byte strings that are not group elements are rejected.
func ParsePoint(b []byte) (*Point, error) {
	if len(b) != PointSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPointEncoding, PointSize, len(b))
	}

	elem := ristretto255.NewIdentityElement()
	if _, err := elem.SetCanonicalBytes(b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPointEncoding, err)
	}

	return &Point{e: elem}, nil
}

// ScalarBaseMult returns s*G. The computation is constant time with respect
// to s.
func ScalarBaseMult(s *Scalar) *Point {
	return &Point{e: ristretto255.NewIdentityElement().ScalarBaseMult(&s.v)}
}

// ScalarMult returns s*p. The computation is constant time with respect to s.
func (p *Point) ScalarMult(s *Scalar) *Point {
	return &Point{e: ristretto255.NewIdentityElement().ScalarMult(&s.v, p.e)}
}

// Add returns p + q.
func (p *Point) Add(q *Point) *Point {
	return &Point{e: ristretto255.NewIdentityElement().Add(p.e, q.e)}
}

// Subtract returns p - q.
func (p *Point) Subtract(q *Point) *Point {
	return &Point{e: ristretto255.NewIdentityElement().Subtract(p.e, q.e)}
}

// Negate returns -p.
func (p *Point) Negate() *Point {
	return &Point{e: ristretto255.NewIdentityElement().Negate(p.e)}
}

// Equal reports whether p and q are the same element, in constant time.
func (p *Point) Equal(q *Point) bool {
	switch {
	case p == nil && q == nil:
		return true
	case p == nil || q == nil:
		return false
	}

	return p.e.Equal(q.e) == 1
}

// IsIdentity reports whether p is the identity element.
func (p *Point) IsIdentity() bool {
	if p == nil || p.e == nil {
		return true
	}

	return p.e.Equal(ristretto255.NewIdentityElement()) == 1
}

// Bytes returns the canonical 32-byte encoding of the point.
func (p *Point) Bytes() []byte {
	return p.e.Encode(nil)
}

// String returns the hex encoding of the point.
func (p *Point) String() string {
	return hex.EncodeToString(p.Bytes())
}

// MarshalText encodes the point as lowercase hex.
func (p *Point) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a hex point produced by MarshalText.
func (p *Point) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPointEncoding, err)
	}

	parsed, err := ParsePoint(b)
	if err != nil {
		return err
	}
	p.e = parsed.e
	return nil
}
