package schnorr

import (
	"encoding/hex"
	"fmt"

	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
)

// Witness is the public commitment W = x*G to a secret instance x. It
// carries no secret material and is never the identity.
type Witness struct {
	point *curve.Point
}

// NewWitness computes the witness of secret. A zero secret maps to the
// identity and is rejected with ErrInvalidWitness.
func NewWitness(secret *curve.Scalar) (*Witness, error) {
	if secret == nil {
		return nil, fmt.Errorf("%w: nil secret", ErrInvalidWitness)
	}

	return WitnessFromPoint(curve.ScalarBaseMult(secret))
}

// WitnessFromPoint wraps an existing group element.
func WitnessFromPoint(p *curve.Point) (*Witness, error) {
	if p.IsIdentity() {
		return nil, fmt.Errorf("%w: identity point", ErrInvalidWitness)
	}

	return &Witness{point: p}, nil
}

// ParseWitness decodes a 32-byte witness. Undecodable bytes yield
// curve.ErrInvalidPointEncoding and the identity yields ErrInvalidWitness.
func ParseWitness(b []byte) (*Witness, error) {
	p, err := curve.ParsePoint(b)
	if err != nil {
		return nil, err
	}

	return WitnessFromPoint(p)
}

// Point returns the underlying group element.
func (w *Witness) Point() *curve.Point {
	return w.point
}

// Bytes returns the canonical 32-byte encoding.
func (w *Witness) Bytes() []byte {
	return w.point.Bytes()
}

// Equal reports whether two witnesses commit to the same secret.
func (w *Witness) Equal(other *Witness) bool {
	if w == nil || other == nil {
		return w == other
	}
	return w.point.Equal(other.point)
}

func (w *Witness) String() string {
	return hex.EncodeToString(w.Bytes())
}

// MarshalText encodes the witness as lowercase hex.
func (w *Witness) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

// UnmarshalText decodes a hex witness, applying the checks of ParseWitness.
func (w *Witness) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", curve.ErrInvalidPointEncoding, err)
	}

	parsed, err := ParseWitness(b)
	if err != nil {
		return err
	}
	w.point = parsed.point
	return nil
}
