package schnorr

import (
	"encoding/hex"
	"fmt"

	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
)

// Proof is a non-interactive proof of knowledge: the commitment R = k*G and
// the response s = k + c*x.
//
// A Proof is only meaningful for the witness and message it was made for.
type Proof struct {
	R *curve.Point
	S *curve.Scalar
}

// ParseProof decodes R || s. Wrong lengths, an invalid R and a non-canonical
// s are all reported as ErrMalformedProof.
func ParseProof(b []byte) (*Proof, error) {
	if len(b) != ProofSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedProof, ProofSize, len(b))
	}

	R, err := curve.ParsePoint(b[:curve.PointSize])
	if err != nil {
		return nil, fmt.Errorf("%w: commitment: %w", ErrMalformedProof, err)
	}

	s, err := curve.ParseScalar(b[curve.PointSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: response: %w", ErrMalformedProof, err)
	}

	return &Proof{R: R, S: s}, nil
}

// Bytes returns the 64-byte encoding R || s.
func (p *Proof) Bytes() []byte {
	out := make([]byte, 0, ProofSize)
	out = append(out, p.R.Bytes()...)
	return append(out, p.S.Bytes()...)
}

func (p *Proof) String() string {
	return hex.EncodeToString(p.Bytes())
}

// MarshalText encodes the proof as lowercase hex.
func (p *Proof) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a hex proof, applying the checks of ParseProof.
func (p *Proof) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedProof, err)
	}

	parsed, err := ParseProof(b)
	if err != nil {
		return err
	}
	*p = *parsed
	return nil
}
