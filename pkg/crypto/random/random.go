// Package random supplies the secure randomness consumed by the proof
// protocol.
//
// Randomness is an explicit capability: every function takes a Source, and
// components that need one hold it. Production code passes System, which
// reads the operating system CSPRNG. Tests may pass a deterministic source to
// obtain reproducible vectors.
//
// # Sampling Scalars
//
// Scalars are sampled by rejection, never by reducing a random integer
// modulo L. Each candidate is 32 random bytes with the top three bits
// cleared, which makes it uniform over [0, 2^253). Candidates that are not
// below L are discarded. Since 2^252 < L < 2^253, at least half of all
// candidates are accepted, and the accepted values are exactly uniform over
// [0, L).
package random

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
)

// maxRejections bounds the rejection sampler. An honest source exceeds it
// with probability below 2^-128.
const maxRejections = 128

// ErrEntropySource indicates the randomness source failed, returned a short
// read, or produced output that is evidently not random.
var ErrEntropySource = fmt.Errorf("entropy source failure")

// Source produces cryptographically secure random bytes. Implementations must
// be safe for concurrent use.
type Source interface {
	io.Reader
}

type systemSource struct{}

func (systemSource) Read(p []byte) (int, error) {
	return rand.Read(p)
}

// System reads from the operating system CSPRNG.
var System Source = systemSource{}

// Bytes returns n random bytes from src.
func Bytes(src Source, n int) ([]byte, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrEntropySource)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropySource, err)
	}
	return buf, nil
}

// Scalar returns a scalar distributed uniformly over [0, L).
func Scalar(src Source) (*curve.Scalar, error) {
	var candidate [curve.ScalarSize]byte
	defer clear(candidate[:])

	for i := 0; i < maxRejections; i++ {
		if src == nil {
			return nil, fmt.Errorf("%w: nil source", ErrEntropySource)
		}
		if _, err := io.ReadFull(src, candidate[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEntropySource, err)
		}

		// Keep 253 bits.
		candidate[curve.ScalarSize-1] &= 0x1f

		s, err := curve.ParseScalar(candidate[:])
		if err == nil {
			return s, nil
		}
	}

	return nil, fmt.Errorf("%w: no canonical scalar after %d draws", ErrEntropySource, maxRejections)
}

// NonZeroScalar returns a scalar distributed uniformly over [1, L). It is
// used for secrets and nonces, where zero is degenerate.
func NonZeroScalar(src Source) (*curve.Scalar, error) {
	for i := 0; i < maxRejections; i++ {
		s, err := Scalar(src)
		if err != nil {
			return nil, err
		}
		if !s.IsZero() {
			return s, nil
		}
	}

	return nil, fmt.Errorf("%w: source keeps producing zero", ErrEntropySource)
}

// Point returns a uniformly random group element.
func Point(src Source) (*curve.Point, error) {
	s, err := Scalar(src)
	if err != nil {
		return nil, err
	}
	defer s.Zeroize()

	return curve.ScalarBaseMult(s), nil
}
