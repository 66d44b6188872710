package random

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// ErrEmptyRange indicates a range with no values to sample from.
var ErrEmptyRange = fmt.Errorf("empty range")

// Uint64n returns a value distributed uniformly over [0, n). Draws that would
// bias the modulo reduction are rejected.
func Uint64n(src Source, n uint64) (uint64, error) {
	if n == 0 {
		return 0, ErrEmptyRange
	}
	if src == nil {
		return 0, fmt.Errorf("%w: nil source", ErrEntropySource)
	}

	// 2^64 mod n; the accepted draws [0, 2^64-rem) are a whole number of
	// copies of [0, n).
	rem := (math.MaxUint64%n + 1) % n

	var buf [8]byte
	for i := 0; i < maxRejections; i++ {
		if _, err := io.ReadFull(src, buf[:]); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrEntropySource, err)
		}

		v := binary.BigEndian.Uint64(buf[:])
		if rem == 0 || v < -rem {
			return v % n, nil
		}
	}

	return 0, fmt.Errorf("%w: no unbiased value after %d draws", ErrEntropySource, maxRejections)
}

// Uint64Range returns a value distributed uniformly over [lo, hi).
func Uint64Range(src Source, lo, hi uint64) (uint64, error) {
	if lo >= hi {
		return 0, fmt.Errorf("%w: [%d, %d)", ErrEmptyRange, lo, hi)
	}

	v, err := Uint64n(src, hi-lo)
	if err != nil {
		return 0, err
	}
	return lo + v, nil
}
