package pow

import (
	"encoding/binary"
	"fmt"
	"hash"

	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
)

// MinDelta is the smallest number of dependencies mixed into each block.
const MinDelta = 3

// ErrInvalidParams indicates Balloon parameters that do not describe a
// hash computation.
var ErrInvalidParams = fmt.Errorf("invalid balloon parameters")

// Params are the Balloon hashing costs.
type Params struct {
	SpaceCost uint32 `json:"s_cost"` // Number of blocks kept in memory
	TimeCost  uint32 `json:"t_cost"` // Number of mixing rounds
	Delta     uint32 `json:"delta"`  // Pseudorandom dependencies per block
}

// DefaultParams keep 256 blocks (16 KiB with a 64-byte digest) and mix them
// once.
var DefaultParams = Params{SpaceCost: 256, TimeCost: 1, Delta: MinDelta}

// Validate reports whether p can be used for hashing.
func (p Params) Validate() error {
	switch {
	case p.SpaceCost == 0:
		return fmt.Errorf("%w: space cost must be positive", ErrInvalidParams)
	case p.TimeCost == 0:
		return fmt.Errorf("%w: time cost must be positive", ErrInvalidParams)
	case p.Delta < MinDelta:
		return fmt.Errorf("%w: delta must be at least %d", ErrInvalidParams, MinDelta)
	}
	return nil
}

// Memory returns the number of bytes held by one hash computation.
func (p Params) Memory() uint64 {
	return uint64(p.SpaceCost) * uint64(curve.BLAKE2b512().Size())
}

// BalloonHasher computes the memory-hard Balloon hash of Boneh, Corrigan-Gibbs
// and Schechter over BLAKE2b-512.
type BalloonHasher struct {
	salt   []byte
	params Params
}

// NewBalloonHasher returns a hasher for salt and params.
func NewBalloonHasher(salt []byte, params Params) (*BalloonHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	return &BalloonHasher{
		salt:   append([]byte(nil), salt...),
		params: params,
	}, nil
}

// Hash returns the 64-byte Balloon digest of msg.
func (b *BalloonHasher) Hash(msg []byte) []byte {
	s := uint64(b.params.SpaceCost)
	h := curve.BLAKE2b512()

	var cnt uint64
	block := func(parts ...[]byte) []byte {
		h.Reset()
		writeUint64(h, cnt)
		cnt++
		for _, p := range parts {
			h.Write(p)
		}
		return h.Sum(nil)
	}

	// Expand.
	buf := make([][]byte, s)
	buf[0] = block(msg, b.salt)
	for m := uint64(1); m < s; m++ {
		buf[m] = block(buf[m-1])
	}

	// Mix.
	var idx [24]byte
	for t := uint64(0); t < uint64(b.params.TimeCost); t++ {
		for m := uint64(0); m < s; m++ {
			prev := buf[(m+s-1)%s]
			buf[m] = block(prev, buf[m])

			for i := uint64(0); i < uint64(b.params.Delta); i++ {
				binary.BigEndian.PutUint64(idx[0:], t)
				binary.BigEndian.PutUint64(idx[8:], m)
				binary.BigEndian.PutUint64(idx[16:], i)

				other := binary.BigEndian.Uint64(block(b.salt, idx[:])) % s
				buf[m] = block(buf[m], buf[other])
			}
		}
	}

	// Extract.
	return buf[s-1]
}

func writeUint64(h hash.Hash, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	h.Write(b[:])
}
