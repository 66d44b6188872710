// Package pow implements a memory-hard proof of work built on Balloon hashing.
//
// A Puzzle is a salt, Balloon parameters and a difficulty in bits. A nonce
// solves the puzzle when
//
//	Balloon(salt || nonce)
//
// starts with at least difficulty zero bits, where nonce is encoded as 8
// bytes big-endian. Finding a solution takes about 2^difficulty Balloon
// evaluations; checking one takes a single evaluation.
//
// The verifier service uses puzzles to price witness registration.
package pow

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	"github.com/allsmog/zkpok-go/pkg/crypto/random"
)

const (
	// MinDifficulty is the smallest accepted difficulty.
	MinDifficulty = 3

	// MaxDifficulty is the largest accepted difficulty.
	MaxDifficulty = 63
)

var (
	// ErrInvalidDifficulty indicates a difficulty outside
	// [MinDifficulty, MaxDifficulty].
	ErrInvalidDifficulty = fmt.Errorf("invalid difficulty")

	// ErrExhausted indicates Solve ran out of nonces.
	ErrExhausted = fmt.Errorf("nonce space exhausted")
)

// Puzzle is a proof-of-work instance.
type Puzzle struct {
	salt       []byte
	difficulty uint32
	hasher     *BalloonHasher
}

// Solution is a nonce that solves a puzzle and the digest it produced.
type Solution struct {
	Nonce  uint64
	Digest []byte
}

// NewPuzzle returns a puzzle over salt.
func NewPuzzle(salt []byte, params Params, difficulty uint32) (*Puzzle, error) {
	if difficulty < MinDifficulty || difficulty > MaxDifficulty {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidDifficulty, difficulty, MinDifficulty, MaxDifficulty)
	}

	hasher, err := NewBalloonHasher(salt, params)
	if err != nil {
		return nil, err
	}

	return &Puzzle{
		salt:       append([]byte(nil), salt...),
		difficulty: difficulty,
		hasher:     hasher,
	}, nil
}

// Difficulty returns the number of leading zero bits a solution needs.
func (p *Puzzle) Difficulty() uint32 {
	return p.difficulty
}

// Digest returns the Balloon digest for nonce.
func (p *Puzzle) Digest(nonce uint64) []byte {
	input := make([]byte, len(p.salt)+8)
	copy(input, p.salt)
	binary.BigEndian.PutUint64(input[len(p.salt):], nonce)
	return p.hasher.Hash(input)
}

// Verify reports whether nonce solves the puzzle.
func (p *Puzzle) Verify(nonce uint64) bool {
	return LeadingZeroBits(p.Digest(nonce)) >= p.difficulty
}

// Solve searches nonces upward from a random starting point drawn from src
// until one solves the puzzle or ctx is done.
func (p *Puzzle) Solve(ctx context.Context, src random.Source) (*Solution, error) {
	start, err := random.Uint64n(src, math.MaxUint64)
	if err != nil {
		return nil, fmt.Errorf("failed to pick starting nonce: %w", err)
	}

	return p.SolveFrom(ctx, start)
}

// SolveFrom searches nonces upward from start, stopping at the top of the
// nonce space.
func (p *Puzzle) SolveFrom(ctx context.Context, start uint64) (*Solution, error) {
	for nonce := start; ; nonce++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		digest := p.Digest(nonce)
		if LeadingZeroBits(digest) >= p.difficulty {
			return &Solution{Nonce: nonce, Digest: digest}, nil
		}

		if nonce == math.MaxUint64 {
			return nil, ErrExhausted
		}
	}
}

// LeadingZeroBits counts the zero bits at the start of digest.
func LeadingZeroBits(digest []byte) uint32 {
	var n uint32
	for _, b := range digest {
		if b != 0 {
			return n + uint32(bits.LeadingZeros8(b))
		}
		n += 8
	}
	return n
}
