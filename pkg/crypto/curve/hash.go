package curve

import (
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashFunc constructs the hash used to derive challenge scalars. Its digest
// must be between 32 and 64 bytes long.
type HashFunc func() hash.Hash

// SHA512 is the default challenge hash.
func SHA512() hash.Hash {
	return sha512.New()
}

// SHA3_512 returns a SHA3-512 hash.
func SHA3_512() hash.Hash {
	return sha3.New512()
}

// BLAKE2b512 returns an unkeyed BLAKE2b-512 hash.
func BLAKE2b512() hash.Hash {
	h, err := blake2b.New512(nil)
	if err != nil {
		// Only a key longer than 64 bytes is rejected.
		panic("curve: blake2b: " + err.Error())
	}
	return h
}

// HashToScalar hashes the concatenation of parts with fn and reduces the
// digest modulo L.
func HashToScalar(fn HashFunc, parts ...[]byte) (*Scalar, error) {
	if fn == nil {
		fn = SHA512
	}

	h := fn()
	if size := h.Size(); size < ScalarSize || size > UniformSize {
		return nil, fmt.Errorf("%w: hash produces %d bytes", ErrUnsupportedDigest, size)
	}

	for _, p := range parts {
		h.Write(p)
	}
	return ScalarFromDigest(h.Sum(nil))
}
