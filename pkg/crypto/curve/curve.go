// Package curve provides the prime-order group and scalar field used by the
// zkpok proof of knowledge.
//
// # The Group
//
// All arithmetic happens in ristretto255, a prime-order group built on top of
// Curve25519. Ristretto removes the cofactor of the underlying Edwards curve,
// so every successfully decoded element is a member of the prime-order group
// and no separate subgroup check is needed.
//
//   - Points are encoded as 32 canonical bytes.
//   - Scalars are integers modulo the group order L and are encoded as
//     32 bytes, little-endian, always strictly less than L.
//
// # Elliptic Curve Basics
//
// An elliptic curve group consists of:
//   - A set of points (including a special "identity" point)
//   - A generator point G (the basepoint) that generates the entire group
//   - A group order L (the number of points in the group)
//
// Key operations:
//   - Point Addition: P + Q = R
//   - Scalar Multiplication: s * P (adding P to itself s times)
//   - The "discrete log problem": given P and Q = s*P, finding s is hard
//
// # Constant Time
//
// Scalar multiplication, scalar equality and point equality are delegated to
// ristretto255, whose implementations do not branch on secret data. The
// types in this package never compare secret bytes with bytes.Equal or ==.
package curve

import (
	"fmt"
	"math/big"
)

const (
	// Name identifies the group in tokens and diagnostics.
	Name = "ristretto255"

	// ScalarSize is the length of a canonical scalar encoding.
	ScalarSize = 32

	// PointSize is the length of a canonical point encoding.
	PointSize = 32

	// UniformSize is the number of uniform bytes reduced into one scalar.
	UniformSize = 64
)

var (
	// ErrNonCanonicalEncoding indicates scalar bytes that are not a reduced
	// 32-byte little-endian value below L.
	ErrNonCanonicalEncoding = fmt.Errorf("non-canonical scalar encoding")

	// ErrInvalidPointEncoding indicates bytes that do not decode to a group
	// element.
	ErrInvalidPointEncoding = fmt.Errorf("invalid point encoding")

	// ErrZeroInverse indicates an attempt to invert the zero scalar.
	ErrZeroInverse = fmt.Errorf("zero scalar has no inverse")

	// ErrUnsupportedDigest indicates a digest too short or too long to be
	// reduced into a scalar.
	ErrUnsupportedDigest = fmt.Errorf("unsupported digest size")
)

// order is l = 2^252 + 27742317777372353535851937790883648493.
var order = func() *big.Int {
	l := new(big.Int).Lsh(big.NewInt(1), 252)
	addend, _ := new(big.Int).SetString("27742317777372353535851937790883648493", 10)
	return l.Add(l, addend)
}()

// Order returns L, the order of the ristretto255 group.
func Order() *big.Int {
	return new(big.Int).Set(order)
}

// OrderBytes returns L encoded as 32 little-endian bytes. The result is not a
// valid scalar encoding; it is the smallest non-canonical value.
func OrderBytes() []byte {
	return bigToLE(order)
}

func bigToLE(n *big.Int) []byte {
	be := n.FillBytes(make([]byte, ScalarSize))
	le := make([]byte, ScalarSize)
	for i := range be {
		le[i] = be[len(be)-1-i]
	}
	return le
}

func leToBig(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i := range le {
		be[len(le)-1-i] = le[i]
	}
	return new(big.Int).SetBytes(be)
}
