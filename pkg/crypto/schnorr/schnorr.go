// Package schnorr implements a non-interactive Schnorr proof of knowledge of
// a discrete logarithm over ristretto255.
//
// # Schnorr Protocol Overview
//
// The protocol lets a Prover convince a Verifier that it knows a secret
// scalar x (the instance) corresponding to a public witness W = x*G, without
// revealing x. The interactive protocol works as follows:
//
//  1. COMMITMENT (Prover → Verifier):
//     - Prover samples a fresh random nonce k
//     - Prover computes commitment R = k*G
//
//  2. CHALLENGE (Verifier → Prover):
//     - Verifier picks a challenge c
//
//  3. RESPONSE (Prover → Verifier):
//     - Prover computes response s = k + c*x (mod L)
//
//  4. VERIFICATION:
//     - Verifier checks: s*G == R + c*W
//
// # Fiat-Shamir
//
// The proofs in this package are non-interactive: the challenge is derived
// by hashing the transcript instead of being chosen by the verifier,
//
//	c = H(domain || R || W || message) mod L
//
// where domain is a protocol label (DefaultDomain unless configured), R and
// W are the 32-byte encodings of the commitment and witness, and message is
// arbitrary application data. R and W are fixed width, so the trailing
// message needs no length prefix. Binding the message into the challenge
// means a proof made for one message does not verify for any other.
//
// # Why Verification Works
//
//	s*G = (k + c*x)*G
//	    = k*G + c*(x*G)
//	    = R + c*W
//
// # Nonce Reuse
//
// The nonce k must be fresh for every proof. Two proofs that share k for the
// same secret reveal it:
//
//	x = (s1 - s2) / (c1 - c2) mod L
//
// Prove therefore always samples k from the configured random.Source and
// zeroizes it before returning.
package schnorr

import (
	"fmt"

	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
	"github.com/allsmog/zkpok-go/pkg/crypto/random"
)

// DefaultDomain is the domain separator for challenge derivation.
const DefaultDomain = "zkpok/1/chal"

// ProofSize is the length of an encoded proof: R followed by s.
const ProofSize = curve.PointSize + curve.ScalarSize

var (
	// ErrInvalidWitness indicates a degenerate witness: the identity point,
	// which corresponds to a zero secret.
	ErrInvalidWitness = fmt.Errorf("invalid witness")

	// ErrMalformedProof indicates proof or witness input that cannot be
	// decoded. A malformed proof is distinct from a proof that decodes but
	// does not verify; neither may be trusted.
	ErrMalformedProof = fmt.Errorf("malformed proof")

	// ErrEntropySource is returned by Prove when nonce sampling fails.
	ErrEntropySource = random.ErrEntropySource
)

// Scheme holds the parameters shared by prover and verifier. A Scheme is
// immutable and safe for concurrent use.
type Scheme struct {
	source random.Source
	hash   curve.HashFunc
	domain string
}

// Option configures a Scheme.
type Option func(*Scheme)

// WithSource sets the randomness used for nonces.
func WithSource(src random.Source) Option {
	return func(s *Scheme) {
		s.source = src
	}
}

// WithHash sets the challenge hash. Prover and verifier must agree on it.
func WithHash(fn curve.HashFunc) Option {
	return func(s *Scheme) {
		s.hash = fn
	}
}

// WithDomain sets the challenge domain separator. Prover and verifier must
// agree on it.
func WithDomain(domain string) Option {
	return func(s *Scheme) {
		s.domain = domain
	}
}

// New returns a Scheme using the system randomness source, SHA-512 and
// DefaultDomain unless overridden by opts.
func New(opts ...Option) *Scheme {
	s := &Scheme{
		source: random.System,
		hash:   curve.SHA512,
		domain: DefaultDomain,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultScheme = New()

// Prove creates a proof with the default scheme.
func Prove(secret *curve.Scalar, message []byte) (*Proof, error) {
	return defaultScheme.Prove(secret, message)
}

// Verify checks a proof with the default scheme.
func Verify(proof *Proof, witness *Witness, message []byte) (bool, error) {
	return defaultScheme.Verify(proof, witness, message)
}

// VerifyBytes decodes and checks a proof with the default scheme.
func VerifyBytes(proof, witness, message []byte) (bool, error) {
	return defaultScheme.VerifyBytes(proof, witness, message)
}

// Challenge derives the Fiat-Shamir challenge c = H(domain || R || W || message).
func (sc *Scheme) Challenge(R *curve.Point, W *Witness, message []byte) (*curve.Scalar, error) {
	c, err := curve.HashToScalar(sc.hash, []byte(sc.domain), R.Bytes(), W.Bytes(), message)
	if err != nil {
		return nil, fmt.Errorf("failed to derive challenge: %w", err)
	}
	return c, nil
}

// Prove creates a proof of knowledge of secret bound to message.
//
// The only failure modes are a zero secret (ErrInvalidWitness), a broken
// randomness source (ErrEntropySource) and a misconfigured hash.
func (sc *Scheme) Prove(secret *curve.Scalar, message []byte) (*Proof, error) {
	if secret == nil {
		return nil, fmt.Errorf("%w: nil secret", ErrInvalidWitness)
	}

	W, err := NewWitness(secret)
	if err != nil {
		return nil, err
	}

	k, err := random.NonZeroScalar(sc.source)
	if err != nil {
		return nil, fmt.Errorf("failed to sample nonce: %w", err)
	}
	defer k.Zeroize()

	R := curve.ScalarBaseMult(k)

	c, err := sc.Challenge(R, W, message)
	if err != nil {
		return nil, err
	}

	cx := c.Multiply(secret)
	defer cx.Zeroize()

	return &Proof{R: R, S: k.Add(cx)}, nil
}

// Verify reports whether proof demonstrates knowledge of the secret behind
// witness, bound to message.
//
// A false result with a nil error is an ordinary failed verification. Nil or
// degenerate inputs are reported as errors: ErrMalformedProof for the proof
// and ErrInvalidWitness for the witness.
func (sc *Scheme) Verify(proof *Proof, witness *Witness, message []byte) (bool, error) {
	if proof == nil || proof.R == nil || proof.S == nil {
		return false, fmt.Errorf("%w: missing components", ErrMalformedProof)
	}
	if proof.R.IsIdentity() {
		return false, fmt.Errorf("%w: identity commitment", ErrMalformedProof)
	}
	if witness == nil || witness.point.IsIdentity() {
		return false, ErrInvalidWitness
	}

	c, err := sc.Challenge(proof.R, witness, message)
	if err != nil {
		return false, err
	}

	left := curve.ScalarBaseMult(proof.S)
	right := proof.R.Add(witness.point.ScalarMult(c))

	return left.Equal(right), nil
}

// VerifyBytes decodes proof and witness and verifies them against message.
// Any decoding failure is reported as ErrMalformedProof wrapping the cause.
func (sc *Scheme) VerifyBytes(proof, witness, message []byte) (bool, error) {
	p, err := ParseProof(proof)
	if err != nil {
		return false, err
	}

	w, err := ParseWitness(witness)
	if err != nil {
		return false, fmt.Errorf("%w: witness: %w", ErrMalformedProof, err)
	}

	return sc.Verify(p, w, message)
}
