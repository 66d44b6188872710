// Package jwt mints and verifies the access tokens issued after a prover
// has presented a valid proof of knowledge.
package jwt

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// Values of the zk claim.
const (
	SchemeSchnorrNIZK = "schnorr-nizk"
	AlgorithmES256    = "ES256"
)

// ErrInvalidToken indicates a token that failed signature or claim checks.
var ErrInvalidToken = fmt.Errorf("invalid token")

// TokenSigner defines the interface for JWT signing
type TokenSigner interface {
	// Sign creates a JWT with the given claims
	Sign(claims map[string]interface{}) (string, error)

	// JWKS returns the public keys for JWT verification
	JWKS() jwk.Set

	// Algorithm returns the signing algorithm
	Algorithm() string
}

// TokenVerifier defines the interface for JWT verification
type TokenVerifier interface {
	// Verify verifies a JWT and returns the claims
	Verify(token string, expectedAudience string) (*Claims, error)
}

// Claims represents the claims of an access token
type Claims struct {
	Issuer    string                 `json:"iss"`
	Subject   string                 `json:"sub"`
	Audience  string                 `json:"aud"`
	IssuedAt  int64                  `json:"iat"`
	ExpiresAt int64                  `json:"exp"`
	ZK        *ZKClaims              `json:"zk,omitempty"`
	Extra     map[string]interface{} `json:"-"`
}

// ZKClaims records which proof the token was minted for
type ZKClaims struct {
	Scheme    string `json:"scheme"` // "schnorr-nizk"
	Group     string `json:"grp"`    // "ristretto255"
	RHash     string `json:"r_hash"` // base64url SHA-256 of commitment R
	Message   string `json:"msg"`    // base64url of the message the proof was bound to
	Timeslice string `json:"ts"`     // RFC3339 timeslice
}

// ES256Signer implements JWT signing using ECDSA P-256
type ES256Signer struct {
	privateKey *ecdsa.PrivateKey
	keyID      string
	issuer     string
	jwks       jwk.Set
}

// NewES256Signer creates a new ES256 JWT signer
func NewES256Signer(privateKey *ecdsa.PrivateKey, keyID, issuer string) (*ES256Signer, error) {
	publicJWK, err := jwk.FromRaw(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK from public key: %w", err)
	}

	if err := publicJWK.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}

	if err := publicJWK.Set(jwk.AlgorithmKey, AlgorithmES256); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	if err := publicJWK.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	jwks := jwk.NewSet()
	if err := jwks.AddKey(publicJWK); err != nil {
		return nil, fmt.Errorf("failed to add key to JWKS: %w", err)
	}

	return &ES256Signer{
		privateKey: privateKey,
		keyID:      keyID,
		issuer:     issuer,
		jwks:       jwks,
	}, nil
}

// Sign creates a JWT with the given claims
func (s *ES256Signer) Sign(claims map[string]interface{}) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims(claims))
	token.Header["kid"] = s.keyID

	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}

	return tokenString, nil
}

// JWKS returns the public keys for JWT verification
func (s *ES256Signer) JWKS() jwk.Set {
	return s.jwks
}

// Algorithm returns the signing algorithm
func (s *ES256Signer) Algorithm() string {
	return AlgorithmES256
}

// Issuer returns the issuer the signer was configured with
func (s *ES256Signer) Issuer() string {
	return s.issuer
}

// JWTVerifier verifies tokens against a JWKS
type JWTVerifier struct {
	issuerJWKS jwk.Set
	issuer     string
}

// NewJWTVerifier creates a new JWT verifier. If issuer is non-empty the
// iss claim must match it.
func NewJWTVerifier(issuerJWKS jwk.Set, issuer string) *JWTVerifier {
	return &JWTVerifier{
		issuerJWKS: issuerJWKS,
		issuer:     issuer,
	}
}

// Verify verifies a JWT and returns the claims
func (v *JWTVerifier) Verify(tokenString string, expectedAudience string) (*Claims, error) {
	return v.parse(tokenString, expectedAudience, v.lookupKey)
}

// VerifyWithKey verifies a JWT using a specific public key
func (v *JWTVerifier) VerifyWithKey(tokenString string, expectedAudience string, publicKey *ecdsa.PublicKey) (*Claims, error) {
	return v.parse(tokenString, expectedAudience, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
}

func (v *JWTVerifier) lookupKey(token *jwt.Token) (interface{}, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("missing key ID")
	}

	key, ok := v.issuerJWKS.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}

	var publicKey interface{}
	if err := key.Raw(&publicKey); err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}

	return publicKey, nil
}

func (v *JWTVerifier) parse(tokenString, expectedAudience string, keyFunc jwt.Keyfunc) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{AlgorithmES256}),
		jwt.WithAudience(expectedAudience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.Parse(tokenString, keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claimsMap, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return parseClaimsMap(claimsMap), nil
}

// parseClaimsMap parses JWT claims map into structured Claims
func parseClaimsMap(claimsMap jwt.MapClaims) *Claims {
	claims := &Claims{
		Extra: make(map[string]interface{}),
	}

	claims.Issuer, _ = claimsMap["iss"].(string)
	claims.Subject, _ = claimsMap["sub"].(string)
	claims.Audience, _ = claimsMap["aud"].(string)

	if iat, ok := claimsMap["iat"].(float64); ok {
		claims.IssuedAt = int64(iat)
	}

	if exp, ok := claimsMap["exp"].(float64); ok {
		claims.ExpiresAt = int64(exp)
	}

	if zkRaw, ok := claimsMap["zk"].(map[string]interface{}); ok {
		claims.ZK = &ZKClaims{}
		claims.ZK.Scheme, _ = zkRaw["scheme"].(string)
		claims.ZK.Group, _ = zkRaw["grp"].(string)
		claims.ZK.RHash, _ = zkRaw["r_hash"].(string)
		claims.ZK.Message, _ = zkRaw["msg"].(string)
		claims.ZK.Timeslice, _ = zkRaw["ts"].(string)
	}

	for k, v := range claimsMap {
		switch k {
		case "iss", "sub", "aud", "iat", "exp", "zk":
		default:
			claims.Extra[k] = v
		}
	}

	return claims
}

// ProofToken describes the verified proof a token is minted for.
type ProofToken struct {
	Issuer     string
	Audience   string
	Witness    []byte // encoded witness, used for the pairwise subject
	Commitment []byte // encoded commitment R of the accepted proof
	Message    []byte
	Group      string
	Timeslice  time.Time
	TTL        time.Duration
}

// MintProofToken signs an access token for a prover whose proof was accepted
func MintProofToken(signer TokenSigner, p ProofToken) (string, error) {
	now := time.Now()
	rHash := sha256.Sum256(p.Commitment)

	claims := map[string]interface{}{
		"iss": p.Issuer,
		"sub": GeneratePairwiseSubject(p.Witness, p.Audience),
		"aud": p.Audience,
		"iat": now.Unix(),
		"exp": now.Add(p.TTL).Unix(),
		"zk": map[string]interface{}{
			"scheme": SchemeSchnorrNIZK,
			"grp":    p.Group,
			"r_hash": base64.RawURLEncoding.EncodeToString(rHash[:]),
			"msg":    base64.RawURLEncoding.EncodeToString(p.Message),
			"ts":     p.Timeslice.UTC().Format(time.RFC3339),
		},
	}

	return signer.Sign(claims)
}

// GeneratePairwiseSubject derives a per-audience subject from a witness so
// that relying parties cannot correlate the same prover.
func GeneratePairwiseSubject(witness []byte, audience string) string {
	h := sha256.New()
	h.Write([]byte("zkpok/1/sub"))
	h.Write(witness)
	h.Write([]byte(audience))

	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
