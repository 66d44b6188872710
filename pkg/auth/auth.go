// Package auth implements a challenge/response login over HTTP in which the
// client authenticates by proving knowledge of the secret behind a
// registered witness.
//
// The flow is:
//
//  1. POST /register {witness}: the witness W = x*G is stored.
//  2. POST /auth/zk/challenge {witness, aud}: the server picks a fresh
//     session and returns the message the proof must be bound to.
//  3. POST /auth/zk/complete {session_id, proof}: the server verifies the
//     proof against the stored witness and message, consumes the session
//     and returns a signed access token.
//
// The message mixes server randomness, the session id, the audience and a
// timeslice, so a proof is only ever accepted for the session it was made
// for.
//
// Registration can be priced with a Balloon proof of work. When enabled,
// GET /register/pow publishes the difficulty and the client solves a puzzle
// salted with RegistrationSalt over its witness and the current timeslice.
package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
	"github.com/allsmog/zkpok-go/pkg/crypto/pow"
	"github.com/allsmog/zkpok-go/pkg/crypto/random"
	"github.com/allsmog/zkpok-go/pkg/crypto/schnorr"
	"github.com/allsmog/zkpok-go/pkg/jwt"
	"github.com/allsmog/zkpok-go/pkg/storage"
)

// MessageDomain separates login messages from other uses of SHA-256.
const MessageDomain = "zkpok/1/msg"

// PoWDomain separates registration puzzle salts from login messages.
const PoWDomain = "zkpok/1/pow"

// ServerEphemeralSize is the number of random bytes mixed into each message.
const ServerEphemeralSize = 32

// Handlers contains all authentication handlers
type Handlers struct {
	store       storage.Store
	scheme      *schnorr.Scheme
	tokenSigner jwt.TokenSigner
	source      random.Source
	config      Config
}

// Config contains configuration for auth handlers
type Config struct {
	Issuer     string        // JWT issuer
	Audience   string        // Audience used when a challenge request names none
	TokenTTL   time.Duration // JWT lifetime
	SessionTTL time.Duration // Challenge session lifetime

	PoWDifficulty uint32     // Leading zero bits required at registration; 0 disables
	PoWParams     pow.Params // Balloon costs for registration puzzles
}

// NewHandlers creates new authentication handlers. The scheme must use the
// same hash and domain as the clients; source supplies server randomness.
func NewHandlers(
	store storage.Store,
	scheme *schnorr.Scheme,
	tokenSigner jwt.TokenSigner,
	source random.Source,
	config Config,
) *Handlers {
	if source == nil {
		source = random.System
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = storage.DefaultSessionTTL
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 5 * time.Minute
	}
	if config.PoWDifficulty > 0 && config.PoWParams == (pow.Params{}) {
		config.PoWParams = pow.DefaultParams
	}

	return &Handlers{
		store:       store,
		scheme:      scheme,
		tokenSigner: tokenSigner,
		source:      source,
		config:      config,
	}
}

// RegisterRequest represents a witness registration request
type RegisterRequest struct {
	Witness string            `json:"witness"` // hex or base64url
	Meta    map[string]string `json:"meta,omitempty"`
	PoW     *PoWSolution      `json:"pow,omitempty"`
}

// PoWSolution is a solved registration puzzle
type PoWSolution struct {
	Timeslice string `json:"timeslice"` // RFC3339, salted into the puzzle
	Nonce     uint64 `json:"nonce"`
}

// PoWResponse describes the registration puzzle
type PoWResponse struct {
	Enabled    bool       `json:"enabled"`
	Difficulty uint32     `json:"difficulty,omitempty"`
	Params     pow.Params `json:"params"`
	Timeslice  string     `json:"timeslice"` // RFC3339, current server timeslice
}

// ChallengeRequest starts a login
type ChallengeRequest struct {
	Witness string `json:"witness"` // hex or base64url
	Aud     string `json:"aud"`     // Audience of the token to be minted
}

// ChallengeResponse carries the message the client must prove over
type ChallengeResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`    // hex
	Timeslice string `json:"timeslice"`  // RFC3339
	ExpiresIn int64  `json:"expires_in"` // Seconds until the session expires
}

// CompleteRequest submits a proof for a session
type CompleteRequest struct {
	SessionID string `json:"session_id"`
	Proof     string `json:"proof"` // hex or base64url encoding of R || s
}

// CompleteResponse represents the token response
type CompleteResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // Seconds until expiry
}

// ChallengeMessage derives the message a login proof is bound to. Every
// field is length-prefixed so distinct inputs never collide.
func ChallengeMessage(aud, sessionID string, timeslice time.Time, serverEphemeral []byte) []byte {
	return digestFields(MessageDomain,
		[]byte(aud),
		[]byte(sessionID),
		[]byte(timeslice.UTC().Format(time.RFC3339)),
		serverEphemeral,
	)
}

// RegistrationSalt derives the proof-of-work salt for registering witness
// during timeslice.
func RegistrationSalt(witness []byte, timeslice time.Time) []byte {
	return digestFields(PoWDomain, witness, []byte(timeslice.UTC().Format(time.RFC3339)))
}

func digestFields(domain string, fields ...[]byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	for _, field := range fields {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(field)))
		h.Write(n[:])
		h.Write(field)
	}
	return h.Sum(nil)
}

// Register handles witness registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	witness, ok := h.parseWitness(w, req.Witness)
	if !ok {
		return
	}
	key := witness.String()

	if !h.checkRegistrationWork(w, witness, req.PoW) {
		return
	}

	if !h.checkNotBanned(w, key) {
		return
	}

	if err := h.store.CreateIdentity(key, req.Meta); err != nil {
		if errors.Is(err, storage.ErrIdentityExists) {
			http.Error(w, "witness already registered", http.StatusConflict)
		} else {
			http.Error(w, "storage error", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"status": "created", "witness": key})
}

// PoW describes the registration puzzle clients must solve
func (h *Handlers) PoW(w http.ResponseWriter, r *http.Request) {
	resp := PoWResponse{
		Enabled:   h.config.PoWDifficulty > 0,
		Timeslice: currentTimeslice().Format(time.RFC3339),
	}
	if resp.Enabled {
		resp.Difficulty = h.config.PoWDifficulty
		resp.Params = h.config.PoWParams
	}
	writeJSON(w, http.StatusOK, resp)
}

// Challenge creates a login session for a registered witness
func (h *Handlers) Challenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	witness, ok := h.parseWitness(w, req.Witness)
	if !ok {
		return
	}
	key := witness.String()

	identity, err := h.store.GetIdentity(key)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			http.Error(w, "witness not registered", http.StatusNotFound)
		} else {
			http.Error(w, "storage error", http.StatusInternalServerError)
		}
		return
	}

	if identity.Status != storage.StatusActive {
		http.Error(w, "identity is not active", http.StatusForbidden)
		return
	}

	if !h.checkNotBanned(w, key) {
		return
	}

	aud := req.Aud
	if aud == "" {
		aud = h.config.Audience
	}
	if aud == "" {
		http.Error(w, "missing audience", http.StatusBadRequest)
		return
	}

	serverEphemeral, err := random.Bytes(h.source, ServerEphemeralSize)
	if err != nil {
		http.Error(w, "failed to generate randomness", http.StatusInternalServerError)
		return
	}

	timeslice := currentTimeslice()
	sessionID := uuid.NewString()
	message := ChallengeMessage(aud, sessionID, timeslice, serverEphemeral)

	session := &storage.ChallengeSession{
		ID:              sessionID,
		Witness:         key,
		Audience:        aud,
		Message:         message,
		ServerEphemeral: serverEphemeral,
		Timeslice:       timeslice,
	}

	if err := h.store.CreateSession(session); err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ChallengeResponse{
		SessionID: sessionID,
		Message:   hex.EncodeToString(message),
		Timeslice: timeslice.Format(time.RFC3339),
		ExpiresIn: int64(h.config.SessionTTL.Seconds()),
	})
}

// Complete verifies a proof for a session and mints an access token
func (h *Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	session, err := h.store.GetSession(req.SessionID)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	if session.Used {
		http.Error(w, "session already used", http.StatusConflict)
		return
	}

	if time.Since(session.Timeslice) > h.config.SessionTTL+time.Minute {
		http.Error(w, "session expired", http.StatusGone)
		return
	}

	proofBytes, err := decodeBytes(req.Proof, schnorr.ProofSize)
	if err != nil {
		http.Error(w, "invalid proof format", http.StatusBadRequest)
		return
	}

	proof, err := schnorr.ParseProof(proofBytes)
	if err != nil {
		http.Error(w, fmt.Sprintf("malformed proof: %v", err), http.StatusBadRequest)
		return
	}

	witness, err := schnorr.ParseWitness(decodeStoredHex(session.Witness))
	if err != nil {
		http.Error(w, "invalid session witness", http.StatusInternalServerError)
		return
	}

	// The identity may have been banned since the challenge was issued.
	identity, err := h.store.GetIdentity(session.Witness)
	if err != nil {
		if errors.Is(err, storage.ErrIdentityNotFound) {
			http.Error(w, "identity is not active", http.StatusForbidden)
		} else {
			http.Error(w, "storage error", http.StatusInternalServerError)
		}
		return
	}

	if identity.Status != storage.StatusActive {
		http.Error(w, "identity is not active", http.StatusForbidden)
		return
	}

	if !h.checkNotBanned(w, session.Witness) {
		return
	}

	valid, err := h.scheme.Verify(proof, witness, session.Message)
	if err != nil {
		if errors.Is(err, schnorr.ErrMalformedProof) {
			http.Error(w, fmt.Sprintf("malformed proof: %v", err), http.StatusBadRequest)
		} else {
			http.Error(w, "verification error", http.StatusInternalServerError)
		}
		return
	}

	if !valid {
		http.Error(w, "invalid proof", http.StatusUnauthorized)
		return
	}

	// Consuming after verification: concurrent submissions of valid proofs
	// race here and exactly one wins.
	if err := h.store.MarkSessionUsed(session.ID); err != nil {
		writeSessionError(w, err)
		return
	}

	token, err := jwt.MintProofToken(h.tokenSigner, jwt.ProofToken{
		Issuer:     h.config.Issuer,
		Audience:   session.Audience,
		Witness:    witness.Bytes(),
		Commitment: proof.R.Bytes(),
		Message:    session.Message,
		Group:      curve.Name,
		Timeslice:  session.Timeslice,
		TTL:        h.config.TokenTTL,
	})
	if err != nil {
		http.Error(w, "failed to mint token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, CompleteResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.config.TokenTTL.Seconds()),
	})
}

// JWKS returns the public keys for JWT verification
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, h.tokenSigner.JWKS())
}

func (h *Handlers) parseWitness(w http.ResponseWriter, encoded string) (*schnorr.Witness, bool) {
	raw, err := decodeBytes(encoded, curve.PointSize)
	if err != nil {
		http.Error(w, "invalid witness format", http.StatusBadRequest)
		return nil, false
	}

	witness, err := schnorr.ParseWitness(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid witness: %v", err), http.StatusBadRequest)
		return nil, false
	}

	return witness, true
}

// checkRegistrationWork enforces the registration puzzle when it is enabled
func (h *Handlers) checkRegistrationWork(w http.ResponseWriter, witness *schnorr.Witness, sol *PoWSolution) bool {
	if h.config.PoWDifficulty == 0 {
		return true
	}
	if sol == nil {
		http.Error(w, "proof of work required", http.StatusBadRequest)
		return false
	}

	timeslice, err := time.Parse(time.RFC3339, sol.Timeslice)
	if err != nil {
		http.Error(w, "invalid proof of work timeslice", http.StatusBadRequest)
		return false
	}

	age := time.Since(timeslice)
	if age > h.config.SessionTTL+time.Minute || age < -time.Minute {
		http.Error(w, "proof of work expired", http.StatusGone)
		return false
	}

	puzzle, err := pow.NewPuzzle(RegistrationSalt(witness.Bytes(), timeslice), h.config.PoWParams, h.config.PoWDifficulty)
	if err != nil {
		http.Error(w, "proof of work misconfigured", http.StatusInternalServerError)
		return false
	}

	if !puzzle.Verify(sol.Nonce) {
		http.Error(w, "insufficient proof of work", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handlers) checkNotBanned(w http.ResponseWriter, key string) bool {
	banned, err := h.store.IsInDenylist(key)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return false
	}
	if banned {
		http.Error(w, "witness is banned", http.StatusForbidden)
		return false
	}
	return true
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrSessionExpired):
		http.Error(w, "session expired", http.StatusGone)
	case errors.Is(err, storage.ErrSessionUsed):
		http.Error(w, "session already used", http.StatusConflict)
	default:
		http.Error(w, "storage error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func currentTimeslice() time.Time {
	return time.Now().UTC().Truncate(time.Minute)
}

// decodeBytes decodes a size-byte value given as hex (optionally 0x-prefixed)
// or unpadded base64url. The encoding is chosen by length; the two lengths
// differ for every size above one byte.
func decodeBytes(s string, size int) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}

	trimmed := strings.TrimPrefix(s, "0x")
	switch {
	case len(trimmed) == hex.EncodedLen(size):
		return hex.DecodeString(trimmed)
	case len(s) == base64.RawURLEncoding.EncodedLen(size):
		return base64.RawURLEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("expected %d bytes as hex or base64url, got %d characters", size, len(s))
	}
}

// decodeStoredHex decodes hex written by this package; a corrupt value yields
// nil, which ParseWitness rejects.
func decodeStoredHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
