package storage

import (
	"fmt"
	"time"
)

// Identity statuses.
const (
	StatusActive = "active"
	StatusBanned = "banned"
)

// Identity is a registered prover, keyed by its hex-encoded witness.
type Identity struct {
	Witness   string            `json:"witness" db:"witness"` // Witness W = x*G (hex)
	Status    string            `json:"status" db:"status"`   // active|banned
	Meta      map[string]string `json:"meta,omitempty" db:"meta"`
	CreatedAt time.Time         `json:"created_at" db:"created_at"`
}

// ChallengeSession is a login attempt: the server-chosen message a prover
// must bind its proof to.
type ChallengeSession struct {
	ID              string    `json:"id" db:"id"`                             // Session ID (UUID)
	Witness         string    `json:"witness" db:"witness"`                   // Prover's witness (hex)
	Audience        string    `json:"aud" db:"aud"`                           // Audience the token will be minted for
	Message         []byte    `json:"message" db:"message"`                   // Message the proof must be bound to
	ServerEphemeral []byte    `json:"server_ephemeral" db:"server_ephemeral"` // Server randomness mixed into Message
	Timeslice       time.Time `json:"timeslice" db:"timeslice"`               // Minute-granularity timestamp
	Used            bool      `json:"used" db:"used"`                         // Whether a proof has been accepted
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// IdentityStore defines the interface for witness registration
type IdentityStore interface {
	// CreateIdentity registers a new witness
	CreateIdentity(witness string, meta map[string]string) error

	// GetIdentity retrieves an identity by witness
	GetIdentity(witness string) (*Identity, error)

	// UpdateIdentityStatus updates an identity's status
	UpdateIdentityStatus(witness string, status string) error

	// ListIdentities returns all identities (for admin purposes)
	ListIdentities() ([]Identity, error)
}

// SessionStore defines the interface for challenge session storage
type SessionStore interface {
	// CreateSession stores a new challenge session
	CreateSession(session *ChallengeSession) error

	// GetSession retrieves a live session by ID
	GetSession(sessionID string) (*ChallengeSession, error)

	// MarkSessionUsed consumes a session. It fails with ErrSessionUsed if
	// the session was already consumed, so at most one proof is accepted
	// per challenge.
	MarkSessionUsed(sessionID string) error

	// CleanupExpiredSessions removes sessions older than maxAge
	CleanupExpiredSessions(maxAge time.Duration) error

	// GetSessionsByWitness returns all sessions for a witness (debugging)
	GetSessionsByWitness(witness string) ([]ChallengeSession, error)
}

// DenylistStore defines the interface for banned witnesses
type DenylistStore interface {
	// AddToDenylist bans a witness
	AddToDenylist(witness string) error

	// IsInDenylist checks if a witness is banned
	IsInDenylist(witness string) (bool, error)

	// RemoveFromDenylist unbans a witness
	RemoveFromDenylist(witness string) error

	// ListDenylist returns all banned witnesses
	ListDenylist() ([]string, error)
}

// Store combines all storage interfaces
type Store interface {
	IdentityStore
	SessionStore
	DenylistStore

	// Close releases the storage and stops background work
	Close() error

	// Ping checks if the storage is healthy
	Ping() error
}

var (
	// ErrIdentityNotFound indicates a witness is not registered
	ErrIdentityNotFound = fmt.Errorf("identity not found")

	// ErrIdentityExists indicates a witness is already registered
	ErrIdentityExists = fmt.Errorf("identity already exists")

	// ErrSessionNotFound indicates a session was not found
	ErrSessionNotFound = fmt.Errorf("session not found")

	// ErrSessionExpired indicates a session has expired
	ErrSessionExpired = fmt.Errorf("session expired")

	// ErrSessionUsed indicates a session has already been used
	ErrSessionUsed = fmt.Errorf("session already used")

	// ErrStoreClosed indicates the store was closed
	ErrStoreClosed = fmt.Errorf("store closed")
)
