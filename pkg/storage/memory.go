package storage

import (
	"sync"
	"time"
)

// DefaultSessionTTL is how long a challenge session stays usable.
const DefaultSessionTTL = 2 * time.Minute

// MemoryStore implements the Store interface using in-memory storage
// This is suitable for development and testing, but not for production
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	sessions   map[string]*ChallengeSession
	denylist   map[string]bool
	sessionTTL time.Duration
	closed     bool
	done       chan struct{}
	closeOnce  sync.Once
}

// NewMemoryStore creates a new in-memory store whose sessions live for
// sessionTTL. A non-positive TTL selects DefaultSessionTTL.
func NewMemoryStore(sessionTTL time.Duration) *MemoryStore {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	store := &MemoryStore{
		identities: make(map[string]*Identity),
		sessions:   make(map[string]*ChallengeSession),
		denylist:   make(map[string]bool),
		sessionTTL: sessionTTL,
		done:       make(chan struct{}),
	}

	go store.cleanupLoop()

	return store
}

// cleanupLoop runs periodic cleanup of expired sessions until Close
func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.sessionTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpiredSessions(s.sessionTTL)
		case <-s.done:
			return
		}
	}
}

// CreateIdentity registers a new witness
func (s *MemoryStore) CreateIdentity(witness string, meta map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, exists := s.identities[witness]; exists {
		return ErrIdentityExists
	}

	s.identities[witness] = &Identity{
		Witness:   witness,
		Status:    StatusActive,
		Meta:      copyMeta(meta),
		CreatedAt: time.Now(),
	}

	return nil
}

// GetIdentity retrieves an identity by witness
func (s *MemoryStore) GetIdentity(witness string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, exists := s.identities[witness]
	if !exists {
		return nil, ErrIdentityNotFound
	}

	identityCopy := copyIdentity(identity)
	return &identityCopy, nil
}

// UpdateIdentityStatus updates an identity's status
func (s *MemoryStore) UpdateIdentityStatus(witness string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	identity, exists := s.identities[witness]
	if !exists {
		return ErrIdentityNotFound
	}

	identity.Status = status
	return nil
}

// ListIdentities returns all identities
func (s *MemoryStore) ListIdentities() ([]Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identities := make([]Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		identities = append(identities, copyIdentity(identity))
	}

	return identities, nil
}

func copyIdentity(identity *Identity) Identity {
	c := *identity
	c.Meta = copyMeta(identity.Meta)
	return c
}

func copyMeta(meta map[string]string) map[string]string {
	c := make(map[string]string, len(meta))
	for k, v := range meta {
		c[k] = v
	}
	return c
}

// CreateSession stores a new challenge session
func (s *MemoryStore) CreateSession(session *ChallengeSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	session.CreatedAt = time.Now()

	sessionCopy := *session
	s.sessions[session.ID] = &sessionCopy

	return nil
}

// GetSession retrieves a live session by ID
func (s *MemoryStore) GetSession(sessionID string) (*ChallengeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, ErrSessionNotFound
	}

	if time.Since(session.CreatedAt) > s.sessionTTL {
		return nil, ErrSessionExpired
	}

	sessionCopy := *session
	return &sessionCopy, nil
}

// MarkSessionUsed consumes a session
func (s *MemoryStore) MarkSessionUsed(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return ErrSessionNotFound
	}

	if session.Used {
		return ErrSessionUsed
	}

	if time.Since(session.CreatedAt) > s.sessionTTL {
		return ErrSessionExpired
	}

	session.Used = true
	return nil
}

// CleanupExpiredSessions removes expired sessions
func (s *MemoryStore) CleanupExpiredSessions(maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)

	for id, session := range s.sessions {
		if session.CreatedAt.Before(cutoff) {
			delete(s.sessions, id)
		}
	}

	return nil
}

// GetSessionsByWitness returns all sessions for a witness
func (s *MemoryStore) GetSessionsByWitness(witness string) ([]ChallengeSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []ChallengeSession
	for _, session := range s.sessions {
		if session.Witness == witness {
			sessions = append(sessions, *session)
		}
	}

	return sessions, nil
}

// AddToDenylist bans a witness
func (s *MemoryStore) AddToDenylist(witness string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.denylist[witness] = true
	return nil
}

// IsInDenylist checks if a witness is banned
func (s *MemoryStore) IsInDenylist(witness string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.denylist[witness], nil
}

// RemoveFromDenylist unbans a witness
func (s *MemoryStore) RemoveFromDenylist(witness string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.denylist, witness)
	return nil
}

// ListDenylist returns all banned witnesses
func (s *MemoryStore) ListDenylist() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	witnesses := make([]string, 0, len(s.denylist))
	for w := range s.denylist {
		witnesses = append(witnesses, w)
	}

	return witnesses, nil
}

// Close stops the cleanup loop. Further writes fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Stats returns storage statistics for monitoring
func (s *MemoryStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"identities": len(s.identities),
		"sessions":   len(s.sessions),
		"denylist":   len(s.denylist),
	}
}
