package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_IdentityOperations(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	witness := "test-witness"

	t.Run("CreateIdentity", func(t *testing.T) {
		err := store.CreateIdentity(witness, map[string]string{"label": "laptop"})
		if err != nil {
			t.Fatalf("failed to create identity: %v", err)
		}
	})

	t.Run("CreateDuplicateIdentity", func(t *testing.T) {
		err := store.CreateIdentity(witness, nil)
		if !errors.Is(err, ErrIdentityExists) {
			t.Errorf("expected ErrIdentityExists, got %v", err)
		}
	})

	t.Run("GetIdentity", func(t *testing.T) {
		identity, err := store.GetIdentity(witness)
		if err != nil {
			t.Fatalf("failed to get identity: %v", err)
		}

		if identity.Witness != witness {
			t.Errorf("wrong witness: %s", identity.Witness)
		}

		if identity.Status != StatusActive {
			t.Errorf("wrong status: %s", identity.Status)
		}

		if identity.Meta["label"] != "laptop" {
			t.Errorf("wrong meta: %v", identity.Meta)
		}

		if identity.CreatedAt.IsZero() {
			t.Error("created_at not set")
		}
	})

	t.Run("ReturnedMetaIsACopy", func(t *testing.T) {
		identity, _ := store.GetIdentity(witness)
		identity.Meta["label"] = "changed"

		listed, _ := store.ListIdentities()
		for _, id := range listed {
			id.Meta["label"] = "changed-too"
		}

		stored, _ := store.GetIdentity(witness)
		if stored.Meta["label"] != "laptop" {
			t.Errorf("stored meta was mutated through a returned identity: %v", stored.Meta)
		}
	})

	t.Run("GetNonexistentIdentity", func(t *testing.T) {
		_, err := store.GetIdentity("nonexistent-witness")
		if !errors.Is(err, ErrIdentityNotFound) {
			t.Errorf("expected ErrIdentityNotFound, got %v", err)
		}
	})

	t.Run("UpdateIdentityStatus", func(t *testing.T) {
		if err := store.UpdateIdentityStatus(witness, StatusBanned); err != nil {
			t.Fatalf("failed to update identity status: %v", err)
		}

		identity, err := store.GetIdentity(witness)
		if err != nil {
			t.Fatalf("failed to get identity: %v", err)
		}

		if identity.Status != StatusBanned {
			t.Errorf("status not updated: %s", identity.Status)
		}
	})

	t.Run("UpdateNonexistentIdentityStatus", func(t *testing.T) {
		err := store.UpdateIdentityStatus("nonexistent-witness", StatusBanned)
		if !errors.Is(err, ErrIdentityNotFound) {
			t.Errorf("expected ErrIdentityNotFound, got %v", err)
		}
	})

	t.Run("ListIdentities", func(t *testing.T) {
		store.CreateIdentity("test-witness-2", nil)

		identities, err := store.ListIdentities()
		if err != nil {
			t.Fatalf("failed to list identities: %v", err)
		}

		if len(identities) != 2 {
			t.Errorf("expected 2 identities, got %d", len(identities))
		}
	})

	t.Run("ReturnedIdentityIsCopy", func(t *testing.T) {
		identity, _ := store.GetIdentity(witness)
		identity.Status = "tampered"

		again, _ := store.GetIdentity(witness)
		if again.Status == "tampered" {
			t.Error("store state changed through returned identity")
		}
	})
}

func newTestSession(id, witness string) *ChallengeSession {
	return &ChallengeSession{
		ID:              id,
		Witness:         witness,
		Audience:        "https://api.example.com",
		Message:         []byte("message-" + id),
		ServerEphemeral: []byte("ephemeral-" + id),
		Timeslice:       time.Now().Truncate(time.Minute),
	}
}

func TestMemoryStore_SessionOperations(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	session := newTestSession("test-session-id", "test-witness")

	t.Run("CreateSession", func(t *testing.T) {
		if err := store.CreateSession(session); err != nil {
			t.Fatalf("failed to create session: %v", err)
		}
	})

	t.Run("GetSession", func(t *testing.T) {
		retrieved, err := store.GetSession(session.ID)
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}

		if retrieved.Witness != session.Witness {
			t.Errorf("wrong witness: %s", retrieved.Witness)
		}

		if retrieved.Audience != session.Audience {
			t.Errorf("wrong audience: %s", retrieved.Audience)
		}

		if string(retrieved.Message) != string(session.Message) {
			t.Error("message mismatch")
		}

		if string(retrieved.ServerEphemeral) != string(session.ServerEphemeral) {
			t.Error("server ephemeral mismatch")
		}

		if retrieved.Used {
			t.Error("new session should not be used")
		}
	})

	t.Run("GetNonexistentSession", func(t *testing.T) {
		_, err := store.GetSession("nonexistent-session")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("MarkSessionUsed", func(t *testing.T) {
		if err := store.MarkSessionUsed(session.ID); err != nil {
			t.Fatalf("failed to mark session used: %v", err)
		}

		retrieved, err := store.GetSession(session.ID)
		if err != nil {
			t.Fatalf("failed to get session: %v", err)
		}

		if !retrieved.Used {
			t.Error("session should be marked as used")
		}

		err = store.MarkSessionUsed(session.ID)
		if !errors.Is(err, ErrSessionUsed) {
			t.Errorf("expected ErrSessionUsed, got %v", err)
		}
	})

	t.Run("MarkNonexistentSessionUsed", func(t *testing.T) {
		err := store.MarkSessionUsed("nonexistent-session")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound, got %v", err)
		}
	})

	t.Run("GetSessionsByWitness", func(t *testing.T) {
		store.CreateSession(newTestSession("test-session-id-2", "test-witness"))
		store.CreateSession(newTestSession("other-session", "other-witness"))

		sessions, err := store.GetSessionsByWitness("test-witness")
		if err != nil {
			t.Fatalf("failed to get sessions by witness: %v", err)
		}

		if len(sessions) != 2 {
			t.Errorf("expected 2 sessions, got %d", len(sessions))
		}
	})

	t.Run("ExpiredSession", func(t *testing.T) {
		store.CreateSession(newTestSession("old-session", "test-witness"))

		store.mu.Lock()
		store.sessions["old-session"].CreatedAt = time.Now().Add(-10 * time.Minute)
		store.mu.Unlock()

		_, err := store.GetSession("old-session")
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired, got %v", err)
		}

		err = store.MarkSessionUsed("old-session")
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("expected ErrSessionExpired on use, got %v", err)
		}
	})

	t.Run("CleanupExpiredSessions", func(t *testing.T) {
		if err := store.CleanupExpiredSessions(time.Minute); err != nil {
			t.Fatalf("failed to cleanup sessions: %v", err)
		}

		_, err := store.GetSession("old-session")
		if !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("expected ErrSessionNotFound after cleanup, got %v", err)
		}

		if _, err := store.GetSession(session.ID); err != nil {
			t.Errorf("live session removed by cleanup: %v", err)
		}
	})
}

func TestMemoryStore_MarkSessionUsedOnce(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	store.CreateSession(newTestSession("race", "w"))

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.MarkSessionUsed("race"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if !errors.Is(err, ErrSessionUsed) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("expected exactly one successful use, got %d", successes)
	}
}

func TestMemoryStore_DenylistOperations(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	witness := "test-banned-witness"

	t.Run("AddToDenylist", func(t *testing.T) {
		if err := store.AddToDenylist(witness); err != nil {
			t.Fatalf("failed to add to denylist: %v", err)
		}
	})

	t.Run("IsInDenylist", func(t *testing.T) {
		banned, err := store.IsInDenylist(witness)
		if err != nil {
			t.Fatalf("failed to check denylist: %v", err)
		}
		if !banned {
			t.Error("witness should be in denylist")
		}

		banned, _ = store.IsInDenylist("not-banned")
		if banned {
			t.Error("witness should not be in denylist")
		}
	})

	t.Run("ListDenylist", func(t *testing.T) {
		store.AddToDenylist("another-banned-witness")

		banned, err := store.ListDenylist()
		if err != nil {
			t.Fatalf("failed to list denylist: %v", err)
		}
		if len(banned) != 2 {
			t.Errorf("expected 2 banned witnesses, got %d", len(banned))
		}
	})

	t.Run("RemoveFromDenylist", func(t *testing.T) {
		if err := store.RemoveFromDenylist(witness); err != nil {
			t.Fatalf("failed to remove from denylist: %v", err)
		}

		banned, _ := store.IsInDenylist(witness)
		if banned {
			t.Error("witness should not be in denylist after removal")
		}
	})
}

func TestMemoryStore_UtilityMethods(t *testing.T) {
	store := NewMemoryStore(0)

	if store.sessionTTL != DefaultSessionTTL {
		t.Errorf("expected default TTL %v, got %v", DefaultSessionTTL, store.sessionTTL)
	}

	t.Run("Stats", func(t *testing.T) {
		store.CreateIdentity("test-witness", nil)
		store.AddToDenylist("banned-witness")
		store.CreateSession(newTestSession("s", "test-witness"))

		stats := store.Stats()

		if stats["identities"] != 1 {
			t.Errorf("expected 1 identity, got %d", stats["identities"])
		}
		if stats["sessions"] != 1 {
			t.Errorf("expected 1 session, got %d", stats["sessions"])
		}
		if stats["denylist"] != 1 {
			t.Errorf("expected 1 denylist entry, got %d", stats["denylist"])
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := store.Ping(); err != nil {
			t.Errorf("ping failed on open store: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		if err := store.Close(); err != nil {
			t.Errorf("close failed: %v", err)
		}
		// Close is idempotent.
		if err := store.Close(); err != nil {
			t.Errorf("second close failed: %v", err)
		}

		if err := store.Ping(); !errors.Is(err, ErrStoreClosed) {
			t.Errorf("expected ErrStoreClosed from ping, got %v", err)
		}
		if err := store.CreateIdentity("late", nil); !errors.Is(err, ErrStoreClosed) {
			t.Errorf("expected ErrStoreClosed from create, got %v", err)
		}
	})
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	defer store.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			witness := fmt.Sprintf("concurrent-witness-%d", id)
			if err := store.CreateIdentity(witness, nil); err != nil {
				t.Errorf("failed to create identity %d: %v", id, err)
				return
			}

			session := newTestSession(fmt.Sprintf("concurrent-session-%d", id), witness)
			if err := store.CreateSession(session); err != nil {
				t.Errorf("failed to create session %d: %v", id, err)
				return
			}

			retrieved, err := store.GetSession(session.ID)
			if err != nil {
				t.Errorf("failed to get session %d: %v", id, err)
				return
			}
			if retrieved.Witness != witness {
				t.Errorf("wrong witness for session %d: %s", id, retrieved.Witness)
			}
		}(i)
	}
	wg.Wait()

	stats := store.Stats()
	if stats["identities"] != 10 || stats["sessions"] != 10 {
		t.Errorf("unexpected stats after concurrent writes: %v", stats)
	}
}
