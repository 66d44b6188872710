package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/allsmog/zkpok-go/pkg/storage"
)

// ListIdentities returns every registered identity
func (h *Handlers) ListIdentities(w http.ResponseWriter, r *http.Request) {
	identities, err := h.store.ListIdentities()
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(identities),
		"identities": identities,
	})
}

// ListDenylist returns every banned witness
func (h *Handlers) ListDenylist(w http.ResponseWriter, r *http.Request) {
	witnesses, err := h.store.ListDenylist()
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":     len(witnesses),
		"witnesses": witnesses,
	})
}

// Ban denylists a witness and marks its identity banned. Witnesses that are
// not registered yet are denylisted so they cannot register.
func (h *Handlers) Ban(w http.ResponseWriter, r *http.Request) {
	key, ok := h.witnessParam(w, r)
	if !ok {
		return
	}

	if err := h.store.AddToDenylist(key); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	registered, err := h.setStatus(key, storage.StatusBanned)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"witness":    key,
		"status":     storage.StatusBanned,
		"registered": registered,
	})
}

// Unban removes a witness from the denylist and reactivates its identity
func (h *Handlers) Unban(w http.ResponseWriter, r *http.Request) {
	key, ok := h.witnessParam(w, r)
	if !ok {
		return
	}

	if err := h.store.RemoveFromDenylist(key); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	registered, err := h.setStatus(key, storage.StatusActive)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"witness":    key,
		"status":     storage.StatusActive,
		"registered": registered,
	})
}

// ListSessions returns the live challenge sessions of a witness
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	key, ok := h.witnessParam(w, r)
	if !ok {
		return
	}

	sessions, err := h.store.GetSessionsByWitness(key)
	if err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []storage.ChallengeSession{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"witness":  key,
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (h *Handlers) witnessParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	witness, ok := h.parseWitness(w, chi.URLParam(r, "witness"))
	if !ok {
		return "", false
	}
	return witness.String(), true
}

// setStatus updates the identity status, reporting false if the witness is
// not registered
func (h *Handlers) setStatus(key, status string) (bool, error) {
	err := h.store.UpdateIdentityStatus(key, status)
	if errors.Is(err, storage.ErrIdentityNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
