package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	mw "github.com/allsmog/zkpok-go/pkg/middleware"
	"github.com/allsmog/zkpok-go/pkg/storage"
)

const testAdminToken = "admin-secret"

func newAdminRouter(t *testing.T) (http.Handler, *Handlers, *storage.MemoryStore) {
	t.Helper()

	handlers, store, _ := setupTestHandlers(t)

	r := chi.NewRouter()
	handlers.Routes(r)
	r.Route("/admin", func(r chi.Router) {
		r.Use(mw.RequireAdminToken(testAdminToken))
		handlers.AdminRoutes(r)
	})
	return r, handlers, store
}

func serveRequest(h http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var out map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func TestAdminRequiresToken(t *testing.T) {
	router, _, _ := newAdminRouter(t)
	witness := newTestProver(t).hex

	for _, tc := range []struct{ method, path string }{
		{"GET", "/admin/identities"},
		{"GET", "/admin/denylist"},
		{"POST", "/admin/identities/" + witness + "/ban"},
		{"DELETE", "/admin/identities/" + witness + "/ban"},
		{"GET", "/admin/identities/" + witness + "/sessions"},
	} {
		for _, token := range []string{"", "wrong"} {
			rr := serveRequest(router, tc.method, tc.path, token, nil)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("%s %s with token %q: expected 401, got %d", tc.method, tc.path, token, rr.Code)
			}
		}
	}
}

func TestAdminBanUnban(t *testing.T) {
	router, handlers, store := newAdminRouter(t)
	prover := newTestProver(t)
	banPath := "/admin/identities/" + prover.hex + "/ban"

	if rr := serveRequest(router, "POST", "/register", "", RegisterRequest{Witness: prover.hex}); rr.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", rr.Code)
	}
	pending := startChallenge(t, handlers, prover.hex, "")

	t.Run("Ban", func(t *testing.T) {
		rr := serveRequest(router, "POST", banPath, testAdminToken, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if body := decodeBody(t, rr); body["registered"] != true || body["status"] != storage.StatusBanned {
			t.Errorf("unexpected response: %v", body)
		}

		identity, _ := store.GetIdentity(prover.hex)
		if identity.Status != storage.StatusBanned {
			t.Errorf("identity should be banned, got %s", identity.Status)
		}
	})

	t.Run("BannedCannotLogIn", func(t *testing.T) {
		rr := serveRequest(router, "POST", "/auth/zk/challenge", "", ChallengeRequest{Witness: prover.hex})
		if rr.Code != http.StatusForbidden {
			t.Errorf("challenge: expected 403, got %d", rr.Code)
		}

		rr = serveRequest(router, "POST", "/auth/zk/complete", "", CompleteRequest{
			SessionID: pending.SessionID,
			Proof:     proveFor(t, prover, pending.Message),
		})
		if rr.Code != http.StatusForbidden {
			t.Errorf("complete of pending session: expected 403, got %d", rr.Code)
		}
	})

	t.Run("Denylist", func(t *testing.T) {
		rr := serveRequest(router, "GET", "/admin/denylist", testAdminToken, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		body := decodeBody(t, rr)
		witnesses, _ := body["witnesses"].([]interface{})
		if len(witnesses) != 1 || witnesses[0] != prover.hex {
			t.Errorf("unexpected denylist: %v", body)
		}
	})

	t.Run("Sessions", func(t *testing.T) {
		rr := serveRequest(router, "GET", "/admin/identities/"+prover.hex+"/sessions", testAdminToken, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if body := decodeBody(t, rr); body["count"] != float64(1) {
			t.Errorf("expected the pending session, got %v", body)
		}

		other := newTestProver(t).hex
		rr = serveRequest(router, "GET", "/admin/identities/"+other+"/sessions", testAdminToken, nil)
		if body := decodeBody(t, rr); body["count"] != float64(0) {
			t.Errorf("expected no sessions, got %v", body)
		}
	})

	t.Run("Unban", func(t *testing.T) {
		rr := serveRequest(router, "DELETE", banPath, testAdminToken, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		banned, _ := store.IsInDenylist(prover.hex)
		identity, _ := store.GetIdentity(prover.hex)
		if banned || identity.Status != storage.StatusActive {
			t.Errorf("identity should be active again: denylisted=%v status=%s", banned, identity.Status)
		}

		rr = serveRequest(router, "POST", "/auth/zk/complete", "", CompleteRequest{
			SessionID: pending.SessionID,
			Proof:     proveFor(t, prover, pending.Message),
		})
		if rr.Code != http.StatusOK {
			t.Errorf("complete after unban: expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestAdminBanUnregistered(t *testing.T) {
	router, _, _ := newAdminRouter(t)
	prover := newTestProver(t)

	rr := serveRequest(router, "POST", "/admin/identities/"+prover.hex+"/ban", testAdminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["registered"] != false {
		t.Errorf("witness should be reported as unregistered: %v", body)
	}

	rr = serveRequest(router, "POST", "/register", "", RegisterRequest{Witness: prover.hex})
	if rr.Code != http.StatusForbidden {
		t.Errorf("register of banned witness: expected 403, got %d", rr.Code)
	}
}

func TestAdminListIdentities(t *testing.T) {
	router, _, store := newAdminRouter(t)
	for i := 0; i < 3; i++ {
		store.CreateIdentity(newTestProver(t).hex, map[string]string{"n": "x"})
	}

	rr := serveRequest(router, "GET", "/admin/identities", testAdminToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["count"] != float64(3) {
		t.Errorf("expected 3 identities, got %v", body["count"])
	}
}

func TestAdminInvalidWitness(t *testing.T) {
	router, _, _ := newAdminRouter(t)

	for _, witness := range []string{"abcd", "not-a-witness"} {
		rr := serveRequest(router, "POST", "/admin/identities/"+witness+"/ban", testAdminToken, nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("witness %q: expected 400, got %d", witness, rr.Code)
		}
	}
}
