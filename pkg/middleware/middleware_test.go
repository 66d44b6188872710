package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	zkjwt "github.com/allsmog/zkpok-go/pkg/jwt"
)

const testIssuer = "https://auth.example.com"

func newTestSigner(t *testing.T) *zkjwt.ES256Signer {
	t.Helper()

	privateKey, err := zkjwt.GenerateES256KeyPair()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	signer, err := zkjwt.NewES256Signer(privateKey, "test-key", testIssuer)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	return signer
}

func createTestJWT(t *testing.T, signer zkjwt.TokenSigner, audience string, zk map[string]interface{}) string {
	t.Helper()

	claims := map[string]interface{}{
		"iss": testIssuer,
		"sub": "test-subject",
		"aud": audience,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if zk != nil {
		claims["zk"] = zk
	}

	token, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("failed to sign JWT: %v", err)
	}
	return token
}

func defaultZK() map[string]interface{} {
	return map[string]interface{}{
		"scheme": zkjwt.SchemeSchnorrNIZK,
		"grp":    "ristretto255",
		"r_hash": "cmhhc2g",
		"msg":    "bXNn",
		"ts":     time.Now().UTC().Format(time.RFC3339),
	}
}

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestJWTMiddleware(t *testing.T) {
	signer := newTestSigner(t)
	verifier := zkjwt.NewJWTVerifier(signer.JWKS(), testIssuer)
	mw := JWTMiddleware(verifier, "test-audience")

	t.Run("ValidJWT", func(t *testing.T) {
		token := createTestJWT(t, signer, "test-audience", defaultZK())

		req := httptest.NewRequest("GET", "https://api.example.com/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetJWTClaims(r)
			if !ok {
				t.Fatal("JWT claims should be in context")
			}

			if claims.Subject != "test-subject" {
				t.Errorf("wrong subject: %s", claims.Subject)
			}

			if claims.ZK == nil || claims.ZK.Scheme != zkjwt.SchemeSchnorrNIZK {
				t.Error("ZK claims mismatch")
			}

			w.WriteHeader(http.StatusOK)
		})

		if rr := serve(mw(handler), req); rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("MissingAuthorization", func(t *testing.T) {
		req := httptest.NewRequest("GET", "https://api.example.com/test", nil)

		if rr := serve(mw(okHandler), req); rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("InvalidAuthorizationFormat", func(t *testing.T) {
		req := httptest.NewRequest("GET", "https://api.example.com/test", nil)
		req.Header.Set("Authorization", "Basic dGVzdA==")

		if rr := serve(mw(okHandler), req); rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("ExpiredJWT", func(t *testing.T) {
		token, err := signer.Sign(map[string]interface{}{
			"iss": testIssuer,
			"sub": "test-subject",
			"aud": "test-audience",
			"iat": time.Now().Add(-2 * time.Hour).Unix(),
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		if err != nil {
			t.Fatalf("failed to create expired JWT: %v", err)
		}

		req := httptest.NewRequest("GET", "https://api.example.com/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		if rr := serve(mw(okHandler), req); rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})

	t.Run("WrongAudience", func(t *testing.T) {
		token := createTestJWT(t, signer, "wrong-audience", defaultZK())

		req := httptest.NewRequest("GET", "https://api.example.com/test", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		if rr := serve(mw(okHandler), req); rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rr.Code)
		}
	})
}

// withClaims runs the JWT middleware for a token carrying zk, then next.
func withClaims(t *testing.T, zk map[string]interface{}, next http.Handler) *httptest.ResponseRecorder {
	t.Helper()

	signer := newTestSigner(t)
	verifier := zkjwt.NewJWTVerifier(signer.JWKS(), testIssuer)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+createTestJWT(t, signer, "aud", zk))

	return serve(JWTMiddleware(verifier, "aud")(next), req)
}

func TestRequireZKScheme(t *testing.T) {
	mw := RequireZKScheme(zkjwt.SchemeSchnorrNIZK)

	t.Run("ValidScheme", func(t *testing.T) {
		if rr := withClaims(t, defaultZK(), mw(okHandler)); rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("MissingZKClaims", func(t *testing.T) {
		if rr := withClaims(t, nil, mw(okHandler)); rr.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("WrongScheme", func(t *testing.T) {
		zk := defaultZK()
		zk["scheme"] = "schnorr-id"

		if rr := withClaims(t, zk, mw(okHandler)); rr.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rr.Code)
		}
	})

	t.Run("NoJWTMiddleware", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		if rr := serve(mw(okHandler), req); rr.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rr.Code)
		}
	})
}

func TestRequireGroup(t *testing.T) {
	mw := RequireGroup("ristretto255")

	t.Run("ValidGroup", func(t *testing.T) {
		if rr := withClaims(t, defaultZK(), mw(okHandler)); rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("WrongGroup", func(t *testing.T) {
		zk := defaultZK()
		zk["grp"] = "secp256k1"

		rr := withClaims(t, zk, mw(okHandler))
		if rr.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "invalid group") {
			t.Errorf("unexpected body: %s", rr.Body.String())
		}
	})
}

func TestRequireAdminToken(t *testing.T) {
	guarded := RequireAdminToken("s3cret")(okHandler)

	request := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/admin/identities/x/ban", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		return serve(guarded, req)
	}

	t.Run("ValidToken", func(t *testing.T) {
		if rr := request("Bearer s3cret"); rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		for _, header := range []string{"", "Bearer wrong", "Bearer s3cret2", "Basic s3cret", "s3cret"} {
			rr := request(header)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("header %q: expected 401, got %d", header, rr.Code)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Errorf("header %q: missing WWW-Authenticate", header)
			}
		}
	})

	t.Run("EmptySecret", func(t *testing.T) {
		open := RequireAdminToken("")(okHandler)
		req := httptest.NewRequest("GET", "/admin/stats", nil)
		req.Header.Set("Authorization", "Bearer ")

		if rr := serve(open, req); rr.Code != http.StatusUnauthorized {
			t.Errorf("expected 401 with an empty secret, got %d", rr.Code)
		}
	})
}

func TestUtilityMiddleware(t *testing.T) {
	t.Run("CORS", func(t *testing.T) {
		rr := serve(CORS(okHandler), httptest.NewRequest("GET", "/test", nil))

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		if origin := rr.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
			t.Errorf("expected CORS origin *, got %s", origin)
		}

		if headers := rr.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(headers, "Authorization") {
			t.Errorf("expected Authorization in allowed headers, got %s", headers)
		}
	})

	t.Run("CORSOptions", func(t *testing.T) {
		rr := serve(CORS(okHandler), httptest.NewRequest("OPTIONS", "/test", nil))

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}

		if body := rr.Body.String(); body != "" {
			t.Error("OPTIONS should not call next handler")
		}
	})

	t.Run("RequestID", func(t *testing.T) {
		var seen string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r)
		}))

		rr := serve(handler, httptest.NewRequest("GET", "/test", nil))

		requestID := rr.Header().Get("X-Request-ID")
		if _, err := uuid.Parse(requestID); err != nil {
			t.Errorf("generated request ID is not a UUID: %q", requestID)
		}
		if seen != requestID {
			t.Errorf("context request ID %q does not match header %q", seen, requestID)
		}
	})

	t.Run("RequestIDExisting", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "test-request-123")

		rr := serve(RequestID(okHandler), req)

		if requestID := rr.Header().Get("X-Request-ID"); requestID != "test-request-123" {
			t.Errorf("expected request ID test-request-123, got %s", requestID)
		}
	})

	t.Run("Recovery", func(t *testing.T) {
		panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		})

		rr := serve(Recovery(panicHandler), httptest.NewRequest("GET", "/test", nil))

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500 after panic, got %d", rr.Code)
		}

		if body := rr.Body.String(); !strings.Contains(body, "Internal Server Error") {
			t.Errorf("expected error message, got %s", body)
		}
	})

	t.Run("RecoveryNoPanic", func(t *testing.T) {
		rr := serve(Recovery(okHandler), httptest.NewRequest("GET", "/test", nil))

		if body := rr.Body.String(); body != "OK" {
			t.Errorf("expected OK, got %s", body)
		}
	})
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	counter := 0
	handler := RateLimit(ctx, RateLimitConfig{Requests: 2, Window: time.Minute})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			counter++
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest("GET", "/rate", nil)
	req.RemoteAddr = "192.0.2.1:1234"

	for i := 0; i < 2; i++ {
		if rr := serve(handler, req); rr.Code != http.StatusOK {
			t.Fatalf("expected request %d to succeed, got %d", i+1, rr.Code)
		}
	}

	rr := serve(handler, req)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit to trigger, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	if counter != 2 {
		t.Fatalf("expected handler to execute twice, ran %d times", counter)
	}

	other := httptest.NewRequest("GET", "/rate", nil)
	other.RemoteAddr = "192.0.2.2:1234"
	if rr := serve(handler, other); rr.Code != http.StatusOK {
		t.Errorf("other client should not be limited, got %d", rr.Code)
	}
}

func TestRateLimitForwardedFor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newReq := func(xff string) *http.Request {
		req := httptest.NewRequest("GET", "/rate", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req.Header.Set("X-Forwarded-For", xff)
		return req
	}

	t.Run("Untrusted", func(t *testing.T) {
		handler := RateLimit(ctx, RateLimitConfig{Requests: 1, Window: time.Minute})(okHandler)

		serve(handler, newReq("198.51.100.1"))
		if rr := serve(handler, newReq("198.51.100.2")); rr.Code != http.StatusTooManyRequests {
			t.Errorf("spoofed X-Forwarded-For should not bypass limit, got %d", rr.Code)
		}
	})

	t.Run("Trusted", func(t *testing.T) {
		handler := RateLimit(ctx, RateLimitConfig{Requests: 1, Window: time.Minute, TrustForwardedFor: true})(okHandler)

		serve(handler, newReq("198.51.100.1, 10.0.0.1"))
		if rr := serve(handler, newReq("198.51.100.2, 10.0.0.1")); rr.Code != http.StatusOK {
			t.Errorf("distinct forwarded clients should be limited separately, got %d", rr.Code)
		}
		if rr := serve(handler, newReq("198.51.100.1")); rr.Code != http.StatusTooManyRequests {
			t.Errorf("repeat forwarded client should be limited, got %d", rr.Code)
		}
	})
}

func TestRateLimitSweep(t *testing.T) {
	rl := &rateLimiter{visitors: make(map[string]*visitor), limit: 1, burst: 1, window: time.Minute}

	rl.getLimiter("stale")
	rl.getLimiter("fresh")
	rl.visitors["stale"].lastSeen = time.Now().Add(-2 * time.Minute)

	rl.sweep(time.Now().Add(-time.Minute))

	if _, ok := rl.visitors["stale"]; ok {
		t.Error("stale visitor should be swept")
	}
	if _, ok := rl.visitors["fresh"]; !ok {
		t.Error("fresh visitor should be kept")
	}
}
