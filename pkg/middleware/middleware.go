// Package middleware provides the HTTP middleware used by the verifier
// service: bearer-token checks, request ids, CORS, panic recovery and rate
// limiting.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/allsmog/zkpok-go/pkg/jwt"
)

// ContextKey is used for storing values in context
type ContextKey string

const (
	// JWTClaimsKey is the context key for verified token claims
	JWTClaimsKey ContextKey = "jwt_claims"

	// RequestIDKey is the context key for the request id
	RequestIDKey ContextKey = "request_id"
)

// JWTMiddleware rejects requests that do not carry a valid bearer token for
// expectedAudience and stores the verified claims in the request context
func JWTMiddleware(verifier jwt.TokenVerifier, expectedAudience string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "missing Authorization header", http.StatusUnauthorized)
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				http.Error(w, "invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(authHeader, bearerPrefix)

			claims, err := verifier.Verify(token, expectedAudience)
			if err != nil {
				http.Error(w, fmt.Sprintf("JWT verification failed: %v", err), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), JWTClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetJWTClaims extracts JWT claims from request context
func GetJWTClaims(r *http.Request) (*jwt.Claims, bool) {
	claims, ok := r.Context().Value(JWTClaimsKey).(*jwt.Claims)
	return claims, ok
}

// requireZK wraps next with a check on the token's zk claim
func requireZK(check func(*jwt.ZKClaims) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := GetJWTClaims(r)
			if !ok {
				http.Error(w, "JWT claims required", http.StatusInternalServerError)
				return
			}

			if claims.ZK == nil {
				http.Error(w, "JWT missing ZK claims", http.StatusForbidden)
				return
			}

			if err := check(claims.ZK); err != nil {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireZKScheme ensures the token was minted after a proof of the given scheme
func RequireZKScheme(expectedScheme string) func(http.Handler) http.Handler {
	return requireZK(func(zk *jwt.ZKClaims) error {
		if zk.Scheme != expectedScheme {
			return fmt.Errorf("invalid ZK scheme: expected %s, got %s", expectedScheme, zk.Scheme)
		}
		return nil
	})
}

// RequireGroup ensures the token was minted for a proof over the given group
func RequireGroup(expectedGroup string) func(http.Handler) http.Handler {
	return requireZK(func(zk *jwt.ZKClaims) error {
		if zk.Group != expectedGroup {
			return fmt.Errorf("invalid group: expected %s, got %s", expectedGroup, zk.Group)
		}
		return nil
	})
}

// RequireAdminToken rejects requests whose bearer token is not the shared
// admin secret. An empty secret rejects everything.
func RequireAdminToken(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, "admin token required", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CORS middleware for development
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestID propagates X-Request-ID, assigning a random UUID when absent
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request id set by RequestID
func GetRequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDKey).(string)
	return id
}

// Recovery middleware recovers from panics
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
