package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/allsmog/zkpok-go/pkg/auth"
	"github.com/allsmog/zkpok-go/pkg/crypto/curve"
	"github.com/allsmog/zkpok-go/pkg/crypto/pow"
	"github.com/allsmog/zkpok-go/pkg/crypto/random"
	"github.com/allsmog/zkpok-go/pkg/crypto/schnorr"
	"github.com/allsmog/zkpok-go/pkg/jwt"
	mw "github.com/allsmog/zkpok-go/pkg/middleware"
	"github.com/allsmog/zkpok-go/pkg/storage"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "Server address")
		keyFile    = flag.String("key", "keys/jwt-signing.pem", "JWT signing key file")
		configFile = flag.String("config", "keys/jwt-config.json", "JWT config file")
		issuer     = flag.String("issuer", "https://auth.zkpok.example", "JWT issuer")
		audience   = flag.String("audience", "zkpok-api", "Default JWT audience")
		tokenTTL   = flag.Duration("token-ttl", 5*time.Minute, "JWT token TTL")
		sessionTTL = flag.Duration("session-ttl", storage.DefaultSessionTTL, "Challenge session TTL")
		rateLimit  = flag.Int("rate-limit", 120, "Max requests per minute per client")
		trustProxy = flag.Bool("trust-proxy", false, "Key rate limiting on X-Forwarded-For")
		hashName   = flag.String("hash", "sha512", "Challenge hash (sha512|sha3-512|blake2b-512)")
		adminToken = flag.String("admin-token", os.Getenv("ZKPOKD_ADMIN_TOKEN"), "Bearer secret for /admin (empty disables /admin)")
		powBits    = flag.Uint("pow-difficulty", 0, "Registration proof-of-work difficulty in bits (0 disables)")
		powSpace   = flag.Uint("pow-space", uint(pow.DefaultParams.SpaceCost), "Registration puzzle Balloon space cost in blocks")
	)
	flag.Parse()

	log.Println("Starting zkpok verifier...")

	hashFn, err := curve.HashFromName(*hashName)
	if err != nil {
		log.Fatalf("Unsupported hash %q: %v", *hashName, err)
	}
	scheme := schnorr.New(schnorr.WithHash(hashFn))
	log.Printf("Group: %s, challenge hash: %s", curve.Name, *hashName)
	log.Printf("Rate limit: %d requests/minute per client", *rateLimit)

	powParams := pow.DefaultParams
	powParams.SpaceCost = uint32(*powSpace)
	if *powBits > 0 {
		if _, err := pow.NewPuzzle(nil, powParams, uint32(*powBits)); err != nil {
			log.Fatalf("Invalid registration puzzle: %v", err)
		}
		log.Printf("Registration puzzle: %d bits, %d bytes per hash", *powBits, powParams.Memory())
	}

	store := storage.NewMemoryStore(*sessionTTL)
	defer store.Close()
	log.Println("Initialized in-memory storage")

	signer := loadSigner(*keyFile, *configFile, *issuer)
	log.Printf("Loaded JWT signer with algorithm: %s", signer.Algorithm())

	handlers := auth.NewHandlers(store, scheme, signer, random.System, auth.Config{
		Issuer:     *issuer,
		Audience:   *audience,
		TokenTTL:   *tokenTTL,
		SessionTTL: *sessionTTL,

		PoWDifficulty: uint32(*powBits),
		PoWParams:     powParams,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(mw.RateLimit(ctx, mw.RateLimitConfig{
		Requests:          *rateLimit,
		Window:            time.Minute,
		TrustForwardedFor: *trustProxy,
	}))
	r.Use(mw.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		code := http.StatusOK
		if err := store.Ping(); err != nil {
			status, code = "unavailable", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]string{"status": status, "service": "zkpokd"})
	})

	handlers.Routes(r)

	if *adminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(mw.RequireAdminToken(*adminToken))

			r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]interface{}{"storage": store.Stats()})
			})

			handlers.AdminRoutes(r)
		})
	} else {
		log.Println("Admin endpoints disabled: no -admin-token")
	}

	verifier := jwt.NewJWTVerifier(signer.JWKS(), *issuer)
	r.Route("/api", func(r chi.Router) {
		r.Use(mw.JWTMiddleware(verifier, *audience))
		r.Use(mw.RequireZKScheme(jwt.SchemeSchnorrNIZK))
		r.Use(mw.RequireGroup(curve.Name))

		r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
			claims, ok := mw.GetJWTClaims(r)
			if !ok {
				http.Error(w, "Missing JWT claims", http.StatusInternalServerError)
				return
			}

			writeJSON(w, http.StatusOK, map[string]interface{}{
				"subject":    claims.Subject,
				"audience":   claims.Audience,
				"issued_at":  claims.IssuedAt,
				"expires_at": claims.ExpiresAt,
				"zk":         claims.ZK,
			})
		})
	})

	log.Printf("Issuer: %s", *issuer)
	log.Printf("Audience: %s", *audience)
	log.Printf("Token TTL: %v", *tokenTTL)
	log.Printf("Session TTL: %v", *sessionTTL)
	log.Println("Endpoints:")
	log.Println("  POST /register               - Register a witness")
	log.Println("  GET  /register/pow           - Registration puzzle parameters")
	log.Println("  POST /auth/zk/challenge      - Start login, returns message to prove over")
	log.Println("  POST /auth/zk/complete       - Submit proof, returns access token")
	log.Println("  GET  /.well-known/jwks.json  - JWT signing keys")
	log.Println("  GET  /health                 - Health check")
	log.Println("  GET  /admin/stats            - Storage stats (admin)")
	log.Println("  GET  /admin/identities       - Registered witnesses (admin)")
	log.Println("  GET  /admin/denylist         - Banned witnesses (admin)")
	log.Println("  POST /admin/identities/{w}/ban, DELETE to unban (admin)")
	log.Println("  GET  /admin/identities/{w}/sessions (admin)")
	log.Println("  GET  /api/whoami             - Token introspection (bearer)")

	srv := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed: %v", err)
	}
	log.Println("Server stopped")
}

func loadSigner(keyFile, configFile, issuer string) *jwt.ES256Signer {
	for _, dir := range []string{filepath.Dir(keyFile), filepath.Dir(configFile)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			log.Fatalf("Failed to create key directory: %v", err)
		}
	}

	signer, generated, err := jwt.LoadOrGenerateSigner("auth-key-1", issuer, keyFile, configFile)
	if err != nil {
		log.Fatalf("Failed to create JWT signer: %v", err)
	}
	if generated {
		log.Printf("Generated new key pair: %s, %s", keyFile, configFile)
	}
	return signer
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
