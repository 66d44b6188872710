package auth

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the authentication endpoints on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Get("/register/pow", h.PoW)

	r.Route("/auth/zk", func(r chi.Router) {
		r.Post("/challenge", h.Challenge)
		r.Post("/complete", h.Complete)
	})

	r.Get("/.well-known/jwks.json", h.JWKS)
}

// AdminRoutes mounts the moderation endpoints on r. They are not
// authenticated here; callers mount them behind an admin guard.
func (h *Handlers) AdminRoutes(r chi.Router) {
	r.Get("/identities", h.ListIdentities)
	r.Get("/denylist", h.ListDenylist)

	r.Route("/identities/{witness}", func(r chi.Router) {
		r.Post("/ban", h.Ban)
		r.Delete("/ban", h.Unban)
		r.Get("/sessions", h.ListSessions)
	})
}
