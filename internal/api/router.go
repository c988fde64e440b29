package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/carbonledger/internal/api/middleware"
	"github.com/kiranshivaraju/carbonledger/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth           *mw.Auth
	RateLimit      *mw.RateLimit
	RequestTimeout time.Duration

	MetricsHandler      http.Handler
	HealthHandler       http.HandlerFunc
	AuthCallbackHandler http.HandlerFunc
	FactorsHandler      http.HandlerFunc
	AnalyticsHandler    http.HandlerFunc
	CalculateHandler    http.HandlerFunc
	DeleteEntryHandler  http.HandlerFunc
	GenerateKeyHandler  http.HandlerFunc
	ListKeysHandler     http.HandlerFunc
	RevokeKeyHandler    http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
// Every route is served at the root and again under /api.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	if deps.RequestTimeout > 0 {
		r.Use(mw.Timeout(deps.RequestTimeout))
	}

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Get("/auth/callback", orNotImplemented(deps.AuthCallbackHandler))

	routes := func(r chi.Router) {
		// Public reference data
		r.Get("/factors", orNotImplemented(deps.FactorsHandler))

		// API key or session
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)
			r.Use(deps.RateLimit.Limit)

			r.Get("/analytics", orNotImplemented(deps.AnalyticsHandler))
			r.With(mw.RequireJSON).Post("/calculate", orNotImplemented(deps.CalculateHandler))
			r.Delete("/entries", orNotImplemented(deps.DeleteEntryHandler))
		})

		// Session only
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireSession)

			r.Post("/keys/generate", orNotImplemented(deps.GenerateKeyHandler))
			r.Get("/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	}
	routes(r)
	r.Route("/api", routes)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented")
	}
}
