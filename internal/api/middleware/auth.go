package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/carbonledger/internal/api/response"
	"github.com/kiranshivaraju/carbonledger/internal/credential"
	"github.com/kiranshivaraju/carbonledger/internal/metrics"
	"github.com/kiranshivaraju/carbonledger/internal/session"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

// APIKeyHeader selects the API key path whenever it is present on a request.
const APIKeyHeader = "X-Api-Key"

// KeyResolver resolves a raw API key to its record.
type KeyResolver interface {
	Resolve(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// SessionResolver resolves a browser session to an organization.
type SessionResolver interface {
	Resolve(ctx context.Context, sc session.Context) (*session.Resolution, error)
}

// Auth is the authorization gate. Each request is resolved by exactly one path
// and never falls back from one to the other.
type Auth struct {
	keys       KeyResolver
	sessions   SessionResolver
	cookieName string
}

// NewAuth creates the authorization gate.
func NewAuth(keys KeyResolver, sessions SessionResolver, cookieName string) *Auth {
	return &Auth{keys: keys, sessions: sessions, cookieName: cookieName}
}

// Authenticate accepts an API key or a session and sets org_id on the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if values, present := r.Header[APIKeyHeader]; present {
			a.authorizeKey(w, r, next, strings.TrimSpace(strings.Join(values, "")))
			return
		}
		a.authorizeSession(w, r, next)
	})
}

// RequireSession accepts only a browser session. Requests carrying an API key are rejected.
func (a *Auth) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, present := r.Header[APIKeyHeader]; present {
			metrics.AuthOutcomes.WithLabelValues(MethodAPIKey, "forbidden").Inc()
			response.Error(w, http.StatusForbidden,
				"SESSION_REQUIRED", "This endpoint requires a signed-in session")
			return
		}
		a.authorizeSession(w, r, next)
	})
}

func (a *Auth) authorizeKey(w http.ResponseWriter, r *http.Request, next http.Handler, rawKey string) {
	if rawKey == "" {
		metrics.AuthOutcomes.WithLabelValues(MethodAPIKey, "unauthorized").Inc()
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is empty")
		return
	}

	key, err := a.keys.Resolve(r.Context(), rawKey)
	if err != nil {
		if errors.Is(err, credential.ErrInvalidCredential) {
			metrics.AuthOutcomes.WithLabelValues(MethodAPIKey, "forbidden").Inc()
			response.Error(w, http.StatusForbidden, "INVALID_API_KEY", "Invalid API key")
			return
		}
		metrics.AuthOutcomes.WithLabelValues(MethodAPIKey, "error").Inc()
		slog.Error("api key resolution failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate API key")
		return
	}

	metrics.AuthOutcomes.WithLabelValues(MethodAPIKey, "ok").Inc()
	ctx := SetOrgID(r.Context(), key.OrgID)
	ctx = SetAPIKeyID(ctx, key.ID)
	ctx = setAuthMethod(ctx, MethodAPIKey)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (a *Auth) authorizeSession(w http.ResponseWriter, r *http.Request, next http.Handler) {
	res, err := a.sessions.Resolve(r.Context(), session.Context{AccessToken: a.sessionToken(r)})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnauthorized):
			metrics.AuthOutcomes.WithLabelValues(MethodSession, "unauthorized").Inc()
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		case errors.Is(err, session.ErrOrganizationNotFound):
			metrics.AuthOutcomes.WithLabelValues(MethodSession, "forbidden").Inc()
			response.Error(w, http.StatusForbidden, "ORGANIZATION_NOT_FOUND", "Organization not found for user")
		default:
			metrics.AuthOutcomes.WithLabelValues(MethodSession, "error").Inc()
			slog.Error("session resolution failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate session")
		}
		return
	}

	metrics.AuthOutcomes.WithLabelValues(MethodSession, "ok").Inc()
	ctx := SetOrgID(r.Context(), res.OrgID)
	ctx = SetUserID(ctx, res.UserID)
	ctx = setAuthMethod(ctx, MethodSession)
	next.ServeHTTP(w, r.WithContext(ctx))
}

// sessionToken reads the session cookie, or a Bearer token for non-browser session clients.
func (a *Auth) sessionToken(r *http.Request) string {
	if c, err := r.Cookie(a.cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
