package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/carbonledger/internal/identity"
)

const authErrorRedirect = "/login?error=auth_code_error"

// CodeExchanger defines the interface the auth callback depends on.
type CodeExchanger interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*identity.Session, error)
}

// CallbackConfig controls the session cookie written after a successful exchange.
type CallbackConfig struct {
	CookieName string
	Secure     bool
}

// NewAuthCallbackHandler returns an http.HandlerFunc for GET /auth/callback.
// It exchanges ?code= for a session, sets the session cookie and redirects to
// ?next= (default "/"). Failures redirect to the login page with an error flag.
func NewAuthCallbackHandler(ex CodeExchanger, cfg CallbackConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		code := strings.TrimSpace(params.Get("code"))
		next := safeRedirect(params.Get("next"))

		if code == "" {
			http.Redirect(w, r, authErrorRedirect, http.StatusFound)
			return
		}

		verifier := params.Get("code_verifier")
		if verifier == "" {
			if c, err := r.Cookie(cfg.CookieName + "-code-verifier"); err == nil {
				verifier = c.Value
			}
		}

		sess, err := ex.ExchangeCode(r.Context(), code, verifier)
		if err != nil {
			slog.Warn("auth code exchange failed", "error", err)
			http.Redirect(w, r, authErrorRedirect, http.StatusFound)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     cfg.CookieName,
			Value:    sess.AccessToken,
			Path:     "/",
			MaxAge:   sess.ExpiresIn,
			HttpOnly: true,
			Secure:   cfg.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		slog.Info("session established", "user_id", sess.User.ID)
		http.Redirect(w, r, next, http.StatusFound)
	}
}

// safeRedirect only allows same-origin relative paths.
func safeRedirect(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
