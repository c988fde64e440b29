package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	orgIDKey      contextKey = "org_id"
	authMethodKey contextKey = "auth_method"
	apiKeyIDKey   contextKey = "api_key_id"
	userIDKey     contextKey = "user_id"
)

// Authorization paths recorded on the request context.
const (
	MethodAPIKey  = "api_key"
	MethodSession = "session"
)

func SetOrgID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, orgIDKey, id)
}

// GetOrgID returns the organization the request was authorized for.
func GetOrgID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(orgIDKey).(uuid.UUID)
	return id, ok
}

func SetUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// GetUserID returns the session user, set only on the session path.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(userIDKey).(uuid.UUID)
	return id, ok
}

func setAuthMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, authMethodKey, method)
}

// GetAuthMethod returns MethodAPIKey or MethodSession.
func GetAuthMethod(r *http.Request) string {
	m, _ := r.Context().Value(authMethodKey).(string)
	return m
}

func SetAPIKeyID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, apiKeyIDKey, id)
}

func getAPIKeyID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(apiKeyIDKey).(uuid.UUID)
	return id, ok
}
