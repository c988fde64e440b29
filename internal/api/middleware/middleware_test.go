package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/carbonledger/internal/api/middleware"
	"github.com/kiranshivaraju/carbonledger/internal/credential"
	"github.com/kiranshivaraju/carbonledger/internal/session"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock resolvers ---

type mockKeys struct {
	key   *models.APIKey
	err   error
	calls int
	got   string
}

func (m *mockKeys) Resolve(_ context.Context, raw string) (*models.APIKey, error) {
	m.calls++
	m.got = raw
	return m.key, m.err
}

type mockSessions struct {
	res   *session.Resolution
	err   error
	calls int
	got   session.Context
}

func (m *mockSessions) Resolve(_ context.Context, sc session.Context) (*session.Resolution, error) {
	m.calls++
	m.got = sc
	return m.res, m.err
}

// --- Mock Cache ---

type mockCache struct {
	counter int64
	err     error
	key     string
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Delete(_ context.Context, _ string) error                          { return nil }
func (m *mockCache) Ping(_ context.Context) error                                      { return nil }
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.key = key
	m.counter++
	return m.counter, m.err
}

// --- helpers ---

const cookieName = "sb-access-token"

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ========================================
// Authorization gate: API key path
// ========================================

func TestAuth_ValidKey(t *testing.T) {
	orgID, keyID := uuid.New(), uuid.New()
	keys := &mockKeys{key: &models.APIKey{ID: keyID, OrgID: orgID}}
	sessions := &mockSessions{}
	auth := mw.NewAuth(keys, sessions, cookieName)

	var gotOrg uuid.UUID
	var gotMethod string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg, _ = mw.GetOrgID(r)
		gotMethod = mw.GetAuthMethod(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.Header.Set("x-api-key", "sk_live_abc")
	w := serve(auth.Authenticate(inner), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orgID, gotOrg)
	assert.Equal(t, mw.MethodAPIKey, gotMethod)
	assert.Equal(t, "sk_live_abc", keys.got)
	assert.Zero(t, sessions.calls)
}

func TestAuth_InvalidKey_403_NoSessionFallback(t *testing.T) {
	keys := &mockKeys{err: credential.ErrInvalidCredential}
	sessions := &mockSessions{res: &session.Resolution{OrgID: uuid.New()}}
	auth := mw.NewAuth(keys, sessions, cookieName)

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.Header.Set("x-api-key", "sk_live_unknown")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "valid-session"})
	w := serve(auth.Authenticate(okHandler()), req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	body := errBody(t, w)
	assert.Equal(t, "INVALID_API_KEY", body["code"])
	assert.NotEmpty(t, body["error"])
	assert.Zero(t, sessions.calls)
}

func TestAuth_EmptyKeyHeader_401(t *testing.T) {
	keys := &mockKeys{}
	sessions := &mockSessions{res: &session.Resolution{OrgID: uuid.New()}}
	auth := mw.NewAuth(keys, sessions, cookieName)

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.Header.Set("x-api-key", "")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "valid-session"})
	w := serve(auth.Authenticate(okHandler()), req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, keys.calls)
	assert.Zero(t, sessions.calls)
}

func TestAuth_KeyResolverError_500(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{err: errors.New("db down")}, &mockSessions{}, cookieName)

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.Header.Set("x-api-key", "sk_live_abc")
	w := serve(auth.Authenticate(okHandler()), req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

// ========================================
// Authorization gate: session path
// ========================================

func TestAuth_SessionCookie(t *testing.T) {
	orgID, userID := uuid.New(), uuid.New()
	keys := &mockKeys{}
	sessions := &mockSessions{res: &session.Resolution{OrgID: orgID, UserID: userID, Source: session.SourceProfile}}
	auth := mw.NewAuth(keys, sessions, cookieName)

	var gotOrg, gotUser uuid.UUID
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOrg, _ = mw.GetOrgID(r)
		gotUser, _ = mw.GetUserID(r)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "session-token"})
	w := serve(auth.Authenticate(inner), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orgID, gotOrg)
	assert.Equal(t, userID, gotUser)
	assert.Equal(t, "session-token", sessions.got.AccessToken)
	assert.Zero(t, keys.calls)
}

func TestAuth_SessionBearerToken(t *testing.T) {
	sessions := &mockSessions{res: &session.Resolution{OrgID: uuid.New()}}
	auth := mw.NewAuth(&mockKeys{}, sessions, cookieName)

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	w := serve(auth.Authenticate(okHandler()), req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "header-token", sessions.got.AccessToken)
}

func TestAuth_NoCredentials_401(t *testing.T) {
	sessions := &mockSessions{err: session.ErrUnauthorized}
	auth := mw.NewAuth(&mockKeys{}, sessions, cookieName)

	w := serve(auth.Authenticate(okHandler()), httptest.NewRequest("GET", "/analytics", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthorized", errBody(t, w)["error"])
	assert.Equal(t, "", sessions.got.AccessToken)
}

func TestAuth_SessionWithoutOrganization_403(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{err: session.ErrOrganizationNotFound}, cookieName)

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "tok"})
	w := serve(auth.Authenticate(okHandler()), req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "ORGANIZATION_NOT_FOUND", errBody(t, w)["code"])
}

func TestAuth_SessionResolverError_500(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{err: errors.New("provider down")}, cookieName)

	req := httptest.NewRequest("GET", "/analytics", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "tok"})
	w := serve(auth.Authenticate(okHandler()), req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireSession_RejectsAPIKey(t *testing.T) {
	keys := &mockKeys{key: &models.APIKey{ID: uuid.New(), OrgID: uuid.New()}}
	sessions := &mockSessions{res: &session.Resolution{OrgID: uuid.New()}}
	auth := mw.NewAuth(keys, sessions, cookieName)

	req := httptest.NewRequest("POST", "/keys/generate", nil)
	req.Header.Set("x-api-key", "sk_live_abc")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "tok"})
	w := serve(auth.RequireSession(okHandler()), req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, keys.calls)
	assert.Zero(t, sessions.calls)
}

func TestRequireSession_AcceptsSession(t *testing.T) {
	auth := mw.NewAuth(&mockKeys{}, &mockSessions{res: &session.Resolution{OrgID: uuid.New()}}, cookieName)

	req := httptest.NewRequest("POST", "/keys/generate", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "tok"})
	w := serve(auth.RequireSession(okHandler()), req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func withKeyID(req *http.Request, id uuid.UUID) *http.Request {
	return req.WithContext(mw.SetAPIKeyID(req.Context(), id))
}

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{counter: 0}
	rl := mw.NewRateLimit(mc, 60)
	keyID := uuid.New()

	w := serve(rl.Limit(okHandler()), withKeyID(httptest.NewRequest("GET", "/test", nil), keyID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Contains(t, mc.key, keyID.String())
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWithExpiry will return 61
	rl := mw.NewRateLimit(mc, 60)

	w := serve(rl.Limit(okHandler()), withKeyID(httptest.NewRequest("GET", "/test", nil), uuid.New()))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("redis down")}
	rl := mw.NewRateLimit(mc, 1)

	w := serve(rl.Limit(okHandler()), withKeyID(httptest.NewRequest("GET", "/test", nil), uuid.New()))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimit_SessionPassThrough(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60)

	w := serve(rl.Limit(okHandler()), httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, mc.counter)
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	w := serve(mw.Recovery(panicking), httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := errBody(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.NotContains(t, w.Body.String(), "something went wrong")
}

func TestRecovery_LogsRequestID(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("boom")
	})
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-42")

	w := serve(chimw.RequestID(mw.Recovery(panicking)), req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "panic recovered", entry["msg"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "boom", entry["panic"])
}

func TestRecovery_NoPanic(t *testing.T) {
	w := serve(mw.Recovery(okHandler()), httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging / Metrics Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	w := serve(mw.Logger(okHandler()), httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetrics_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(mw.Metrics)
	r.Get("/entries/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	w := serve(r, httptest.NewRequest("GET", "/entries/123", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)
}

// ========================================
// Content-Type / Timeout Middleware Tests
// ========================================

func TestRequireJSON(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{"json", "application/json", `{}`, http.StatusOK},
		{"json with charset", "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"upper case", "Application/JSON", `{}`, http.StatusOK},
		{"plain text", "text/plain", `{}`, http.StatusUnsupportedMediaType},
		{"form", "application/x-www-form-urlencoded", `a=1`, http.StatusUnsupportedMediaType},
		{"missing with body", "", `{}`, http.StatusUnsupportedMediaType},
		{"no body", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/calculate", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := serve(mw.RequireJSON(okHandler()), req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusUnsupportedMediaType {
				body := errBody(t, w)
				assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", body["code"])
				assert.NotEmpty(t, body["error"])
			}
		})
	}
}

func TestTimeout_FastHandlerUnaffected(t *testing.T) {
	w := serve(mw.Timeout(time.Second)(okHandler()), httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestTimeout_HandlerSeesDeadline(t *testing.T) {
	var hasDeadline bool
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
		w.WriteHeader(http.StatusNoContent)
	})

	w := serve(mw.Timeout(time.Second)(h), httptest.NewRequest("GET", "/test", nil))

	assert.True(t, hasDeadline)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTimeout_ReplacesLateErrorResponse(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"store call cancelled","code":"INTERNAL_ERROR"}`))
	})

	w := serve(mw.Timeout(10*time.Millisecond)(h), httptest.NewRequest("GET", "/analytics", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	body := errBody(t, w)
	assert.Equal(t, "TIMEOUT", body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestTimeout_SilentHandlerGetsTimeoutBody(t *testing.T) {
	h := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	w := serve(mw.Timeout(10*time.Millisecond)(h), httptest.NewRequest("GET", "/analytics", nil))

	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, "TIMEOUT", errBody(t, w)["code"])
}
