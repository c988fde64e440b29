// Package identity talks to the identity provider that issues browser sessions.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for identity provider failures.
var (
	ErrInvalidSession      = errors.New("invalid or expired session")
	ErrExchangeFailed      = errors.New("auth code exchange failed")
	ErrProviderUnreachable = errors.New("identity provider unreachable")
	ErrProviderTimeout     = errors.New("identity provider timeout")
)

// User is the authenticated principal behind a session.
type User struct {
	ID       uuid.UUID
	Email    string
	Metadata map[string]any
}

// OrgClaim returns the org_id claim from the user's metadata when present and well-formed.
func (u *User) OrgClaim() (uuid.UUID, bool) {
	raw, ok := u.Metadata["org_id"].(string)
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Session is the result of exchanging an auth code.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	User         User
}

// Provider validates sessions and exchanges auth codes for them.
type Provider interface {
	GetUser(ctx context.Context, accessToken string) (*User, error)
	ExchangeCode(ctx context.Context, code, verifier string) (*Session, error)
}

// HTTPClient implements Provider against a GoTrue-compatible auth REST API.
type HTTPClient struct {
	baseURL string
	anonKey string
	client  *http.Client
}

// NewHTTPClient creates a new identity provider HTTP client.
func NewHTTPClient(baseURL, anonKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		anonKey: anonKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, ErrInvalidSession
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidSession
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrProviderUnreachable, resp.StatusCode)
	}

	var u userResponse
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decoding user response: %w", err)
	}
	return u.toUser()
}

func (c *HTTPClient) ExchangeCode(ctx context.Context, code, verifier string) (*Session, error) {
	body, err := json.Marshal(map[string]string{
		"auth_code":     code,
		"code_verifier": verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding exchange request: %w", err)
	}

	u := c.baseURL + "/auth/v1/token?" + url.Values{"grant_type": {"pkce"}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrExchangeFailed, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", ErrExchangeFailed)
	}

	user, err := tr.User.toUser()
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
		User:         *user,
	}, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	if c.anonKey != "" {
		req.Header.Set("apikey", c.anonKey)
	}
	req.Header.Set("Accept", "application/json")
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
}

// --- provider response types ---

type userResponse struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (r userResponse) toUser() (*User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed user id", ErrInvalidSession)
	}
	return &User{ID: id, Email: r.Email, Metadata: r.UserMetadata}, nil
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         userResponse `json:"user"`
}

// Compile-time check that HTTPClient implements Provider.
var _ Provider = (*HTTPClient)(nil)
