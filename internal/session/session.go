// Package session resolves a browser session to the organization it acts for.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/identity"
	"github.com/kiranshivaraju/carbonledger/internal/store"
)

var (
	ErrUnauthorized         = errors.New("no valid session")
	ErrOrganizationNotFound = errors.New("no organization found for user")
)

// Source names which signal produced the organization.
type Source string

const (
	SourceMetadata Source = "metadata"
	SourceAPIKey   Source = "api_key"
	SourceProfile  Source = "profile"
)

// Context carries the request's session state explicitly.
type Context struct {
	AccessToken string
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	UserID uuid.UUID
	OrgID  uuid.UUID
	Source Source
}

// Resolver implements the organization fallback chain for sessions:
// metadata claim, then the user's most recent live API key, then the profile.
type Resolver struct {
	provider identity.Provider
	store    store.Store
	timeout  time.Duration
}

// NewResolver creates a session resolver.
func NewResolver(p identity.Provider, s store.Store, timeout time.Duration) *Resolver {
	return &Resolver{provider: p, store: s, timeout: timeout}
}

// Resolve validates the session and returns the organization it maps to.
func (r *Resolver) Resolve(ctx context.Context, sc Context) (*Resolution, error) {
	if sc.AccessToken == "" {
		return nil, ErrUnauthorized
	}

	user, err := r.provider.GetUser(ctx, sc.AccessToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidSession) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("validating session: %w", err)
	}

	if orgID, ok := user.OrgClaim(); ok {
		return &Resolution{UserID: user.ID, OrgID: orgID, Source: SourceMetadata}, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	key, err := r.store.GetLatestAPIKeyForUser(ctx, user.ID)
	switch {
	case err == nil:
		return &Resolution{UserID: user.ID, OrgID: key.OrgID, Source: SourceAPIKey}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("looking up keys for user: %w", err)
	}

	profile, err := r.store.GetProfile(ctx, user.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.Debug("session user has no profile", "user_id", user.ID)
		return nil, ErrOrganizationNotFound
	case err != nil:
		return nil, fmt.Errorf("looking up profile: %w", err)
	case profile.OrgID == nil:
		return nil, ErrOrganizationNotFound
	}
	return &Resolution{UserID: user.ID, OrgID: *profile.OrgID, Source: SourceProfile}, nil
}

func (r *Resolver) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
