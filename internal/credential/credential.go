// Package credential issues and resolves organization API keys.
//
// Only a SHA-256 digest of a key is ever persisted. The raw secret is returned
// once from Generate and cannot be recovered afterwards.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

const (
	secretBytes      = 24
	displayPrefixLen = 12
	defaultKeyName   = "Default Key"
	DefaultPrefix    = "sk_live_"
)

var (
	ErrInvalidCredential = errors.New("invalid API key")
	ErrPersistence       = errors.New("failed to persist API key")
)

// HashKey returns the lowercase hex SHA-256 digest of a raw key.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// Issued is the result of generating a key. RawKey is never stored.
type Issued struct {
	RawKey string
	Key    *models.APIKey
}

// Service resolves and issues API keys against the store.
type Service struct {
	store   store.Store
	prefix  string
	timeout time.Duration
}

// NewService creates a credential service. An empty prefix falls back to DefaultPrefix.
func NewService(s store.Store, prefix string, timeout time.Duration) *Service {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Service{store: s, prefix: prefix, timeout: timeout}
}

// Resolve maps a raw key to the organization that owns it.
func (s *Service) Resolve(ctx context.Context, rawKey string) (*models.APIKey, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, ErrInvalidCredential
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	key, err := s.store.GetAPIKeyByHash(ctx, HashKey(rawKey))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredential
	}
	if err != nil {
		return nil, fmt.Errorf("resolving API key: %w", err)
	}
	return key, nil
}

// Generate creates a fresh key for orgID. userID may be nil for keys issued
// outside a browser session. Storage failures are surfaced without retry.
func (s *Service) Generate(ctx context.Context, orgID uuid.UUID, userID *uuid.UUID, name string) (*Issued, error) {
	raw, err := s.newSecret()
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultKeyName
	}

	key := &models.APIKey{
		ID:        uuid.New(),
		OrgID:     orgID,
		UserID:    userID,
		Name:      name,
		KeyPrefix: raw[:displayPrefixLen],
		KeyHash:   HashKey(raw),
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &Issued{RawKey: raw, Key: key}, nil
}

// List returns the live keys of an organization, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.ListAPIKeys(ctx, orgID)
}

// Revoke soft-revokes a key owned by orgID. Returns store.ErrNotFound when
// no live key with that id exists in the organization.
func (s *Service) Revoke(ctx context.Context, orgID, keyID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.store.RevokeAPIKey(ctx, keyID, orgID)
}

func (s *Service) newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating key material: %w", err)
	}
	return s.prefix + hex.EncodeToString(buf), nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
