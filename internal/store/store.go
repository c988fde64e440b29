package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
// Every tenant-owned read or write takes the owning organization id as a mandatory argument.
type Store interface {
	Ping(ctx context.Context) error

	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)

	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	GetLatestAPIKeyForUser(ctx context.Context, userID uuid.UUID) (*models.APIKey, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, orgID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, orgID uuid.UUID) error

	ListEmissionCategories(ctx context.Context) ([]*models.EmissionCategory, error)
	ListEmissionFactors(ctx context.Context) ([]*models.EmissionFactor, error)
	GetEmissionFactor(ctx context.Context, id uuid.UUID) (*models.EmissionFactor, error)
	UpsertEmissionCategory(ctx context.Context, c *models.EmissionCategory) error
	UpsertEmissionFactor(ctx context.Context, f *models.EmissionFactor) error

	CreateActivityEntry(ctx context.Context, entry *models.ActivityEntry) error
	ListActivityEntries(ctx context.Context, filter EntryFilter) ([]*models.ActivityEntryDetail, error)
	DeleteActivityEntry(ctx context.Context, id uuid.UUID, orgID uuid.UUID) (int64, error)
}

// EntryFilter restricts an organization's activity entries server-side.
// From bounds start_date and To bounds end_date, both inclusive; nil means unbounded.
type EntryFilter struct {
	OrgID uuid.UUID
	From  *models.Date
	To    *models.Date
}
