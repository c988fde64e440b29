// Package emissions records activity entries with their computed emissions
// and retires them, always scoped to the authorized organization.
package emissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/metrics"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
)

var (
	ErrValidation     = errors.New("validation failed")
	ErrFactorNotFound = errors.New("emission factor not found")
	ErrPersistence    = errors.New("failed to persist activity entry")
)

// Service ingests and retires activity entries.
type Service struct {
	store   store.Store
	timeout time.Duration
}

// NewService creates an emissions service.
func NewService(s store.Store, timeout time.Duration) *Service {
	return &Service{store: s, timeout: timeout}
}

// Ingest computes emissions = activity_value * co2_factor with decimal arithmetic
// and persists the entry under orgID. The single insert is the only write.
func (s *Service) Ingest(ctx context.Context, orgID uuid.UUID, in Input) (*models.ActivityEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	factor, err := s.store.GetEmissionFactor(ctx, in.FactorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrFactorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: fetching factor: %v", ErrPersistence, err)
	}

	entry := &models.ActivityEntry{
		OrgID:         orgID,
		FactorID:      factor.ID,
		ActivityValue: in.ActivityValue,
		CO2Emissions:  Compute(in.ActivityValue, factor.CO2Factor),
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
	}

	if err := s.store.CreateActivityEntry(ctx, entry); err != nil {
		// The factor can disappear between the lookup and the insert.
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrFactorNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	metrics.EntriesIngested.Inc()
	slog.Info("activity entry ingested",
		"org_id", orgID,
		"entry_id", entry.ID,
		"factor_id", entry.FactorID,
		"co2_emissions", entry.CO2Emissions.String(),
	)
	return entry, nil
}

// Retire deletes entryID if it belongs to orgID. Deleting an id that does not
// exist in the organization succeeds without touching other rows.
func (s *Service) Retire(ctx context.Context, orgID, entryID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.store.DeleteActivityEntry(ctx, entryID, orgID)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if n > 0 {
		metrics.EntriesRetired.Add(float64(n))
	}
	return nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
