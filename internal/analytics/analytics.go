// Package analytics produces per-organization emission summaries, monthly
// trends and a paginated entry history.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/store"
)

var (
	ErrInvalidQuery       = errors.New("invalid analytics query")
	ErrAggregationFailure = errors.New("failed to load activity entries")
)

// Service runs analytics queries against the store.
type Service struct {
	store   store.Store
	timeout time.Duration
}

// NewService creates an analytics service.
func NewService(s store.Store, timeout time.Duration) *Service {
	return &Service{store: s, timeout: timeout}
}

// Query loads orgID's entries in a single fetch, restricted by the date range,
// and aggregates them. A scope that names no scope type matches no entries.
// A fetch failure yields no partial result.
func (s *Service) Query(ctx context.Context, orgID uuid.UUID, q Query) (*Result, error) {
	if q.From != nil && q.To != nil && q.To.Before(q.From.Time) {
		return nil, fmt.Errorf("%w: end_date must not be before start_date", ErrInvalidQuery)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	entries, err := s.store.ListActivityEntries(ctx, store.EntryFilter{
		OrgID: orgID,
		From:  q.From,
		To:    q.To,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAggregationFailure, err)
	}
	return Aggregate(entries, q), nil
}
