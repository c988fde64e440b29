// Package catalog serves the global emission reference data: factors joined
// with their categories, plus the category list.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/cache"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
	"golang.org/x/sync/errgroup"
)

// Listing is the reference data payload.
type Listing struct {
	Factors    []*models.FactorWithCategory `json:"factors"`
	Categories []*models.EmissionCategory   `json:"categories"`
}

// Service reads reference data through a Redis read-through cache.
// Cache failures are logged and never fail a read.
type Service struct {
	store   store.Store
	cache   cache.Cache
	ttl     time.Duration
	timeout time.Duration
}

// NewService creates a catalog service. A nil cache or non-positive ttl disables caching.
func NewService(s store.Store, c cache.Cache, ttl, timeout time.Duration) *Service {
	return &Service{store: s, cache: c, ttl: ttl, timeout: timeout}
}

// List returns all factors with their categories and all categories, both sorted by name.
func (s *Service) List(ctx context.Context) (*Listing, error) {
	if l, ok := s.cached(ctx); ok {
		return l, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		categories []*models.EmissionCategory
		factors    []*models.EmissionFactor
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.store.ListEmissionCategories(gctx)
		if err != nil {
			return fmt.Errorf("listing categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		factors, err = s.store.ListEmissionFactors(gctx)
		if err != nil {
			return fmt.Errorf("listing factors: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l := join(factors, categories)
	s.fill(ctx, l)
	return l, nil
}

// Invalidate drops the cached listing so the next List reads the store.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, cache.FactorCatalogKey)
}

func join(factors []*models.EmissionFactor, categories []*models.EmissionCategory) *Listing {
	byID := make(map[uuid.UUID]*models.EmissionCategory, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}

	out := &Listing{
		Factors:    make([]*models.FactorWithCategory, 0, len(factors)),
		Categories: categories,
	}
	if out.Categories == nil {
		out.Categories = []*models.EmissionCategory{}
	}
	for _, f := range factors {
		fc := &models.FactorWithCategory{EmissionFactor: *f}
		if f.CategoryID != nil {
			fc.Category = byID[*f.CategoryID]
		}
		out.Factors = append(out.Factors, fc)
	}

	sort.SliceStable(out.Factors, func(i, j int) bool { return out.Factors[i].Name < out.Factors[j].Name })
	sort.SliceStable(out.Categories, func(i, j int) bool { return out.Categories[i].Name < out.Categories[j].Name })
	return out
}

func (s *Service) cached(ctx context.Context) (*Listing, bool) {
	if s.cache == nil || s.ttl <= 0 {
		return nil, false
	}
	var l Listing
	ok, err := cache.GetJSON(ctx, s.cache, cache.FactorCatalogKey, &l)
	if err != nil {
		slog.Warn("factor cache read failed", "error", err)
		return nil, false
	}
	return &l, ok
}

func (s *Service) fill(ctx context.Context, l *Listing) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := cache.SetJSON(ctx, s.cache, cache.FactorCatalogKey, l, s.ttl); err != nil {
		slog.Warn("factor cache write failed", "error", err)
	}
}
