// Package seed loads emission reference data from YAML files into the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/internal/store"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var ErrInvalidFile = errors.New("invalid seed file")

// File is the on-disk shape of a reference-data seed.
type File struct {
	Categories []Category `yaml:"categories"`
	Factors    []Factor   `yaml:"factors"`
}

type Category struct {
	Name      string `yaml:"name"`
	ScopeType string `yaml:"scope_type"`
}

// Factor references its category by name. An empty Category leaves the factor uncategorized.
type Factor struct {
	Name      string   `yaml:"name"`
	Unit      string   `yaml:"unit"`
	CO2Factor Quantity `yaml:"co2_factor"`
	Category  string   `yaml:"category"`
}

// Quantity decodes a YAML number or numeric string without going through float64.
type Quantity struct {
	decimal.Decimal
	set bool
}

func (q *Quantity) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: co2_factor must be a number", n.Line)
	}
	d, err := decimal.NewFromString(strings.TrimSpace(n.Value))
	if err != nil {
		return fmt.Errorf("line %d: co2_factor %q is not a number", n.Line, n.Value)
	}
	if !models.QuantityInRange(d) {
		return fmt.Errorf("line %d: co2_factor %q is out of range", n.Line, n.Value)
	}
	q.Decimal, q.set = d, true
	return nil
}

// Summary reports what Apply wrote.
type Summary struct {
	Categories int
	Factors    int
}

// Load decodes and validates a seed file.
func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrInvalidFile)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) validate() error {
	seen := make(map[string]bool, len(f.Categories))
	for i, c := range f.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: categories[%d]: name is required", ErrInvalidFile, i)
		}
		if !models.ValidScope(c.ScopeType) {
			return fmt.Errorf("%w: category %q: scope_type must be scope1 or scope2, got %q", ErrInvalidFile, c.Name, c.ScopeType)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: category %q listed twice", ErrInvalidFile, c.Name)
		}
		seen[c.Name] = true
	}

	names := make(map[string]bool, len(f.Factors))
	for i, fa := range f.Factors {
		switch {
		case strings.TrimSpace(fa.Name) == "":
			return fmt.Errorf("%w: factors[%d]: name is required", ErrInvalidFile, i)
		case strings.TrimSpace(fa.Unit) == "":
			return fmt.Errorf("%w: factor %q: unit is required", ErrInvalidFile, fa.Name)
		case !fa.CO2Factor.set:
			return fmt.Errorf("%w: factor %q: co2_factor is required", ErrInvalidFile, fa.Name)
		case fa.CO2Factor.IsNegative():
			return fmt.Errorf("%w: factor %q: co2_factor must not be negative", ErrInvalidFile, fa.Name)
		case names[fa.Name]:
			return fmt.Errorf("%w: factor %q listed twice", ErrInvalidFile, fa.Name)
		}
		names[fa.Name] = true
	}
	return nil
}

// Apply upserts categories and then factors, keyed by name. Factor categories
// resolve against the file first and then against categories already stored.
func Apply(ctx context.Context, s store.Store, f *File) (Summary, error) {
	var sum Summary

	existing, err := s.ListEmissionCategories(ctx)
	if err != nil {
		return sum, fmt.Errorf("listing categories: %w", err)
	}
	byName := make(map[string]uuid.UUID, len(existing)+len(f.Categories))
	for _, c := range existing {
		byName[c.Name] = c.ID
	}

	for _, c := range f.Categories {
		cat := &models.EmissionCategory{ID: uuid.New(), Name: c.Name, ScopeType: c.ScopeType}
		if err := s.UpsertEmissionCategory(ctx, cat); err != nil {
			return sum, fmt.Errorf("category %q: %w", c.Name, err)
		}
		byName[cat.Name] = cat.ID
		sum.Categories++
	}

	for _, fa := range f.Factors {
		factor := &models.EmissionFactor{
			ID:        uuid.New(),
			Name:      fa.Name,
			Unit:      fa.Unit,
			CO2Factor: fa.CO2Factor.Decimal,
		}
		if fa.Category != "" {
			id, ok := byName[fa.Category]
			if !ok {
				return sum, fmt.Errorf("%w: factor %q: unknown category %q", ErrInvalidFile, fa.Name, fa.Category)
			}
			factor.CategoryID = &id
		}
		if err := s.UpsertEmissionFactor(ctx, factor); err != nil {
			return sum, fmt.Errorf("factor %q: %w", fa.Name, err)
		}
		sum.Factors++
	}
	return sum, nil
}
