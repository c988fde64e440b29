package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	// Emission quantities are rendered as JSON numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Scope types of the GHG Protocol that categories are classified into.
const (
	Scope1 = "scope1"
	Scope2 = "scope2"
)

// ValidScope reports whether s is a known scope type.
func ValidScope(s string) bool {
	return s == Scope1 || s == Scope2
}

// Bounds on quantities accepted from callers. Anything wider is rejected before
// it reaches decimal arithmetic or the store.
const (
	MaxQuantityExponent = 30
	MaxQuantityDigits   = 38
)

// QuantityInRange reports whether d's exponent and coefficient fit the bounds.
func QuantityInRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -MaxQuantityExponent && exp <= MaxQuantityExponent &&
		d.NumDigits() <= MaxQuantityDigits
}

// EmissionCategory classifies emission sources. Global reference data.
type EmissionCategory struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	ScopeType string    `db:"scope_type" json:"scope_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EmissionFactor converts an activity quantity into CO2-equivalent emissions.
// CategoryID is nil for uncategorized factors.
type EmissionFactor struct {
	ID         uuid.UUID       `db:"id"          json:"id"`
	Name       string          `db:"name"        json:"name"`
	Unit       string          `db:"unit"        json:"unit"`
	CO2Factor  decimal.Decimal `db:"co2_factor"  json:"co2_factor"`
	CategoryID *uuid.UUID      `db:"category_id" json:"category_id"`
	CreatedAt  time.Time       `db:"created_at"  json:"created_at"`
}

// FactorWithCategory is an emission factor joined with its category, nil when uncategorized.
type FactorWithCategory struct {
	EmissionFactor
	Category *EmissionCategory `json:"emission_categories"`
}
