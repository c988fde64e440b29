package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityEntry is a tenant-owned activity record with its emissions computed at insert time.
// Entries are never updated in place.
type ActivityEntry struct {
	ID            uuid.UUID       `db:"id"             json:"id"`
	OrgID         uuid.UUID       `db:"org_id"         json:"org_id"`
	FactorID      uuid.UUID       `db:"factor_id"      json:"factor_id"`
	ActivityValue decimal.Decimal `db:"activity_value" json:"activity_value"`
	CO2Emissions  decimal.Decimal `db:"co2_emissions"  json:"co2_emissions"`
	StartDate     Date            `db:"start_date"     json:"start_date"`
	EndDate       Date            `db:"end_date"       json:"end_date"`
	CreatedAt     time.Time       `db:"created_at"     json:"created_at"`
}

// EntryFactor is the slice of factor and category data joined onto an entry.
type EntryFactor struct {
	Name      string `json:"name"`
	Unit      string `json:"unit"`
	ScopeType string `json:"scope_type,omitempty"`
}

// ActivityEntryDetail is an entry joined with its factor and the factor's category.
// Factor is nil when the factor row no longer resolves.
type ActivityEntryDetail struct {
	ActivityEntry
	Factor *EntryFactor `json:"emission_factors"`
}

// ScopeType returns the scope of the joined category, or "" when it cannot be resolved.
func (d *ActivityEntryDetail) ScopeType() string {
	if d.Factor == nil {
		return ""
	}
	return d.Factor.ScopeType
}
