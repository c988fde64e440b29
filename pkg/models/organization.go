package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is the tenant boundary. Every other tenant-owned entity belongs to exactly one organization.
type Organization struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Name      string    `db:"name"       json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Profile maps an identity-provider user to an organization.
// OrgID is nil for users that have signed up but were never attached to an organization.
type Profile struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	OrgID     *uuid.UUID `db:"org_id"     json:"org_id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
