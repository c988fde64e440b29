package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a bearer credential granting an organization's authority.
// Raw keys are shown once at creation; only the SHA-256 hex digest is stored.
type APIKey struct {
	ID        uuid.UUID  `db:"id"         json:"id"`
	OrgID     uuid.UUID  `db:"org_id"     json:"org_id"`
	UserID    *uuid.UUID `db:"user_id"    json:"user_id,omitempty"`
	Name      string     `db:"name"       json:"name"`
	KeyPrefix string     `db:"key_prefix" json:"key_prefix"`
	KeyHash   string     `db:"hashed_key" json:"-"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
