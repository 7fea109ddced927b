package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential authenticates a runner to the coordinator. Raw secrets are shown
// once at issuance; only the bcrypt hash and a short display prefix are stored.
// A runner may hold several live credentials so keys can rotate without
// downtime.
type Credential struct {
	ID          uuid.UUID  `db:"id"           json:"id"`
	RunnerName  string     `db:"runner_name"  json:"runner_name"`
	SecretHash  string     `db:"secret_hash"  json:"-"`
	Prefix      string     `db:"prefix"       json:"prefix"`
	Description string     `db:"description"  json:"description"`
	Admin       bool       `db:"admin"        json:"admin"`
	ExpiresAt   *time.Time `db:"expires_at"   json:"expires_at,omitempty"`
	RevokedAt   *time.Time `db:"revoked_at"   json:"revoked_at,omitempty"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
}

// Active reports whether the credential may still authenticate: not revoked
// and not past its expiry.
func (c *Credential) Active(now time.Time) bool {
	if c.RevokedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return true
}
