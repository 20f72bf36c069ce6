package tenant

import (
	"time"
)

// Tenant represents an isolated customer account. Its rows must never be
// visible to another tenant; the credential subsystem enforces that at the
// database-session level.
type Tenant struct {
	ID        string     `json:"id"`
	Slug      string     `json:"slug"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// Status constants. Tenants are soft-deleted: the row survives so that
// credential revocation always happens before any hard delete of
// tenant-owned data.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)
