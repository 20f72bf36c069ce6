package credential

import (
	"context"
	"errors"
	"time"
)

// Privilege is the access tier a per-tenant database principal is granted.
// The set is fixed and closed: exactly two levels exist.
type Privilege string

const (
	PrivilegeReadWrite Privilege = "read_write"
	PrivilegeReadOnly  Privilege = "read_only"
)

// Levels lists every privilege level in provisioning order.
var Levels = []Privilege{PrivilegeReadWrite, PrivilegeReadOnly}

// Valid reports whether p is one of the two defined levels.
func (p Privilege) Valid() bool {
	return p == PrivilegeReadWrite || p == PrivilegeReadOnly
}

// GrantRole returns the fixed shared database role this privilege level maps
// to. Table grants are managed once against these roles, never against
// individual per-tenant principals.
func (p Privilege) GrantRole() string {
	if p == PrivilegeReadOnly {
		return RoleReadOnly
	}
	return RoleReadWrite
}

// Fixed privilege role names. Every provisioned principal is a member of
// exactly one of these.
const (
	RoleReadWrite = "tenantgate_rw"
	RoleReadOnly  = "tenantgate_ro"
)

var (
	// ErrCredentialNotFound is returned when no credential exists for a
	// (tenant, privilege) key. Distinct from decryption failures.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidPrivilege is returned for privilege values outside the
	// closed set.
	ErrInvalidPrivilege = errors.New("invalid privilege level")
)

// Credential is the catalog record for one database principal: the login
// identity a tenant uses at one privilege level. The secret is stored only
// in encrypted form; decryption is the caller's responsibility.
type Credential struct {
	TenantID        string    `json:"tenant_id"`
	Privilege       Privilege `json:"privilege"`
	Username        string    `json:"username"`
	EncryptedSecret string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store defines the interface for credential catalog persistence.
// At most one credential exists per (tenant, privilege) pair; Put replaces
// an existing row for the same key.
type Store interface {
	Get(ctx context.Context, tenantID string, priv Privilege) (*Credential, error)
	Put(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context, tenantID string, priv Privilege) error
	ListByTenant(ctx context.Context, tenantID string) ([]*Credential, error)
	// ListAll returns every catalog row; used by reconciliation.
	ListAll(ctx context.Context) ([]*Credential, error)
}
