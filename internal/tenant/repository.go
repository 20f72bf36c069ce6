package tenant

import (
	"context"
	"errors"
)

var (
	ErrTenantNotFound      = errors.New("tenant not found")
	ErrTenantAlreadyExists = errors.New("tenant already exists")
	ErrInvalidSlug         = errors.New("invalid tenant slug")
)

// Repository defines the interface for tenant storage
type Repository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, error)
	// SoftDelete marks the tenant deleted without removing the row.
	SoftDelete(ctx context.Context, id string) error
	// HardDelete removes the row; only used to compensate a failed create.
	HardDelete(ctx context.Context, id string) error
}
