// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/id"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
)

// CredentialProvisioner is the tenant lifecycle's hook into the credential
// subsystem. Satisfied by credential.Provisioner.
type CredentialProvisioner interface {
	Ensure(ctx context.Context, tenantID string) error
	Revoke(ctx context.Context, tenantID string) (bool, error)
}

// slugPattern keeps slugs usable in hostnames and principal names.
var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)

// Service provides tenant lifecycle business logic. Creating a tenant
// provisions its database principals; deleting one revokes them before the
// row is marked deleted, so no cached connection can outlive its tenant.
type Service struct {
	repo        Repository
	provisioner CredentialProvisioner
	auditLogger audit.Logger
}

// NewService creates a new tenant service
func NewService(repo Repository, provisioner CredentialProvisioner, auditLogger audit.Logger) *Service {
	return &Service{
		repo:        repo,
		provisioner: provisioner,
		auditLogger: auditLogger,
	}
}

// CreateTenant creates a tenant and provisions credentials for both
// privilege levels. If provisioning fails the tenant row is removed again:
// a tenant without principals is a latent security gap, not a usable state.
func (s *Service) CreateTenant(ctx context.Context, slug string) (*Tenant, error) {
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSlug
	}

	if _, err := s.repo.GetBySlug(ctx, slug); err == nil {
		return nil, ErrTenantAlreadyExists
	} else if !errors.Is(err, ErrTenantNotFound) {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}

	now := time.Now()
	t := &Tenant{
		ID:        id.NewUUIDv7(),
		Slug:      slug,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	if err := s.provisioner.Ensure(ctx, t.ID); err != nil {
		if delErr := s.repo.HardDelete(ctx, t.ID); delErr != nil {
			slog.ErrorContext(ctx, "failed to remove tenant after provisioning fault",
				logger.TenantID(t.ID), logger.Error(delErr))
		}
		return nil, fmt.Errorf("failed to provision credentials: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantCreated,
		TenantID: t.ID,
		Resource: slug,
	})

	return t, nil
}

// GetTenant retrieves a tenant by ID
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*Tenant, error) {
	return s.repo.GetByID(ctx, tenantID)
}

// GetTenantBySlug retrieves a tenant by slug
func (s *Service) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// ListTenants lists tenants with pagination
func (s *Service) ListTenants(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	return s.repo.List(ctx, limit, offset)
}

// DeleteTenant revokes the tenant's credentials and then soft-deletes the
// row. Revocation runs first: if it fails the tenant stays active and the
// operation can be retried, so a deleted tenant never retains live
// principals or cached connections.
func (s *Service) DeleteTenant(ctx context.Context, tenantID string) error {
	t, err := s.repo.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.Status == StatusDeleted {
		return nil
	}

	if _, err := s.provisioner.Revoke(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to revoke credentials: %w", err)
	}

	if err := s.repo.SoftDelete(ctx, tenantID); err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeTenantDeleted,
		TenantID: tenantID,
		Resource: t.Slug,
	})

	return nil
}
