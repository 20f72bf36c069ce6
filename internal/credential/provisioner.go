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

package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"github.com/opentrusty/tenantgate/internal/secrets"
)

// RoleAdmin is the DDL arm of provisioning: it creates and destroys actual
// database login principals. Implementations must validate every identifier
// before interpolating it into DDL.
type RoleAdmin interface {
	CreateLoginRole(ctx context.Context, username, password string) error
	GrantRole(ctx context.Context, username, role string) error
	RevokeRole(ctx context.Context, username, role string) error
	DropRole(ctx context.Context, username string) error
	TerminateSessions(ctx context.Context, username string) error
	RoleExists(ctx context.Context, name string) (bool, error)
	ListRolesWithPrefix(ctx context.Context, prefix string) ([]string, error)
}

// PoolInvalidator discards cached connection sources for a tenant. Satisfied
// by pool.Registry; an interface here keeps provisioning decoupled from the
// pool package.
type PoolInvalidator interface {
	Invalidate(ctx context.Context, tenantID string)
}

// PlainCredential is a decrypted login pair returned only through the
// privileged administrative surface.
type PlainCredential struct {
	Privilege Privilege `json:"privilege"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
}

// usernamePrefix namespaces every principal this service creates, so
// reconciliation can enumerate them.
const usernamePrefix = "tg_"

// passwordBytes is the entropy of generated passwords: 32 bytes = 256 bits.
const passwordBytes = 32

// Provisioner creates and revokes per-tenant database principals and keeps
// the credential catalog in lock-step with them. The catalog row is written
// only after the principal exists, so a fault between the two steps leaves an
// orphaned principal (detectable by Reconcile), never a catalog row pointing
// at a missing principal.
type Provisioner struct {
	store       Store
	roles       RoleAdmin
	cipher      *secrets.Cipher
	pools       PoolInvalidator
	auditLogger audit.Logger
}

// NewProvisioner creates a new credential provisioner.
func NewProvisioner(store Store, roles RoleAdmin, cipher *secrets.Cipher, pools PoolInvalidator, auditLogger audit.Logger) *Provisioner {
	return &Provisioner{
		store:       store,
		roles:       roles,
		cipher:      cipher,
		pools:       pools,
		auditLogger: auditLogger,
	}
}

// Ensure provisions a credential for every privilege level the tenant does
// not yet have one for. Idempotent: levels that already hold a credential are
// skipped, so a second call is a no-op.
func (p *Provisioner) Ensure(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id is required")
	}

	for _, level := range Levels {
		_, err := p.store.Get(ctx, tenantID, level)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrCredentialNotFound) {
			return fmt.Errorf("failed to check existing credential: %w", err)
		}

		if err := p.provisionOne(ctx, tenantID, level); err != nil {
			return err
		}
	}

	return nil
}

func (p *Provisioner) provisionOne(ctx context.Context, tenantID string, level Privilege) error {
	username, err := generateUsername(tenantID, level)
	if err != nil {
		return err
	}
	password, err := generatePassword()
	if err != nil {
		return err
	}

	if err := p.roles.CreateLoginRole(ctx, username, password); err != nil {
		return fmt.Errorf("failed to create principal %s: %w", username, err)
	}
	if err := p.roles.GrantRole(ctx, username, level.GrantRole()); err != nil {
		// The principal exists but holds no grants; drop it so a retry
		// starts clean instead of leaving a half-provisioned login.
		p.compensateDrop(ctx, username)
		return fmt.Errorf("failed to grant %s to %s: %w", level.GrantRole(), username, err)
	}

	encrypted, err := p.cipher.Encrypt(password)
	if err != nil {
		p.compensateDrop(ctx, username)
		return fmt.Errorf("failed to encrypt secret for %s: %w", username, err)
	}

	cred := &Credential{
		TenantID:        tenantID,
		Privilege:       level,
		Username:        username,
		EncryptedSecret: encrypted,
		CreatedAt:       time.Now(),
	}
	if err := p.store.Put(ctx, cred); err != nil {
		p.compensateDrop(ctx, username)
		return fmt.Errorf("failed to persist credential for %s: %w", username, err)
	}

	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialProvisioned,
		TenantID: tenantID,
		Resource: username,
		Metadata: map[string]any{"privilege": string(level)},
	})

	return nil
}

// compensateDrop removes a principal created earlier in a failed provisioning
// attempt. Failure here leaves an orphaned principal, which Reconcile reports.
func (p *Provisioner) compensateDrop(ctx context.Context, username string) {
	if err := p.roles.DropRole(ctx, username); err != nil {
		slog.ErrorContext(ctx, "failed to drop principal after provisioning fault",
			logger.Principal(username), logger.Error(err))
	}
}

// Revoke terminates and removes every principal of the tenant, deletes the
// catalog rows, and invalidates any cached connection sources. Returns
// whether anything was revoked; revoking an unprovisioned tenant is a no-op.
func (p *Provisioner) Revoke(ctx context.Context, tenantID string) (bool, error) {
	creds, err := p.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return false, fmt.Errorf("failed to list credentials: %w", err)
	}

	for _, cred := range creds {
		if err := p.roles.TerminateSessions(ctx, cred.Username); err != nil {
			return false, fmt.Errorf("failed to terminate sessions for %s: %w", cred.Username, err)
		}
		if err := p.roles.RevokeRole(ctx, cred.Username, cred.Privilege.GrantRole()); err != nil {
			return false, fmt.Errorf("failed to revoke %s from %s: %w", cred.Privilege.GrantRole(), cred.Username, err)
		}
		if err := p.roles.DropRole(ctx, cred.Username); err != nil {
			return false, fmt.Errorf("failed to drop principal %s: %w", cred.Username, err)
		}
		if err := p.store.Delete(ctx, tenantID, cred.Privilege); err != nil {
			return false, fmt.Errorf("failed to delete credential row for %s: %w", cred.Username, err)
		}

		p.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeCredentialRevoked,
			TenantID: tenantID,
			Resource: cred.Username,
			Metadata: map[string]any{"privilege": string(cred.Privilege)},
		})
	}

	// Cached sources for this tenant are now backed by dropped principals.
	p.pools.Invalidate(ctx, tenantID)

	return len(creds) > 0, nil
}

// Credentials returns the decrypted login pairs of a tenant for the
// privileged administrative surface. A credential whose secret cannot be
// decrypted is surfaced as an error, not skipped.
func (p *Provisioner) Credentials(ctx context.Context, tenantID string) ([]PlainCredential, error) {
	creds, err := p.store.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	out := make([]PlainCredential, 0, len(creds))
	for _, cred := range creds {
		password, err := p.cipher.Decrypt(cred.EncryptedSecret)
		if err != nil {
			return nil, fmt.Errorf("credential %s/%s: %w", tenantID, cred.Privilege, err)
		}
		out = append(out, PlainCredential{
			Privilege: cred.Privilege,
			Username:  cred.Username,
			Password:  password,
		})
	}

	p.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialsDisclosed,
		TenantID: tenantID,
		Metadata: map[string]any{"count": len(out)},
	})

	return out, nil
}

// DriftReport compares the credential catalog against live database
// principals. Both directions of drift come from the same fault: a crash
// between principal creation and catalog write, or an out-of-band DROP ROLE.
type DriftReport struct {
	// OrphanedPrincipals are live login roles with no catalog row.
	OrphanedPrincipals []string `json:"orphaned_principals"`
	// OrphanedRows are catalog rows whose principal no longer exists.
	OrphanedRows []*Credential `json:"orphaned_rows"`
}

// Clean reports whether no drift was found.
func (r *DriftReport) Clean() bool {
	return len(r.OrphanedPrincipals) == 0 && len(r.OrphanedRows) == 0
}

// Reconcile detects catalog/principal drift. It only reports; repair is an
// operator decision because either side of the drift may be the survivor of
// an in-flight provisioning.
func (p *Provisioner) Reconcile(ctx context.Context) (*DriftReport, error) {
	rows, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog rows: %w", err)
	}

	live, err := p.roles.ListRolesWithPrefix(ctx, usernamePrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list live principals: %w", err)
	}

	catalogued := make(map[string]bool, len(rows))
	for _, row := range rows {
		catalogued[row.Username] = true
	}
	alive := make(map[string]bool, len(live))
	for _, name := range live {
		alive[name] = true
	}

	report := &DriftReport{}
	for _, name := range live {
		if !catalogued[name] {
			report.OrphanedPrincipals = append(report.OrphanedPrincipals, name)
		}
	}
	for _, row := range rows {
		if !alive[row.Username] {
			report.OrphanedRows = append(report.OrphanedRows, row)
		}
	}

	return report, nil
}

// generatePassword returns a 256-bit random password, base64url-encoded so it
// is safe inside a quoted SQL string literal.
func generatePassword() (string, error) {
	buf := make([]byte, passwordBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// generateUsername builds a principal name from a stable tenant prefix, the
// privilege level, and a random suffix for collision resistance. The result
// always matches the identifier allow-list enforced by the RoleAdmin.
func generateUsername(tenantID string, level Privilege) (string, error) {
	suffix := make([]byte, 4)
	if _, err := rand.Read(suffix); err != nil {
		return "", fmt.Errorf("failed to generate username suffix: %w", err)
	}

	tenantPart := strings.ToLower(strings.ReplaceAll(tenantID, "-", ""))
	if len(tenantPart) > 8 {
		tenantPart = tenantPart[:8]
	}

	short := "rw"
	if level == PrivilegeReadOnly {
		short = "ro"
	}

	return usernamePrefix + tenantPart + "_" + short + "_" + hex.EncodeToString(suffix), nil
}
