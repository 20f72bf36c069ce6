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

package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tenantgate/internal/credential"
)

// CredentialRepository implements credential.Store against the
// tenant_credentials catalog table. Secrets pass through encrypted only;
// this layer never sees key material.
type CredentialRepository struct {
	db *DB
}

// NewCredentialRepository creates a new credential repository
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get retrieves the credential for a (tenant, privilege) key
func (r *CredentialRepository) Get(ctx context.Context, tenantID string, priv credential.Privilege) (*credential.Credential, error) {
	var cred credential.Credential

	err := r.db.pool.QueryRow(ctx, `
		SELECT tenant_id, privilege, username, encrypted_secret, created_at
		FROM tenant_credentials
		WHERE tenant_id = $1 AND privilege = $2
	`, tenantID, string(priv)).Scan(
		&cred.TenantID, &cred.Privilege, &cred.Username, &cred.EncryptedSecret, &cred.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, credential.ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	return &cred, nil
}

// Put inserts or replaces the credential for its (tenant, privilege) key.
// The upsert keeps the one-credential-per-key invariant without a separate
// existence check.
func (r *CredentialRepository) Put(ctx context.Context, cred *credential.Credential) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenant_credentials (tenant_id, privilege, username, encrypted_secret, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, privilege)
		DO UPDATE SET username = EXCLUDED.username,
		              encrypted_secret = EXCLUDED.encrypted_secret,
		              created_at = EXCLUDED.created_at
	`, cred.TenantID, string(cred.Privilege), cred.Username, cred.EncryptedSecret, cred.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}

	return nil
}

// Delete removes the credential row for a (tenant, privilege) key
func (r *CredentialRepository) Delete(ctx context.Context, tenantID string, priv credential.Privilege) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM tenant_credentials
		WHERE tenant_id = $1 AND privilege = $2
	`, tenantID, string(priv))
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	return nil
}

// ListByTenant retrieves every credential of a tenant
func (r *CredentialRepository) ListByTenant(ctx context.Context, tenantID string) ([]*credential.Credential, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT tenant_id, privilege, username, encrypted_secret, created_at
		FROM tenant_credentials
		WHERE tenant_id = $1
		ORDER BY privilege
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows)
}

// ListAll retrieves every catalog row; used by reconciliation
func (r *CredentialRepository) ListAll(ctx context.Context) ([]*credential.Credential, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT tenant_id, privilege, username, encrypted_secret, created_at
		FROM tenant_credentials
		ORDER BY tenant_id, privilege
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	defer rows.Close()

	return scanCredentials(rows)
}

func scanCredentials(rows pgx.Rows) ([]*credential.Credential, error) {
	var creds []*credential.Credential
	for rows.Next() {
		var cred credential.Credential
		if err := rows.Scan(&cred.TenantID, &cred.Privilege, &cred.Username, &cred.EncryptedSecret, &cred.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, &cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if creds == nil {
		creds = []*credential.Credential{}
	}
	return creds, nil
}
