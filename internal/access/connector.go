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

package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/credential"
	"github.com/opentrusty/tenantgate/internal/pool"
	"github.com/opentrusty/tenantgate/internal/secrets"
)

// SourceCache is the connection-cache surface the connector needs. Satisfied
// by pool.Registry.
type SourceCache interface {
	Acquire(ctx context.Context, key pool.Key, username, secret string) (*pgxpool.Pool, error)
}

// Connector is the narrow "give me a database handle scoped to tenant T at
// privilege P" interface the rest of the application consumes. It resolves
// the caller to a key, loads and decrypts the credential, and returns the
// cached pooled source for it.
type Connector struct {
	store       credential.Store
	cipher      *secrets.Cipher
	cache       SourceCache
	auditLogger audit.Logger
}

// NewConnector creates a new connector.
func NewConnector(store credential.Store, cipher *secrets.Cipher, cache SourceCache, auditLogger audit.Logger) *Connector {
	return &Connector{
		store:       store,
		cipher:      cipher,
		cache:       cache,
		auditLogger: auditLogger,
	}
}

// AcquireFor resolves the caller and returns the tenant-scoped pooled source
// together with the grant it was resolved under. A missing credential for
// the resolved key is ErrAccessDenied — never a fallback to some shared or
// ambient connection.
func (c *Connector) AcquireFor(ctx context.Context, caller Caller, selector string) (*pgxpool.Pool, Grant, error) {
	grant, err := Resolve(caller, selector)
	if err != nil {
		return nil, Grant{}, err
	}

	cred, err := c.store.Get(ctx, grant.TenantID, grant.Privilege)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialNotFound) {
			c.auditLogger.Log(ctx, audit.Event{
				Type:     audit.TypeAccessDenied,
				TenantID: grant.TenantID,
				ActorID:  caller.Subject,
				Metadata: map[string]any{"privilege": string(grant.Privilege), "reason": "no credential"},
			})
			return nil, Grant{}, ErrAccessDenied
		}
		return nil, Grant{}, fmt.Errorf("failed to load credential: %w", err)
	}

	// A decryption failure is fatal for this credential and must stay
	// distinguishable from "credential not found".
	secret, err := c.cipher.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return nil, Grant{}, fmt.Errorf("credential %s/%s unusable: %w", grant.TenantID, grant.Privilege, err)
	}

	key := pool.Key{TenantID: grant.TenantID, Privilege: grant.Privilege}
	p, err := c.cache.Acquire(ctx, key, cred.Username, secret)
	if err != nil {
		return nil, Grant{}, fmt.Errorf("failed to acquire source for %s: %w", key, err)
	}

	return p, grant, nil
}
