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

// Package system provides integration tests that run against a real PostgreSQL database.
//
// Test Execution:
//
//	INTEGRATION_TEST=true go test -v ./tests/system/...
//
// Prerequisites:
//
//	docker compose up -d postgres
//
// The configured DB_USER must hold CREATEROLE: the tests provision and drop
// real login principals.
//
// Test Categories:
//   - ISO-*: Tenant isolation tests (RLS + privilege enforcement)
//   - REV-*: Revocation tests
package system

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opentrusty/tenantgate/internal/access"
	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/credential"
	"github.com/opentrusty/tenantgate/internal/id"
	"github.com/opentrusty/tenantgate/internal/pool"
	"github.com/opentrusty/tenantgate/internal/secrets"
	"github.com/opentrusty/tenantgate/internal/store/postgres"
	"github.com/opentrusty/tenantgate/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testDB is the shared administrative connection for integration tests
var testDB *postgres.DB

// TestMain sets up and tears down the test database connection
func TestMain(m *testing.M) {
	// Skip if not integration test
	if os.Getenv("INTEGRATION_TEST") != "true" {
		os.Exit(0)
	}

	// Setup database
	ctx := context.Background()
	db, err := postgres.New(ctx, postgres.Config{
		Host:         getEnvOrDefault("DB_HOST", "localhost"),
		Port:         getEnvOrDefault("DB_PORT", "5432"),
		User:         getEnvOrDefault("DB_USER", "tenantgate"),
		Password:     getEnvOrDefault("DB_PASSWORD", "tenantgate_dev_password"),
		Database:     getEnvOrDefault("DB_NAME", "tenantgate"),
		SSLMode:      "disable",
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	testDB = db

	// Apply migrations
	if err := db.Migrate(ctx, postgres.InitialSchema); err != nil {
		// Ignore errors for already existing tables
		_ = err
	}

	// Run tests
	code := m.Run()

	// Cleanup
	testDB.Close()
	os.Exit(code)
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// stack bundles the full wiring under test: catalog, DDL, cipher, registry,
// connector, tenant lifecycle.
type stack struct {
	service     *tenant.Service
	provisioner *credential.Provisioner
	connector   *access.Connector
	registry    *pool.Registry
}

func newStack(t *testing.T) *stack {
	t.Helper()

	cipher, err := secrets.NewCipher("integration-test-master-secret")
	require.NoError(t, err)

	auditLogger := audit.NewSlogLogger()
	credentialRepo := postgres.NewCredentialRepository(testDB)
	roleAdmin := postgres.NewRoleAdmin(testDB)

	registry := pool.NewRegistry(pool.Config{
		Host:              getEnvOrDefault("DB_HOST", "localhost"),
		Port:              getEnvOrDefault("DB_PORT", "5432"),
		Database:          getEnvOrDefault("DB_NAME", "tenantgate"),
		SSLMode:           "disable",
		BaseConns:         2,
		OverflowConns:     2,
		RecycleInterval:   5 * time.Minute,
		CheckoutTimeout:   10 * time.Second,
		HealthCheckPeriod: time.Minute,
	}, auditLogger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		registry.Shutdown(ctx)
	})

	provisioner := credential.NewProvisioner(credentialRepo, roleAdmin, cipher, registry, auditLogger)

	return &stack{
		service:     tenant.NewService(postgres.NewTenantRepository(testDB), provisioner, auditLogger),
		provisioner: provisioner,
		connector:   access.NewConnector(credentialRepo, cipher, registry, auditLogger),
		registry:    registry,
	}
}

func createTenant(t *testing.T, s *stack, slugPrefix string) *tenant.Tenant {
	t.Helper()
	ctx := context.Background()

	created, err := s.service.CreateTenant(ctx, slugPrefix+"-"+id.NewUUIDv7()[24:])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.service.DeleteTenant(context.Background(), created.ID)
	})
	return created
}

// =============================================================================
// TENANT ISOLATION TESTS
// =============================================================================

// TestPurpose: Validates that a tenant's read-write source can write its own rows
// and that another tenant's source cannot see them.
// Scope: Integration Test
// Security: Row-level security boundary enforced by the per-checkout tenant binding
// Expected: Tenant A reads its own row; tenant B sees zero rows in the same table.
// Test Case ID: ISO-01
func TestIsolation_CrossTenantRowsInvisible(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database (set INTEGRATION_TEST=true)")
	}

	ctx := context.Background()
	s := newStack(t)

	tenantA := createTenant(t, s, "iso-a")
	tenantB := createTenant(t, s, "iso-b")

	operator := access.Caller{Subject: "op-1", Role: access.RoleSuperAdmin}

	// Write a row as tenant A read-write.
	poolA, grantA, err := s.connector.AcquireFor(ctx, operator, tenantA.ID)
	require.NoError(t, err, "ISO-01: Failed to acquire tenant A source")
	assert.Equal(t, credential.PrivilegeReadWrite, grantA.Privilege)

	_, err = poolA.Exec(ctx,
		`INSERT INTO tenant_data (id, tenant_id, payload) VALUES ($1, $2, '{"k":"v"}')`,
		id.NewUUIDv7(), tenantA.ID)
	require.NoError(t, err, "ISO-01: Tenant A read-write insert should succeed")

	var countA int
	err = poolA.QueryRow(ctx, `SELECT count(*) FROM tenant_data`).Scan(&countA)
	require.NoError(t, err)
	assert.Equal(t, 1, countA, "ISO-01: Tenant A should see its own row")

	// CRITICAL: The same table through tenant B's source shows nothing.
	poolB, _, err := s.connector.AcquireFor(ctx, operator, tenantB.ID)
	require.NoError(t, err)

	var countB int
	err = poolB.QueryRow(ctx, `SELECT count(*) FROM tenant_data`).Scan(&countB)
	require.NoError(t, err)
	assert.Equal(t, 0, countB,
		"ISO-01 SECURITY: Tenant B MUST NOT see tenant A's rows")
}

// TestPurpose: Validates that every checkout carries the tenant binding the RLS
// policies key on.
// Scope: Integration Test
// Security: The binding is the load-bearing invariant for row-level security
// Expected: current_setting('app.current_tenant_id') equals the tenant ID on a
// fresh checkout and on a reused connection.
// Test Case ID: ISO-02
func TestIsolation_TenantBindingOnEveryCheckout(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	s := newStack(t)

	created := createTenant(t, s, "bind")
	operator := access.Caller{Subject: "op-1", Role: access.RoleSuperAdmin}

	source, _, err := s.connector.AcquireFor(ctx, operator, created.ID)
	require.NoError(t, err)

	// Two sequential queries exercise checkout, release, and re-checkout of
	// the same underlying connection.
	for i := 0; i < 2; i++ {
		var bound string
		err = source.QueryRow(ctx, `SELECT current_setting('app.current_tenant_id')`).Scan(&bound)
		require.NoError(t, err)
		assert.Equal(t, created.ID, bound,
			"ISO-02 SECURITY: checkout %d must carry the tenant binding", i+1)
	}
}

// TestPurpose: Validates that the read-only source can read but not write.
// Scope: Integration Test
// Security: Privilege separation between the rw and ro principals
// Expected: SELECT succeeds; INSERT fails with insufficient_privilege.
// Test Case ID: ISO-03
func TestIsolation_ReadOnlySourceCannotWrite(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	s := newStack(t)

	created := createTenant(t, s, "ro")
	viewer := access.Caller{Subject: "viewer-1", Role: access.RoleTenantViewer, TenantID: created.ID}

	// Seed a row through the read-write source.
	operator := access.Caller{Subject: "op-1", Role: access.RoleSuperAdmin}
	rw, _, err := s.connector.AcquireFor(ctx, operator, created.ID)
	require.NoError(t, err)
	_, err = rw.Exec(ctx,
		`INSERT INTO tenant_data (id, tenant_id) VALUES ($1, $2)`,
		id.NewUUIDv7(), created.ID)
	require.NoError(t, err)

	// Viewer resolves to the read-only source regardless of any selector.
	ro, grant, err := s.connector.AcquireFor(ctx, viewer, "some-other-tenant")
	require.NoError(t, err)
	assert.Equal(t, credential.PrivilegeReadOnly, grant.Privilege,
		"ISO-03: Viewer must be forced to read-only")

	var count int
	err = ro.QueryRow(ctx, `SELECT count(*) FROM tenant_data`).Scan(&count)
	require.NoError(t, err, "ISO-03: Read-only SELECT should succeed")
	assert.Equal(t, 1, count)

	_, err = ro.Exec(ctx,
		`INSERT INTO tenant_data (id, tenant_id) VALUES ($1, $2)`,
		id.NewUUIDv7(), created.ID)
	require.Error(t, err, "ISO-03 SECURITY: Read-only INSERT MUST fail")
	assert.True(t, postgres.IsInsufficientPrivilege(err),
		"ISO-03: Failure must be insufficient_privilege, got: %v", err)
}

// =============================================================================
// REVOCATION TESTS
// =============================================================================

// TestPurpose: Validates that revocation drops principals, removes catalog rows,
// and makes subsequent access resolution fail closed.
// Scope: Integration Test
// Security: No connection path survives credential revocation
// Expected: AcquireFor returns ErrAccessDenied after Revoke; the principals are gone.
// Test Case ID: REV-01
func TestRevocation_ClosesAllAccessPaths(t *testing.T) {
	if testDB == nil {
		t.Skip("Integration test requires database")
	}

	ctx := context.Background()
	s := newStack(t)

	created := createTenant(t, s, "rev")
	operator := access.Caller{Subject: "op-1", Role: access.RoleSuperAdmin}

	// Working access before revocation.
	source, _, err := s.connector.AcquireFor(ctx, operator, created.ID)
	require.NoError(t, err)
	require.NoError(t, source.Ping(ctx))

	// Capture the principal names before the catalog rows disappear.
	creds, err := s.provisioner.Credentials(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, creds, 2)

	revoked, err := s.provisioner.Revoke(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, revoked, "REV-01: Revoke should report work done")

	// CRITICAL: resolution now fails closed.
	_, _, err = s.connector.AcquireFor(ctx, operator, created.ID)
	assert.ErrorIs(t, err, access.ErrAccessDenied,
		"REV-01 SECURITY: Access after revocation MUST be denied")

	// The live principals are gone.
	roleAdmin := postgres.NewRoleAdmin(testDB)
	for _, cred := range creds {
		exists, err := roleAdmin.RoleExists(ctx, cred.Username)
		require.NoError(t, err)
		assert.False(t, exists, "REV-01: principal %s must be dropped", cred.Username)
	}

	// Second revocation is a clean no-op.
	revoked, err = s.provisioner.Revoke(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, revoked, "REV-01: Second revoke should find nothing")
}
