package credential

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Get(ctx context.Context, tenantID string, priv Privilege) (*Credential, error) {
	args := m.Called(ctx, tenantID, priv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Credential), args.Error(1)
}

func (m *mockStore) Put(ctx context.Context, cred *Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *mockStore) Delete(ctx context.Context, tenantID string, priv Privilege) error {
	args := m.Called(ctx, tenantID, priv)
	return args.Error(0)
}

func (m *mockStore) ListByTenant(ctx context.Context, tenantID string) ([]*Credential, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Credential), args.Error(1)
}

func (m *mockStore) ListAll(ctx context.Context) ([]*Credential, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Credential), args.Error(1)
}

type mockRoleAdmin struct {
	mock.Mock
}

func (m *mockRoleAdmin) CreateLoginRole(ctx context.Context, username, password string) error {
	args := m.Called(ctx, username, password)
	return args.Error(0)
}

func (m *mockRoleAdmin) GrantRole(ctx context.Context, username, role string) error {
	args := m.Called(ctx, username, role)
	return args.Error(0)
}

func (m *mockRoleAdmin) RevokeRole(ctx context.Context, username, role string) error {
	args := m.Called(ctx, username, role)
	return args.Error(0)
}

func (m *mockRoleAdmin) DropRole(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *mockRoleAdmin) TerminateSessions(ctx context.Context, username string) error {
	args := m.Called(ctx, username)
	return args.Error(0)
}

func (m *mockRoleAdmin) RoleExists(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}

func (m *mockRoleAdmin) ListRolesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) Invalidate(ctx context.Context, tenantID string) {
	m.Called(ctx, tenantID)
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) Log(ctx context.Context, event audit.Event) {
	m.Called(ctx, event)
}

func newTestProvisioner(t *testing.T, store *mockStore, roles *mockRoleAdmin, pools *mockInvalidator) *Provisioner {
	t.Helper()
	cipher, err := secrets.NewCipher("test-master-secret")
	require.NoError(t, err)
	auditLogger := new(mockAudit)
	auditLogger.On("Log", mock.Anything, mock.Anything).Return().Maybe()
	return NewProvisioner(store, roles, cipher, pools, auditLogger)
}

// TestPurpose: Validates that provisioning creates one principal and one catalog row per privilege level.
// Scope: Unit Test
// Security: Least-privilege principal creation
// Expected: CREATE ROLE, GRANT and catalog Put are issued for both read_write and read_only.
// Test Case ID: PRV-01
func TestCredential_Provisioner_Ensure_ProvisionsBothLevels(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	tenantID := "0192a1b2-0000-7000-8000-000000000001"
	store.On("Get", ctx, tenantID, PrivilegeReadWrite).Return(nil, ErrCredentialNotFound)
	store.On("Get", ctx, tenantID, PrivilegeReadOnly).Return(nil, ErrCredentialNotFound)

	roles.On("CreateLoginRole", ctx, mock.MatchedBy(func(u string) bool {
		return strings.HasPrefix(u, "tg_0192a1b2_")
	}), mock.MatchedBy(func(pw string) bool {
		// 32 bytes of entropy, base64url without padding.
		return len(pw) == 43
	})).Return(nil).Twice()
	roles.On("GrantRole", ctx, mock.Anything, RoleReadWrite).Return(nil).Once()
	roles.On("GrantRole", ctx, mock.Anything, RoleReadOnly).Return(nil).Once()

	store.On("Put", ctx, mock.MatchedBy(func(c *Credential) bool {
		return c.TenantID == tenantID && c.Privilege.Valid() &&
			c.EncryptedSecret != "" && strings.HasPrefix(c.Username, "tg_")
	})).Return(nil).Twice()

	err := p.Ensure(ctx, tenantID)
	assert.NoError(t, err)
	roles.AssertExpectations(t)
	store.AssertExpectations(t)
}

// TestPurpose: Validates that provisioning is idempotent for already-provisioned tenants.
// Scope: Unit Test
// Security: No duplicate principals or catalog rows
// Expected: When credentials exist for both levels, no DDL and no Put are issued.
// Test Case ID: PRV-02
func TestCredential_Provisioner_Ensure_Idempotent(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	tenantID := "tenant-a"
	store.On("Get", ctx, tenantID, PrivilegeReadWrite).Return(&Credential{TenantID: tenantID, Privilege: PrivilegeReadWrite}, nil)
	store.On("Get", ctx, tenantID, PrivilegeReadOnly).Return(&Credential{TenantID: tenantID, Privilege: PrivilegeReadOnly}, nil)

	err := p.Ensure(ctx, tenantID)
	assert.NoError(t, err)
	roles.AssertNotCalled(t, "CreateLoginRole", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

// TestPurpose: Validates that a catalog write failure does not leave a live principal behind.
// Scope: Unit Test
// Security: Two-phase provisioning fault containment
// Expected: When Put fails, the just-created principal is dropped and the error is surfaced.
// Test Case ID: PRV-03
func TestCredential_Provisioner_Ensure_CompensatesOnCatalogFailure(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	tenantID := "tenant-b"
	store.On("Get", ctx, tenantID, PrivilegeReadWrite).Return(nil, ErrCredentialNotFound)

	var created string
	roles.On("CreateLoginRole", ctx, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		created = args.String(1)
	}).Return(nil).Once()
	roles.On("GrantRole", ctx, mock.Anything, RoleReadWrite).Return(nil).Once()
	store.On("Put", ctx, mock.Anything).Return(errors.New("unique violation")).Once()
	roles.On("DropRole", ctx, mock.MatchedBy(func(u string) bool {
		return u == created
	})).Return(nil).Once()

	err := p.Ensure(ctx, tenantID)
	assert.Error(t, err)
	roles.AssertExpectations(t)
}

// TestPurpose: Validates that a grant failure drops the half-provisioned principal.
// Scope: Unit Test
// Security: No login principal may exist without its privilege-role membership
// Expected: When GRANT fails, DROP ROLE is issued and no catalog row is written.
// Test Case ID: PRV-04
func TestCredential_Provisioner_Ensure_DropsPrincipalOnGrantFailure(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	tenantID := "tenant-c"
	store.On("Get", ctx, tenantID, PrivilegeReadWrite).Return(nil, ErrCredentialNotFound)
	roles.On("CreateLoginRole", ctx, mock.Anything, mock.Anything).Return(nil).Once()
	roles.On("GrantRole", ctx, mock.Anything, RoleReadWrite).Return(errors.New("role missing")).Once()
	roles.On("DropRole", ctx, mock.Anything).Return(nil).Once()

	err := p.Ensure(ctx, tenantID)
	assert.Error(t, err)
	store.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
	roles.AssertExpectations(t)
}

// TestPurpose: Validates full revocation: sessions terminated, grants revoked, principals dropped, rows deleted, pools invalidated.
// Scope: Unit Test
// Security: Revocation completeness (no residual access path)
// Expected: Every step runs per credential and the connection cache is invalidated for the tenant.
// Test Case ID: PRV-05
func TestCredential_Provisioner_Revoke_Complete(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	tenantID := "tenant-d"
	creds := []*Credential{
		{TenantID: tenantID, Privilege: PrivilegeReadWrite, Username: "tg_tenantd_rw_aa"},
		{TenantID: tenantID, Privilege: PrivilegeReadOnly, Username: "tg_tenantd_ro_bb"},
	}
	store.On("ListByTenant", ctx, tenantID).Return(creds, nil)

	for _, c := range creds {
		roles.On("TerminateSessions", ctx, c.Username).Return(nil).Once()
		roles.On("RevokeRole", ctx, c.Username, c.Privilege.GrantRole()).Return(nil).Once()
		roles.On("DropRole", ctx, c.Username).Return(nil).Once()
		store.On("Delete", ctx, tenantID, c.Privilege).Return(nil).Once()
	}
	pools.On("Invalidate", ctx, tenantID).Return().Once()

	revoked, err := p.Revoke(ctx, tenantID)
	assert.NoError(t, err)
	assert.True(t, revoked)
	roles.AssertExpectations(t)
	store.AssertExpectations(t)
	pools.AssertExpectations(t)
}

// TestPurpose: Validates that revoking an unprovisioned tenant is a harmless no-op.
// Scope: Unit Test
// Security: Idempotent revocation
// Expected: Returns revoked=false without error; no DDL is issued.
// Test Case ID: PRV-06
func TestCredential_Provisioner_Revoke_NothingToRevoke(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	store.On("ListByTenant", ctx, "ghost").Return([]*Credential{}, nil)
	pools.On("Invalidate", ctx, "ghost").Return().Once()

	revoked, err := p.Revoke(ctx, "ghost")
	assert.NoError(t, err)
	assert.False(t, revoked)
	roles.AssertNotCalled(t, "DropRole", mock.Anything, mock.Anything)
}

// TestPurpose: Validates that the administrative credential disclosure returns decrypted pairs.
// Scope: Unit Test
// Security: Privileged-only secret disclosure path
// Expected: Stored encrypted secrets come back as the original plaintext passwords.
// Test Case ID: PRV-07
func TestCredential_Provisioner_Credentials_Decrypts(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	cipher, err := secrets.NewCipher("test-master-secret")
	require.NoError(t, err)
	auditLogger := new(mockAudit)
	auditLogger.On("Log", mock.Anything, mock.Anything).Return().Maybe()
	p := NewProvisioner(store, roles, cipher, pools, auditLogger)
	ctx := context.Background()

	encrypted, err := cipher.Encrypt("pw-original")
	require.NoError(t, err)
	store.On("ListByTenant", ctx, "tenant-e").Return([]*Credential{
		{TenantID: "tenant-e", Privilege: PrivilegeReadWrite, Username: "tg_u", EncryptedSecret: encrypted},
	}, nil)

	plain, err := p.Credentials(ctx, "tenant-e")
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Equal(t, "pw-original", plain[0].Password)
	assert.Equal(t, "tg_u", plain[0].Username)
}

// TestPurpose: Validates that an undecryptable stored secret is surfaced as an error, not skipped.
// Scope: Unit Test
// Security: Corrupted key material must be loud
// Expected: Credentials() fails with the cipher's decryption error.
// Test Case ID: PRV-08
func TestCredential_Provisioner_Credentials_DecryptFailureSurfaced(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	otherCipher, err := secrets.NewCipher("different-master-secret")
	require.NoError(t, err)
	foreign, err := otherCipher.Encrypt("pw")
	require.NoError(t, err)

	store.On("ListByTenant", ctx, "tenant-f").Return([]*Credential{
		{TenantID: "tenant-f", Privilege: PrivilegeReadOnly, Username: "tg_v", EncryptedSecret: foreign},
	}, nil)

	_, err = p.Credentials(ctx, "tenant-f")
	assert.ErrorIs(t, err, secrets.ErrDecryptionFailed)
}

// TestPurpose: Validates drift detection in both directions between catalog and live principals.
// Scope: Unit Test
// Security: Detects the two-phase provisioning fault window
// Expected: A live role without a row and a row without a live role are both reported.
// Test Case ID: PRV-09
func TestCredential_Provisioner_Reconcile_ReportsDrift(t *testing.T) {
	store := new(mockStore)
	roles := new(mockRoleAdmin)
	pools := new(mockInvalidator)
	p := newTestProvisioner(t, store, roles, pools)
	ctx := context.Background()

	store.On("ListAll", ctx).Return([]*Credential{
		{Username: "tg_matched_rw_01"},
		{Username: "tg_rowonly_ro_02"},
	}, nil)
	roles.On("ListRolesWithPrefix", ctx, "tg_").Return([]string{
		"tg_matched_rw_01",
		"tg_orphan_rw_03",
	}, nil)

	report, err := p.Reconcile(ctx)
	require.NoError(t, err)
	assert.False(t, report.Clean())
	assert.Equal(t, []string{"tg_orphan_rw_03"}, report.OrphanedPrincipals)
	require.Len(t, report.OrphanedRows, 1)
	assert.Equal(t, "tg_rowonly_ro_02", report.OrphanedRows[0].Username)
}
