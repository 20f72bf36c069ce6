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
	"errors"

	"github.com/opentrusty/tenantgate/internal/credential"
	"github.com/opentrusty/tenantgate/internal/id"
)

// Caller roles. The set is closed; anything else is rejected.
const (
	// RoleSuperAdmin operates on behalf of any tenant and must always say
	// which one explicitly. It acts as a full tenant operator, never as a
	// viewer.
	RoleSuperAdmin = "super_admin"

	// RoleTenantAdmin is bound to its own tenant at read-write privilege.
	RoleTenantAdmin = "tenant_admin"

	// RoleTenantViewer is bound to its own tenant, forced to read-only.
	RoleTenantViewer = "tenant_viewer"
)

var (
	// ErrSelectorRequired: a super-admin request arrived without an explicit
	// tenant selector. There is no default tenant context.
	ErrSelectorRequired = errors.New("tenant selector is required")

	// ErrInvalidSelector: the supplied selector is not a well-formed tenant id.
	ErrInvalidSelector = errors.New("invalid tenant selector")

	// ErrUnknownRole: the caller's role is outside the closed set.
	ErrUnknownRole = errors.New("unknown caller role")

	// ErrAccessDenied covers every refusal that must not leak detail:
	// missing credentials, missing tenant binding, revoked tenants.
	ErrAccessDenied = errors.New("access denied")
)

// Caller is the authenticated identity asking for a database handle.
// TenantID is empty for super-admins, who have no tenant of their own.
type Caller struct {
	Subject  string
	Role     string
	TenantID string
}

// Grant is the resolved (tenant, privilege) key handed to the connection
// cache.
type Grant struct {
	TenantID  string
	Privilege credential.Privilege
}

// Resolve decides which (tenant, privilege) key the caller may use.
// selector is the explicit tenant identifier supplied by the request (e.g.
// the X-Tenant-ID header); only super-admins may steer with it. For
// tenant-bound callers the selector is ignored outright, so a tenant admin
// can never impersonate another tenant by setting a header.
func Resolve(caller Caller, selector string) (Grant, error) {
	switch caller.Role {
	case RoleSuperAdmin:
		if selector == "" {
			return Grant{}, ErrSelectorRequired
		}
		if !id.Valid(selector) {
			return Grant{}, ErrInvalidSelector
		}
		return Grant{TenantID: selector, Privilege: credential.PrivilegeReadWrite}, nil

	case RoleTenantAdmin:
		if caller.TenantID == "" {
			return Grant{}, ErrAccessDenied
		}
		return Grant{TenantID: caller.TenantID, Privilege: credential.PrivilegeReadWrite}, nil

	case RoleTenantViewer:
		if caller.TenantID == "" {
			return Grant{}, ErrAccessDenied
		}
		return Grant{TenantID: caller.TenantID, Privilege: credential.PrivilegeReadOnly}, nil

	default:
		return Grant{}, ErrUnknownRole
	}
}
