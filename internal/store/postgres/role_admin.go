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
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ErrInvalidIdentifier is returned when a role or user name fails the
// allow-list check. DDL statements cannot carry identifiers as bind
// parameters, so every name is validated and quoted before interpolation.
var ErrInvalidIdentifier = errors.New("invalid database identifier")

// identPattern is the strict allow-list for role names this service manages:
// lowercase, digits and underscores, bounded by PostgreSQL's 63-byte name
// limit.
var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// RoleAdmin issues the principal DDL for provisioning and revocation. It
// implements credential.RoleAdmin on top of the administrative pool, which
// must connect as a role with CREATEROLE.
type RoleAdmin struct {
	db *DB
}

// NewRoleAdmin creates a new role admin
func NewRoleAdmin(db *DB) *RoleAdmin {
	return &RoleAdmin{db: db}
}

// quoteIdent validates name against the allow-list and returns it quoted for
// safe use in DDL.
func quoteIdent(name string) (string, error) {
	if !identPattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return pgx.Identifier{name}.Sanitize(), nil
}

// quoteLiteral returns s as a single-quoted SQL string literal. Generated
// passwords are base64url and never contain quotes, but escaping is applied
// regardless.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CreateLoginRole creates a login principal with the given password.
func (r *RoleAdmin) CreateLoginRole(ctx context.Context, username, password string) error {
	ident, err := quoteIdent(username)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, fmt.Sprintf(
		"CREATE ROLE %s LOGIN PASSWORD %s", ident, quoteLiteral(password),
	))
	if err != nil {
		return fmt.Errorf("failed to create role %s: %w", username, err)
	}
	return nil
}

// GrantRole grants the principal membership in a shared privilege role.
func (r *RoleAdmin) GrantRole(ctx context.Context, username, role string) error {
	userIdent, err := quoteIdent(username)
	if err != nil {
		return err
	}
	roleIdent, err := quoteIdent(role)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, fmt.Sprintf("GRANT %s TO %s", roleIdent, userIdent))
	if err != nil {
		return fmt.Errorf("failed to grant %s to %s: %w", role, username, err)
	}
	return nil
}

// RevokeRole revokes the principal's membership in a shared privilege role.
// Revoking a membership that no longer exists is not an error.
func (r *RoleAdmin) RevokeRole(ctx context.Context, username, role string) error {
	userIdent, err := quoteIdent(username)
	if err != nil {
		return err
	}
	roleIdent, err := quoteIdent(role)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, fmt.Sprintf("REVOKE %s FROM %s", roleIdent, userIdent))
	if err != nil {
		if IsUndefinedObject(err) {
			return nil
		}
		return fmt.Errorf("failed to revoke %s from %s: %w", role, username, err)
	}
	return nil
}

// DropRole drops a login principal. Dropping an absent role is not an error,
// which keeps revocation idempotent.
func (r *RoleAdmin) DropRole(ctx context.Context, username string) error {
	ident, err := quoteIdent(username)
	if err != nil {
		return err
	}

	_, err = r.db.pool.Exec(ctx, fmt.Sprintf("DROP ROLE IF EXISTS %s", ident))
	if err != nil {
		return fmt.Errorf("failed to drop role %s: %w", username, err)
	}
	return nil
}

// TerminateSessions kills every backend authenticated as the principal so a
// subsequent DROP ROLE cannot fail on active sessions and no revoked
// principal keeps a live connection.
func (r *RoleAdmin) TerminateSessions(ctx context.Context, username string) error {
	if !identPattern.MatchString(username) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, username)
	}

	_, err := r.db.pool.Exec(ctx, `
		SELECT pg_terminate_backend(pid)
		FROM pg_stat_activity
		WHERE usename = $1 AND pid <> pg_backend_pid()
	`, username)
	if err != nil {
		return fmt.Errorf("failed to terminate sessions for %s: %w", username, err)
	}
	return nil
}

// RoleExists reports whether a role of that name is live.
func (r *RoleAdmin) RoleExists(ctx context.Context, name string) (bool, error) {
	if !identPattern.MatchString(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}

	var exists bool
	err := r.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_roles WHERE rolname = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check role %s: %w", name, err)
	}
	return exists, nil
}

// ListRolesWithPrefix returns every live role whose name starts with prefix;
// used by reconciliation to enumerate managed principals.
func (r *RoleAdmin) ListRolesWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx,
		`SELECT rolname FROM pg_roles WHERE rolname LIKE $1 || '%' ORDER BY rolname`, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan role name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read roles: %w", err)
	}

	return names, nil
}
