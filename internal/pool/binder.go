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

package pool

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
)

// TenantSettingKey is the session variable row-level-security policies read
// via current_setting() to determine the active tenant.
const TenantSettingKey = "app.current_tenant_id"

// bindTenantContext sets the session-scoped tenant identifier on a raw
// connection. HARD INVARIANT: this must run on every checkout, not only the
// first, because physical connections are reused across logical requests and
// would otherwise carry the previous request's tenant context. It is wired as
// the pool's BeforeAcquire hook; never hand out a connection that skipped it.
func bindTenantContext(ctx context.Context, conn *pgx.Conn, tenantID string) error {
	// set_config with is_local=false: the setting survives for the session,
	// and is re-asserted on the next checkout anyway.
	_, err := conn.Exec(ctx, "SELECT set_config('"+TenantSettingKey+"', $1, false)", tenantID)
	return err
}

// beforeAcquire returns the checkout hook for a source owned by tenantID.
// Each cached source serves exactly one tenant, so the tenant is fixed at
// pool construction rather than re-derived per call. Returning false makes
// pgxpool destroy the connection instead of handing it out unbound.
func beforeAcquire(tenantID string) func(ctx context.Context, conn *pgx.Conn) bool {
	return func(ctx context.Context, conn *pgx.Conn) bool {
		if err := bindTenantContext(ctx, conn, tenantID); err != nil {
			slog.ErrorContext(ctx, "failed to bind tenant context on checkout",
				logger.TenantID(tenantID), logger.Error(err))
			return false
		}
		return true
	}
}
