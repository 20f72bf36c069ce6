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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opentrusty/tenantgate/internal/audit"
	"github.com/opentrusty/tenantgate/internal/credential"
	"github.com/opentrusty/tenantgate/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// ErrRegistryClosed is returned by Acquire after Shutdown.
var ErrRegistryClosed = errors.New("pool registry is shut down")

// Key identifies one cached connection source. A source only ever serves one
// tenant at one privilege level.
type Key struct {
	TenantID  string
	Privilege credential.Privilege
}

func (k Key) String() string {
	return k.TenantID + "/" + string(k.Privilege)
}

// Config holds the process-wide connection parameters and the fixed pool
// sizing constants shared by every tenant source.
type Config struct {
	Host     string
	Port     string
	Database string
	SSLMode  string

	// BaseConns is the steady-state pool ceiling; OverflowConns is the burst
	// allowance on top of it. MaxConns = BaseConns + OverflowConns.
	BaseConns     int32
	OverflowConns int32

	// RecycleInterval bounds connection lifetime so server-side session
	// state cannot go stale.
	RecycleInterval time.Duration

	// CheckoutTimeout bounds connection establishment (TCP, TLS, auth).
	CheckoutTimeout time.Duration

	// HealthCheckPeriod is the pre-use liveness check cadence.
	HealthCheckPeriod time.Duration
}

type entry struct {
	pool *pgxpool.Pool

	// Credentials last used to build the source, kept so an entry is fully
	// rebuildable from its key plus the credential catalog.
	username string
	secret   string
}

// Registry is the process-wide connection cache: one pooled source per
// (tenant, privilege) key. It is an explicit object constructed once at
// startup and injected into consumers; Shutdown disposes every pool, which
// makes test teardown deterministic. Entries are created on first access and
// removed only by Invalidate or Shutdown; there is no time-based eviction, so
// growth is bounded by tenant count, not request volume.
type Registry struct {
	cfg         Config
	auditLogger audit.Logger
	metrics     *registryMetrics

	mu      sync.RWMutex
	entries map[Key]*entry
	closed  bool

	// group collapses concurrent first-accesses for the same key into one
	// pool construction.
	group singleflight.Group
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config, auditLogger audit.Logger) *Registry {
	return &Registry{
		cfg:         cfg,
		auditLogger: auditLogger,
		metrics:     newRegistryMetrics(),
		entries:     make(map[Key]*entry),
	}
}

// Acquire returns the pooled connection source for key, constructing it on
// first access. Identity guarantee: every call with the same key returns the
// identical pool until it is invalidated — sources are never silently
// duplicated or recreated, so per-tenant connection ceilings hold.
func (r *Registry) Acquire(ctx context.Context, key Key, username, secret string) (*pgxpool.Pool, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, ErrRegistryClosed
	}
	if e, ok := r.entries[key]; ok {
		r.mu.RUnlock()
		return e.pool, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		// The loser of a construction race lands here after the winner
		// stored the entry; re-check before building.
		r.mu.RLock()
		if r.closed {
			r.mu.RUnlock()
			return nil, ErrRegistryClosed
		}
		if e, ok := r.entries[key]; ok {
			r.mu.RUnlock()
			return e.pool, nil
		}
		r.mu.RUnlock()

		p, err := r.buildSource(ctx, key, username, secret)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			p.Close()
			return nil, ErrRegistryClosed
		}
		r.entries[key] = &entry{pool: p, username: username, secret: secret}
		r.mu.Unlock()

		r.metrics.recordCreated(ctx, key)
		slog.InfoContext(ctx, "created tenant connection source",
			logger.PoolKey(key.String()), logger.Principal(username))
		r.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypePoolCreated,
			TenantID: key.TenantID,
			Resource: key.String(),
			Metadata: map[string]any{"privilege": string(key.Privilege)},
		})

		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pgxpool.Pool), nil
}

// buildSource constructs the pgx pool for one tenant principal with the
// fixed sizing constants and the tenant context binder as checkout hook.
func (r *Registry) buildSource(ctx context.Context, key Key, username, secret string) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		r.cfg.Host, r.cfg.Port, username, secret, r.cfg.Database, r.cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source config for %s: %w", key, err)
	}

	poolConfig.MaxConns = r.cfg.BaseConns + r.cfg.OverflowConns
	poolConfig.MinConns = 0
	poolConfig.MaxConnLifetime = r.cfg.RecycleInterval
	poolConfig.HealthCheckPeriod = r.cfg.HealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = r.cfg.CheckoutTimeout

	// The binder must fire on EVERY checkout; see binder.go.
	poolConfig.BeforeAcquire = beforeAcquire(key.TenantID)

	p, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create source for %s: %w", key, err)
	}

	return p, nil
}

// InvalidateKey disposes and removes a single cached source. pgxpool.Close
// destroys idle connections immediately and waits for checked-out ones to be
// released, so in-flight work finishes while no new checkout can occur.
func (r *Registry) InvalidateKey(ctx context.Context, key Key) {
	r.mu.Lock()
	e, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	e.pool.Close()
	r.metrics.recordDisposed(ctx, key)
	slog.InfoContext(ctx, "disposed tenant connection source", logger.PoolKey(key.String()))
	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePoolDisposed,
		TenantID: key.TenantID,
		Resource: key.String(),
	})
}

// Invalidate disposes every cached source of a tenant across all privilege
// levels. Called on credential revocation.
func (r *Registry) Invalidate(ctx context.Context, tenantID string) {
	for _, level := range credential.Levels {
		r.InvalidateKey(ctx, Key{TenantID: tenantID, Privilege: level})
	}
}

// Len returns the number of live cached sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Shutdown disposes all pools and rejects further acquisitions.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.entries
	r.entries = make(map[Key]*entry)
	r.mu.Unlock()

	for key, e := range entries {
		e.pool.Close()
		r.metrics.recordDisposed(ctx, key)
		slog.InfoContext(ctx, "disposed tenant connection source", logger.PoolKey(key.String()))
	}
}
