// Package store persists tenants, credentials, usage and tenant owned
// resources in PostgreSQL. Resource queries take their tenant filter from
// tenant.Current(ctx), never from a caller supplied id.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oriys/tenantgate/internal/tenant"
)

// Config holds connection pool settings.
type Config struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	ConnectTimeout time.Duration
	// RateLimits apply to tenants whose rate limit columns are NULL.
	RateLimits tenant.RateLimits
}

type PostgresStore struct {
	pool       *pgxpool.Pool
	rateLimits tenant.RateLimits
	now        func() time.Time
}

// NewPostgresStore connects and verifies the database. The schema is not
// touched; call Migrate for that.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required: %w", tenant.ErrInvalidConfiguration)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %v: %w", err, tenant.ErrInvalidConfiguration)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	limits := cfg.RateLimits
	if limits == (tenant.RateLimits{}) {
		limits = tenant.DefaultRateLimits()
	}
	s := &PostgresStore{pool: pool, rateLimits: limits, now: time.Now}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("postgres not initialized")
	}
	return s.pool.Ping(ctx)
}

// Migrate creates or upgrades the schema. Each statement is idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		max_monitors BIGINT NOT NULL,
		max_networks BIGINT NOT NULL,
		max_triggers_per_monitor BIGINT NOT NULL,
		max_rpc_requests_per_minute BIGINT NOT NULL,
		max_storage_mb BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS user_rate_limit BIGINT`,
	`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS user_rate_burst BIGINT`,
	`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS api_key_rate_limit BIGINT`,
	`ALTER TABLE tenants ADD COLUMN IF NOT EXISTS api_key_rate_burst BIGINT`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_memberships (
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (tenant_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tenant_memberships_user ON tenant_memberships(user_id)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		permissions JSONB NOT NULL DEFAULT '[]'::jsonb,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_used_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_tenant_active ON api_keys(tenant_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS resource_usage (
		id BIGSERIAL PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		resource_type TEXT NOT NULL,
		amount BIGINT NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		usage_date DATE NOT NULL DEFAULT CURRENT_DATE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_resource_usage_lookup ON resource_usage(tenant_id, resource_type, recorded_at DESC)`,
	`CREATE TABLE IF NOT EXISTS tenant_networks (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		network_id TEXT NOT NULL,
		name TEXT NOT NULL,
		blockchain TEXT NOT NULL,
		configuration JSONB NOT NULL DEFAULT '{}'::jsonb,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant_id, network_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_monitors (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		monitor_id TEXT NOT NULL,
		name TEXT NOT NULL,
		network_id UUID NOT NULL REFERENCES tenant_networks(id),
		configuration JSONB NOT NULL DEFAULT '{}'::jsonb,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant_id, monitor_id)
	)`,
	`CREATE TABLE IF NOT EXISTS tenant_triggers (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL REFERENCES tenants(id) ON DELETE CASCADE,
		trigger_id TEXT NOT NULL,
		monitor_id UUID NOT NULL REFERENCES tenant_monitors(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		configuration JSONB NOT NULL DEFAULT '{}'::jsonb,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (tenant_id, trigger_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tenant_triggers_monitor ON tenant_triggers(tenant_id, monitor_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		tenant_id UUID NOT NULL,
		user_id UUID,
		api_key_id UUID,
		action TEXT NOT NULL,
		resource_type TEXT,
		resource_id UUID,
		changes JSONB,
		ip_address TEXT,
		user_agent TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_logs_tenant_time ON audit_logs(tenant_id, created_at DESC)`,
}
