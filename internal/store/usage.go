package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

// Usage resource types recorded in resource_usage.
const (
	UsageRPCRequests = "rpc_requests"
	UsageStorageMB   = "storage_mb"
)

func (s *PostgresStore) count(ctx context.Context, table string, tenantID uuid.UUID) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE tenant_id = $1`, tenantID).Scan(&n); err != nil {
		return 0, mapError("count "+table, err, tenant.ErrTenantNotFound)
	}
	return n, nil
}

func (s *PostgresStore) CountMonitors(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return s.count(ctx, "tenant_monitors", tenantID)
}

func (s *PostgresStore) CountNetworks(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return s.count(ctx, "tenant_networks", tenantID)
}

func (s *PostgresStore) CountTriggers(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	return s.count(ctx, "tenant_triggers", tenantID)
}

// SumRPCRequestsSince sums rpc_requests usage recorded after since.
func (s *PostgresStore) SumRPCRequestsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::BIGINT
		FROM resource_usage
		WHERE tenant_id = $1 AND resource_type = $2 AND recorded_at > $3
	`, tenantID, UsageRPCRequests, since).Scan(&n)
	if err != nil {
		return 0, mapError("sum rpc usage", err, tenant.ErrTenantNotFound)
	}
	return n, nil
}

// LatestStorageMB returns the most recent storage record for day, or zero.
func (s *PostgresStore) LatestStorageMB(ctx context.Context, tenantID uuid.UUID, day time.Time) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE((
			SELECT amount FROM resource_usage
			WHERE tenant_id = $1 AND resource_type = $2 AND usage_date = $3::date
			ORDER BY recorded_at DESC
			LIMIT 1
		), 0)::BIGINT
	`, tenantID, UsageStorageMB, day.UTC().Format("2006-01-02")).Scan(&n)
	if err != nil {
		return 0, mapError("latest storage usage", err, tenant.ErrTenantNotFound)
	}
	return n, nil
}

// RecordUsage appends one usage row.
func (s *PostgresStore) RecordUsage(ctx context.Context, tenantID uuid.UUID, resourceType string, amount int64, at time.Time) error {
	at = at.UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO resource_usage (tenant_id, resource_type, amount, recorded_at, usage_date)
		VALUES ($1, $2, $3, $4, $5::date)
	`, tenantID, resourceType, amount, at, at.Format("2006-01-02"))
	return mapError("record usage", err, tenant.ErrTenantNotFound)
}
