package store

import (
	"context"

	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/tenant"
)

// AuditSink writes audit entries to the audit_logs table.
type AuditSink struct {
	store *PostgresStore
}

func (s *PostgresStore) AuditSink() *AuditSink {
	return &AuditSink{store: s}
}

func (a *AuditSink) Log(ctx context.Context, e audit.Entry) error {
	_, err := a.store.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, tenant_id, user_id, api_key_id, action, resource_type, resource_id, changes, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)
	`, e.ID, e.TenantID, e.UserID, e.APIKeyID, string(e.Action), string(e.ResourceType), e.ResourceID,
		nullableJSON(e.Changes), e.IPAddress, e.UserAgent, e.CreatedAt)
	return mapError("write audit entry", err, tenant.ErrTenantNotFound)
}

// ListAuditEntries returns the current tenant's most recent entries.
func (s *PostgresStore) ListAuditEntries(ctx context.Context, limit int) ([]audit.Entry, error) {
	tc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, api_key_id, action, COALESCE(resource_type, ''), resource_id, changes,
			COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM audit_logs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, tc.TenantID, limit)
	if err != nil {
		return nil, mapError("list audit entries", err, tenant.ErrResourceNotFound)
	}
	defer rows.Close()

	entries := make([]audit.Entry, 0)
	for rows.Next() {
		var (
			e                    audit.Entry
			action, resourceType string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.UserID, &e.APIKeyID, &action, &resourceType, &e.ResourceID,
			&e.Changes, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, mapError("scan audit entry", err, tenant.ErrResourceNotFound)
		}
		e.Action = audit.Action(action)
		e.ResourceType = audit.ResourceType(resourceType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list audit entries rows", err, tenant.ErrResourceNotFound)
	}
	return entries, nil
}
