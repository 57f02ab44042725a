package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
)

const monitorColumns = `id, tenant_id, monitor_id, name, network_id, configuration, is_active, created_at, updated_at`

func scanMonitor(row pgx.Row) (domain.Monitor, error) {
	var m domain.Monitor
	err := row.Scan(&m.ID, &m.TenantID, &m.MonitorID, &m.Name, &m.NetworkID, &m.Configuration, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

// GuardedCreateMonitor inserts m for the current tenant unless the tenant
// already holds max_monitors monitors. The ceiling is read, and the count
// taken, under a per tenant advisory lock in the inserting transaction.
func (s *PostgresStore) GuardedCreateMonitor(ctx context.Context, m domain.Monitor) (domain.Monitor, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Monitor{}, err
	}
	m.TenantID = tc.TenantID
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if len(m.Configuration) == 0 {
		m.Configuration = json.RawMessage(`{}`)
	}

	var created domain.Monitor
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockTenantResource(ctx, tx, tc.TenantID, "monitors"); err != nil {
			return err
		}
		var ceiling, count int64
		if err := tx.QueryRow(ctx, `
			SELECT t.max_monitors, (SELECT COUNT(*) FROM tenant_monitors WHERE tenant_id = t.id)
			FROM tenants t WHERE t.id = $1
		`, tc.TenantID).Scan(&ceiling, &count); err != nil {
			return mapError("count monitors", err, tenant.ErrTenantNotFound)
		}
		if err := checkCeiling("monitor", count, ceiling); err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO tenant_monitors (id, tenant_id, monitor_id, name, network_id, configuration, is_active, created_at, updated_at)
			SELECT $1::uuid, $2::uuid, $3::text, $4::text, n.id, $6::jsonb, TRUE, NOW(), NOW()
			FROM tenant_networks n
			WHERE n.id = $5 AND n.tenant_id = $2
			RETURNING `+monitorColumns,
			m.ID, tc.TenantID, m.MonitorID, m.Name, m.NetworkID, m.Configuration)
		var err error
		created, err = scanMonitor(row)
		if err != nil {
			return mapError("create monitor", err, fmt.Errorf("network %s: %w", m.NetworkID, tenant.ErrResourceNotFound))
		}
		return nil
	})
	if err != nil {
		return domain.Monitor{}, err
	}
	return created, nil
}

func (s *PostgresStore) GetMonitor(ctx context.Context, id uuid.UUID) (domain.Monitor, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Monitor{}, err
	}
	m, err := scanMonitor(s.pool.QueryRow(ctx, `
		SELECT `+monitorColumns+` FROM tenant_monitors WHERE id = $1 AND tenant_id = $2
	`, id, tc.TenantID))
	if err != nil {
		return domain.Monitor{}, mapError("get monitor", err, tenant.ErrResourceNotFound)
	}
	return m, nil
}

func (s *PostgresStore) ListMonitors(ctx context.Context, page domain.Page) ([]domain.Monitor, error) {
	tc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT `+monitorColumns+`
		FROM tenant_monitors
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, tc.TenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, mapError("list monitors", err, tenant.ErrResourceNotFound)
	}
	defer rows.Close()

	monitors := make([]domain.Monitor, 0)
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, mapError("scan monitor", err, tenant.ErrResourceNotFound)
		}
		monitors = append(monitors, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list monitors rows", err, tenant.ErrResourceNotFound)
	}
	return monitors, nil
}

func (s *PostgresStore) UpdateMonitor(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Monitor, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Monitor{}, err
	}
	m, err := scanMonitor(s.pool.QueryRow(ctx, `
		UPDATE tenant_monitors
		SET name = COALESCE($3, name),
			configuration = COALESCE($4, configuration),
			is_active = COALESCE($5, is_active),
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+monitorColumns,
		id, tc.TenantID, upd.Name, nullableJSON(upd.Configuration), upd.IsActive))
	if err != nil {
		return domain.Monitor{}, mapError("update monitor", err, tenant.ErrResourceNotFound)
	}
	return m, nil
}

// DeleteMonitor removes a monitor and, by cascade, its triggers.
func (s *PostgresStore) DeleteMonitor(ctx context.Context, id uuid.UUID) error {
	tc, err := scope(ctx)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenant_monitors WHERE id = $1 AND tenant_id = $2`, id, tc.TenantID)
	if err != nil {
		return mapError("delete monitor", err, tenant.ErrResourceNotFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete monitor %s: %w", id, tenant.ErrResourceNotFound)
	}
	return nil
}

// nullableJSON maps an absent document to SQL NULL so COALESCE keeps the
// stored value.
func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
