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

const triggerColumns = `id, tenant_id, trigger_id, monitor_id, name, trigger_type, configuration, is_active, created_at, updated_at`

func scanTrigger(row pgx.Row) (domain.Trigger, error) {
	var (
		t   domain.Trigger
		typ string
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.TriggerID, &t.MonitorID, &t.Name, &typ, &t.Configuration, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	t.Type = domain.TriggerType(typ)
	return t, err
}

// GuardedCreateTrigger inserts t for the current tenant. The tenant wide
// trigger ceiling is max_triggers_per_monitor times the current monitor
// count; both are read under the advisory lock.
func (s *PostgresStore) GuardedCreateTrigger(ctx context.Context, t domain.Trigger) (domain.Trigger, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Trigger{}, err
	}
	t.TenantID = tc.TenantID
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if len(t.Configuration) == 0 {
		t.Configuration = json.RawMessage(`{}`)
	}

	var created domain.Trigger
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockTenantResource(ctx, tx, tc.TenantID, "triggers"); err != nil {
			return err
		}
		var (
			q                  tenant.ResourceQuotas
			monitors, triggers int64
		)
		if err := tx.QueryRow(ctx, `
			SELECT t.max_triggers_per_monitor,
				(SELECT COUNT(*) FROM tenant_monitors WHERE tenant_id = t.id),
				(SELECT COUNT(*) FROM tenant_triggers WHERE tenant_id = t.id)
			FROM tenants t WHERE t.id = $1
		`, tc.TenantID).Scan(&q.MaxTriggersPerMonitor, &monitors, &triggers); err != nil {
			return mapError("count triggers", err, tenant.ErrTenantNotFound)
		}
		if err := checkCeiling("trigger", triggers, q.TriggerCeiling(monitors)); err != nil {
			return err
		}
		var err error
		created, err = scanTrigger(tx.QueryRow(ctx, `
			INSERT INTO tenant_triggers (id, tenant_id, trigger_id, monitor_id, name, trigger_type, configuration, is_active, created_at, updated_at)
			SELECT $1::uuid, $2::uuid, $3::text, m.id, $5::text, $6::text, $7::jsonb, TRUE, NOW(), NOW()
			FROM tenant_monitors m
			WHERE m.id = $4 AND m.tenant_id = $2
			RETURNING `+triggerColumns,
			t.ID, tc.TenantID, t.TriggerID, t.MonitorID, t.Name, string(t.Type), t.Configuration))
		if err != nil {
			return mapError("create trigger", err, fmt.Errorf("monitor %s: %w", t.MonitorID, tenant.ErrResourceNotFound))
		}
		return nil
	})
	if err != nil {
		return domain.Trigger{}, err
	}
	return created, nil
}

func (s *PostgresStore) GetTrigger(ctx context.Context, id uuid.UUID) (domain.Trigger, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Trigger{}, err
	}
	t, err := scanTrigger(s.pool.QueryRow(ctx, `
		SELECT `+triggerColumns+` FROM tenant_triggers WHERE id = $1 AND tenant_id = $2
	`, id, tc.TenantID))
	if err != nil {
		return domain.Trigger{}, mapError("get trigger", err, tenant.ErrResourceNotFound)
	}
	return t, nil
}

// ListTriggers lists the current tenant's triggers. A non-nil monitorID
// restricts the list to that monitor.
func (s *PostgresStore) ListTriggers(ctx context.Context, monitorID *uuid.UUID, page domain.Page) ([]domain.Trigger, error) {
	tc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT `+triggerColumns+`
		FROM tenant_triggers
		WHERE tenant_id = $1 AND ($2::uuid IS NULL OR monitor_id = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4
	`, tc.TenantID, monitorID, page.Limit, page.Offset)
	if err != nil {
		return nil, mapError("list triggers", err, tenant.ErrResourceNotFound)
	}
	defer rows.Close()

	triggers := make([]domain.Trigger, 0)
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, mapError("scan trigger", err, tenant.ErrResourceNotFound)
		}
		triggers = append(triggers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list triggers rows", err, tenant.ErrResourceNotFound)
	}
	return triggers, nil
}

func (s *PostgresStore) UpdateTrigger(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Trigger, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Trigger{}, err
	}
	t, err := scanTrigger(s.pool.QueryRow(ctx, `
		UPDATE tenant_triggers
		SET name = COALESCE($3, name),
			configuration = COALESCE($4, configuration),
			is_active = COALESCE($5, is_active),
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+triggerColumns,
		id, tc.TenantID, upd.Name, nullableJSON(upd.Configuration), upd.IsActive))
	if err != nil {
		return domain.Trigger{}, mapError("update trigger", err, tenant.ErrResourceNotFound)
	}
	return t, nil
}

func (s *PostgresStore) DeleteTrigger(ctx context.Context, id uuid.UUID) error {
	tc, err := scope(ctx)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenant_triggers WHERE id = $1 AND tenant_id = $2`, id, tc.TenantID)
	if err != nil {
		return mapError("delete trigger", err, tenant.ErrResourceNotFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete trigger %s: %w", id, tenant.ErrResourceNotFound)
	}
	return nil
}
