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

const networkColumns = `id, tenant_id, network_id, name, blockchain, configuration, is_active, created_at, updated_at`

func scanNetwork(row pgx.Row) (domain.Network, error) {
	var n domain.Network
	err := row.Scan(&n.ID, &n.TenantID, &n.NetworkID, &n.Name, &n.Blockchain, &n.Configuration, &n.IsActive, &n.CreatedAt, &n.UpdatedAt)
	return n, err
}

// GuardedCreateNetwork inserts n for the current tenant unless the tenant
// already holds max_networks networks.
func (s *PostgresStore) GuardedCreateNetwork(ctx context.Context, n domain.Network) (domain.Network, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Network{}, err
	}
	n.TenantID = tc.TenantID
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if len(n.Configuration) == 0 {
		n.Configuration = json.RawMessage(`{}`)
	}

	var created domain.Network
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockTenantResource(ctx, tx, tc.TenantID, "networks"); err != nil {
			return err
		}
		var ceiling, count int64
		if err := tx.QueryRow(ctx, `
			SELECT t.max_networks, (SELECT COUNT(*) FROM tenant_networks WHERE tenant_id = t.id)
			FROM tenants t WHERE t.id = $1
		`, tc.TenantID).Scan(&ceiling, &count); err != nil {
			return mapError("count networks", err, tenant.ErrTenantNotFound)
		}
		if err := checkCeiling("network", count, ceiling); err != nil {
			return err
		}
		var err error
		created, err = scanNetwork(tx.QueryRow(ctx, `
			INSERT INTO tenant_networks (id, tenant_id, network_id, name, blockchain, configuration, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
			RETURNING `+networkColumns,
			n.ID, tc.TenantID, n.NetworkID, n.Name, n.Blockchain, n.Configuration))
		if err != nil {
			return mapError("create network", err, tenant.ErrResourceNotFound)
		}
		return nil
	})
	if err != nil {
		return domain.Network{}, err
	}
	return created, nil
}

func (s *PostgresStore) GetNetwork(ctx context.Context, id uuid.UUID) (domain.Network, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Network{}, err
	}
	n, err := scanNetwork(s.pool.QueryRow(ctx, `
		SELECT `+networkColumns+` FROM tenant_networks WHERE id = $1 AND tenant_id = $2
	`, id, tc.TenantID))
	if err != nil {
		return domain.Network{}, mapError("get network", err, tenant.ErrResourceNotFound)
	}
	return n, nil
}

func (s *PostgresStore) ListNetworks(ctx context.Context, page domain.Page) ([]domain.Network, error) {
	tc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	page = page.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT `+networkColumns+`
		FROM tenant_networks
		WHERE tenant_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, tc.TenantID, page.Limit, page.Offset)
	if err != nil {
		return nil, mapError("list networks", err, tenant.ErrResourceNotFound)
	}
	defer rows.Close()

	networks := make([]domain.Network, 0)
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, mapError("scan network", err, tenant.ErrResourceNotFound)
		}
		networks = append(networks, n)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list networks rows", err, tenant.ErrResourceNotFound)
	}
	return networks, nil
}

func (s *PostgresStore) UpdateNetwork(ctx context.Context, id uuid.UUID, upd domain.UpdateRequest) (domain.Network, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.Network{}, err
	}
	n, err := scanNetwork(s.pool.QueryRow(ctx, `
		UPDATE tenant_networks
		SET name = COALESCE($3, name),
			configuration = COALESCE($4, configuration),
			is_active = COALESCE($5, is_active),
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+networkColumns,
		id, tc.TenantID, upd.Name, nullableJSON(upd.Configuration), upd.IsActive))
	if err != nil {
		return domain.Network{}, mapError("update network", err, tenant.ErrResourceNotFound)
	}
	return n, nil
}

// DeleteNetwork removes a network. Networks still referenced by monitors
// cannot be deleted.
func (s *PostgresStore) DeleteNetwork(ctx context.Context, id uuid.UUID) error {
	tc, err := scope(ctx)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM tenant_networks WHERE id = $1 AND tenant_id = $2`, id, tc.TenantID)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("network %s is in use by monitors: %w", id, tenant.ErrValidation)
	}
	if err != nil {
		return mapError("delete network", err, tenant.ErrResourceNotFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete network %s: %w", id, tenant.ErrResourceNotFound)
	}
	return nil
}
