package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
)

const tenantColumns = `id, name, slug, is_active,
	max_monitors, max_networks, max_triggers_per_monitor, max_rpc_requests_per_minute, max_storage_mb,
	user_rate_limit, user_rate_burst, api_key_rate_limit, api_key_rate_burst,
	created_at, updated_at`

// CreateTenant inserts a tenant. When owner is set the user becomes its owner
// in the same transaction.
func (s *PostgresStore) CreateTenant(ctx context.Context, t domain.Tenant, owner *uuid.UUID) (domain.Tenant, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := s.now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	q := t.Quotas

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO tenants (id, name, slug, is_active,
				max_monitors, max_networks, max_triggers_per_monitor, max_rpc_requests_per_minute, max_storage_mb,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		`, t.ID, t.Name, t.Slug, t.IsActive,
			q.MaxMonitors, q.MaxNetworks, q.MaxTriggersPerMonitor, q.MaxRPCRequestsPerMinute, q.MaxStorageMB, now)
		if err != nil {
			return mapError("create tenant", err, tenant.ErrTenantNotFound)
		}
		if owner != nil {
			if err := addMembership(ctx, tx, t.ID, *owner, tenant.RoleOwner); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Tenant{}, err
	}
	q.RateLimits = s.rateLimits
	t.Quotas = q
	return t, nil
}

// TenantByRef looks a tenant up by id or slug.
func (s *PostgresStore) TenantByRef(ctx context.Context, ref string) (domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	var arg any = ref
	if id, err := uuid.Parse(ref); err == nil {
		query = `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
		arg = id
	}
	t, err := s.scanTenant(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return domain.Tenant{}, mapError("get tenant", err, tenant.ErrTenantNotFound)
	}
	return t, nil
}

// TenantQuotas returns the configured ceilings of a tenant.
func (s *PostgresStore) TenantQuotas(ctx context.Context, tenantID uuid.UUID) (tenant.ResourceQuotas, error) {
	t, err := s.scanTenant(s.pool.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID))
	if err != nil {
		return tenant.ResourceQuotas{}, mapError("get tenant quotas", err, tenant.ErrTenantNotFound)
	}
	return t.Quotas, nil
}

// SetTenantActive enables or disables a tenant.
func (s *PostgresStore) SetTenantActive(ctx context.Context, tenantID uuid.UUID, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tenants SET is_active = $2, updated_at = NOW() WHERE id = $1`, tenantID, active)
	if err != nil {
		return mapError("update tenant", err, tenant.ErrTenantNotFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tenant %s: %w", tenantID, tenant.ErrTenantNotFound)
	}
	return nil
}

// SetTenantRateLimits overrides the tenant's rate limit pairs.
func (s *PostgresStore) SetTenantRateLimits(ctx context.Context, tenantID uuid.UUID, limits tenant.RateLimits) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants
		SET user_rate_limit = $2, user_rate_burst = $3, api_key_rate_limit = $4, api_key_rate_burst = $5, updated_at = NOW()
		WHERE id = $1
	`, tenantID, limits.User.Limit, limits.User.Burst, limits.APIKey.Limit, limits.APIKey.Burst)
	if err != nil {
		return mapError("update tenant rate limits", err, tenant.ErrTenantNotFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tenant rate limits %s: %w", tenantID, tenant.ErrTenantNotFound)
	}
	return nil
}

func (s *PostgresStore) scanTenant(row pgx.Row) (domain.Tenant, error) {
	var (
		t                    domain.Tenant
		userLimit, userBurst sql.NullInt64
		keyLimit, keyBurst   sql.NullInt64
		createdAt, updatedAt time.Time
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.IsActive,
		&t.Quotas.MaxMonitors, &t.Quotas.MaxNetworks, &t.Quotas.MaxTriggersPerMonitor,
		&t.Quotas.MaxRPCRequestsPerMinute, &t.Quotas.MaxStorageMB,
		&userLimit, &userBurst, &keyLimit, &keyBurst,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Tenant{}, err
	}
	t.CreatedAt, t.UpdatedAt = createdAt, updatedAt

	limits := s.rateLimits
	if userLimit.Valid && userBurst.Valid {
		limits.User = tenant.RateLimit{Limit: userLimit.Int64, Burst: userBurst.Int64}
	}
	if keyLimit.Valid && keyBurst.Valid {
		limits.APIKey = tenant.RateLimit{Limit: keyLimit.Int64, Burst: keyBurst.Int64}
	}
	t.Quotas.RateLimits = limits
	return t, nil
}

// AddMembership grants a user a role in a tenant, replacing any previous role.
func (s *PostgresStore) AddMembership(ctx context.Context, tenantID, userID uuid.UUID, role tenant.Role) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return addMembership(ctx, tx, tenantID, userID, role)
	})
}

func addMembership(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, role tenant.Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q: %w", role, tenant.ErrValidation)
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO tenant_memberships (tenant_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET role = EXCLUDED.role
	`, tenantID, userID, string(role))
	return mapError("add membership", err, tenant.ErrResourceNotFound)
}

// MembershipRole returns the user's role in the tenant.
func (s *PostgresStore) MembershipRole(ctx context.Context, tenantID, userID uuid.UUID) (tenant.Role, error) {
	var raw string
	err := s.pool.QueryRow(ctx, `
		SELECT role FROM tenant_memberships WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID).Scan(&raw)
	if err != nil {
		return "", mapError("get membership", err, tenant.ErrResourceNotFound)
	}
	role, err := tenant.ParseRole(raw)
	if err != nil {
		return "", fmt.Errorf("stored role: %w: %v", tenant.ErrInternal, err)
	}
	return role, nil
}

// UserMemberships lists every tenant a user belongs to.
func (s *PostgresStore) UserMemberships(ctx context.Context, userID uuid.UUID) ([]domain.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.slug, m.role
		FROM tenant_memberships m
		JOIN tenants t ON t.id = m.tenant_id
		WHERE m.user_id = $1 AND t.is_active
		ORDER BY t.name
	`, userID)
	if err != nil {
		return nil, mapError("list memberships", err, tenant.ErrResourceNotFound)
	}
	defer rows.Close()

	memberships := make([]domain.Membership, 0)
	for rows.Next() {
		var (
			m    domain.Membership
			role string
		)
		if err := rows.Scan(&m.TenantID, &m.TenantName, &m.TenantSlug, &role); err != nil {
			return nil, mapError("scan membership", err, tenant.ErrResourceNotFound)
		}
		m.Role = tenant.Role(role)
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list memberships rows", err, tenant.ErrResourceNotFound)
	}
	return memberships, nil
}
