package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
)

const apiKeyColumns = `id, tenant_id, name, key_hash, permissions, is_active, last_used_at, expires_at, created_at`

// CreateAPIKey stores a key for the tenant bound to ctx.
func (s *PostgresStore) CreateAPIKey(ctx context.Context, key domain.APIKey) (domain.APIKey, error) {
	tc, err := scope(ctx)
	if err != nil {
		return domain.APIKey{}, err
	}
	return s.InsertAPIKey(ctx, tc.TenantID, key)
}

// InsertAPIKey stores a key for an explicit tenant. It backs administrative
// tooling that runs outside a request scope.
func (s *PostgresStore) InsertAPIKey(ctx context.Context, tenantID uuid.UUID, key domain.APIKey) (domain.APIKey, error) {
	key.TenantID = tenantID
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	perms, err := json.Marshal(key.Permissions)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("encode permissions: %w", err)
	}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO api_keys (id, tenant_id, name, key_hash, permissions, is_active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING created_at
	`, key.ID, key.TenantID, key.Name, key.KeyHash, perms, key.IsActive, key.ExpiresAt).Scan(&key.CreatedAt)
	if err != nil {
		return domain.APIKey{}, mapError("create api key", err, tenant.ErrTenantNotFound)
	}
	return key, nil
}

// ListAPIKeys lists the current tenant's keys, newest first.
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	tc, err := scope(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tc.TenantID)
	if err != nil {
		return nil, mapError("list api keys", err, tenant.ErrResourceNotFound)
	}
	return collectAPIKeys(rows)
}

// RevokeAPIKey deactivates a key of the current tenant.
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tc, err := scope(ctx)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE api_keys SET is_active = FALSE WHERE id = $1 AND tenant_id = $2`, id, tc.TenantID)
	if err != nil {
		return mapError("revoke api key", err, tenant.ErrResourceNotFound)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("revoke api key %s: %w", id, tenant.ErrResourceNotFound)
	}
	return nil
}

// ActiveAPIKeys lists a tenant's active keys that have not expired.
func (s *PostgresStore) ActiveAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]domain.APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM api_keys
		WHERE tenant_id = $1 AND is_active AND (expires_at IS NULL OR expires_at > NOW())
	`, tenantID)
	if err != nil {
		return nil, mapError("list active api keys", err, tenant.ErrResourceNotFound)
	}
	return collectAPIKeys(rows)
}

func (s *PostgresStore) TouchAPIKey(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, keyID, at)
	return mapError("touch api key", err, tenant.ErrResourceNotFound)
}

func collectAPIKeys(rows pgx.Rows) ([]domain.APIKey, error) {
	defer rows.Close()
	keys := make([]domain.APIKey, 0)
	for rows.Next() {
		var (
			k     domain.APIKey
			perms []byte
		)
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &perms, &k.IsActive, &k.LastUsedAt, &k.ExpiresAt, &k.CreatedAt); err != nil {
			return nil, mapError("scan api key", err, tenant.ErrResourceNotFound)
		}
		if len(perms) > 0 {
			if err := json.Unmarshal(perms, &k.Permissions); err != nil {
				return nil, fmt.Errorf("decode permissions: %w: %v", tenant.ErrInternal, err)
			}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("list api keys rows", err, tenant.ErrResourceNotFound)
	}
	return keys, nil
}
