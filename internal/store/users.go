package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/tenant"
)

const userColumns = `id, email, password_hash, is_active, created_at, updated_at`

func (s *PostgresStore) CreateUser(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`, u.ID, u.Email, u.PasswordHash, u.IsActive).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapError("create user", err, tenant.ErrResourceNotFound)
	}
	return u, nil
}

func (s *PostgresStore) UserByEmail(ctx context.Context, email string) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapError("get user by email", err, tenant.ErrResourceNotFound)
	}
	return u, nil
}

func (s *PostgresStore) UserByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapError("get user", err, tenant.ErrResourceNotFound)
	}
	return u, nil
}
