package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oriys/tenantgate/internal/tenant"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// mapError translates driver errors into the tenant taxonomy. notFound is
// returned for pgx.ErrNoRows.
func mapError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, tenant.ErrAlreadyExists)
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, tenant.ErrResourceNotFound)
		}
	}
	if tenant.Classify(err) != tenant.ErrInternal || errors.Is(err, tenant.ErrInternal) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, tenant.ErrInternal, err)
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

// scope returns the tenant bound to ctx. Resource queries never run without one.
func scope(ctx context.Context) (tenant.TenantContext, error) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		return tenant.TenantContext{}, fmt.Errorf("store: %w", err)
	}
	return tc, nil
}
