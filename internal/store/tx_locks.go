package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oriys/tenantgate/internal/tenant"
)

// lockTenantResource serializes guarded creations of one resource kind within
// a tenant until tx ends.
func lockTenantResource(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, kind string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, tenantID.String()+":"+kind); err != nil {
		return fmt.Errorf("acquire %s creation lock: %w", kind, err)
	}
	return nil
}

// checkCeiling rejects one more resource of kind once count reaches ceiling.
func checkCeiling(kind string, count, ceiling int64) error {
	if count >= ceiling {
		return fmt.Errorf("%s limit %d reached: %w", kind, ceiling, tenant.ErrQuotaExceeded)
	}
	return nil
}

// inTx runs fn in a transaction, committing when fn returns nil.
func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
