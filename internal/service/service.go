// Package service applies tenant governance to monitor, network and trigger
// management: role checks, quota checks ahead of creation, guarded inserts
// and audit records.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/audit"
	"github.com/oriys/tenantgate/internal/domain"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/quota"
	"github.com/oriys/tenantgate/internal/tenant"
)

// QuotaChecker answers capacity questions. *quota.Accountant implements it.
type QuotaChecker interface {
	CheckQuota(ctx context.Context, tenantID uuid.UUID, kind quota.Kind, amount int64) (bool, error)
}

type governor struct {
	quotas QuotaChecker
	audit  *audit.Recorder
}

func newGovernor(quotas QuotaChecker, recorder *audit.Recorder) governor {
	if recorder == nil {
		recorder = audit.NewRecorder(nil)
	}
	return governor{quotas: quotas, audit: recorder}
}

// writeScope returns the bound tenant when its principal may write.
func writeScope(ctx context.Context) (tenant.TenantContext, error) {
	tc, err := tenant.Current(ctx)
	if err != nil {
		return tenant.TenantContext{}, err
	}
	if !tc.CanWrite() {
		return tenant.TenantContext{}, fmt.Errorf("role %q cannot modify resources: %w", tc.Principal.Role, tenant.ErrForbidden)
	}
	return tc, nil
}

// reserve checks that one more resource of kind fits the tenant's quota.
func (g governor) reserve(ctx context.Context, tc tenant.TenantContext, kind quota.Kind) error {
	ok, err := g.quotas.CheckQuota(ctx, tc.TenantID, kind, 1)
	if err != nil {
		return fmt.Errorf("check %s quota: %w", kind, err)
	}
	metrics.RecordQuotaDecision(string(kind), ok)
	if !ok {
		return fmt.Errorf("%s quota exhausted: %w", kind, tenant.ErrQuotaExceeded)
	}
	return nil
}

// updateAction picks the audit action for an update. A request that only
// toggles is_active is recorded as enable or disable.
func updateAction(upd domain.UpdateRequest, updated, enabled, disabled audit.Action) audit.Action {
	if upd.IsActive != nil && upd.Name == nil && len(upd.Configuration) == 0 {
		if *upd.IsActive {
			return enabled
		}
		return disabled
	}
	return updated
}
