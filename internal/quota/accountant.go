package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/observability"
	"github.com/oriys/tenantgate/internal/tenant"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// RPCWindow is the trailing window over which RPC usage is summed.
const RPCWindow = 60 * time.Second

// Source is the counting service behind the accountant. Implementations
// return tenant.ErrTenantNotFound from TenantQuotas for unknown tenants.
type Source interface {
	TenantQuotas(ctx context.Context, tenantID uuid.UUID) (tenant.ResourceQuotas, error)
	CountMonitors(ctx context.Context, tenantID uuid.UUID) (int64, error)
	CountNetworks(ctx context.Context, tenantID uuid.UUID) (int64, error)
	CountTriggers(ctx context.Context, tenantID uuid.UUID) (int64, error)
	SumRPCRequestsSince(ctx context.Context, tenantID uuid.UUID, since time.Time) (int64, error)
	LatestStorageMB(ctx context.Context, tenantID uuid.UUID, day time.Time) (int64, error)
}

// Accountant computes quota status fresh on every call. Nothing is cached.
type Accountant struct {
	source Source
	now    func() time.Time
}

// Option configures an Accountant.
type Option func(*Accountant)

// WithClock overrides the time source used for the RPC window and storage day.
func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

// NewAccountant returns an accountant reading from source.
func NewAccountant(source Source, opts ...Option) *Accountant {
	a := &Accountant{source: source, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetQuotaStatus fetches the tenant's ceilings and aggregates its usage.
func (a *Accountant) GetQuotaStatus(ctx context.Context, tenantID uuid.UUID) (Status, error) {
	ctx, span := observability.StartSpan(ctx, "quota.status", observability.AttrTenantID.String(tenantID.String()))
	defer span.End()

	quotas, err := a.source.TenantQuotas(ctx, tenantID)
	if err != nil {
		observability.SetSpanError(span, err)
		return Status{}, fmt.Errorf("load quotas: %w", err)
	}

	now := a.now().UTC()
	var usage Usage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := a.source.CountMonitors(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("count monitors: %w", err)
		}
		usage.MonitorsCount = n
		return nil
	})
	g.Go(func() error {
		n, err := a.source.CountNetworks(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("count networks: %w", err)
		}
		usage.NetworksCount = n
		return nil
	})
	g.Go(func() error {
		n, err := a.source.CountTriggers(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("count triggers: %w", err)
		}
		usage.TriggersCount = n
		return nil
	})
	g.Go(func() error {
		n, err := a.source.SumRPCRequestsSince(gctx, tenantID, now.Add(-RPCWindow))
		if err != nil {
			return fmt.Errorf("sum rpc usage: %w", err)
		}
		usage.RPCRequestsLastMinute = n
		return nil
	})
	g.Go(func() error {
		n, err := a.source.LatestStorageMB(gctx, tenantID, now)
		if err != nil {
			return fmt.Errorf("storage usage: %w", err)
		}
		usage.StorageMBUsed = n
		return nil
	})
	if err := g.Wait(); err != nil {
		observability.SetSpanError(span, err)
		return Status{}, err
	}

	return Derive(tenantID, quotas, usage), nil
}

// CheckQuota reports whether amount more of kind fit within the tenant's
// remaining capacity. Unknown kinds yield tenant.ErrInvalidConfiguration
// before any query runs.
func (a *Accountant) CheckQuota(ctx context.Context, tenantID uuid.UUID, kind Kind, amount int64) (bool, error) {
	if _, err := (Status{}).AvailableFor(kind); err != nil {
		return false, err
	}
	trace.SpanFromContext(ctx).SetAttributes(observability.AttrQuotaKind.String(string(kind)))
	status, err := a.GetQuotaStatus(ctx, tenantID)
	if err != nil {
		return false, err
	}
	available, err := status.AvailableFor(kind)
	if err != nil {
		return false, err
	}
	return available >= amount, nil
}
