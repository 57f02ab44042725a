package quota

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

type stubSource struct {
	quotas  map[uuid.UUID]tenant.ResourceQuotas
	usage   Usage
	failOn  string
	calls   atomic.Int64
	rpcFrom atomic.Value
}

func (s *stubSource) fail(name string) error {
	s.calls.Add(1)
	if s.failOn == name {
		return errors.New(name + " unavailable")
	}
	return nil
}

func (s *stubSource) TenantQuotas(_ context.Context, id uuid.UUID) (tenant.ResourceQuotas, error) {
	if err := s.fail("quotas"); err != nil {
		return tenant.ResourceQuotas{}, err
	}
	q, ok := s.quotas[id]
	if !ok {
		return tenant.ResourceQuotas{}, fmt.Errorf("tenant %s: %w", id, tenant.ErrTenantNotFound)
	}
	return q, nil
}

func (s *stubSource) CountMonitors(context.Context, uuid.UUID) (int64, error) {
	return s.usage.MonitorsCount, s.fail("monitors")
}

func (s *stubSource) CountNetworks(context.Context, uuid.UUID) (int64, error) {
	return s.usage.NetworksCount, s.fail("networks")
}

func (s *stubSource) CountTriggers(context.Context, uuid.UUID) (int64, error) {
	return s.usage.TriggersCount, s.fail("triggers")
}

func (s *stubSource) SumRPCRequestsSince(_ context.Context, _ uuid.UUID, since time.Time) (int64, error) {
	s.rpcFrom.Store(since)
	return s.usage.RPCRequestsLastMinute, s.fail("rpc")
}

func (s *stubSource) LatestStorageMB(context.Context, uuid.UUID, time.Time) (int64, error) {
	return s.usage.StorageMBUsed, s.fail("storage")
}

func newStub(id uuid.UUID, q tenant.ResourceQuotas, u Usage) *stubSource {
	return &stubSource{quotas: map[uuid.UUID]tenant.ResourceQuotas{id: q}, usage: u}
}

func TestGetQuotaStatusAggregatesUsage(t *testing.T) {
	id := uuid.New()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src := newStub(id, tenant.ResourceQuotas{
		MaxMonitors:             10,
		MaxNetworks:             5,
		MaxTriggersPerMonitor:   3,
		MaxRPCRequestsPerMinute: 1000,
		MaxStorageMB:            1000,
	}, Usage{
		MonitorsCount:         4,
		NetworksCount:         5,
		TriggersCount:         7,
		RPCRequestsLastMinute: 250,
		StorageMBUsed:         1200,
	})
	acct := NewAccountant(src, WithClock(func() time.Time { return now }))

	status, err := acct.GetQuotaStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetQuotaStatus: %v", err)
	}
	want := Available{Monitors: 6, Networks: 0, Triggers: 5, RPCRequestsPerMinute: 750, StorageMB: 0}
	if status.Available != want {
		t.Fatalf("available = %+v, want %+v", status.Available, want)
	}
	if status.TenantID != id {
		t.Fatalf("tenant id = %s, want %s", status.TenantID, id)
	}
	if since, _ := src.rpcFrom.Load().(time.Time); !since.Equal(now.Add(-RPCWindow)) {
		t.Fatalf("rpc window starts at %v, want %v", since, now.Add(-RPCWindow))
	}
}

func TestGetQuotaStatusUnknownTenant(t *testing.T) {
	acct := NewAccountant(newStub(uuid.New(), tenant.DefaultQuotas(), Usage{}))
	_, err := acct.GetQuotaStatus(context.Background(), uuid.New())
	if !errors.Is(err, tenant.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
	if errors.Is(err, tenant.ErrQuotaExceeded) {
		t.Fatal("missing tenant must not look like quota exhaustion")
	}
}

func TestGetQuotaStatusPropagatesAggregationFailure(t *testing.T) {
	id := uuid.New()
	src := newStub(id, tenant.DefaultQuotas(), Usage{})
	src.failOn = "triggers"
	_, err := NewAccountant(src).GetQuotaStatus(context.Background(), id)
	if err == nil {
		t.Fatal("expected error when trigger count fails")
	}
}

func TestCheckQuota(t *testing.T) {
	id := uuid.New()
	src := newStub(id, tenant.ResourceQuotas{MaxMonitors: 2, MaxNetworks: 1, MaxStorageMB: 100}, Usage{MonitorsCount: 1, StorageMBUsed: 40})
	acct := NewAccountant(src)
	ctx := context.Background()

	tests := []struct {
		kind   Kind
		amount int64
		want   bool
	}{
		{KindMonitors, 1, true},
		{KindMonitors, 2, false},
		{KindNetworks, 1, true},
		{KindTriggers, 1, false},
		{KindStorageMB, 60, true},
		{KindStorageMB, 61, false},
		{KindRPCRequests, 0, true},
	}
	for _, tt := range tests {
		got, err := acct.CheckQuota(ctx, id, tt.kind, tt.amount)
		if err != nil {
			t.Fatalf("CheckQuota(%s, %d): %v", tt.kind, tt.amount, err)
		}
		if got != tt.want {
			t.Errorf("CheckQuota(%s, %d) = %v, want %v", tt.kind, tt.amount, got, tt.want)
		}
	}
}

func TestCheckQuotaUnknownKind(t *testing.T) {
	id := uuid.New()
	src := newStub(id, tenant.DefaultQuotas(), Usage{})
	_, err := NewAccountant(src).CheckQuota(context.Background(), id, Kind("gpus"), 1)
	if !errors.Is(err, tenant.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}
	if errors.Is(err, tenant.ErrQuotaExceeded) {
		t.Fatal("unknown kind must not be reported as a quota failure")
	}
	if n := src.calls.Load(); n != 0 {
		t.Fatalf("unknown kind queried the source %d times", n)
	}
}

func TestPredicatesDoNotQuery(t *testing.T) {
	id := uuid.New()
	src := newStub(id, tenant.ResourceQuotas{MaxMonitors: 1, MaxTriggersPerMonitor: 1, MaxRPCRequestsPerMinute: 5}, Usage{})
	status, err := NewAccountant(src).GetQuotaStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("GetQuotaStatus: %v", err)
	}
	before := src.calls.Load()

	_ = status.CanCreateMonitor()
	_ = status.CanCreateNetwork()
	_ = status.CanCreateTrigger()
	_ = status.HasRPCCapacity(5)
	_ = status.HasStorageCapacity(1)

	if after := src.calls.Load(); after != before {
		t.Fatalf("predicates issued %d queries", after-before)
	}
}
