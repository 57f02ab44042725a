package quota

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

func TestDeriveNeverNegative(t *testing.T) {
	values := []int64{0, 1, 2, 3, 7, 100}
	for _, limit := range values {
		for _, used := range values {
			for _, perMonitor := range values {
				q := tenant.ResourceQuotas{
					MaxMonitors:             limit,
					MaxNetworks:             limit,
					MaxTriggersPerMonitor:   perMonitor,
					MaxRPCRequestsPerMinute: limit,
					MaxStorageMB:            limit,
				}
				u := Usage{
					MonitorsCount:         used,
					NetworksCount:         used,
					TriggersCount:         used * 2,
					RPCRequestsLastMinute: used,
					StorageMBUsed:         used,
				}
				a := Derive(uuid.Nil, q, u).Available
				if a.Monitors < 0 || a.Networks < 0 || a.Triggers < 0 || a.RPCRequestsPerMinute < 0 || a.StorageMB < 0 {
					t.Fatalf("negative availability for quotas=%+v usage=%+v: %+v", q, u, a)
				}

				want := perMonitor*used - used*2
				if want < 0 {
					want = 0
				}
				if a.Triggers != want {
					t.Fatalf("triggers = %d, want %d (per monitor %d, monitors %d)", a.Triggers, want, perMonitor, used)
				}
			}
		}
	}
}

func TestTriggersScaleWithMonitorCount(t *testing.T) {
	q := tenant.ResourceQuotas{MaxMonitors: 10, MaxTriggersPerMonitor: 3}

	if got := Derive(uuid.Nil, q, Usage{}).Available.Triggers; got != 0 {
		t.Fatalf("no monitors must leave no trigger capacity, got %d", got)
	}
	if got := Derive(uuid.Nil, q, Usage{MonitorsCount: 4, TriggersCount: 5}).Available.Triggers; got != 7 {
		t.Fatalf("triggers = %d, want 7", got)
	}
}

func TestTriggerCapacitySaturatesOnLargeCeilings(t *testing.T) {
	q := tenant.ResourceQuotas{MaxTriggersPerMonitor: math.MaxInt64/2 + 1}
	status := Derive(uuid.Nil, q, Usage{MonitorsCount: 2})
	if status.Available.Triggers != math.MaxInt64 {
		t.Fatalf("triggers = %d, want MaxInt64", status.Available.Triggers)
	}
	if !status.CanCreateTrigger() {
		t.Fatal("a huge per-monitor ceiling must not block trigger creation")
	}

	status = Derive(uuid.Nil, q, Usage{MonitorsCount: 3, TriggersCount: 10})
	if status.Available.Triggers != math.MaxInt64-10 {
		t.Fatalf("triggers = %d, want MaxInt64-10", status.Available.Triggers)
	}
}

func TestZeroMonitorQuotaBlocksCreation(t *testing.T) {
	status := Derive(uuid.Nil, tenant.ResourceQuotas{MaxMonitors: 0}, Usage{})
	if status.CanCreateMonitor() {
		t.Fatal("max_monitors=0 must block creation")
	}
}

func TestOverQuotaIsClampedAndBlocks(t *testing.T) {
	status := Derive(uuid.Nil, tenant.ResourceQuotas{MaxMonitors: 2, MaxNetworks: 1}, Usage{MonitorsCount: 5, NetworksCount: 3})
	if status.Available.Monitors != 0 || status.Available.Networks != 0 {
		t.Fatalf("expected clamped availability, got %+v", status.Available)
	}
	if status.CanCreateMonitor() || status.CanCreateNetwork() {
		t.Fatal("over quota tenant must not create more")
	}
}

func TestCapacityPredicatesUseInclusiveBound(t *testing.T) {
	status := Derive(uuid.Nil, tenant.ResourceQuotas{MaxRPCRequestsPerMinute: 10, MaxStorageMB: 50}, Usage{RPCRequestsLastMinute: 4, StorageMBUsed: 50})
	if !status.HasRPCCapacity(6) || status.HasRPCCapacity(7) {
		t.Fatalf("rpc capacity check wrong for available=%d", status.Available.RPCRequestsPerMinute)
	}
	if !status.HasStorageCapacity(0) || status.HasStorageCapacity(1) {
		t.Fatalf("storage capacity check wrong for available=%d", status.Available.StorageMB)
	}
}
