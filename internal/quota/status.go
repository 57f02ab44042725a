// Package quota computes per-tenant resource availability and answers
// capacity questions before mutating operations.
package quota

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

// Kind names a resource subject to quota checks.
type Kind string

const (
	KindMonitors    Kind = "monitors"
	KindNetworks    Kind = "networks"
	KindTriggers    Kind = "triggers"
	KindRPCRequests Kind = "rpc_requests"
	KindStorageMB   Kind = "storage_mb"
)

// Usage is the tenant's consumption at the time of the check.
type Usage struct {
	MonitorsCount         int64 `json:"monitors_count"`
	NetworksCount         int64 `json:"networks_count"`
	TriggersCount         int64 `json:"triggers_count"`
	RPCRequestsLastMinute int64 `json:"rpc_requests_last_minute"`
	StorageMBUsed         int64 `json:"storage_mb_used"`
}

// Available is remaining capacity. Every field is clamped at zero.
type Available struct {
	Monitors             int64 `json:"monitors"`
	Networks             int64 `json:"networks"`
	Triggers             int64 `json:"triggers"`
	RPCRequestsPerMinute int64 `json:"rpc_requests_per_minute"`
	StorageMB            int64 `json:"storage_mb"`
}

// Status is the full quota picture of one tenant.
type Status struct {
	TenantID  uuid.UUID             `json:"tenant_id"`
	Quotas    tenant.ResourceQuotas `json:"quotas"`
	Usage     Usage                 `json:"usage"`
	Available Available             `json:"available"`
}

// Derive combines configured ceilings with observed usage. Triggers are
// bounded by the per-monitor ceiling times the number of monitors.
func Derive(tenantID uuid.UUID, quotas tenant.ResourceQuotas, usage Usage) Status {
	return Status{
		TenantID: tenantID,
		Quotas:   quotas,
		Usage:    usage,
		Available: Available{
			Monitors:             remaining(quotas.MaxMonitors, usage.MonitorsCount),
			Networks:             remaining(quotas.MaxNetworks, usage.NetworksCount),
			Triggers:             remaining(quotas.TriggerCeiling(usage.MonitorsCount), usage.TriggersCount),
			RPCRequestsPerMinute: remaining(quotas.MaxRPCRequestsPerMinute, usage.RPCRequestsLastMinute),
			StorageMB:            remaining(quotas.MaxStorageMB, usage.StorageMBUsed),
		},
	}
}

func remaining(limit, used int64) int64 {
	if v := limit - used; v > 0 {
		return v
	}
	return 0
}

// AvailableFor returns the remaining capacity for kind.
func (s Status) AvailableFor(kind Kind) (int64, error) {
	switch kind {
	case KindMonitors:
		return s.Available.Monitors, nil
	case KindNetworks:
		return s.Available.Networks, nil
	case KindTriggers:
		return s.Available.Triggers, nil
	case KindRPCRequests:
		return s.Available.RPCRequestsPerMinute, nil
	case KindStorageMB:
		return s.Available.StorageMB, nil
	default:
		return 0, fmt.Errorf("unknown resource kind %q: %w", kind, tenant.ErrInvalidConfiguration)
	}
}

func (s Status) CanCreateMonitor() bool { return s.Available.Monitors > 0 }

func (s Status) CanCreateNetwork() bool { return s.Available.Networks > 0 }

func (s Status) CanCreateTrigger() bool { return s.Available.Triggers > 0 }

// HasRPCCapacity reports whether n more RPC requests fit in the current minute.
func (s Status) HasRPCCapacity(n int64) bool { return s.Available.RPCRequestsPerMinute >= n }

// HasStorageCapacity reports whether mb more megabytes fit in today's budget.
func (s Status) HasStorageCapacity(mb int64) bool { return s.Available.StorageMB >= mb }
