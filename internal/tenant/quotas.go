package tenant

import "math"

// ResourceQuotas are the configured ceilings of a tenant. A value of 0 means
// no capacity, never unlimited.
type ResourceQuotas struct {
	MaxMonitors             int64 `json:"max_monitors"`
	MaxNetworks             int64 `json:"max_networks"`
	MaxTriggersPerMonitor   int64 `json:"max_triggers_per_monitor"`
	MaxRPCRequestsPerMinute int64 `json:"max_rpc_requests_per_minute"`
	MaxStorageMB            int64 `json:"max_storage_mb"`

	// RateLimits travels with the snapshot but is not part of the quota
	// status representation.
	RateLimits RateLimits `json:"-"`
}

// TriggerCeiling is the tenant wide trigger ceiling for the given monitor
// count. The product saturates at math.MaxInt64 instead of wrapping.
func (q ResourceQuotas) TriggerCeiling(monitors int64) int64 {
	if q.MaxTriggersPerMonitor <= 0 || monitors <= 0 {
		return 0
	}
	if q.MaxTriggersPerMonitor > math.MaxInt64/monitors {
		return math.MaxInt64
	}
	return q.MaxTriggersPerMonitor * monitors
}

// RateLimit is a per-minute request threshold with an absolute burst ceiling.
// Requests past Limit are admitted while the window count stays below Burst.
type RateLimit struct {
	Limit int64 `json:"limit"`
	Burst int64 `json:"burst"`
}

// RateLimits holds the thresholds for the two kinds of traffic.
type RateLimits struct {
	User   RateLimit `json:"user"`
	APIKey RateLimit `json:"api_key"`
}

// DefaultRateLimits are applied when no tenant specific thresholds exist.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		User:   RateLimit{Limit: 1000, Burst: 1500},
		APIKey: RateLimit{Limit: 600, Burst: 900},
	}
}

// DefaultQuotas are the ceilings given to newly created tenants.
func DefaultQuotas() ResourceQuotas {
	return ResourceQuotas{
		MaxMonitors:             10,
		MaxNetworks:             5,
		MaxTriggersPerMonitor:   10,
		MaxRPCRequestsPerMinute: 1000,
		MaxStorageMB:            1000,
		RateLimits:              DefaultRateLimits(),
	}
}

// For returns the pair applying to the given principal kind.
func (l RateLimits) For(kind PrincipalKind) RateLimit {
	if kind == PrincipalAPIKey {
		return l.APIKey
	}
	return l.User
}
