package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/tenant"
)

const (
	defaultProbeInterval = 5 * time.Second
	probeKey             = "probe:health"
)

// probeLimit never rejects, so a probe only tests reachability.
var probeLimit = tenant.RateLimit{Limit: 1 << 30, Burst: 1 << 30}

// FallbackBackend serves from a shared primary (Redis) and switches to
// per-process counters while the primary fails. In degraded mode it probes
// the primary at most once per interval and switches back when it answers.
// Counters are not merged on recovery: each window restarts on the primary.
type FallbackBackend struct {
	primary Backend
	local   *LocalBackend

	interval  time.Duration
	degraded  atomic.Bool
	nextProbe atomic.Int64 // unix nanos
	probing   sync.Mutex
}

// NewFallbackBackend wraps primary with a local fallback.
func NewFallbackBackend(primary Backend) *FallbackBackend {
	return &FallbackBackend{
		primary:  primary,
		local:    NewLocalBackend(),
		interval: defaultProbeInterval,
	}
}

func (f *FallbackBackend) Hit(ctx context.Context, key string, limit tenant.RateLimit, now time.Time) (Decision, error) {
	if f.degraded.Load() && !f.tryRecover(ctx, now) {
		return f.local.Hit(ctx, key, limit, now)
	}

	d, err := f.primary.Hit(ctx, key, limit, now)
	if err == nil {
		return d, nil
	}
	if f.degraded.CompareAndSwap(false, true) {
		logging.Op().Warn("rate limit primary failed, counting locally", "error", err)
		metrics.SetRateLimitDegraded(true)
	}
	f.nextProbe.Store(now.Add(f.interval).UnixNano())
	return f.local.Hit(ctx, key, limit, now)
}

// tryRecover probes the primary when the interval has passed. Concurrent
// callers skip the probe rather than wait for it.
func (f *FallbackBackend) tryRecover(ctx context.Context, now time.Time) bool {
	if now.UnixNano() < f.nextProbe.Load() || !f.probing.TryLock() {
		return false
	}
	defer f.probing.Unlock()

	f.nextProbe.Store(now.Add(f.interval).UnixNano())
	if _, err := f.primary.Hit(context.WithoutCancel(ctx), probeKey, probeLimit, now); err != nil {
		return false
	}
	f.degraded.Store(false)
	metrics.SetRateLimitDegraded(false)
	logging.Op().Info("rate limit primary recovered")
	return true
}

// Degraded reports whether decisions currently come from local counters.
func (f *FallbackBackend) Degraded() bool {
	return f.degraded.Load()
}

// Local exposes the fallback counters so the caller can sweep them.
func (f *FallbackBackend) Local() *LocalBackend {
	return f.local
}
