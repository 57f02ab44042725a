// Package ratelimit bounds requests per minute for each tenant using a fixed
// window counter with a burst ceiling. The window restarts fully 60 seconds
// after the first request seen in it, so bursts at window boundaries are
// possible.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/tenantgate/internal/logging"
	"github.com/oriys/tenantgate/internal/metrics"
	"github.com/oriys/tenantgate/internal/tenant"
)

// Window is the length of one fixed counting window.
const Window = 60 * time.Second

// Decision is the outcome of one rate limit check.
type Decision struct {
	// Allowed is true when the request may proceed.
	Allowed bool
	// Scoped is false when no tenant context was bound and the check was skipped.
	Scoped bool
	// Burst is true when the request was admitted above the steady limit.
	Burst bool
	// Count is the number of requests counted in the current window.
	Count int64
	Limit tenant.RateLimit
	// ResetAt is when the current window expires.
	ResetAt time.Time
}

// Remaining returns how many more requests the window admits.
func (d Decision) Remaining() int64 {
	if v := d.Limit.Burst - d.Count; v > 0 {
		return v
	}
	return 0
}

// Backend performs the atomic check-and-update of a fixed window counter.
type Backend interface {
	Hit(ctx context.Context, key string, limit tenant.RateLimit, now time.Time) (Decision, error)
}

// Limiter applies per-tenant request thresholds selected from the bound
// TenantContext. It is constructed once at startup and shared by handlers.
type Limiter struct {
	backend Backend
	now     func() time.Time
	prefix  string
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the limiter's time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithKeyPrefix namespaces counter keys, e.g. per deployment.
func WithKeyPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// New creates a limiter over backend. A nil backend uses a LocalBackend.
func New(backend Backend, opts ...Option) *Limiter {
	if backend == nil {
		backend = NewLocalBackend()
	}
	l := &Limiter{backend: backend, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow counts the current request against its tenant's window. Without a
// bound tenant context it admits without counting. Rejections return a
// Decision together with an error wrapping tenant.ErrTooManyRequests.
func (l *Limiter) Allow(ctx context.Context) (Decision, error) {
	tc, ok := tenant.CurrentOrNone(ctx)
	if !ok {
		metrics.RecordRateLimitDecision("none", "unscoped")
		return Decision{Allowed: true}, nil
	}

	limit := tc.RateLimit()
	d, err := l.backend.Hit(ctx, l.key(tc), limit, l.now())
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check: %w", err)
	}
	d.Scoped = true

	kind := tc.Principal.Kind.String()
	switch {
	case !d.Allowed:
		metrics.RecordRateLimitDecision(kind, "rejected")
		logging.FromContext(ctx).Debug("rate limit exceeded", "count", d.Count, "limit", limit.Limit, "burst", limit.Burst)
		return d, fmt.Errorf("tenant %s exceeded %d requests per minute: %w", tc.TenantID, limit.Limit, tenant.ErrTooManyRequests)
	case d.Burst:
		metrics.RecordRateLimitDecision(kind, "burst")
	default:
		metrics.RecordRateLimitDecision(kind, "admitted")
	}
	return d, nil
}

func (l *Limiter) key(tc tenant.TenantContext) string {
	return l.prefix + tc.TenantID.String()
}
