package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/oriys/tenantgate/internal/tenant"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func scoped(t *testing.T, tc tenant.TenantContext) context.Context {
	t.Helper()
	ctx, err := tenant.WithScope(context.Background(), tc)
	if err != nil {
		t.Fatalf("WithScope: %v", err)
	}
	return ctx
}

func apiKeyTenant(limits tenant.RateLimits) tenant.TenantContext {
	q := tenant.DefaultQuotas()
	q.RateLimits = limits
	return tenant.TenantContext{TenantID: uuid.New(), Principal: tenant.APIKeyPrincipal(uuid.New()), Quotas: q}
}

func TestLimiterFixedWindowWithBurst(t *testing.T) {
	clock := newFakeClock()
	limiter := New(NewLocalBackend(), WithClock(clock.Now))
	ctx := scoped(t, apiKeyTenant(tenant.RateLimits{APIKey: tenant.RateLimit{Limit: 2, Burst: 3}}))

	for i := 1; i <= 2; i++ {
		d, err := limiter.Allow(ctx)
		if err != nil || !d.Allowed || d.Burst {
			t.Fatalf("request %d: decision %+v, err %v", i, d, err)
		}
		if d.Count != int64(i) {
			t.Fatalf("request %d: count %d", i, d.Count)
		}
		clock.Advance(time.Second)
	}

	d, err := limiter.Allow(ctx)
	if err != nil || !d.Allowed || !d.Burst {
		t.Fatalf("third request should ride the burst: %+v, %v", d, err)
	}

	d, err = limiter.Allow(ctx)
	if !errors.Is(err, tenant.ErrTooManyRequests) {
		t.Fatalf("fourth request: expected ErrTooManyRequests, got %v", err)
	}
	if d.Allowed || d.Count != 3 {
		t.Fatalf("fourth request must be rejected without counting: %+v", d)
	}

	clock.Advance(61 * time.Second)
	d, err = limiter.Allow(ctx)
	if err != nil || !d.Allowed || d.Count != 1 {
		t.Fatalf("window must reset after 61s: %+v, %v", d, err)
	}
}

func TestLimiterWindowDoesNotSlide(t *testing.T) {
	clock := newFakeClock()
	limiter := New(nil, WithClock(clock.Now))
	ctx := scoped(t, apiKeyTenant(tenant.RateLimits{APIKey: tenant.RateLimit{Limit: 1, Burst: 1}}))

	if _, err := limiter.Allow(ctx); err != nil {
		t.Fatalf("first: %v", err)
	}
	clock.Advance(60 * time.Second)
	if _, err := limiter.Allow(ctx); !errors.Is(err, tenant.ErrTooManyRequests) {
		t.Fatalf("exactly 60s later the window is still open, got %v", err)
	}
	clock.Advance(time.Second)
	if _, err := limiter.Allow(ctx); err != nil {
		t.Fatalf("window started at first request must reset after 60s: %v", err)
	}
}

func TestLimiterWithoutScopeIsPassThrough(t *testing.T) {
	backend := &countingBackend{}
	limiter := New(backend)
	for i := 0; i < 10; i++ {
		d, err := limiter.Allow(context.Background())
		if err != nil || !d.Allowed || d.Scoped {
			t.Fatalf("unscoped request: %+v, %v", d, err)
		}
	}
	if backend.hits.Load() != 0 {
		t.Fatalf("backend consulted %d times without scope", backend.hits.Load())
	}
}

func TestLimiterSelectsPairByPrincipal(t *testing.T) {
	limits := tenant.RateLimits{
		User:   tenant.RateLimit{Limit: 5, Burst: 5},
		APIKey: tenant.RateLimit{Limit: 1, Burst: 1},
	}
	limiter := New(nil)

	q := tenant.DefaultQuotas()
	q.RateLimits = limits
	user := tenant.TenantContext{TenantID: uuid.New(), Principal: tenant.UserPrincipal(uuid.New(), "a@b.c", tenant.RoleMember), Quotas: q}
	ctx := scoped(t, user)
	for i := 0; i < 5; i++ {
		if _, err := limiter.Allow(ctx); err != nil {
			t.Fatalf("user request %d: %v", i+1, err)
		}
	}
	if _, err := limiter.Allow(ctx); !errors.Is(err, tenant.ErrTooManyRequests) {
		t.Fatalf("sixth user request: %v", err)
	}
}

func TestLimiterTenantsAreIndependent(t *testing.T) {
	limiter := New(nil)
	limits := tenant.RateLimits{APIKey: tenant.RateLimit{Limit: 1, Burst: 1}}
	a := scoped(t, apiKeyTenant(limits))
	b := scoped(t, apiKeyTenant(limits))

	if _, err := limiter.Allow(a); err != nil {
		t.Fatal(err)
	}
	if _, err := limiter.Allow(a); err == nil {
		t.Fatal("tenant a should be limited")
	}
	if _, err := limiter.Allow(b); err != nil {
		t.Fatalf("tenant b affected by tenant a: %v", err)
	}
}

func TestLocalBackendConcurrentHitsNeverExceedBurst(t *testing.T) {
	backend := NewLocalBackend()
	limit := tenant.RateLimit{Limit: 50, Burst: 80}
	now := time.Now()

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := backend.Hit(context.Background(), "tenant", limit, now)
			if d.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := admitted.Load(); got != 80 {
		t.Fatalf("admitted %d requests, want exactly burst=80", got)
	}
}

func TestLocalBackendSweep(t *testing.T) {
	backend := NewLocalBackend()
	now := time.Now()
	limit := tenant.RateLimit{Limit: 1, Burst: 1}
	backend.Hit(context.Background(), "old", limit, now.Add(-2*time.Minute))
	backend.Hit(context.Background(), "fresh", limit, now)

	if removed := backend.Sweep(now); removed != 1 {
		t.Fatalf("removed %d windows, want 1", removed)
	}
	if backend.Len() != 1 {
		t.Fatalf("expected one live window, got %d", backend.Len())
	}
}

type countingBackend struct {
	hits atomic.Int64
	err  error
}

func (b *countingBackend) Hit(_ context.Context, _ string, limit tenant.RateLimit, now time.Time) (Decision, error) {
	b.hits.Add(1)
	if b.err != nil {
		return Decision{}, b.err
	}
	return Decision{Allowed: true, Count: 1, Limit: limit, ResetAt: now.Add(Window)}, nil
}
