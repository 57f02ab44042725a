package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oriys/tenantgate/internal/tenant"
)

func TestFallbackBackendDegradesAndRecovers(t *testing.T) {
	primary := &countingBackend{err: errors.New("connection refused")}
	fb := NewFallbackBackend(primary)
	limit := tenant.RateLimit{Limit: 1, Burst: 1}
	now := time.Now()

	d, err := fb.Hit(context.Background(), "t", limit, now)
	if err != nil || !d.Allowed {
		t.Fatalf("first hit should be served locally: %+v, %v", d, err)
	}
	if !fb.Degraded() {
		t.Fatal("expected degraded mode after primary failure")
	}

	d, _ = fb.Hit(context.Background(), "t", limit, now.Add(time.Second))
	if d.Allowed {
		t.Fatal("local fallback must keep counting")
	}

	primary.err = nil
	before := primary.hits.Load()
	fb.Hit(context.Background(), "t", limit, now.Add(2*time.Second))
	if primary.hits.Load() != before {
		t.Fatal("primary probed before the probe interval elapsed")
	}

	d, err = fb.Hit(context.Background(), "t", limit, now.Add(defaultProbeInterval+3*time.Second))
	if err != nil || !d.Allowed {
		t.Fatalf("hit after recovery: %+v, %v", d, err)
	}
	if fb.Degraded() {
		t.Fatal("expected recovery once the primary answers")
	}
}
