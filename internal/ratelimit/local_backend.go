package ratelimit

import (
	"context"
	"hash/maphash"
	"sync"
	"time"

	"github.com/oriys/tenantgate/internal/tenant"
)

const shardCount = 64

// LocalBackend keeps fixed window counters in process memory. Keys are spread
// over independently locked shards so unrelated tenants rarely contend.
type LocalBackend struct {
	seed   maphash.Seed
	shards [shardCount]localShard
}

type localShard struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int64
	start time.Time
}

// NewLocalBackend creates an empty in-memory backend.
func NewLocalBackend() *LocalBackend {
	b := &LocalBackend{seed: maphash.MakeSeed()}
	for i := range b.shards {
		b.shards[i].windows = make(map[string]*window)
	}
	return b
}

func (b *LocalBackend) shard(key string) *localShard {
	return &b.shards[maphash.String(b.seed, key)%shardCount]
}

// Hit applies the fixed window algorithm to key under its shard lock.
func (b *LocalBackend) Hit(_ context.Context, key string, limit tenant.RateLimit, now time.Time) (Decision, error) {
	s := b.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	d := step(w, limit, now)
	return d, nil
}

// step is the shared counting rule: a missing or expired window restarts at
// one, counts below limit increment, counts below burst increment as burst,
// everything else is rejected without counting.
func step(w *window, limit tenant.RateLimit, now time.Time) Decision {
	d := Decision{Limit: limit}
	switch {
	case w.start.IsZero() || now.Sub(w.start) > Window:
		w.count = 1
		w.start = now
		d.Allowed = true
	case w.count < limit.Limit:
		w.count++
		d.Allowed = true
	case w.count < limit.Burst:
		w.count++
		d.Allowed = true
		d.Burst = true
	}
	d.Count = w.count
	d.ResetAt = w.start.Add(Window)
	return d
}

// Sweep drops windows that expired before now and returns how many were removed.
func (b *LocalBackend) Sweep(now time.Time) int {
	removed := 0
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		for key, w := range s.windows {
			if now.Sub(w.start) > Window {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of tracked windows.
func (b *LocalBackend) Len() int {
	n := 0
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		n += len(s.windows)
		s.mu.Unlock()
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (b *LocalBackend) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			b.Sweep(now)
		}
	}
}
