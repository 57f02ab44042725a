package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/oriys/tenantgate/internal/tenant"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript atomically applies the fixed window rule to one hash.
//
// Keys: KEYS[1] = window key
// Args: ARGV[1] = limit, ARGV[2] = burst, ARGV[3] = now (unix microseconds),
// ARGV[4] = window length (microseconds)
// Returns: [allowed (0/1), burst (0/1), count, window start]
var fixedWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local window = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "count", "start")
local count = tonumber(state[1])
local start = tonumber(state[2])

local allowed = 0
local over = 0
if count == nil or (now - start) > window then
    count = 1
    start = now
    allowed = 1
elseif count < limit then
    count = count + 1
    allowed = 1
elseif count < burst then
    count = count + 1
    allowed = 1
    over = 1
end

redis.call("HSET", key, "count", string.format("%d", count), "start", string.format("%d", start))
redis.call("PEXPIRE", key, math.ceil(window / 1000) * 2)

return {allowed, over, count, start}
`)

// RedisBackend shares fixed window counters between instances through Redis.
type RedisBackend struct {
	client redis.Scripter
	prefix string
}

// NewRedisBackend creates a Redis-backed rate limiting backend.
func NewRedisBackend(client redis.Scripter) *RedisBackend {
	return &RedisBackend{
		client: client,
		prefix: "tenantgate:rl:",
	}
}

// Hit runs the window script atomically on Redis. The script resets the
// window once more than Window has elapsed since its start.
func (b *RedisBackend) Hit(ctx context.Context, key string, limit tenant.RateLimit, now time.Time) (Decision, error) {
	result, err := fixedWindowScript.Run(ctx, b.client, []string{b.prefix + key},
		limit.Limit, limit.Burst, now.UnixMicro(), Window.Microseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit check: %w", err)
	}
	if len(result) != 4 {
		return Decision{}, fmt.Errorf("redis rate limit check: unexpected reply length %d", len(result))
	}

	start := time.UnixMicro(result[3])
	return Decision{
		Allowed: result[0] == 1,
		Burst:   result[1] == 1,
		Count:   result[2],
		Limit:   limit,
		ResetAt: start.Add(Window),
	}, nil
}
