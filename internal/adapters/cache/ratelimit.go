package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// tokenBucketScript refills and consumes a bucket atomically.
// KEYS[1] bucket key; ARGV rate (tokens/s), capacity, now (unix seconds).
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= 1 then
    tokens = tokens - 1
    allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, math.ceil(capacity / rate) + 1)
return allowed
`)

// RedisRateLimiter shares request budgets across every API replica.
type RedisRateLimiter struct {
	client *redis.Client
	rps    float64
	burst  int
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, rps float64, burst int) *RedisRateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &RedisRateLimiter{client: client, rps: rps, burst: burst, now: time.Now}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := float64(l.now().UnixMicro()) / 1e6
	allowed, err := tokenBucketScript.Run(ctx, l.client, []string{"m91:ratelimit:" + key}, l.rps, l.burst, now).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limiter: %w", err)
	}
	return allowed == 1, nil
}

// LocalRateLimiter keeps one token bucket per key in process memory.
type LocalRateLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	visitors map[string]*visitor
	idleTTL  time.Duration
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalRateLimiter(rps float64, burst int) *LocalRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &LocalRateLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		visitors: map[string]*visitor{},
		idleTTL:  3 * time.Minute,
	}
}

func (l *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Sweep drops buckets idle for longer than the idle TTL.
func (l *LocalRateLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.visitors {
		if time.Since(v.lastSeen) > l.idleTTL {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}
