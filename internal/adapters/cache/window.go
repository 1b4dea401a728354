package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript admits a hit when fewer than limit hits fall inside the
// window ending now.
// KEYS[1] window key; ARGV now (ms), window (ms), limit, member.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
if redis.call("ZCARD", key) >= limit then
    return 0
end
redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, window)
return 1
`)

// RedisWindowLimiter counts hits per key over a sliding window shared by
// every replica. Activations per license key go through it.
type RedisWindowLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisWindowLimiter(client *redis.Client, limit int, window time.Duration) *RedisWindowLimiter {
	return &RedisWindowLimiter{client: client, limit: limit, window: window, now: time.Now}
}

func (l *RedisWindowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now().UnixMilli()
	allowed, err := slidingWindowScript.Run(ctx, l.client,
		[]string{"m91:window:" + key},
		now, l.window.Milliseconds(), l.limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("redis window limiter: %w", err)
	}
	return allowed == 1, nil
}

// LocalWindowLimiter keeps the hit times of each key in process memory.
type LocalWindowLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewLocalWindowLimiter(limit int, window time.Duration) *LocalWindowLimiter {
	return &LocalWindowLimiter{limit: limit, window: window, hits: map[string][]time.Time{}, now: time.Now}
}

// WithClock replaces the limiter's time source.
func (l *LocalWindowLimiter) WithClock(now func() time.Time) *LocalWindowLimiter {
	l.now = now
	return l
}

func (l *LocalWindowLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	items := pruneTimes(l.hits[key], now.Add(-l.window))
	if len(items) >= l.limit {
		l.hits[key] = items
		return false, nil
	}
	l.hits[key] = append(items, now)
	return true, nil
}

// Sweep drops keys with no hit inside the window.
func (l *LocalWindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	windowStart := l.now().Add(-l.window)
	removed := 0
	for key, items := range l.hits {
		if len(pruneTimes(items, windowStart)) == 0 {
			delete(l.hits, key)
			removed++
		}
	}
	return removed
}

func pruneTimes(items []time.Time, min time.Time) []time.Time {
	out := make([]time.Time, 0, len(items))
	for _, item := range items {
		if item.After(min) {
			out = append(out, item)
		}
	}
	return out
}
