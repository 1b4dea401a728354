package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

func TestLocalCacheExpiresEntries(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLocalCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	require.ErrorIs(t, err, ports.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	require.ErrorIs(t, err, ports.ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	require.NoError(t, c.Delete(ctx, "forever"))
	_, err = c.Get(ctx, "forever")
	require.ErrorIs(t, err, ports.ErrCacheMiss)
}

func TestLocalRateLimiterBurstPerKey(t *testing.T) {
	l := NewLocalRateLimiter(0.001, 2)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "brand-a")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "brand-a")
	assert.False(t, ok)
	ok, _ = l.Allow(ctx, "brand-b")
	assert.True(t, ok, "buckets are independent per key")

	l.idleTTL = 0
	time.Sleep(time.Millisecond)
	assert.Equal(t, 2, l.Sweep())
}

func TestLocalWindowLimiterSlidesOverWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewLocalWindowLimiter(10, 24*time.Hour).WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		ok, err := l.Allow(ctx, "key-a")
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i)
		now = now.Add(time.Hour)
	}
	ok, _ := l.Allow(ctx, "key-a")
	assert.False(t, ok, "eleventh hit inside 24h")
	ok, _ = l.Allow(ctx, "key-b")
	assert.True(t, ok, "windows are independent per key")

	// the first hit leaves the window after 24h
	now = now.Add(14*time.Hour + time.Minute)
	ok, _ = l.Allow(ctx, "key-a")
	assert.True(t, ok)
	ok, _ = l.Allow(ctx, "key-a")
	assert.False(t, ok)

	now = now.Add(48 * time.Hour)
	assert.Equal(t, 2, l.Sweep())
}

func TestRedisRateLimiter(t *testing.T) {
	url := os.Getenv("M91_TEST_REDIS_URL")
	if url == "" {
		t.Skip("M91_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	key := "test-" + time.Now().Format("150405.000000")
	l := NewRedisRateLimiter(client, 0.001, 3)
	allowed := 0
	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	rc := NewRedisCache(client, "m91test:")
	_, err = rc.Get(ctx, key)
	require.ErrorIs(t, err, ports.ErrCacheMiss)
	require.NoError(t, rc.Set(ctx, key, "brand", time.Minute))
	got, err := rc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "brand", got)
	require.NoError(t, rc.Delete(ctx, key))

	w := NewRedisWindowLimiter(client, 2, time.Minute)
	allowed = 0
	for i := 0; i < 4; i++ {
		ok, err := w.Allow(ctx, key)
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 2, allowed)
}
