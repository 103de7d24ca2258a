package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLimiterWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	l, err := NewRedis(client, "reset:", resetBudget())
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		d, err := l.Allow(ctx, "a@x.com")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	d, err := l.Allow(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, 59*time.Minute)

	// Denied calls do not extend the count.
	v, err := mr.Get("reset:a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "5", v)

	mr.FastForward(61 * time.Minute)
	d, err = l.Allow(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRedisLimiterBackendDown(t *testing.T) {
	mr, client := newTestRedis(t)
	l, err := NewRedis(client, "", resetBudget())
	require.NoError(t, err)

	mr.Close()
	_, err = l.Allow(context.Background(), "k")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestRedisLimiterReset(t *testing.T) {
	_, client := newTestRedis(t)
	l, err := NewRedis(client, "", Config{Limit: 1, Window: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "k")
	require.False(t, d.Allowed)

	require.NoError(t, l.Reset(ctx, "k"))
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}
