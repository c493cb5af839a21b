package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// newTestLimiter needs a Redis on localhost:6379 and skips otherwise.
func newTestLimiter(t *testing.T) *Limiter {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}

	logger := zerolog.Nop()
	l := NewLimiter(client, &logger)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAllowWithinWindow(t *testing.T) {
	l := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "pulsechat:test:rl:" + t.Name() + ":", Limit: 3, Window: time.Second}
	t.Cleanup(func() { l.client.Del(ctx, rule.Key+"alice") })

	for i := 0; i < 3; i++ {
		ok, err := l.Allow(ctx, "alice", rule)
		require.NoError(t, err)
		require.True(t, ok, "request %d", i)
	}
	ok, err := l.Allow(ctx, "alice", rule)
	require.NoError(t, err)
	require.False(t, ok)

	remaining, err := l.Remaining(ctx, "alice", rule)
	require.NoError(t, err)
	require.Zero(t, remaining)

	require.Eventually(t, func() bool {
		ok, _ := l.Allow(ctx, "alice", rule)
		return ok
	}, 3*time.Second, 100*time.Millisecond)
}

func TestAllowFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	logger := zerolog.Nop()
	l := NewLimiter(client, &logger)
	t.Cleanup(func() { _ = l.Close() })

	ok, err := l.Allow(context.Background(), "alice", MessageRule(1, time.Minute))
	require.Error(t, err)
	require.True(t, ok)

	remaining, err := l.Remaining(context.Background(), "alice", MessageRule(5, time.Minute))
	require.Error(t, err)
	require.Equal(t, 5, remaining)
}
