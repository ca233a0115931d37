//go:build integration

package middleware_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bluerise/auth-service/internal/middleware"
)

func setupRedis(t *testing.T) redis.UniversalClient {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Fatal("REDIS_ADDR must be set for integration tests")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("redis ping: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestFixedWindowBudget(t *testing.T) {
	ctx := context.Background()
	limiter := middleware.NewRedisRateLimiter(setupRedis(t), zap.NewNop(), 3, time.Minute)

	identity := "it-" + time.Now().Format("150405.000000")
	for i := 0; i < 3; i++ {
		result := limiter.Check(ctx, identity)
		require.True(t, result.Allowed)
		require.Equal(t, 3-(i+1), result.Remaining)
	}

	result := limiter.Check(ctx, identity)
	require.False(t, result.Allowed)
	require.Equal(t, 0, result.Remaining)
	require.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestFixedWindowResets(t *testing.T) {
	ctx := context.Background()
	limiter := middleware.NewRedisRateLimiter(setupRedis(t), zap.NewNop(), 1, 200*time.Millisecond)

	identity := "it-reset-" + time.Now().Format("150405.000000")
	require.True(t, limiter.Check(ctx, identity).Allowed)
	require.False(t, limiter.Check(ctx, identity).Allowed)

	time.Sleep(300 * time.Millisecond)
	require.True(t, limiter.Check(ctx, identity).Allowed)
}

func TestIdentitiesAreIsolated(t *testing.T) {
	ctx := context.Background()
	limiter := middleware.NewRedisRateLimiter(setupRedis(t), zap.NewNop(), 1, time.Minute)

	base := time.Now().Format("150405.000000")
	require.True(t, limiter.Check(ctx, "it-a-"+base).Allowed)
	require.False(t, limiter.Check(ctx, "it-a-"+base).Allowed)
	require.True(t, limiter.Check(ctx, "it-b-"+base).Allowed)
}
