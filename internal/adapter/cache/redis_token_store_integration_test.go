//go:build integration

package cache_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/bluerise/auth-service/internal/adapter/cache"
	"github.com/bluerise/auth-service/internal/repository"
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

func TestRefreshWhitelistLifecycle(t *testing.T) {
	ctx := context.Background()
	store := cache.NewRedisTokenStore(setupRedis(t))

	tokenID := "it-refresh-" + time.Now().Format("150405.000000")
	require.NoError(t, store.WhitelistRefresh(ctx, tokenID, 42, time.Minute))

	ok, err := store.IsWhitelisted(ctx, tokenID, 42)
	require.NoError(t, err)
	require.True(t, ok)

	// Wrong subject is not whitelisted even though the entry exists.
	ok, err = store.IsWhitelisted(ctx, tokenID, 43)
	require.NoError(t, err)
	require.False(t, ok)

	removed, err := store.RevokeRefresh(ctx, tokenID)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	ok, err = store.IsWhitelisted(ctx, tokenID, 42)
	require.NoError(t, err)
	require.False(t, ok)

	// Revoking again is a no-op, not an error.
	removed, err = store.RevokeRefresh(ctx, tokenID)
	require.NoError(t, err)
	require.Equal(t, int64(0), removed)
}

func TestRefreshWhitelistExpiry(t *testing.T) {
	ctx := context.Background()
	store := cache.NewRedisTokenStore(setupRedis(t))

	tokenID := "it-expiry-" + time.Now().Format("150405.000000")
	require.NoError(t, store.WhitelistRefresh(ctx, tokenID, 42, 100*time.Millisecond))

	time.Sleep(200 * time.Millisecond)

	ok, err := store.IsWhitelisted(ctx, tokenID, 42)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResetTokenSingleRedemption(t *testing.T) {
	ctx := context.Background()
	store := cache.NewRedisTokenStore(setupRedis(t))

	raw := "it-reset-" + time.Now().Format("150405.000000")
	require.NoError(t, store.IssueResetToken(ctx, raw, 7, time.Minute))

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.RedeemResetToken(ctx, raw)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, repository.ErrTokenNotFound)
		}
	}
	require.Equal(t, 1, wins)
}
