package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bluerise/auth-service/internal/repository"
)

const (
	refreshKeyPrefix = "refresh_token:"
	resetKeyPrefix   = "password_reset:"
)

// RedisTokenStore implements repository.TokenStore backed by Redis. TTL
// eviction ends token lifetimes; read paths additionally treat absent keys
// as revoked, so a lagging eviction never extends validity.
type RedisTokenStore struct {
	client redis.UniversalClient
}

var _ repository.TokenStore = (*RedisTokenStore)(nil)

// NewRedisTokenStore constructs a Redis-backed token store.
func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

// WhitelistRefresh registers the refresh token id for its subject. The
// entry must be committed before the token is handed to the client.
func (s *RedisTokenStore) WhitelistRefresh(ctx context.Context, tokenID string, userID int64, ttl time.Duration) error {
	key := refreshKeyPrefix + tokenID
	if err := s.client.Set(ctx, key, strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("whitelist refresh token: %w", err)
	}
	return nil
}

// IsWhitelisted reports whether the token id is outstanding and bound to
// the given subject.
func (s *RedisTokenStore) IsWhitelisted(ctx context.Context, tokenID string, userID int64) (bool, error) {
	value, err := s.client.Get(ctx, refreshKeyPrefix+tokenID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check refresh whitelist: %w", err)
	}
	return value == strconv.FormatInt(userID, 10), nil
}

// RevokeRefresh deletes the whitelist entry. A zero count means the entry
// was already gone, which callers treat as success.
func (s *RedisTokenStore) RevokeRefresh(ctx context.Context, tokenID string) (int64, error) {
	removed, err := s.client.Del(ctx, refreshKeyPrefix+tokenID).Result()
	if err != nil {
		return 0, fmt.Errorf("revoke refresh token: %w", err)
	}
	return removed, nil
}

// IssueResetToken stores the raw reset token keyed to its subject.
func (s *RedisTokenStore) IssueResetToken(ctx context.Context, rawToken string, userID int64, ttl time.Duration) error {
	key := resetKeyPrefix + rawToken
	if err := s.client.Set(ctx, key, strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}
	return nil
}

// RedeemResetToken consumes the reset token with a single GETDEL, so two
// racing redemptions can never both succeed.
func (s *RedisTokenStore) RedeemResetToken(ctx context.Context, rawToken string) (int64, error) {
	value, err := s.client.GetDel(ctx, resetKeyPrefix+rawToken).Result()
	if err == redis.Nil {
		return 0, repository.ErrTokenNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redeem reset token: %w", err)
	}
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redeem reset token: corrupt subject %q", value)
	}
	return userID, nil
}
