package authcore

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const (
	redisBlacklistPrefix   = "revocation:access:"
	redisInvalidatedPrefix = "revocation:refresh:"
)

// RedisRevocationStore shares revocation state across instances through
// Redis. Entries are written with SET NX so the first writer wins, and carry
// a TTL equal to the retention window, which makes the periodic sweep a
// server-side concern.
type RedisRevocationStore struct {
	client *redis.Client
}

// NewRedisRevocationStore wraps an existing Redis client.
func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client}
}

// BlacklistAccessToken records the access token as revoked.
func (store *RedisRevocationStore) BlacklistAccessToken(ctx context.Context, token string, reason string) error {
	key := redisBlacklistPrefix + hashToken(token)
	if err := store.client.SetNX(ctx, key, reason, BlacklistRetention).Err(); err != nil {
		return fmt.Errorf("revocation_store.redis.blacklist: %w", err)
	}
	return nil
}

// IsAccessTokenBlacklisted answers membership for the access blacklist.
// Errors are returned to the caller, which treats them as revoked.
func (store *RedisRevocationStore) IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	return store.exists(ctx, redisBlacklistPrefix+hashToken(token))
}

// InvalidateRefreshToken records the refresh token as unusable.
func (store *RedisRevocationStore) InvalidateRefreshToken(ctx context.Context, token string, reason string) error {
	key := redisInvalidatedPrefix + hashToken(token)
	if err := store.client.SetNX(ctx, key, reason, InvalidationRetention).Err(); err != nil {
		return fmt.Errorf("revocation_store.redis.invalidate: %w", err)
	}
	return nil
}

// IsRefreshTokenInvalidated answers membership for the invalidated set.
func (store *RedisRevocationStore) IsRefreshTokenInvalidated(ctx context.Context, token string) (bool, error) {
	return store.exists(ctx, redisInvalidatedPrefix+hashToken(token))
}

// CleanupBlacklistedTokens is a no-op: Redis evicts entries by TTL.
func (store *RedisRevocationStore) CleanupBlacklistedTokens(ctx context.Context) (int, error) {
	return 0, nil
}

// CleanupInvalidatedTokens is a no-op: Redis evicts entries by TTL.
func (store *RedisRevocationStore) CleanupInvalidatedTokens(ctx context.Context) (int, error) {
	return 0, nil
}

func (store *RedisRevocationStore) exists(ctx context.Context, key string) (bool, error) {
	count, err := store.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("revocation_store.redis.exists: %w", err)
	}
	return count > 0, nil
}
