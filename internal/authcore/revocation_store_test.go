package authcore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestMemoryRevocationStoreMembership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	store := NewMemoryRevocationStore(clock)

	revoked, err := store.IsAccessTokenBlacklisted(ctx, "token-a")
	if err != nil || revoked {
		t.Fatalf("fresh token must not be blacklisted: %v %v", revoked, err)
	}
	if err := store.BlacklistAccessToken(ctx, "token-a", RevokeReasonLogout); err != nil {
		t.Fatalf("BlacklistAccessToken: %v", err)
	}
	revoked, err = store.IsAccessTokenBlacklisted(ctx, "token-a")
	if err != nil || !revoked {
		t.Fatalf("expected token-a blacklisted: %v %v", revoked, err)
	}
	revoked, _ = store.IsAccessTokenBlacklisted(ctx, "token-b")
	if revoked {
		t.Fatalf("token-b must not be blacklisted")
	}

	if err := store.InvalidateRefreshToken(ctx, "refresh-a", RevokeReasonRefresh); err != nil {
		t.Fatalf("InvalidateRefreshToken: %v", err)
	}
	invalidated, err := store.IsRefreshTokenInvalidated(ctx, "refresh-a")
	if err != nil || !invalidated {
		t.Fatalf("expected refresh-a invalidated: %v %v", invalidated, err)
	}
}

func TestMemoryRevocationStoreIdempotentInsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	store := NewMemoryRevocationStore(clock)

	if err := store.BlacklistAccessToken(ctx, "token", RevokeReasonLogout); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	clock.Advance(time.Hour)
	if err := store.BlacklistAccessToken(ctx, "token", RevokeReasonPasswordChange); err != nil {
		t.Fatalf("duplicate insert: %v", err)
	}
	entry := store.blacklisted[hashToken("token")]
	if entry.Reason != RevokeReasonLogout {
		t.Fatalf("duplicate insert must keep the original reason, got %q", entry.Reason)
	}
	if entry.RecordedUnix != time.Unix(1700000000, 0).Unix() {
		t.Fatalf("duplicate insert must keep the original timestamp")
	}
}

func TestMemoryRevocationStoreSweepHonorsRetention(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	store := NewMemoryRevocationStore(clock)

	if err := store.BlacklistAccessToken(ctx, "old-access", RevokeReasonTest); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if err := store.InvalidateRefreshToken(ctx, "old-refresh", RevokeReasonTest); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	// Inside both retention windows: nothing to sweep.
	clock.Advance(BlacklistRetention - time.Minute)
	removed, err := store.CleanupBlacklistedTokens(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("expected no blacklist sweep inside retention, got %d %v", removed, err)
	}

	// Past blacklist retention but inside invalidation retention.
	clock.Advance(2 * time.Minute)
	removed, err = store.CleanupBlacklistedTokens(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("expected one blacklist entry swept, got %d %v", removed, err)
	}
	removed, err = store.CleanupInvalidatedTokens(ctx)
	if err != nil || removed != 0 {
		t.Fatalf("expected invalidation entry retained, got %d %v", removed, err)
	}

	// Past the invalidation retention as well.
	clock.Advance(InvalidationRetention)
	removed, err = store.CleanupInvalidatedTokens(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("expected one invalidation entry swept, got %d %v", removed, err)
	}

	revoked, _ := store.IsAccessTokenBlacklisted(ctx, "old-access")
	if revoked {
		t.Fatalf("swept token must no longer report blacklisted")
	}
}

func newRedisStoreUnderTest(t *testing.T) (*RedisRevocationStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevocationStore(client), server
}

func TestRedisRevocationStoreMembership(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStoreUnderTest(t)

	if err := store.BlacklistAccessToken(ctx, "token-a", RevokeReasonLogout); err != nil {
		t.Fatalf("BlacklistAccessToken: %v", err)
	}
	revoked, err := store.IsAccessTokenBlacklisted(ctx, "token-a")
	if err != nil || !revoked {
		t.Fatalf("expected token-a blacklisted: %v %v", revoked, err)
	}
	revoked, err = store.IsAccessTokenBlacklisted(ctx, "token-b")
	if err != nil || revoked {
		t.Fatalf("token-b must not be blacklisted: %v %v", revoked, err)
	}

	if err := store.InvalidateRefreshToken(ctx, "refresh-a", RevokeReasonRefresh); err != nil {
		t.Fatalf("InvalidateRefreshToken: %v", err)
	}
	invalidated, err := store.IsRefreshTokenInvalidated(ctx, "refresh-a")
	if err != nil || !invalidated {
		t.Fatalf("expected refresh-a invalidated: %v %v", invalidated, err)
	}
}

func TestRedisRevocationStoreEntriesExpireByTTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, server := newRedisStoreUnderTest(t)

	if err := store.BlacklistAccessToken(ctx, "token", RevokeReasonLogout); err != nil {
		t.Fatalf("BlacklistAccessToken: %v", err)
	}
	if err := store.InvalidateRefreshToken(ctx, "refresh", RevokeReasonRefresh); err != nil {
		t.Fatalf("InvalidateRefreshToken: %v", err)
	}

	server.FastForward(BlacklistRetention + time.Minute)

	revoked, err := store.IsAccessTokenBlacklisted(ctx, "token")
	if err != nil || revoked {
		t.Fatalf("blacklist entry must expire with retention: %v %v", revoked, err)
	}
	invalidated, err := store.IsRefreshTokenInvalidated(ctx, "refresh")
	if err != nil || !invalidated {
		t.Fatalf("invalidation entry must outlive the blacklist window: %v %v", invalidated, err)
	}

	server.FastForward(InvalidationRetention)
	invalidated, err = store.IsRefreshTokenInvalidated(ctx, "refresh")
	if err != nil || invalidated {
		t.Fatalf("invalidation entry must expire with its retention: %v %v", invalidated, err)
	}
}

func TestRedisRevocationStoreReportsBackendErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, server := newRedisStoreUnderTest(t)
	server.Close()

	if _, err := store.IsAccessTokenBlacklisted(ctx, "token"); err == nil {
		t.Fatalf("expected an error from a closed backend")
	}
}

func TestRedisRevocationStoreCleanupIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStoreUnderTest(t)
	if removed, err := store.CleanupBlacklistedTokens(ctx); err != nil || removed != 0 {
		t.Fatalf("expected no-op cleanup, got %d %v", removed, err)
	}
	if removed, err := store.CleanupInvalidatedTokens(ctx); err != nil || removed != 0 {
		t.Fatalf("expected no-op cleanup, got %d %v", removed, err)
	}
}
