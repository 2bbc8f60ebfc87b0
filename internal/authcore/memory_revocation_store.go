package authcore

import (
	"context"
	"sync"
	"time"
)

type revocationEntry struct {
	Reason       string
	RecordedUnix int64
}

// MemoryRevocationStore is an in-memory revocation store for tests and
// single-process runs.
type MemoryRevocationStore struct {
	mutex       sync.Mutex
	blacklisted map[string]revocationEntry
	invalidated map[string]revocationEntry
	clock       Clock
}

// NewMemoryRevocationStore constructs an empty in-memory revocation store.
func NewMemoryRevocationStore(clock Clock) *MemoryRevocationStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryRevocationStore{
		blacklisted: make(map[string]revocationEntry),
		invalidated: make(map[string]revocationEntry),
		clock:       clock,
	}
}

// BlacklistAccessToken records the access token as revoked. Duplicate
// inserts keep the original entry.
func (store *MemoryRevocationStore) BlacklistAccessToken(ctx context.Context, token string, reason string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	key := hashToken(token)
	if _, exists := store.blacklisted[key]; exists {
		return nil
	}
	store.blacklisted[key] = revocationEntry{Reason: reason, RecordedUnix: store.clock.Now().Unix()}
	return nil
}

// IsAccessTokenBlacklisted answers membership for the access blacklist.
func (store *MemoryRevocationStore) IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	_, found := store.blacklisted[hashToken(token)]
	return found, nil
}

// InvalidateRefreshToken records the refresh token as unusable.
func (store *MemoryRevocationStore) InvalidateRefreshToken(ctx context.Context, token string, reason string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	key := hashToken(token)
	if _, exists := store.invalidated[key]; exists {
		return nil
	}
	store.invalidated[key] = revocationEntry{Reason: reason, RecordedUnix: store.clock.Now().Unix()}
	return nil
}

// IsRefreshTokenInvalidated answers membership for the invalidated set.
func (store *MemoryRevocationStore) IsRefreshTokenInvalidated(ctx context.Context, token string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	_, found := store.invalidated[hashToken(token)]
	return found, nil
}

// CleanupBlacklistedTokens drops blacklist entries past retention.
func (store *MemoryRevocationStore) CleanupBlacklistedTokens(ctx context.Context) (int, error) {
	return store.sweep(store.blacklisted, BlacklistRetention), nil
}

// CleanupInvalidatedTokens drops invalidation entries past retention.
func (store *MemoryRevocationStore) CleanupInvalidatedTokens(ctx context.Context) (int, error) {
	return store.sweep(store.invalidated, InvalidationRetention), nil
}

func (store *MemoryRevocationStore) sweep(entries map[string]revocationEntry, retention time.Duration) int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	cutoff := store.clock.Now().Add(-retention).Unix()
	removed := 0
	for key, entry := range entries {
		if entry.RecordedUnix < cutoff {
			delete(entries, key)
			removed++
		}
	}
	return removed
}
