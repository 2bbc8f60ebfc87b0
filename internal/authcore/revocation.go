package authcore

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
)

// Revocation reasons recorded alongside blacklist and invalidation entries.
const (
	RevokeReasonLogout         = "logout"
	RevokeReasonRefresh        = "refresh"
	RevokeReasonPasswordChange = "password_change"
	RevokeReasonTest           = "test"
)

// RevocationStore tracks access tokens revoked before expiry and refresh
// tokens retired by rotation or session teardown. Inserts are idempotent.
//
// Membership reads return (revoked, err). Callers enforce the fail-secure
// policy: a non-nil err must be treated as revoked, while remaining
// distinguishable from a genuine hit for logging and metrics.
//
// Retention must exceed the corresponding token's maximum lifetime
// (BlacklistRetention and InvalidationRetention); a record collected while
// its token could still verify would reopen a revoked token.
type RevocationStore interface {
	BlacklistAccessToken(ctx context.Context, token string, reason string) error
	IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error)
	InvalidateRefreshToken(ctx context.Context, token string, reason string) error
	IsRefreshTokenInvalidated(ctx context.Context, token string) (bool, error)
	// CleanupBlacklistedTokens deletes blacklist entries older than
	// BlacklistRetention and reports how many were removed.
	CleanupBlacklistedTokens(ctx context.Context) (int, error)
	// CleanupInvalidatedTokens deletes invalidation entries older than
	// InvalidationRetention and reports how many were removed.
	CleanupInvalidatedTokens(ctx context.Context) (int, error)
}

// hashToken fingerprints a token value so raw credentials never sit in the
// revocation store.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
