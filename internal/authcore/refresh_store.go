package authcore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"
)

var (
	// ErrRefreshTokenNotFound indicates no refresh token matched the value.
	ErrRefreshTokenNotFound = errors.New("refresh_store.not_found")
	// ErrRefreshTokenRevoked indicates the refresh token has been revoked.
	ErrRefreshTokenRevoked = errors.New("refresh_store.revoked")
	// ErrRefreshTokenExpired indicates the refresh token exceeded its expiry.
	ErrRefreshTokenExpired = errors.New("refresh_store.expired")
	// ErrRefreshTokenEmpty indicates the presented token text is empty.
	ErrRefreshTokenEmpty = errors.New("refresh_store.empty_token")
)

// RefreshTokenStore tracks rotating refresh tokens. The credential itself is
// a signed JWT minted by the codec; the store records only its sha256
// fingerprint, so a leaked store never yields a usable token.
type RefreshTokenStore interface {
	// Issue records a freshly minted token for the subject, optionally
	// chained to the token it replaces.
	Issue(ctx context.Context, subjectID string, token string, expiresUnix int64, previousTokenID string) (tokenID string, err error)
	// Validate resolves a presented token to its subject. Revoked and
	// expired tokens fail with the matching sentinel.
	Validate(ctx context.Context, token string) (subjectID string, tokenID string, expiresUnix int64, err error)
	// Revoke retires a token. The write is conditional on the token being
	// live, so concurrent rotations admit exactly one winner: the loser
	// receives ErrRefreshTokenRevoked. Teardown callers that only need the
	// token gone ignore that sentinel.
	Revoke(ctx context.Context, tokenID string, reason string) error
	// RevokeAllForSubject retires every live token for the subject except
	// the one named by exceptTokenID (empty to spare none) and reports how
	// many were revoked.
	RevokeAllForSubject(ctx context.Context, subjectID string, reason string, exceptTokenID string) (int, error)
}

// newRefreshTokenID derives an identifier from the issue time plus a
// random fragment, so identical timestamps never collide.
func newRefreshTokenID(now time.Time) string {
	nowString := now.UTC().Format(time.RFC3339Nano)
	fragment := make([]byte, 4)
	_, _ = rand.Read(fragment)
	return base64.RawURLEncoding.EncodeToString([]byte(nowString)) +
		"-" + base64.RawURLEncoding.EncodeToString(fragment)
}
