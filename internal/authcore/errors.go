package authcore

import "errors"

// Authentication failures. All of these map to HTTP 401; handler messages
// never disclose whether an email is registered.
var (
	// ErrNoToken indicates no bearer token accompanied the request.
	ErrNoToken = errors.New("auth.no_token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth.token_expired")
	// ErrTokenInvalid indicates a tampered, malformed, or wrongly-typed token.
	ErrTokenInvalid = errors.New("auth.token_invalid")
	// ErrTokenRevoked indicates the access token was blacklisted before expiry.
	ErrTokenRevoked = errors.New("auth.token_revoked")
	// ErrIdentityMismatch indicates the token subject no longer resolves to a
	// usable identity.
	ErrIdentityMismatch = errors.New("auth.identity_mismatch")
	// ErrInvalidCredentials indicates a failed email/password verification.
	ErrInvalidCredentials = errors.New("auth.invalid_credentials")
	// ErrCurrentPasswordIncorrect indicates the acting user's current password
	// did not verify during a password change.
	ErrCurrentPasswordIncorrect = errors.New("auth.current_password_incorrect")
)

// Refresh failures.
var (
	// ErrRefreshExpired indicates the presented refresh token outlived its TTL.
	ErrRefreshExpired = errors.New("auth.refresh_expired")
	// ErrRefreshInvalidated indicates the presented refresh token was rotated
	// away or revoked, including the loser of a concurrent rotation race.
	ErrRefreshInvalidated = errors.New("auth.refresh_invalidated")
)

// Identity gateway failures.
var (
	// ErrDuplicateIdentity indicates the email is already registered.
	ErrDuplicateIdentity = errors.New("gateway.duplicate_identity")
	// ErrIdentityNotFound indicates no identity matches the subject.
	ErrIdentityNotFound = errors.New("gateway.identity_not_found")
	// ErrBackendUnavailable wraps transport-level gateway failures.
	ErrBackendUnavailable = errors.New("gateway.backend_unavailable")
)

// Password reset failures.
var (
	// ErrResetTokenInvalid indicates the reset token was never issued.
	ErrResetTokenInvalid = errors.New("auth.reset_token_invalid")
	// ErrResetTokenExpired indicates the reset token outlived its hour.
	ErrResetTokenExpired = errors.New("auth.reset_token_expired")
	// ErrResetTokenUsed indicates the reset token was already consumed.
	ErrResetTokenUsed = errors.New("auth.reset_token_used")
)

// Validation failures surfaced by the orchestrator before any backend call.
var (
	// ErrPasswordTooShort indicates a password under the eight character floor.
	ErrPasswordTooShort = errors.New("auth.password_too_short")
	// ErrEmailRequired indicates a missing or blank email.
	ErrEmailRequired = errors.New("auth.email_required")
)
