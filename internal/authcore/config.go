package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Retention windows for revocation records. Both deliberately exceed the
// maximum token lifetimes this service will accept at startup: a revoked
// token must never outlive its revocation record.
const (
	BlacklistRetention    = 7 * 24 * time.Hour
	InvalidationRetention = 30 * 24 * time.Hour
)

// ResetTokenTTL bounds password-reset tokens to one hour.
const ResetTokenTTL = time.Hour

var (
	errMissingSigningKey = errors.New("config.missing_jwt_signing_key")
	errInvalidAccessTTL  = errors.New("config.invalid_access_ttl")
	errInvalidRefreshTTL = errors.New("config.invalid_refresh_ttl")
	errRetentionTooShort = errors.New("config.retention_below_token_ttl")
)

// ServerConfig configures token issuance, cookies, and lifetimes.
type ServerConfig struct {
	JWTSigningKey     []byte
	JWTIssuer         string
	CookieDomain      string
	AccessCookieName  string
	AdminKeyCookie    string
	AdminKey          string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	CSRFTokenTTL      time.Duration
	SameSiteMode      http.SameSite
	AllowInsecureHTTP bool
}

// Validate rejects configurations that would weaken the revocation
// guarantees or leave tokens unsigned.
func (configuration ServerConfig) Validate() error {
	if len(configuration.JWTSigningKey) == 0 {
		return fmt.Errorf("config.validate: %w", errMissingSigningKey)
	}
	if configuration.AccessTTL <= 0 {
		return fmt.Errorf("config.validate: %w", errInvalidAccessTTL)
	}
	if configuration.RefreshTTL <= 0 {
		return fmt.Errorf("config.validate: %w", errInvalidRefreshTTL)
	}
	if configuration.AccessTTL >= BlacklistRetention {
		return fmt.Errorf("config.validate.access_ttl: %w", errRetentionTooShort)
	}
	if configuration.RefreshTTL >= InvalidationRetention {
		return fmt.Errorf("config.validate.refresh_ttl: %w", errRetentionTooShort)
	}
	return nil
}
