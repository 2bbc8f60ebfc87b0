package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

// Token types embedded in claims. Verification rejects a refresh token
// presented where an access token is expected, and vice versa.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims is the payload embedded in all tokens this service signs.
type Claims struct {
	UserEmail string `json:"user_email,omitempty"`
	UserRole  string `json:"user_role,omitempty"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Role parses the embedded role claim. Refresh tokens carry no role.
func (claims *Claims) Role() (rbac.Role, error) {
	return rbac.ParseRole(claims.UserRole)
}

// TokenCodec mints and verifies HS256 tokens. It is stateless: a token's
// validity is a pure function of the signing key, the claims, and the clock.
type TokenCodec struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
}

// NewTokenCodec constructs a codec from the server configuration.
func NewTokenCodec(configuration ServerConfig, clock Clock) (*TokenCodec, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	return &TokenCodec{
		signingKey: configuration.JWTSigningKey,
		issuer:     configuration.JWTIssuer,
		accessTTL:  configuration.AccessTTL,
		refreshTTL: configuration.RefreshTTL,
		clock:      clock,
	}, nil
}

// AccessTTL exposes the configured access token lifetime.
func (codec *TokenCodec) AccessTTL() time.Duration {
	return codec.accessTTL
}

// MintAccessToken signs a short-lived access token for the identity.
func (codec *TokenCodec) MintAccessToken(identity Identity) (string, time.Time, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return "", time.Time{}, fmt.Errorf("jwt.mint_access: subject must be non-empty")
	}
	return codec.mint(Claims{
		UserEmail: identity.Email,
		UserRole:  identity.Role.String(),
		TokenType: TokenTypeAccess,
	}, identity.ID, codec.accessTTL)
}

// MintRefreshJWT signs a long-lived refresh token carrying only the subject.
func (codec *TokenCodec) MintRefreshJWT(subjectID string) (string, time.Time, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", time.Time{}, fmt.Errorf("jwt.mint_refresh: subject must be non-empty")
	}
	return codec.mint(Claims{TokenType: TokenTypeRefresh}, subjectID, codec.refreshTTL)
}

func (codec *TokenCodec) mint(claims Claims, subjectID string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := codec.clock.Now()
	expiresAt := issuedAt.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    codec.issuer,
		Subject:   subjectID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		NotBefore: jwt.NewNumericDate(issuedAt.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, signErr := token.SignedString(codec.signingKey)
	if signErr != nil {
		return "", time.Time{}, fmt.Errorf("jwt.sign: %w", signErr)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and temporal claims of a token. It returns
// ErrTokenExpired for a well-formed token past expiry, so callers can steer
// clients toward refresh, and ErrTokenInvalid for every other failure.
func (codec *TokenCodec) Verify(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("jwt.verify: %w", ErrNoToken)
	}
	parsedToken, parseErr := jwt.ParseWithClaims(tokenString, &Claims{}, func(parsed *jwt.Token) (interface{}, error) {
		return codec.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time {
		return codec.clock.Now()
	}))
	if parseErr != nil {
		if errors.Is(parseErr, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("jwt.verify: %w", ErrTokenExpired)
		}
		return nil, fmt.Errorf("jwt.verify: %w", ErrTokenInvalid)
	}
	if parsedToken == nil || !parsedToken.Valid {
		return nil, fmt.Errorf("jwt.verify: %w", ErrTokenInvalid)
	}
	claims, ok := parsedToken.Claims.(*Claims)
	if !ok || claims.Issuer != codec.issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("jwt.verify: %w", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyAccessToken verifies the token and enforces type=access.
func (codec *TokenCodec) VerifyAccessToken(tokenString string) (*Claims, error) {
	claims, err := codec.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, fmt.Errorf("jwt.verify.type: %w", ErrTokenInvalid)
	}
	return claims, nil
}

// VerifyRefreshToken verifies the token and enforces type=refresh.
func (codec *TokenCodec) VerifyRefreshToken(tokenString string) (*Claims, error) {
	claims, err := codec.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, fmt.Errorf("jwt.verify.type: %w", ErrTokenInvalid)
	}
	return claims, nil
}
