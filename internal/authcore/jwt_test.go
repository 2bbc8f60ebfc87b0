package authcore

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

func newTestCodec(t *testing.T, clock Clock) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(testServerConfig(), clock)
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	return codec
}

func TestMintAccessTokenRoundTrip(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	codec := newTestCodec(t, clock)
	identity := Identity{ID: "subject-1", Email: "user@example.com", Role: rbac.RoleStaff, Status: StatusActive}

	token, expiresAt, mintErr := codec.MintAccessToken(identity)
	if mintErr != nil {
		t.Fatalf("MintAccessToken: %v", mintErr)
	}
	if !expiresAt.Equal(clock.Now().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, verifyErr := codec.VerifyAccessToken(token)
	if verifyErr != nil {
		t.Fatalf("VerifyAccessToken: %v", verifyErr)
	}
	if claims.Subject != identity.ID || claims.UserEmail != identity.Email {
		t.Fatalf("unexpected claims %#v", claims)
	}
	if claims.TokenType != TokenTypeAccess {
		t.Fatalf("expected access token type, got %q", claims.TokenType)
	}
	role, roleErr := claims.Role()
	if roleErr != nil || role != rbac.RoleStaff {
		t.Fatalf("expected staff role, got %v (%v)", role, roleErr)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id claim")
	}
}

func TestMintedPairSharesSubject(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	codec := newTestCodec(t, clock)
	identity := Identity{ID: "subject-2", Email: "pair@example.com", Role: rbac.RoleUser}

	accessToken, _, accessErr := codec.MintAccessToken(identity)
	if accessErr != nil {
		t.Fatalf("MintAccessToken: %v", accessErr)
	}
	refreshToken, _, refreshErr := codec.MintRefreshJWT(identity.ID)
	if refreshErr != nil {
		t.Fatalf("MintRefreshJWT: %v", refreshErr)
	}

	accessClaims, err := codec.Verify(accessToken)
	if err != nil {
		t.Fatalf("Verify(access): %v", err)
	}
	refreshClaims, err := codec.Verify(refreshToken)
	if err != nil {
		t.Fatalf("Verify(refresh): %v", err)
	}
	if accessClaims.Subject != refreshClaims.Subject {
		t.Fatalf("pair subjects diverge: %q vs %q", accessClaims.Subject, refreshClaims.Subject)
	}
	if refreshClaims.TokenType != TokenTypeRefresh {
		t.Fatalf("expected refresh token type, got %q", refreshClaims.TokenType)
	}
}

func TestVerifyAccessTokenRejectsRefreshType(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	codec := newTestCodec(t, clock)

	refreshToken, _, err := codec.MintRefreshJWT("subject-3")
	if err != nil {
		t.Fatalf("MintRefreshJWT: %v", err)
	}
	if _, verifyErr := codec.VerifyAccessToken(refreshToken); !errors.Is(verifyErr, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for refresh-as-access, got %v", verifyErr)
	}
}

func TestVerifyRefreshTokenRejectsAccessType(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	codec := newTestCodec(t, clock)

	accessToken, _, err := codec.MintAccessToken(Identity{ID: "subject-3", Email: "typed@example.com", Role: rbac.RoleUser})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}
	if _, verifyErr := codec.VerifyRefreshToken(accessToken); !errors.Is(verifyErr, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for access-as-refresh, got %v", verifyErr)
	}

	refreshToken, _, mintErr := codec.MintRefreshJWT("subject-3")
	if mintErr != nil {
		t.Fatalf("MintRefreshJWT: %v", mintErr)
	}
	claims, verifyErr := codec.VerifyRefreshToken(refreshToken)
	if verifyErr != nil {
		t.Fatalf("VerifyRefreshToken: %v", verifyErr)
	}
	if claims.Subject != "subject-3" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestVerifyDistinguishesExpiredFromTampered(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	codec := newTestCodec(t, clock)
	identity := Identity{ID: "subject-4", Email: "exp@example.com", Role: rbac.RoleUser}

	token, _, mintErr := codec.MintAccessToken(identity)
	if mintErr != nil {
		t.Fatalf("MintAccessToken: %v", mintErr)
	}

	clock.Advance(2 * time.Hour)
	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	tampered := token[:len(token)-4] + "AAAA"
	if _, err := codec.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
}

func TestVerifyRejectsForeignIssuerAndKey(t *testing.T) {
	t.Parallel()

	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	codec := newTestCodec(t, clock)

	foreignConfig := testServerConfig()
	foreignConfig.JWTIssuer = "someone-else"
	foreignIssuer, _ := NewTokenCodec(foreignConfig, clock)
	wrongIssuerToken, _, _ := foreignIssuer.MintAccessToken(Identity{ID: "s", Email: "s@example.com", Role: rbac.RoleUser})
	if _, err := codec.Verify(wrongIssuerToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong issuer, got %v", err)
	}

	foreignKeyConfig := testServerConfig()
	foreignKeyConfig.JWTSigningKey = []byte("a-different-key")
	foreignSigner, _ := NewTokenCodec(foreignKeyConfig, clock)
	wrongKeyToken, _, _ := foreignSigner.MintAccessToken(Identity{ID: "s", Email: "s@example.com", Role: rbac.RoleUser})
	if _, err := codec.Verify(wrongKeyToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong key, got %v", err)
	}
}

func TestVerifyEmptyToken(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, newFixedClock(time.Unix(1700000000, 0).UTC()))
	if _, err := codec.Verify("   "); !errors.Is(err, ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
}

func TestMintRequiresSubject(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, newFixedClock(time.Unix(1700000000, 0).UTC()))
	if _, _, err := codec.MintAccessToken(Identity{Email: "nobody@example.com"}); err == nil || !strings.Contains(err.Error(), "subject") {
		t.Fatalf("expected subject error, got %v", err)
	}
	if _, _, err := codec.MintRefreshJWT(" "); err == nil {
		t.Fatalf("expected subject error for blank refresh subject")
	}
}
