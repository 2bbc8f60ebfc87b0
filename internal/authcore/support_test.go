package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

type fixedClock struct {
	mutex   sync.Mutex
	current time.Time
}

func newFixedClock(current time.Time) *fixedClock {
	return &fixedClock{current: current}
}

func (clock *fixedClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.current
}

func (clock *fixedClock) Advance(delta time.Duration) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.current = clock.current.Add(delta)
}

func testServerConfig() ServerConfig {
	return ServerConfig{
		JWTSigningKey:    []byte("test-signing-key"),
		JWTIssuer:        "glimmerglow-test",
		AccessCookieName: "glimmerglow_access",
		AdminKeyCookie:   "glimmerglow_admin",
		AccessTTL:        time.Hour,
		RefreshTTL:       7 * 24 * time.Hour,
		CSRFTokenTTL:     30 * time.Minute,
	}
}

type capturingMailer struct {
	mutex  sync.Mutex
	emails []string
	tokens []string
}

func (mailer *capturingMailer) SendPasswordReset(ctx context.Context, email string, token string) error {
	mailer.mutex.Lock()
	defer mailer.mutex.Unlock()
	mailer.emails = append(mailer.emails, email)
	mailer.tokens = append(mailer.tokens, token)
	return nil
}

func (mailer *capturingMailer) lastToken() string {
	mailer.mutex.Lock()
	defer mailer.mutex.Unlock()
	if len(mailer.tokens) == 0 {
		return ""
	}
	return mailer.tokens[len(mailer.tokens)-1]
}

// failingRevocationStore wraps a working store and fails membership reads
// on demand, to exercise the fail-secure branch.
type failingRevocationStore struct {
	inner     RevocationStore
	failReads bool
}

var errRevocationBackendDown = errors.New("revocation backend down")

func (store *failingRevocationStore) BlacklistAccessToken(ctx context.Context, token string, reason string) error {
	return store.inner.BlacklistAccessToken(ctx, token, reason)
}

func (store *failingRevocationStore) IsAccessTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	if store.failReads {
		return false, errRevocationBackendDown
	}
	return store.inner.IsAccessTokenBlacklisted(ctx, token)
}

func (store *failingRevocationStore) InvalidateRefreshToken(ctx context.Context, token string, reason string) error {
	return store.inner.InvalidateRefreshToken(ctx, token, reason)
}

func (store *failingRevocationStore) IsRefreshTokenInvalidated(ctx context.Context, token string) (bool, error) {
	if store.failReads {
		return false, errRevocationBackendDown
	}
	return store.inner.IsRefreshTokenInvalidated(ctx, token)
}

func (store *failingRevocationStore) CleanupBlacklistedTokens(ctx context.Context) (int, error) {
	return store.inner.CleanupBlacklistedTokens(ctx)
}

func (store *failingRevocationStore) CleanupInvalidatedTokens(ctx context.Context) (int, error) {
	return store.inner.CleanupInvalidatedTokens(ctx)
}

type serviceFixture struct {
	service     *Service
	codec       *TokenCodec
	gateway     *MemoryIdentityGateway
	refreshTkns *MemoryRefreshTokenStore
	revocations *failingRevocationStore
	sessions    *MemorySessionStore
	resets      *MemoryPasswordResetStore
	mailer      *capturingMailer
	metrics     *Metrics
	clock       *fixedClock
	config      ServerConfig
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	clock := newFixedClock(time.Unix(1700000000, 0).UTC())
	configuration := testServerConfig()
	codec, codecErr := NewTokenCodec(configuration, clock)
	if codecErr != nil {
		t.Fatalf("NewTokenCodec: %v", codecErr)
	}
	gateway := NewMemoryIdentityGateway(clock)
	refreshStore := NewMemoryRefreshTokenStore(clock)
	revocations := &failingRevocationStore{inner: NewMemoryRevocationStore(clock)}
	sessions := NewMemorySessionStore(clock)
	resets := NewMemoryPasswordResetStore(clock)
	mailer := &capturingMailer{}
	metrics := NewMetrics()
	service, serviceErr := NewService(
		configuration, codec, gateway, refreshStore, revocations,
		sessions, resets, mailer, zap.NewNop(), metrics, clock,
	)
	if serviceErr != nil {
		t.Fatalf("NewService: %v", serviceErr)
	}
	return &serviceFixture{
		service:     service,
		codec:       codec,
		gateway:     gateway,
		refreshTkns: refreshStore,
		revocations: revocations,
		sessions:    sessions,
		resets:      resets,
		mailer:      mailer,
		metrics:     metrics,
		clock:       clock,
		config:      configuration,
	}
}

func (fixture *serviceFixture) signUpAndIn(t *testing.T, email string, role rbac.Role) SignInResult {
	t.Helper()
	ctx := context.Background()
	if _, err := fixture.service.CreateAccount(ctx, email, "correct-horse", role); err != nil {
		t.Fatalf("CreateAccount(%s): %v", email, err)
	}
	result, signInErr := fixture.service.SignIn(ctx, email, "correct-horse")
	if signInErr != nil {
		t.Fatalf("SignIn(%s): %v", email, signInErr)
	}
	return result
}
