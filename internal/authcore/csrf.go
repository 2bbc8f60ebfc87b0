package authcore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	// ErrCSRFTokenNotFound indicates the token was never issued or already
	// consumed.
	ErrCSRFTokenNotFound = errors.New("csrf.not_found")
	// ErrCSRFTokenExpired indicates the token expired before consumption.
	ErrCSRFTokenExpired = errors.New("csrf.expired")
)

// CSRFHeaderName carries the token on state-changing browser requests.
const CSRFHeaderName = "X-CSRF-Token"

// CSRFTokenStore issues one-time tokens consumed by state-changing
// requests on the cookie-authenticated surface.
type CSRFTokenStore interface {
	// Issue creates a new token with the configured TTL.
	Issue(ctx context.Context) (string, error)
	// Consume validates and invalidates an issued token.
	Consume(ctx context.Context, token string) error
}

type memoryCSRFStore struct {
	mutex     sync.Mutex
	entries   map[string]time.Time
	ttl       time.Duration
	clock     Clock
	tokenSize int
}

// NewMemoryCSRFStore constructs an in-memory CSRFTokenStore.
func NewMemoryCSRFStore(ttl time.Duration, clock Clock) CSRFTokenStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &memoryCSRFStore{
		entries:   make(map[string]time.Time),
		ttl:       ttl,
		clock:     clock,
		tokenSize: 32,
	}
}

func (store *memoryCSRFStore) Issue(ctx context.Context) (string, error) {
	token, err := store.randomToken()
	if err != nil {
		return "", err
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.purgeExpiredLocked()
	store.entries[token] = store.clock.Now().Add(store.ttl)
	return token, nil
}

func (store *memoryCSRFStore) Consume(ctx context.Context, token string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	expiry, ok := store.entries[token]
	if !ok {
		store.purgeExpiredLocked()
		return ErrCSRFTokenNotFound
	}
	delete(store.entries, token)
	if store.clock.Now().After(expiry) {
		store.purgeExpiredLocked()
		return ErrCSRFTokenExpired
	}
	store.purgeExpiredLocked()
	return nil
}

func (store *memoryCSRFStore) purgeExpiredLocked() {
	if len(store.entries) == 0 {
		return
	}
	now := store.clock.Now()
	for token, expiry := range store.entries {
		if now.After(expiry) {
			delete(store.entries, token)
		}
	}
}

func (store *memoryCSRFStore) randomToken() (string, error) {
	buffer := make([]byte, store.tokenSize)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// RequireCSRFToken consumes the CSRF header on every non-safe request.
// Requests authenticating with a bearer Authorization header are exempt:
// the header cannot be set cross-site.
func RequireCSRFToken(store CSRFTokenStore) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		switch contextGin.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			contextGin.Next()
			return
		}
		if authorization := contextGin.GetHeader("Authorization"); authorization != "" {
			contextGin.Next()
			return
		}
		token := contextGin.GetHeader(CSRFHeaderName)
		if token == "" {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "csrf_token_missing",
				"message": "state-changing requests require a CSRF token",
			})
			return
		}
		if consumeErr := store.Consume(contextGin.Request.Context(), token); consumeErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "csrf_token_invalid",
				"message": "CSRF token rejected",
			})
			return
		}
		contextGin.Next()
	}
}
