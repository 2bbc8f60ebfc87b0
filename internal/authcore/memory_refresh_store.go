package authcore

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
)

// MemoryRefreshTokenStore is an in-memory refresh token store intended for
// tests and dev runs.
type MemoryRefreshTokenStore struct {
	mutex      sync.Mutex
	byID       map[string]*memoryRefreshRecord
	byHash     map[string]string
	sequenceID uint64
	clock      Clock
}

type memoryRefreshRecord struct {
	TokenID         string
	SubjectID       string
	Hash            string
	ExpiresUnix     int64
	RevokedAtUnix   int64
	RevokeReason    string
	PreviousTokenID string
	IssuedAtUnix    int64
}

// NewMemoryRefreshTokenStore creates an empty in-memory token store.
func NewMemoryRefreshTokenStore(clock Clock) *MemoryRefreshTokenStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryRefreshTokenStore{
		byID:   make(map[string]*memoryRefreshRecord),
		byHash: make(map[string]string),
		clock:  clock,
	}
}

// Issue records a minted token, optionally linked to a previous token.
func (store *MemoryRefreshTokenStore) Issue(ctx context.Context, subjectID string, token string, expiresUnix int64, previousTokenID string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("refresh_store.issue.memory: %w", ErrRefreshTokenEmpty)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID := store.nextID()
	hashValue := hashToken(token)
	record := &memoryRefreshRecord{
		TokenID:         tokenID,
		SubjectID:       subjectID,
		Hash:            hashValue,
		ExpiresUnix:     expiresUnix,
		PreviousTokenID: previousTokenID,
		IssuedAtUnix:    store.clock.Now().Unix(),
	}
	store.byID[tokenID] = record
	store.byHash[hashValue] = tokenID
	return tokenID, nil
}

// Validate checks the presented token and returns subject, token id, expiry.
func (store *MemoryRefreshTokenStore) Validate(ctx context.Context, token string) (string, string, int64, error) {
	if token == "" {
		return "", "", 0, fmt.Errorf("refresh_store.validate.memory: %w", ErrRefreshTokenEmpty)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()

	tokenID, ok := store.byHash[hashToken(token)]
	if !ok {
		return "", "", 0, fmt.Errorf("refresh_store.validate.memory: %w", ErrRefreshTokenNotFound)
	}
	record := store.byID[tokenID]
	if record == nil {
		return "", "", 0, fmt.Errorf("refresh_store.validate.memory: %w", ErrRefreshTokenNotFound)
	}
	if record.RevokedAtUnix != 0 {
		return "", "", 0, fmt.Errorf("refresh_store.validate.memory: %w", ErrRefreshTokenRevoked)
	}
	if record.ExpiresUnix <= store.clock.Now().Unix() {
		return "", "", 0, fmt.Errorf("refresh_store.validate.memory: %w", ErrRefreshTokenExpired)
	}
	return record.SubjectID, record.TokenID, record.ExpiresUnix, nil
}

// Revoke marks a token as revoked. A token that was already revoked yields
// ErrRefreshTokenRevoked so rotation races admit exactly one winner.
func (store *MemoryRefreshTokenStore) Revoke(ctx context.Context, tokenID string, reason string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	record := store.byID[tokenID]
	if record == nil {
		return fmt.Errorf("refresh_store.revoke.memory: %w", ErrRefreshTokenNotFound)
	}
	if record.RevokedAtUnix != 0 {
		return fmt.Errorf("refresh_store.revoke.memory: %w", ErrRefreshTokenRevoked)
	}
	record.RevokedAtUnix = store.clock.Now().Unix()
	record.RevokeReason = reason
	return nil
}

// RevokeAllForSubject retires every live token for the subject except one.
func (store *MemoryRefreshTokenStore) RevokeAllForSubject(ctx context.Context, subjectID string, reason string, exceptTokenID string) (int, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	nowUnix := store.clock.Now().Unix()
	revoked := 0
	for _, record := range store.byID {
		if record.SubjectID != subjectID || record.TokenID == exceptTokenID || record.RevokedAtUnix != 0 {
			continue
		}
		record.RevokedAtUnix = nowUnix
		record.RevokeReason = reason
		revoked++
	}
	return revoked, nil
}

func (store *MemoryRefreshTokenStore) nextID() string {
	store.sequenceID++
	timestampID := newRefreshTokenID(store.clock.Now())
	sequenceFragment := base64.RawURLEncoding.EncodeToString([]byte{byte(store.sequenceID % 255)})
	return timestampID + "-" + sequenceFragment
}
