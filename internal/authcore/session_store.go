package authcore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gorm.io/gorm"
)

// ErrSessionNotFound indicates no session matched the identifier.
var ErrSessionNotFound = errors.New("session_store.not_found")

// Session end reasons.
const (
	SessionEndLogout         = "logout"
	SessionEndPasswordChange = "password_change"
)

// Session is the logical lifetime of one sign-in, spanning token rotations
// until explicitly ended. AccessToken holds the session's current access
// token so bulk teardown can blacklist it before natural expiry.
type Session struct {
	ID             string
	SubjectID      string
	AccessToken    string
	RefreshTokenID string
	StartedUnix    int64
	EndedUnix      int64
	EndReason      string
}

// SessionStore tracks sessions from sign-in to explicit end.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	// Rotate replaces the session's current token pair after a refresh.
	Rotate(ctx context.Context, sessionID string, accessToken string, refreshTokenID string) error
	// FindByRefreshTokenID resolves the live session owning a refresh token.
	FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (Session, error)
	// FindByAccessToken resolves the live session whose current access token
	// matches, used to spare the acting session during bulk teardown.
	FindByAccessToken(ctx context.Context, accessToken string) (Session, error)
	// End marks one session ended with a reason; ending twice keeps the
	// first reason.
	End(ctx context.Context, sessionID string, reason string) error
	// EndAllForSubject ends every live session for the subject except the
	// one named (empty to spare none) and returns the sessions it ended,
	// so callers can revoke their tokens.
	EndAllForSubject(ctx context.Context, subjectID string, reason string, exceptSessionID string) ([]Session, error)
}

// MemorySessionStore is an in-memory session store for tests and dev runs.
type MemorySessionStore struct {
	mutex    sync.Mutex
	sessions map[string]*Session
	clock    Clock
}

// NewMemorySessionStore constructs an empty in-memory session store.
func NewMemorySessionStore(clock Clock) *MemorySessionStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemorySessionStore{sessions: make(map[string]*Session), clock: clock}
}

// Create records a new session.
func (store *MemorySessionStore) Create(ctx context.Context, session Session) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	stored := session
	store.sessions[session.ID] = &stored
	return nil
}

// Rotate replaces the session's current token pair.
func (store *MemorySessionStore) Rotate(ctx context.Context, sessionID string, accessToken string, refreshTokenID string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	session, ok := store.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session_store.rotate.memory: %w", ErrSessionNotFound)
	}
	session.AccessToken = accessToken
	session.RefreshTokenID = refreshTokenID
	return nil
}

// FindByRefreshTokenID resolves the live session owning the refresh token.
func (store *MemorySessionStore) FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (Session, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, session := range store.sessions {
		if session.RefreshTokenID == refreshTokenID && session.EndedUnix == 0 {
			return *session, nil
		}
	}
	return Session{}, fmt.Errorf("session_store.find.memory: %w", ErrSessionNotFound)
}

// FindByAccessToken resolves the live session holding the access token.
func (store *MemorySessionStore) FindByAccessToken(ctx context.Context, accessToken string) (Session, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	for _, session := range store.sessions {
		if session.AccessToken == accessToken && session.EndedUnix == 0 {
			return *session, nil
		}
	}
	return Session{}, fmt.Errorf("session_store.find.memory: %w", ErrSessionNotFound)
}

// End marks the session ended.
func (store *MemorySessionStore) End(ctx context.Context, sessionID string, reason string) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	session, ok := store.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session_store.end.memory: %w", ErrSessionNotFound)
	}
	if session.EndedUnix != 0 {
		return nil
	}
	session.EndedUnix = store.clock.Now().Unix()
	session.EndReason = reason
	return nil
}

// EndAllForSubject ends every live session for the subject except one.
func (store *MemorySessionStore) EndAllForSubject(ctx context.Context, subjectID string, reason string, exceptSessionID string) ([]Session, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	nowUnix := store.clock.Now().Unix()
	var ended []Session
	for _, session := range store.sessions {
		if session.SubjectID != subjectID || session.ID == exceptSessionID || session.EndedUnix != 0 {
			continue
		}
		session.EndedUnix = nowUnix
		session.EndReason = reason
		ended = append(ended, *session)
	}
	return ended, nil
}

type sessionRecord struct {
	ID             string `gorm:"column:id;primaryKey"`
	SubjectID      string `gorm:"column:subject_id;index;not null"`
	AccessToken    string `gorm:"column:access_token;not null;default:''"`
	RefreshTokenID string `gorm:"column:refresh_token_id;index;not null"`
	StartedUnix    int64  `gorm:"column:started_unix;not null"`
	EndedUnix      int64  `gorm:"column:ended_unix;not null;default:0"`
	EndReason      string `gorm:"column:end_reason;not null;default:''"`
}

func (sessionRecord) TableName() string {
	return "sessions"
}

// DatabaseSessionStore persists sessions through GORM.
type DatabaseSessionStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// NewDatabaseSessionStore wraps an open database handle.
func NewDatabaseSessionStore(database *Database, clock Clock) *DatabaseSessionStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &DatabaseSessionStore{db: database.DB, driverLabel: database.DriverLabel, clock: clock}
}

// Create records a new session.
func (store *DatabaseSessionStore) Create(ctx context.Context, session Session) error {
	record := sessionRecord{
		ID:             session.ID,
		SubjectID:      session.SubjectID,
		AccessToken:    session.AccessToken,
		RefreshTokenID: session.RefreshTokenID,
		StartedUnix:    session.StartedUnix,
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("session_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Rotate replaces the session's current token pair.
func (store *DatabaseSessionStore) Rotate(ctx context.Context, sessionID string, accessToken string, refreshTokenID string) error {
	result := store.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ?", sessionID).
		Updates(map[string]interface{}{
			"access_token":     accessToken,
			"refresh_token_id": refreshTokenID,
		})
	if result.Error != nil {
		return fmt.Errorf("session_store.rotate.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session_store.rotate.%s: %w", store.driverLabel, ErrSessionNotFound)
	}
	return nil
}

// FindByRefreshTokenID resolves the live session owning the refresh token.
func (store *DatabaseSessionStore) FindByRefreshTokenID(ctx context.Context, refreshTokenID string) (Session, error) {
	var record sessionRecord
	err := store.db.WithContext(ctx).
		Where("refresh_token_id = ? AND ended_unix = 0", refreshTokenID).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, ErrSessionNotFound)
		}
		return Session{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, err)
	}
	return sessionFromRecord(record), nil
}

// FindByAccessToken resolves the live session holding the access token.
func (store *DatabaseSessionStore) FindByAccessToken(ctx context.Context, accessToken string) (Session, error) {
	var record sessionRecord
	err := store.db.WithContext(ctx).
		Where("access_token = ? AND ended_unix = 0", accessToken).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, ErrSessionNotFound)
		}
		return Session{}, fmt.Errorf("session_store.find.%s: %w", store.driverLabel, err)
	}
	return sessionFromRecord(record), nil
}

// End marks the session ended; ending twice keeps the first reason.
func (store *DatabaseSessionStore) End(ctx context.Context, sessionID string, reason string) error {
	result := store.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ? AND ended_unix = 0", sessionID).
		Updates(map[string]interface{}{
			"ended_unix": store.clock.Now().Unix(),
			"end_reason": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("session_store.end.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

// EndAllForSubject ends every live session for the subject except one.
func (store *DatabaseSessionStore) EndAllForSubject(ctx context.Context, subjectID string, reason string, exceptSessionID string) ([]Session, error) {
	var records []sessionRecord
	query := store.db.WithContext(ctx).
		Where("subject_id = ? AND ended_unix = 0", subjectID)
	if exceptSessionID != "" {
		query = query.Where("id <> ?", exceptSessionID)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("session_store.end_all.%s: %w", store.driverLabel, err)
	}
	nowUnix := store.clock.Now().Unix()
	var ended []Session
	for _, record := range records {
		result := store.db.WithContext(ctx).Model(&sessionRecord{}).
			Where("id = ? AND ended_unix = 0", record.ID).
			Updates(map[string]interface{}{
				"ended_unix": nowUnix,
				"end_reason": reason,
			})
		if result.Error != nil {
			return ended, fmt.Errorf("session_store.end_all.%s: %w", store.driverLabel, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		record.EndedUnix = nowUnix
		record.EndReason = reason
		ended = append(ended, sessionFromRecord(record))
	}
	return ended, nil
}

func sessionFromRecord(record sessionRecord) Session {
	return Session{
		ID:             record.ID,
		SubjectID:      record.SubjectID,
		AccessToken:    record.AccessToken,
		RefreshTokenID: record.RefreshTokenID,
		StartedUnix:    record.StartedUnix,
		EndedUnix:      record.EndedUnix,
		EndReason:      record.EndReason,
	}
}
