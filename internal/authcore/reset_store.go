package authcore

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const resetTokenByteLength = 32

// generateResetToken produces the random opaque handed to the mailer plus
// the fingerprint the store keeps.
func generateResetToken() (string, string, error) {
	randomBytes := make([]byte, resetTokenByteLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("reset_store.random: %w", err)
	}
	opaque := base64.RawURLEncoding.EncodeToString(randomBytes)
	return opaque, hashToken(opaque), nil
}

// PasswordResetStore tracks single-use password reset requests. Tokens are
// stored as sha256 fingerprints with a one hour expiry.
type PasswordResetStore interface {
	// Create records a reset request for the subject.
	Create(ctx context.Context, subjectID string, tokenHash string, expiresUnix int64) error
	// Consume marks an unused, unexpired request used and returns its
	// subject. The used-at write is conditional; a second consumer loses.
	Consume(ctx context.Context, tokenHash string) (subjectID string, err error)
}

type passwordResetRecord struct {
	ID          string `gorm:"column:id;primaryKey"`
	SubjectID   string `gorm:"column:subject_id;index;not null"`
	TokenHash   string `gorm:"column:token_hash;uniqueIndex;not null"`
	ExpiresUnix int64  `gorm:"column:expires_unix;not null"`
	UsedUnix    int64  `gorm:"column:used_unix;not null;default:0"`
	CreatedUnix int64  `gorm:"column:created_unix;not null"`
}

func (passwordResetRecord) TableName() string {
	return "password_reset_tokens"
}

// DatabasePasswordResetStore persists reset requests through GORM.
type DatabasePasswordResetStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// NewDatabasePasswordResetStore wraps an open database handle.
func NewDatabasePasswordResetStore(database *Database, clock Clock) *DatabasePasswordResetStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &DatabasePasswordResetStore{db: database.DB, driverLabel: database.DriverLabel, clock: clock}
}

// Create records a reset request for the subject.
func (store *DatabasePasswordResetStore) Create(ctx context.Context, subjectID string, tokenHash string, expiresUnix int64) error {
	record := passwordResetRecord{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		TokenHash:   tokenHash,
		ExpiresUnix: expiresUnix,
		CreatedUnix: store.clock.Now().Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("reset_store.create.%s: %w", store.driverLabel, err)
	}
	return nil
}

// Consume marks the request used and returns its subject.
func (store *DatabasePasswordResetStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	var record passwordResetRecord
	err := store.db.WithContext(ctx).Where("token_hash = ?", tokenHash).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("reset_store.consume.%s: %w", store.driverLabel, ErrResetTokenInvalid)
		}
		return "", fmt.Errorf("reset_store.consume.%s: %w", store.driverLabel, err)
	}
	if record.UsedUnix != 0 {
		return "", fmt.Errorf("reset_store.consume.%s: %w", store.driverLabel, ErrResetTokenUsed)
	}
	if record.ExpiresUnix <= store.clock.Now().Unix() {
		return "", fmt.Errorf("reset_store.consume.%s: %w", store.driverLabel, ErrResetTokenExpired)
	}
	result := store.db.WithContext(ctx).Model(&passwordResetRecord{}).
		Where("id = ? AND used_unix = 0", record.ID).
		Update("used_unix", store.clock.Now().Unix())
	if result.Error != nil {
		return "", fmt.Errorf("reset_store.consume.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", fmt.Errorf("reset_store.consume.%s: %w", store.driverLabel, ErrResetTokenUsed)
	}
	return record.SubjectID, nil
}

// MemoryPasswordResetStore is an in-memory reset store for tests.
type MemoryPasswordResetStore struct {
	mutex   sync.Mutex
	entries map[string]*passwordResetRecord
	clock   Clock
}

// NewMemoryPasswordResetStore constructs an empty in-memory reset store.
func NewMemoryPasswordResetStore(clock Clock) *MemoryPasswordResetStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryPasswordResetStore{entries: make(map[string]*passwordResetRecord), clock: clock}
}

// Create records a reset request for the subject.
func (store *MemoryPasswordResetStore) Create(ctx context.Context, subjectID string, tokenHash string, expiresUnix int64) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	store.entries[tokenHash] = &passwordResetRecord{
		ID:          uuid.NewString(),
		SubjectID:   subjectID,
		TokenHash:   tokenHash,
		ExpiresUnix: expiresUnix,
		CreatedUnix: store.clock.Now().Unix(),
	}
	return nil
}

// Consume marks the request used and returns its subject.
func (store *MemoryPasswordResetStore) Consume(ctx context.Context, tokenHash string) (string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	record, ok := store.entries[tokenHash]
	if !ok {
		return "", fmt.Errorf("reset_store.consume.memory: %w", ErrResetTokenInvalid)
	}
	if record.UsedUnix != 0 {
		return "", fmt.Errorf("reset_store.consume.memory: %w", ErrResetTokenUsed)
	}
	if record.ExpiresUnix <= store.clock.Now().Unix() {
		return "", fmt.Errorf("reset_store.consume.memory: %w", ErrResetTokenExpired)
	}
	record.UsedUnix = store.clock.Now().Unix()
	return record.SubjectID, nil
}
