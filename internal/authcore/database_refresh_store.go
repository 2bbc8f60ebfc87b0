package authcore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type refreshTokenRecord struct {
	TokenID         string `gorm:"column:token_id;primaryKey"`
	SubjectID       string `gorm:"column:subject_id;index;not null"`
	TokenHash       string `gorm:"column:token_hash;uniqueIndex;not null"`
	ExpiresUnix     int64  `gorm:"column:expires_unix;not null"`
	RevokedAtUnix   int64  `gorm:"column:revoked_at_unix;not null;default:0"`
	RevokeReason    string `gorm:"column:revoke_reason;not null;default:''"`
	PreviousTokenID string `gorm:"column:previous_token_id;not null;default:''"`
	IssuedAtUnix    int64  `gorm:"column:issued_at_unix;not null"`
}

func (refreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

// DatabaseRefreshTokenStore persists rotating refresh tokens through GORM.
type DatabaseRefreshTokenStore struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// NewDatabaseRefreshTokenStore wraps an open database handle.
func NewDatabaseRefreshTokenStore(database *Database, clock Clock) *DatabaseRefreshTokenStore {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &DatabaseRefreshTokenStore{
		db:          database.DB,
		driverLabel: database.DriverLabel,
		clock:       clock,
	}
}

// Issue inserts a record for a minted refresh token and returns its id.
func (store *DatabaseRefreshTokenStore) Issue(ctx context.Context, subjectID string, token string, expiresUnix int64, previousTokenID string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("refresh_store.issue.%s: %w", store.driverLabel, ErrRefreshTokenEmpty)
	}
	now := store.clock.Now()
	tokenID := newRefreshTokenID(now)
	record := refreshTokenRecord{
		TokenID:         tokenID,
		SubjectID:       subjectID,
		TokenHash:       hashToken(token),
		ExpiresUnix:     expiresUnix,
		PreviousTokenID: previousTokenID,
		IssuedAtUnix:    now.Unix(),
	}
	if err := store.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("refresh_store.issue.%s: %w", store.driverLabel, err)
	}
	return tokenID, nil
}

// Validate locates a refresh token by its presented value.
func (store *DatabaseRefreshTokenStore) Validate(ctx context.Context, token string) (string, string, int64, error) {
	if token == "" {
		return "", "", 0, fmt.Errorf("refresh_store.validate.%s: %w", store.driverLabel, ErrRefreshTokenEmpty)
	}
	var record refreshTokenRecord
	err := store.db.WithContext(ctx).Where("token_hash = ?", hashToken(token)).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", "", 0, fmt.Errorf("refresh_store.validate.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
		}
		return "", "", 0, fmt.Errorf("refresh_store.validate.%s: %w", store.driverLabel, err)
	}
	if record.RevokedAtUnix != 0 {
		return "", "", 0, fmt.Errorf("refresh_store.validate.%s: %w", store.driverLabel, ErrRefreshTokenRevoked)
	}
	if record.ExpiresUnix <= store.clock.Now().Unix() {
		return "", "", 0, fmt.Errorf("refresh_store.validate.%s: %w", store.driverLabel, ErrRefreshTokenExpired)
	}
	return record.SubjectID, record.TokenID, record.ExpiresUnix, nil
}

// Revoke marks a refresh token as revoked. The guard on revoked_at_unix
// makes the write conditional: exactly one of two racing rotations lands.
func (store *DatabaseRefreshTokenStore) Revoke(ctx context.Context, tokenID string, reason string) error {
	result := store.db.WithContext(ctx).Model(&refreshTokenRecord{}).
		Where("token_id = ? AND revoked_at_unix = 0", tokenID).
		Updates(map[string]interface{}{
			"revoked_at_unix": store.clock.Now().Unix(),
			"revoke_reason":   reason,
		})
	if result.Error != nil {
		return fmt.Errorf("refresh_store.revoke.%s: %w", store.driverLabel, result.Error)
	}
	if result.RowsAffected == 0 {
		var record refreshTokenRecord
		findErr := store.db.WithContext(ctx).Where("token_id = ?", tokenID).Take(&record).Error
		if errors.Is(findErr, gorm.ErrRecordNotFound) {
			return fmt.Errorf("refresh_store.revoke.%s: %w", store.driverLabel, ErrRefreshTokenNotFound)
		}
		if findErr != nil {
			return fmt.Errorf("refresh_store.revoke.%s: %w", store.driverLabel, findErr)
		}
		return fmt.Errorf("refresh_store.revoke.%s: %w", store.driverLabel, ErrRefreshTokenRevoked)
	}
	return nil
}

// RevokeAllForSubject retires every live token for the subject except one.
func (store *DatabaseRefreshTokenStore) RevokeAllForSubject(ctx context.Context, subjectID string, reason string, exceptTokenID string) (int, error) {
	query := store.db.WithContext(ctx).Model(&refreshTokenRecord{}).
		Where("subject_id = ? AND revoked_at_unix = 0", subjectID)
	if exceptTokenID != "" {
		query = query.Where("token_id <> ?", exceptTokenID)
	}
	result := query.Updates(map[string]interface{}{
		"revoked_at_unix": store.clock.Now().Unix(),
		"revoke_reason":   reason,
	})
	if result.Error != nil {
		return 0, fmt.Errorf("refresh_store.revoke_all.%s: %w", store.driverLabel, result.Error)
	}
	return int(result.RowsAffected), nil
}
