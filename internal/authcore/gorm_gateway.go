package authcore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

type userRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	Email        string `gorm:"column:email;uniqueIndex;not null"`
	PasswordHash string `gorm:"column:password_hash;not null"`
	Role         string `gorm:"column:role;not null"`
	Status       string `gorm:"column:status;not null;default:active"`
	CreatedUnix  int64  `gorm:"column:created_unix;not null"`
}

func (userRecord) TableName() string {
	return "users"
}

type authEventRecord struct {
	ID           string `gorm:"column:id;primaryKey"`
	SubjectID    string `gorm:"column:subject_id;index;not null"`
	EventType    string `gorm:"column:event_type;not null"`
	Metadata     string `gorm:"column:metadata;not null;default:''"`
	OccurredUnix int64  `gorm:"column:occurred_unix;not null"`
}

func (authEventRecord) TableName() string {
	return "auth_events"
}

// GormIdentityGateway persists identities and audit events through GORM.
type GormIdentityGateway struct {
	db          *gorm.DB
	driverLabel string
	clock       Clock
}

// NewGormIdentityGateway wraps an open database handle.
func NewGormIdentityGateway(database *Database, clock Clock) *GormIdentityGateway {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &GormIdentityGateway{
		db:          database.DB,
		driverLabel: database.DriverLabel,
		clock:       clock,
	}
}

// CreateIdentity registers and hashes a new account.
func (gateway *GormIdentityGateway) CreateIdentity(ctx context.Context, email string, password string, role rbac.Role) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Identity{}, fmt.Errorf("gateway.create.%s: %w", gateway.driverLabel, ErrEmailRequired)
	}
	hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if hashErr != nil {
		return Identity{}, fmt.Errorf("gateway.create.%s: %w", gateway.driverLabel, hashErr)
	}
	record := userRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role.String(),
		Status:       StatusActive,
		CreatedUnix:  gateway.clock.Now().Unix(),
	}
	var existing userRecord
	lookupErr := gateway.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if lookupErr == nil {
		return Identity{}, fmt.Errorf("gateway.create.%s: %w", gateway.driverLabel, ErrDuplicateIdentity)
	}
	if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return Identity{}, fmt.Errorf("gateway.create.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, lookupErr)
	}
	if createErr := gateway.db.WithContext(ctx).Create(&record).Error; createErr != nil {
		if errors.Is(createErr, gorm.ErrDuplicatedKey) {
			return Identity{}, fmt.Errorf("gateway.create.%s: %w", gateway.driverLabel, ErrDuplicateIdentity)
		}
		return Identity{}, fmt.Errorf("gateway.create.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, createErr)
	}
	return gateway.toIdentity(record), nil
}

// VerifyCredentials checks the password against the stored bcrypt hash.
func (gateway *GormIdentityGateway) VerifyCredentials(ctx context.Context, email string, password string) (Identity, error) {
	record, err := gateway.findByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return Identity{}, fmt.Errorf("gateway.verify.%s: %w", gateway.driverLabel, ErrInvalidCredentials)
		}
		return Identity{}, err
	}
	if record.Status != StatusActive {
		return Identity{}, fmt.Errorf("gateway.verify.%s: %w", gateway.driverLabel, ErrInvalidCredentials)
	}
	if compareErr := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); compareErr != nil {
		return Identity{}, fmt.Errorf("gateway.verify.%s: %w", gateway.driverLabel, ErrInvalidCredentials)
	}
	return gateway.toIdentity(record), nil
}

// GetIdentityByID resolves an identity by subject id.
func (gateway *GormIdentityGateway) GetIdentityByID(ctx context.Context, id string) (Identity, error) {
	var record userRecord
	err := gateway.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, fmt.Errorf("gateway.get.%s: %w", gateway.driverLabel, ErrIdentityNotFound)
		}
		return Identity{}, fmt.Errorf("gateway.get.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, err)
	}
	return gateway.toIdentity(record), nil
}

// GetIdentityByEmail resolves an identity by email.
func (gateway *GormIdentityGateway) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	record, err := gateway.findByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return Identity{}, err
	}
	return gateway.toIdentity(record), nil
}

// SetPassword replaces the stored credential.
func (gateway *GormIdentityGateway) SetPassword(ctx context.Context, id string, newPassword string) error {
	hash, hashErr := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if hashErr != nil {
		return fmt.Errorf("gateway.set_password.%s: %w", gateway.driverLabel, hashErr)
	}
	result := gateway.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", id).
		Update("password_hash", string(hash))
	if result.Error != nil {
		return fmt.Errorf("gateway.set_password.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("gateway.set_password.%s: %w", gateway.driverLabel, ErrIdentityNotFound)
	}
	return nil
}

// UpdateRole changes the subject's role.
func (gateway *GormIdentityGateway) UpdateRole(ctx context.Context, id string, role rbac.Role) error {
	result := gateway.db.WithContext(ctx).Model(&userRecord{}).
		Where("id = ?", id).
		Update("role", role.String())
	if result.Error != nil {
		return fmt.Errorf("gateway.update_role.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("gateway.update_role.%s: %w", gateway.driverLabel, ErrIdentityNotFound)
	}
	return nil
}

// ListIdentities returns every account ordered by creation time.
func (gateway *GormIdentityGateway) ListIdentities(ctx context.Context) ([]Identity, error) {
	var records []userRecord
	err := gateway.db.WithContext(ctx).Order("created_unix asc").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("gateway.list.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, err)
	}
	identities := make([]Identity, 0, len(records))
	for _, record := range records {
		identities = append(identities, gateway.toIdentity(record))
	}
	return identities, nil
}

// RecordAuthEvent appends an audit row. Failures are the caller's to log.
func (gateway *GormIdentityGateway) RecordAuthEvent(ctx context.Context, subjectID string, eventType string, metadata map[string]string) error {
	encoded := ""
	if len(metadata) > 0 {
		data, marshalErr := json.Marshal(metadata)
		if marshalErr != nil {
			return fmt.Errorf("gateway.audit.%s: %w", gateway.driverLabel, marshalErr)
		}
		encoded = string(data)
	}
	record := authEventRecord{
		ID:           uuid.NewString(),
		SubjectID:    subjectID,
		EventType:    eventType,
		Metadata:     encoded,
		OccurredUnix: gateway.clock.Now().Unix(),
	}
	if err := gateway.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("gateway.audit.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, err)
	}
	return nil
}

func (gateway *GormIdentityGateway) findByEmail(ctx context.Context, email string) (userRecord, error) {
	var record userRecord
	err := gateway.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return userRecord{}, fmt.Errorf("gateway.find.%s: %w", gateway.driverLabel, ErrIdentityNotFound)
		}
		return userRecord{}, fmt.Errorf("gateway.find.%s: %w: %v", gateway.driverLabel, ErrBackendUnavailable, err)
	}
	return record, nil
}

func (gateway *GormIdentityGateway) toIdentity(record userRecord) Identity {
	role, roleErr := rbac.ParseRole(record.Role)
	if roleErr != nil {
		// A row written before the role set was closed; treat as the most
		// junior role rather than failing resolution.
		role = rbac.RoleUser
	}
	return Identity{
		ID:        record.ID,
		Email:     record.Email,
		Role:      role,
		Status:    record.Status,
		CreatedAt: timeFromUnix(record.CreatedUnix),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
