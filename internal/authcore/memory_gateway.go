package authcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

// MemoryIdentityGateway is an in-memory gateway for tests and local runs.
type MemoryIdentityGateway struct {
	mutex   sync.Mutex
	byID    map[string]*memoryIdentity
	byEmail map[string]string
	events  []AuthEvent
	clock   Clock
}

type memoryIdentity struct {
	identity     Identity
	passwordHash []byte
}

// AuthEvent is an audit record captured by the memory gateway.
type AuthEvent struct {
	SubjectID string
	EventType string
	Metadata  map[string]string
}

// NewMemoryIdentityGateway constructs an empty in-memory gateway.
func NewMemoryIdentityGateway(clock Clock) *MemoryIdentityGateway {
	if clock == nil {
		clock = NewSystemClock()
	}
	return &MemoryIdentityGateway{
		byID:    make(map[string]*memoryIdentity),
		byEmail: make(map[string]string),
		clock:   clock,
	}
}

// CreateIdentity registers a new in-memory account.
func (gateway *MemoryIdentityGateway) CreateIdentity(ctx context.Context, email string, password string, role rbac.Role) (Identity, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Identity{}, fmt.Errorf("gateway.create.memory: %w", ErrEmailRequired)
	}
	hash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if hashErr != nil {
		return Identity{}, fmt.Errorf("gateway.create.memory: %w", hashErr)
	}
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if _, exists := gateway.byEmail[email]; exists {
		return Identity{}, fmt.Errorf("gateway.create.memory: %w", ErrDuplicateIdentity)
	}
	identity := Identity{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      role,
		Status:    StatusActive,
		CreatedAt: gateway.clock.Now(),
	}
	gateway.byID[identity.ID] = &memoryIdentity{identity: identity, passwordHash: hash}
	gateway.byEmail[email] = identity.ID
	return identity, nil
}

// VerifyCredentials checks email and password.
func (gateway *MemoryIdentityGateway) VerifyCredentials(ctx context.Context, email string, password string) (Identity, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	id, ok := gateway.byEmail[normalizeEmail(email)]
	if !ok {
		return Identity{}, fmt.Errorf("gateway.verify.memory: %w", ErrInvalidCredentials)
	}
	record := gateway.byID[id]
	if record.identity.Status != StatusActive {
		return Identity{}, fmt.Errorf("gateway.verify.memory: %w", ErrInvalidCredentials)
	}
	if bcrypt.CompareHashAndPassword(record.passwordHash, []byte(password)) != nil {
		return Identity{}, fmt.Errorf("gateway.verify.memory: %w", ErrInvalidCredentials)
	}
	return record.identity, nil
}

// GetIdentityByID resolves by subject id.
func (gateway *MemoryIdentityGateway) GetIdentityByID(ctx context.Context, id string) (Identity, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	record, ok := gateway.byID[id]
	if !ok {
		return Identity{}, fmt.Errorf("gateway.get.memory: %w", ErrIdentityNotFound)
	}
	return record.identity, nil
}

// GetIdentityByEmail resolves by email.
func (gateway *MemoryIdentityGateway) GetIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	id, ok := gateway.byEmail[normalizeEmail(email)]
	if !ok {
		return Identity{}, fmt.Errorf("gateway.find.memory: %w", ErrIdentityNotFound)
	}
	return gateway.byID[id].identity, nil
}

// SetPassword replaces the stored credential.
func (gateway *MemoryIdentityGateway) SetPassword(ctx context.Context, id string, newPassword string) error {
	hash, hashErr := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.MinCost)
	if hashErr != nil {
		return fmt.Errorf("gateway.set_password.memory: %w", hashErr)
	}
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	record, ok := gateway.byID[id]
	if !ok {
		return fmt.Errorf("gateway.set_password.memory: %w", ErrIdentityNotFound)
	}
	record.passwordHash = hash
	return nil
}

// UpdateRole changes the subject's role.
func (gateway *MemoryIdentityGateway) UpdateRole(ctx context.Context, id string, role rbac.Role) error {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	record, ok := gateway.byID[id]
	if !ok {
		return fmt.Errorf("gateway.update_role.memory: %w", ErrIdentityNotFound)
	}
	record.identity.Role = role
	return nil
}

// SetStatus marks an account active, inactive, or suspended. Test helper.
func (gateway *MemoryIdentityGateway) SetStatus(id string, status string) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	if record, ok := gateway.byID[id]; ok {
		record.identity.Status = status
	}
}

// ListIdentities returns every account.
func (gateway *MemoryIdentityGateway) ListIdentities(ctx context.Context) ([]Identity, error) {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	identities := make([]Identity, 0, len(gateway.byID))
	for _, record := range gateway.byID {
		identities = append(identities, record.identity)
	}
	return identities, nil
}

// RecordAuthEvent captures the event in memory.
func (gateway *MemoryIdentityGateway) RecordAuthEvent(ctx context.Context, subjectID string, eventType string, metadata map[string]string) error {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	gateway.events = append(gateway.events, AuthEvent{
		SubjectID: subjectID,
		EventType: eventType,
		Metadata:  metadata,
	})
	return nil
}

// Events returns a copy of the captured audit events. Test helper.
func (gateway *MemoryIdentityGateway) Events() []AuthEvent {
	gateway.mutex.Lock()
	defer gateway.mutex.Unlock()
	out := make([]AuthEvent, len(gateway.events))
	copy(out, gateway.events)
	return out
}
