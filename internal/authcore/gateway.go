package authcore

import (
	"context"
	"time"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

// Account statuses. Only active identities may authenticate.
const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Identity is an account as the identity backend sees it. The auth core
// never mutates it except through the gateway's password and role calls.
type Identity struct {
	ID        string
	Email     string
	Role      rbac.Role
	Status    string
	CreatedAt time.Time
}

// Auth event types recorded through RecordAuthEvent.
const (
	EventSignUp                 = "sign_up"
	EventSignIn                 = "sign_in"
	EventSignOut                = "sign_out"
	EventRefresh                = "refresh"
	EventPasswordResetRequested = "password_reset_requested"
	EventPasswordResetCompleted = "password_reset_completed"
	EventPasswordChanged        = "password_changed"
	EventRoleChanged            = "role_changed"
)

// IdentityGateway wraps the external identity and data backend. Backend
// transport failures are wrapped in ErrBackendUnavailable; everything else
// maps to the sentinel errors in errors.go.
type IdentityGateway interface {
	// CreateIdentity registers a new account. The password arrives in
	// plaintext and is hashed before storage.
	CreateIdentity(ctx context.Context, email string, password string, role rbac.Role) (Identity, error)
	// VerifyCredentials checks email/password and returns the identity.
	// Inactive and suspended accounts fail with ErrInvalidCredentials.
	VerifyCredentials(ctx context.Context, email string, password string) (Identity, error)
	// GetIdentityByID resolves an identity by subject id.
	GetIdentityByID(ctx context.Context, id string) (Identity, error)
	// GetIdentityByEmail resolves an identity by email.
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	// SetPassword replaces the stored credential for the subject.
	SetPassword(ctx context.Context, id string, newPassword string) error
	// UpdateRole changes the subject's role.
	UpdateRole(ctx context.Context, id string, role rbac.Role) error
	// ListIdentities returns every account, for the admin panel.
	ListIdentities(ctx context.Context) ([]Identity, error)
	// RecordAuthEvent appends a best-effort audit record. Implementations
	// must not let a failure here abort the primary operation; callers
	// ignore the returned error beyond logging it.
	RecordAuthEvent(ctx context.Context, subjectID string, eventType string, metadata map[string]string) error
}
