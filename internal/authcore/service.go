package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lostenergydrink/glimmerglow/internal/rbac"
)

// MinPasswordLength is the floor applied to sign-up, reset, and change.
const MinPasswordLength = 8

// ResetMailer delivers password-reset tokens out of band. Delivery failures
// never fail the HTTP operation; the reset request is already recorded.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, email string, token string) error
}

// LogMailer logs reset tokens instead of delivering them. Dev and test use.
type LogMailer struct {
	Logger *zap.Logger
}

// SendPasswordReset logs the reset event without the token value.
func (mailer LogMailer) SendPasswordReset(ctx context.Context, email string, token string) error {
	if mailer.Logger != nil {
		mailer.Logger.Info("password reset requested", zap.String("email", email))
	}
	return nil
}

// SignInResult is the token pair handed to a freshly authenticated client.
type SignInResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	Identity     Identity
}

// Service is the auth orchestrator: the only component that drives the
// gateway and the revocation state together through sign-in, verification,
// rotation, and teardown.
type Service struct {
	codec       *TokenCodec
	gateway     IdentityGateway
	refreshTkns RefreshTokenStore
	revocations RevocationStore
	sessions    SessionStore
	resets      PasswordResetStore
	mailer      ResetMailer
	logger      *zap.Logger
	metrics     *Metrics
	clock       Clock
}

// NewService wires the orchestrator from explicitly constructed parts.
func NewService(
	configuration ServerConfig,
	codec *TokenCodec,
	gateway IdentityGateway,
	refreshTokens RefreshTokenStore,
	revocations RevocationStore,
	sessions SessionStore,
	resets PasswordResetStore,
	mailer ResetMailer,
	logger *zap.Logger,
	metrics *Metrics,
	clock Clock,
) (*Service, error) {
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	if codec == nil || gateway == nil || refreshTokens == nil || revocations == nil || sessions == nil || resets == nil {
		return nil, errors.New("auth_service.new: all stores are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewSystemClock()
	}
	if mailer == nil {
		mailer = LogMailer{Logger: logger}
	}
	return &Service{
		codec:       codec,
		gateway:     gateway,
		refreshTkns: refreshTokens,
		revocations: revocations,
		sessions:    sessions,
		resets:      resets,
		mailer:      mailer,
		logger:      logger,
		metrics:     metrics,
		clock:       clock,
	}, nil
}

// SignUp registers a self-service account with the most junior role.
func (service *Service) SignUp(ctx context.Context, email string, password string) (Identity, error) {
	return service.CreateAccount(ctx, email, password, rbac.RoleUser)
}

// CreateAccount registers an account with an explicit role. Role-management
// authorization is the caller's responsibility; this validates input only.
func (service *Service) CreateAccount(ctx context.Context, email string, password string, role rbac.Role) (Identity, error) {
	if strings.TrimSpace(email) == "" {
		return Identity{}, fmt.Errorf("auth_service.sign_up: %w", ErrEmailRequired)
	}
	if len(password) < MinPasswordLength {
		return Identity{}, fmt.Errorf("auth_service.sign_up: %w", ErrPasswordTooShort)
	}
	identity, createErr := service.gateway.CreateIdentity(ctx, email, password, role)
	if createErr != nil {
		return Identity{}, createErr
	}
	service.metrics.Event(MetricSignUp)
	service.audit(ctx, identity.ID, EventSignUp, map[string]string{"role": role.String()})
	return identity, nil
}

// SignIn verifies credentials and opens a session with a fresh token pair.
func (service *Service) SignIn(ctx context.Context, email string, password string) (SignInResult, error) {
	identity, verifyErr := service.gateway.VerifyCredentials(ctx, email, password)
	if verifyErr != nil {
		service.metrics.Event(MetricSignInFailure)
		return SignInResult{}, verifyErr
	}
	accessToken, _, mintErr := service.codec.MintAccessToken(identity)
	if mintErr != nil {
		return SignInResult{}, mintErr
	}
	refreshToken, refreshExpiry, refreshMintErr := service.codec.MintRefreshJWT(identity.ID)
	if refreshMintErr != nil {
		return SignInResult{}, refreshMintErr
	}
	refreshID, issueErr := service.refreshTkns.Issue(ctx, identity.ID, refreshToken, refreshExpiry.Unix(), "")
	if issueErr != nil {
		return SignInResult{}, issueErr
	}
	session := Session{
		ID:             uuid.NewString(),
		SubjectID:      identity.ID,
		AccessToken:    accessToken,
		RefreshTokenID: refreshID,
		StartedUnix:    service.clock.Now().Unix(),
	}
	if createErr := service.sessions.Create(ctx, session); createErr != nil {
		return SignInResult{}, createErr
	}
	service.metrics.Event(MetricSignInSuccess)
	service.audit(ctx, identity.ID, EventSignIn, nil)
	return SignInResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(service.codec.AccessTTL().Seconds()),
		Identity:     identity,
	}, nil
}

// Verify authenticates one request's bearer token: signature and expiry via
// the codec, then the blacklist, then identity re-resolution. A revocation
// lookup failure is treated as revoked (fail secure) while staying
// observable through logs and metrics.
func (service *Service) Verify(ctx context.Context, accessToken string) (Identity, *Claims, error) {
	claims, verifyErr := service.codec.VerifyAccessToken(accessToken)
	if verifyErr != nil {
		return Identity{}, nil, verifyErr
	}
	blacklisted, checkErr := service.revocations.IsAccessTokenBlacklisted(ctx, accessToken)
	if checkErr != nil {
		service.metrics.Event(MetricRevocationCheckError)
		service.logger.Error("revocation check failed, treating token as revoked",
			zap.String("code", "auth_service.verify.revocation_check"),
			zap.Error(checkErr))
		return Identity{}, nil, fmt.Errorf("auth_service.verify: %w", ErrTokenRevoked)
	}
	if blacklisted {
		service.metrics.Event(MetricVerifyRevoked)
		return Identity{}, nil, fmt.Errorf("auth_service.verify: %w", ErrTokenRevoked)
	}
	identity, resolveErr := service.gateway.GetIdentityByID(ctx, claims.Subject)
	if resolveErr != nil {
		return Identity{}, nil, fmt.Errorf("auth_service.verify: %w", ErrIdentityMismatch)
	}
	if identity.ID != claims.Subject || identity.Status != StatusActive {
		return Identity{}, nil, fmt.Errorf("auth_service.verify: %w", ErrIdentityMismatch)
	}
	return identity, claims, nil
}

// Refresh rotates a refresh token: the presented token is revoked before
// the new pair is returned, so the replay window is closed and a concurrent
// rotation admits exactly one winner. The token must carry a live refresh
// JWT signature and still be tracked by the store.
func (service *Service) Refresh(ctx context.Context, refreshToken string, priorAccessToken string) (SignInResult, error) {
	claims, verifyErr := service.codec.VerifyRefreshToken(refreshToken)
	if verifyErr != nil {
		service.metrics.Event(MetricRefreshFailure)
		if errors.Is(verifyErr, ErrTokenExpired) {
			return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshExpired)
		}
		return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshInvalidated)
	}
	subjectID, tokenID, _, validateErr := service.refreshTkns.Validate(ctx, refreshToken)
	if validateErr != nil {
		service.metrics.Event(MetricRefreshFailure)
		if errors.Is(validateErr, ErrRefreshTokenExpired) {
			return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshExpired)
		}
		return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshInvalidated)
	}
	if subjectID != claims.Subject {
		service.metrics.Event(MetricRefreshFailure)
		return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshInvalidated)
	}
	invalidated, checkErr := service.revocations.IsRefreshTokenInvalidated(ctx, refreshToken)
	if checkErr != nil {
		service.metrics.Event(MetricRevocationCheckError)
		service.logger.Error("refresh invalidation check failed, treating token as invalidated",
			zap.String("code", "auth_service.refresh.revocation_check"),
			zap.Error(checkErr))
		return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshInvalidated)
	}
	if invalidated {
		service.metrics.Event(MetricRefreshFailure)
		return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshInvalidated)
	}

	// Claim the presented token before minting anything. The conditional
	// revoke is the arbiter of concurrent rotations.
	if revokeErr := service.refreshTkns.Revoke(ctx, tokenID, RevokeReasonRefresh); revokeErr != nil {
		service.metrics.Event(MetricRefreshFailure)
		return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrRefreshInvalidated)
	}
	if invalidateErr := service.revocations.InvalidateRefreshToken(ctx, refreshToken, RevokeReasonRefresh); invalidateErr != nil {
		service.logger.Error("failed to record refresh invalidation",
			zap.String("code", "auth_service.refresh.record_invalidation"),
			zap.Error(invalidateErr))
	}

	identity, resolveErr := service.gateway.GetIdentityByID(ctx, subjectID)
	if resolveErr != nil || identity.Status != StatusActive {
		service.metrics.Event(MetricRefreshFailure)
		return SignInResult{}, fmt.Errorf("auth_service.refresh: %w", ErrIdentityMismatch)
	}

	accessToken, _, mintErr := service.codec.MintAccessToken(identity)
	if mintErr != nil {
		return SignInResult{}, mintErr
	}
	newRefreshToken, newRefreshExpiry, refreshMintErr := service.codec.MintRefreshJWT(identity.ID)
	if refreshMintErr != nil {
		return SignInResult{}, refreshMintErr
	}
	newRefreshID, issueErr := service.refreshTkns.Issue(ctx, identity.ID, newRefreshToken, newRefreshExpiry.Unix(), tokenID)
	if issueErr != nil {
		return SignInResult{}, issueErr
	}

	if priorAccessToken != "" {
		if blacklistErr := service.revocations.BlacklistAccessToken(ctx, priorAccessToken, RevokeReasonRefresh); blacklistErr != nil {
			service.logger.Error("failed to blacklist prior access token",
				zap.String("code", "auth_service.refresh.blacklist_prior"),
				zap.Error(blacklistErr))
		}
	}

	if session, findErr := service.sessions.FindByRefreshTokenID(ctx, tokenID); findErr == nil {
		if rotateErr := service.sessions.Rotate(ctx, session.ID, accessToken, newRefreshID); rotateErr != nil {
			service.logger.Warn("failed to rotate session record",
				zap.String("code", "auth_service.refresh.session_rotate"),
				zap.Error(rotateErr))
		}
	}

	service.metrics.Event(MetricRefreshSuccess)
	service.audit(ctx, identity.ID, EventRefresh, nil)
	return SignInResult{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int(service.codec.AccessTTL().Seconds()),
		Identity:     identity,
	}, nil
}

// SignOut revokes whatever tokens the caller presents. It is best-effort
// and never fails the caller-visible operation.
func (service *Service) SignOut(ctx context.Context, accessToken string, refreshToken string) {
	var subjectID string
	if accessToken != "" {
		if claims, verifyErr := service.codec.VerifyAccessToken(accessToken); verifyErr == nil {
			subjectID = claims.Subject
		}
		if blacklistErr := service.revocations.BlacklistAccessToken(ctx, accessToken, RevokeReasonLogout); blacklistErr != nil {
			service.logger.Warn("failed to blacklist access token on logout",
				zap.String("code", "auth_service.sign_out.blacklist"),
				zap.Error(blacklistErr))
		}
		if session, findErr := service.sessions.FindByAccessToken(ctx, accessToken); findErr == nil {
			_ = service.sessions.End(ctx, session.ID, SessionEndLogout)
		}
	}
	if refreshToken != "" {
		if validSubject, tokenID, _, validateErr := service.refreshTkns.Validate(ctx, refreshToken); validateErr == nil {
			if subjectID == "" {
				subjectID = validSubject
			}
			if revokeErr := service.refreshTkns.Revoke(ctx, tokenID, RevokeReasonLogout); revokeErr != nil && !errors.Is(revokeErr, ErrRefreshTokenRevoked) {
				service.logger.Warn("failed to revoke refresh token on logout",
					zap.String("code", "auth_service.sign_out.revoke"),
					zap.Error(revokeErr))
			}
			if session, findErr := service.sessions.FindByRefreshTokenID(ctx, tokenID); findErr == nil {
				_ = service.sessions.End(ctx, session.ID, SessionEndLogout)
			}
		}
		if invalidateErr := service.revocations.InvalidateRefreshToken(ctx, refreshToken, RevokeReasonLogout); invalidateErr != nil {
			service.logger.Warn("failed to record refresh invalidation on logout",
				zap.String("code", "auth_service.sign_out.invalidate"),
				zap.Error(invalidateErr))
		}
	}
	service.metrics.Event(MetricSignOut)
	if subjectID != "" {
		service.audit(ctx, subjectID, EventSignOut, nil)
	}
}

// RequestPasswordReset records a single-use reset token and hands it to the
// mailer. The caller always sees success, whether or not the email exists.
func (service *Service) RequestPasswordReset(ctx context.Context, email string) {
	identity, findErr := service.gateway.GetIdentityByEmail(ctx, email)
	if findErr != nil {
		// Anti-enumeration: unknown emails behave identically.
		return
	}
	resetToken, tokenHash, generateErr := generateResetToken()
	if generateErr != nil {
		service.logger.Error("failed to generate reset token",
			zap.String("code", "auth_service.reset_request.generate"),
			zap.Error(generateErr))
		return
	}
	expiresUnix := service.clock.Now().Add(ResetTokenTTL).Unix()
	if createErr := service.resets.Create(ctx, identity.ID, tokenHash, expiresUnix); createErr != nil {
		service.logger.Error("failed to record reset request",
			zap.String("code", "auth_service.reset_request.create"),
			zap.Error(createErr))
		return
	}
	if mailErr := service.mailer.SendPasswordReset(ctx, identity.Email, resetToken); mailErr != nil {
		service.logger.Error("failed to deliver reset token",
			zap.String("code", "auth_service.reset_request.mail"),
			zap.Error(mailErr))
	}
	service.metrics.Event(MetricPasswordReset)
	service.audit(ctx, identity.ID, EventPasswordResetRequested, nil)
}

// CompletePasswordReset consumes a reset token, sets the new password, and
// tears down every active session for the subject. A stolen session must
// not survive a reset.
func (service *Service) CompletePasswordReset(ctx context.Context, resetToken string, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("auth_service.reset_complete: %w", ErrPasswordTooShort)
	}
	subjectID, consumeErr := service.resets.Consume(ctx, hashToken(resetToken))
	if consumeErr != nil {
		return consumeErr
	}
	if setErr := service.gateway.SetPassword(ctx, subjectID, newPassword); setErr != nil {
		return setErr
	}
	service.terminateSessions(ctx, subjectID, "")
	service.metrics.Event(MetricPasswordReset)
	service.audit(ctx, subjectID, EventPasswordResetCompleted, nil)
	return nil
}

// ChangePassword verifies the current password, sets the new one, and tears
// down every session except the acting one.
func (service *Service) ChangePassword(ctx context.Context, subjectID string, actingAccessToken string, currentPassword string, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return fmt.Errorf("auth_service.change_password: %w", ErrPasswordTooShort)
	}
	identity, resolveErr := service.gateway.GetIdentityByID(ctx, subjectID)
	if resolveErr != nil {
		return resolveErr
	}
	if _, verifyErr := service.gateway.VerifyCredentials(ctx, identity.Email, currentPassword); verifyErr != nil {
		return fmt.Errorf("auth_service.change_password: %w", ErrCurrentPasswordIncorrect)
	}
	if setErr := service.gateway.SetPassword(ctx, subjectID, newPassword); setErr != nil {
		return setErr
	}
	actingSessionID := ""
	actingRefreshID := ""
	if session, findErr := service.sessions.FindByAccessToken(ctx, actingAccessToken); findErr == nil {
		actingSessionID = session.ID
		actingRefreshID = session.RefreshTokenID
	}
	service.terminateSessionsExcept(ctx, subjectID, actingSessionID, actingRefreshID)
	service.metrics.Event(MetricPasswordChange)
	service.audit(ctx, subjectID, EventPasswordChanged, nil)
	return nil
}

func (service *Service) terminateSessions(ctx context.Context, subjectID string, exceptSessionID string) {
	service.terminateSessionsExcept(ctx, subjectID, exceptSessionID, "")
}

// terminateSessionsExcept ends every tracked session for the subject but
// the acting one, blacklists their access tokens, and revokes their refresh
// tokens so stale credentials fail verification before natural expiry.
func (service *Service) terminateSessionsExcept(ctx context.Context, subjectID string, exceptSessionID string, exceptRefreshID string) {
	ended, endErr := service.sessions.EndAllForSubject(ctx, subjectID, SessionEndPasswordChange, exceptSessionID)
	if endErr != nil {
		service.logger.Error("failed to end sessions for subject",
			zap.String("code", "auth_service.terminate.end_all"),
			zap.String("subject_id", subjectID),
			zap.Error(endErr))
	}
	for _, session := range ended {
		if session.AccessToken == "" {
			continue
		}
		if blacklistErr := service.revocations.BlacklistAccessToken(ctx, session.AccessToken, RevokeReasonPasswordChange); blacklistErr != nil {
			service.logger.Error("failed to blacklist session access token",
				zap.String("code", "auth_service.terminate.blacklist"),
				zap.String("session_id", session.ID),
				zap.Error(blacklistErr))
		}
	}
	if _, revokeErr := service.refreshTkns.RevokeAllForSubject(ctx, subjectID, RevokeReasonPasswordChange, exceptRefreshID); revokeErr != nil {
		service.logger.Error("failed to revoke refresh tokens for subject",
			zap.String("code", "auth_service.terminate.revoke_all"),
			zap.String("subject_id", subjectID),
			zap.Error(revokeErr))
	}
}

// audit records a best-effort auth event; failures are logged and dropped.
func (service *Service) audit(ctx context.Context, subjectID string, eventType string, metadata map[string]string) {
	if auditErr := service.gateway.RecordAuthEvent(ctx, subjectID, eventType, metadata); auditErr != nil {
		service.logger.Warn("audit event dropped",
			zap.String("code", "auth_service.audit"),
			zap.String("event", eventType),
			zap.Error(auditErr))
	}
}
