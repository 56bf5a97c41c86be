package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/tracseq/lims-core/internal/eventbus"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/constant"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

// Config holds the tunables the original reads from its Config struct
// (jwt.secret/issuer/audience/access_token_expiry_hours,
// security.password_*, features.email_verification_required).
type Config struct {
	JWTSecret               []byte
	JWTIssuer               string
	JWTAudience             string
	AccessTokenTTL          time.Duration
	PasswordPolicy          PasswordPolicy
	LockoutPolicy           LockoutPolicy
	EmailVerificationNeeded bool
	ResetTokenTTL           time.Duration
	VerificationTokenTTL    time.Duration
}

func DefaultConfig(secret []byte) Config {
	return Config{
		JWTSecret:               secret,
		JWTIssuer:               "tracseq-lims-core",
		JWTAudience:             "tracseq-lims",
		AccessTokenTTL:          time.Hour,
		PasswordPolicy:          DefaultPasswordPolicy(),
		LockoutPolicy:           DefaultLockoutPolicy(),
		EmailVerificationNeeded: true,
		ResetTokenTTL:           time.Hour,
		VerificationTokenTTL:    24 * time.Hour,
	}
}

// Service implements the C3 operations from spec.md §4.2, grounded on
// original_source/lims-core/auth_service/src/services.rs's AuthServiceImpl.
type Service struct {
	repo   Repository
	cache  *SessionCache
	bus    *eventbus.Bus
	clock  clock.Clock
	ids    idgen.Generator
	issuer *tokenIssuer
	logger mlog.Logger
	cfg    Config
}

func NewService(repo Repository, cache *SessionCache, bus *eventbus.Bus, clk clock.Clock, ids idgen.Generator, logger mlog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = &mlog.NoneLogger{}
	}

	return &Service{
		repo:   repo,
		cache:  cache,
		bus:    bus,
		clock:  clk,
		ids:    ids,
		issuer: newTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		logger: logger,
		cfg:    cfg,
	}
}

func (s *Service) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.bus == nil {
		return
	}

	if _, err := s.bus.Publish(ctx, eventType, "auth-core", payload, nil); err != nil {
		s.logger.Warnf("auth: publish %s failed: %v", eventType, err)
	}
}

// CreateUser implements spec.md §4.2's create_user: duplicate-email and
// weak-password checks, KDF-hashed password, optional email-verification
// gate that also forces PendingVerification status.
func (s *Service) CreateUser(ctx context.Context, email, password, role string) (*User, error) {
	if _, err := s.repo.UserByEmail(ctx, email); err == nil {
		return nil, constant.New(constant.KindDuplicateEmail, "user", "an account with this email already exists")
	} else if constant.KindOf(err) != constant.KindNotFound {
		return nil, err
	}

	if err := validatePasswordStrength(password, s.cfg.PasswordPolicy); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}

	now := s.clock.Now()

	emailVerified := !s.cfg.EmailVerificationNeeded
	status := StatusActive
	if s.cfg.EmailVerificationNeeded {
		status = StatusPendingVerification
	}

	user := &User{
		ID:                s.ids.NewID(),
		Email:             email,
		PasswordHash:      hash,
		Role:              role,
		Status:            status,
		EmailVerified:     emailVerified,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if s.cfg.EmailVerificationNeeded {
		if err := s.issueVerificationToken(ctx, user); err != nil {
			s.logger.Errorf("auth: issue verification token for %s: %v", user.Email, err)
		}
	}

	s.publish(ctx, "auth.user_created", map[string]any{
		"entity_type": "user", "entity_id": user.ID.String(), "actor": "self",
	})

	return user, nil
}

func (s *Service) issueVerificationToken(ctx context.Context, user *User) error {
	raw, err := generateOpaqueToken(s.ids)
	if err != nil {
		return err
	}

	token := &VerificationToken{
		ID:        s.ids.NewID(),
		UserID:    user.ID,
		TokenHash: hashToken(raw),
		ExpiresAt: s.clock.Now().Add(s.cfg.VerificationTokenTTL),
	}

	return s.repo.CreateVerificationToken(ctx, token)
}

// Login implements spec.md §4.2's login: lock/verification/status guards
// before password verification (original ordering), attempt counting with
// lockout, session issuance.
// rememberMe gates whether a refresh token is issued alongside the access
// token, matching the original's request.remember_me.unwrap_or(false).
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (*LoginResult, error) {
	user, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		return nil, constant.New(constant.KindInvalidCredentials, "user", "invalid email or password")
	}

	now := s.clock.Now()

	if ok, kind := user.CanLogin(now); !ok {
		return nil, constant.New(kind, "user", string(kind))
	}

	match, err := verifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("auth: verify password: %w", err)
	}

	if !match {
		s.recordFailedLogin(ctx, user, now)
		return nil, constant.New(constant.KindInvalidCredentials, "user", "invalid email or password")
	}

	if err := s.repo.ResetFailedLoginAttempts(ctx, user.ID); err != nil {
		return nil, err
	}

	user.LastLogin = &now
	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	result, err := s.issueSession(ctx, user, rememberMe)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "auth.login_success", map[string]any{
		"entity_type": "user", "entity_id": user.ID.String(), "actor": user.Email,
	})

	return result, nil
}

func (s *Service) recordFailedLogin(ctx context.Context, user *User, now time.Time) {
	var lockUntil *time.Time

	attempts := user.FailedLoginAttempts + 1
	if attempts >= s.cfg.LockoutPolicy.MaxFailedAttempts {
		until := now.Add(s.cfg.LockoutPolicy.LockoutDuration)
		lockUntil = &until
	}

	if err := s.repo.IncrementFailedLoginAttempts(ctx, user.ID, lockUntil); err != nil {
		s.logger.Errorf("auth: increment failed login attempts: %v", err)
	}

	eventType := "auth.login_failed"
	if lockUntil != nil {
		eventType = "auth.account_locked"
	}

	s.publish(ctx, eventType, map[string]any{
		"entity_type": "user", "entity_id": user.ID.String(), "actor": user.Email,
	})
}

func (s *Service) issueSession(ctx context.Context, user *User, includeRefresh bool) (*LoginResult, error) {
	sessionID := s.ids.NewID()
	now := s.clock.Now()
	expiresAt := now.Add(s.cfg.AccessTokenTTL)

	claims := Claims{
		Subject:   user.ID,
		Email:     user.Email,
		Role:      user.Role,
		ExpiresAt: expiresAt.Unix(),
		IssuedAt:  now.Unix(),
		SessionID: sessionID,
	}

	accessToken, err := s.issuer.issue(claims)
	if err != nil {
		return nil, err
	}

	var refreshToken *string
	var refreshHash *string

	if includeRefresh {
		raw, err := generateOpaqueToken(s.ids)
		if err != nil {
			return nil, err
		}

		hash := hashToken(raw)
		refreshToken = &raw
		refreshHash = &hash
	}

	session := &Session{
		ID:               sessionID,
		UserID:           user.ID,
		TokenHash:        hashToken(accessToken),
		RefreshTokenHash: refreshHash,
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		LastUsedAt:       now,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Put(ctx, sessionID, user.ID, expiresAt)
	}

	return &LoginResult{
		UserID:       user.ID,
		Email:        user.Email,
		Role:         user.Role,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		SessionID:    sessionID,
	}, nil
}

// ValidateToken implements spec.md §4.2's validate_token: decode, confirm
// the session still exists/matches/isn't revoked, bump last_used_at.
func (s *Service) ValidateToken(ctx context.Context, rawToken string) (*ValidateResult, error) {
	claims, err := s.issuer.parse(rawToken)
	if err != nil {
		return nil, err
	}

	session, err := s.repo.SessionByID(ctx, claims.SessionID)
	if err != nil {
		return nil, constant.New(constant.KindSessionNotFound, "session", "session not found")
	}

	now := s.clock.Now()

	if session.UserID != claims.Subject || !session.isActive(now) {
		return nil, constant.New(constant.KindTokenInvalid, "session", "session is no longer valid")
	}

	if session.TokenHash != hashToken(rawToken) {
		return nil, constant.New(constant.KindTokenInvalid, "session", "token does not match issued session")
	}

	if err := s.repo.TouchSessionLastUsed(ctx, session.ID, now); err != nil {
		s.logger.Warnf("auth: touch session last used: %v", err)
	}

	return &ValidateResult{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Role:      claims.Role,
		SessionID: claims.SessionID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// Refresh implements spec.md §4.2's refresh: atomically revoke the old
// session and issue a new access+refresh pair bound to the same user.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	hash := hashToken(refreshToken)

	session, err := s.repo.SessionByRefreshTokenHash(ctx, hash)
	if err != nil {
		return nil, constant.New(constant.KindTokenInvalid, "session", "refresh token not recognized")
	}

	now := s.clock.Now()
	if !session.isActive(now) {
		return nil, constant.New(constant.KindTokenInvalid, "session", "refresh token has expired or been revoked")
	}

	user, err := s.repo.UserByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	if ok, kind := user.CanLogin(now); !ok {
		return nil, constant.New(kind, "user", string(kind))
	}

	if err := s.repo.RevokeSession(ctx, session.ID, now); err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, session.ID)
	}

	result, err := s.issueSession(ctx, user, true)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, "auth.token_refreshed", map[string]any{
		"entity_type": "user", "entity_id": user.ID.String(), "actor": user.Email,
	})

	return result, nil
}

// ForgotPassword implements spec.md §4.2's forgot_password: constant
// response regardless of whether the account exists, so the caller can't
// enumerate emails.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.repo.UserByEmail(ctx, email)
	if err != nil {
		return nil
	}

	raw, err := generateOpaqueToken(s.ids)
	if err != nil {
		return fmt.Errorf("auth: generate reset token: %w", err)
	}

	token := &ResetToken{
		ID:        s.ids.NewID(),
		UserID:    user.ID,
		TokenHash: hashToken(raw),
		ExpiresAt: s.clock.Now().Add(s.cfg.ResetTokenTTL),
	}

	if err := s.repo.CreateResetToken(ctx, token); err != nil {
		return err
	}

	s.publish(ctx, "auth.password_reset_requested", map[string]any{
		"entity_type": "user", "entity_id": user.ID.String(), "actor": user.Email,
		"reset_token": raw,
	})

	return nil
}

// ResetPassword implements spec.md §4.2's reset_password: validate token,
// rotate password, mark token used, revoke every outstanding session.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := validatePasswordStrength(newPassword, s.cfg.PasswordPolicy); err != nil {
		return err
	}

	token, err := s.repo.ResetTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		return constant.New(constant.KindTokenInvalid, "reset_token", "reset token not recognized")
	}

	if token.Used || s.clock.Now().After(token.ExpiresAt) {
		return constant.New(constant.KindTokenInvalid, "reset_token", "reset token is used or expired")
	}

	user, err := s.repo.UserByID(ctx, token.UserID)
	if err != nil {
		return err
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.PasswordChangedAt = s.clock.Now()
	user.UpdatedAt = user.PasswordChangedAt

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return err
	}

	if err := s.repo.MarkResetTokenUsed(ctx, token.ID); err != nil {
		return err
	}

	if err := s.repo.RevokeAllUserSessions(ctx, user.ID, s.clock.Now()); err != nil {
		return err
	}

	s.publish(ctx, "auth.password_reset_completed", map[string]any{
		"entity_type": "user", "entity_id": user.ID.String(), "actor": user.Email,
	})

	return nil
}

// VerifyEmail implements spec.md §4.2's verify_email: flips
// email_verified=true, status=Active.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	token, err := s.repo.VerificationTokenByHash(ctx, hashToken(rawToken))
	if err != nil {
		return constant.New(constant.KindTokenInvalid, "verification_token", "verification token not recognized")
	}

	if token.Used || s.clock.Now().After(token.ExpiresAt) {
		return constant.New(constant.KindTokenInvalid, "verification_token", "verification token is used or expired")
	}

	user, err := s.repo.UserByID(ctx, token.UserID)
	if err != nil {
		return err
	}

	user.EmailVerified = true
	user.Status = StatusActive
	user.UpdatedAt = s.clock.Now()

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return err
	}

	if err := s.repo.MarkVerificationTokenUsed(ctx, token.ID); err != nil {
		return err
	}

	s.publish(ctx, "auth.email_verified", map[string]any{
		"entity_type": "user", "entity_id": user.ID.String(), "actor": user.Email,
	})

	return nil
}
