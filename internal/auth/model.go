// Package auth implements authentication and session core (C3): password
// hashing, session/token lifecycle, lockout, and reset/verification tokens,
// grounded on original_source/lims-core/auth_service/src/services.rs
// translated into the teacher's service/repository layering.
package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/pkg/constant"
)

// Status is the closed enumeration of account states (spec.md §3).
type Status string

const (
	StatusActive            Status = "Active"
	StatusInactive          Status = "Inactive"
	StatusLocked            Status = "Locked"
	StatusPendingVerification Status = "PendingVerification"
)

// User is the account record (spec.md §3, "User & Session").
type User struct {
	ID                  uuid.UUID
	Email               string
	PasswordHash        string
	Role                string
	Status              Status
	FailedLoginAttempts int
	LockedUntil         *time.Time
	EmailVerified       bool
	LastLogin           *time.Time
	PasswordChangedAt   time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// CanLogin reports whether the account is in a loginable state, and if not,
// which error kind explains why. Guard ordering matches the original's
// user.can_login() call site in login(): lock check first, then
// verification, then account status
// (original_source/lims-core/auth_service/src/services.rs lines 59-66).
func (u *User) CanLogin(now time.Time) (bool, constant.ErrorKind) {
	if u.isLocked(now) {
		return false, constant.KindAccountLocked
	}

	if !u.EmailVerified {
		return false, constant.KindAccountNotVerified
	}

	if u.Status != StatusActive {
		return false, constant.KindAccountDisabled
	}

	return true, ""
}

func (u *User) isLocked(now time.Time) bool {
	if u.Status == StatusLocked {
		return true
	}

	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// Session is an issued access/refresh token pair (spec.md §3).
type Session struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	TokenHash        string
	RefreshTokenHash *string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	LastUsedAt       time.Time
	RevokedAt        *time.Time
}

func (s *Session) isActive(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// ResetToken backs forgot_password / reset_password (spec.md §3).
type ResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
}

// VerificationToken backs create_user / verify_email (spec.md §3).
type VerificationToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	Used      bool
}

// Claims is the JWT payload shape, carried over verbatim from the
// original's AuthClaims
// (original_source/lims-core/auth_service/src/services.rs "struct
// AuthClaims"): sub/email/role/exp/iat/iss/aud/jti where jti is the
// session id.
type Claims struct {
	Subject   uuid.UUID `json:"sub"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt int64     `json:"exp"`
	IssuedAt  int64     `json:"iat"`
	Issuer    string    `json:"iss"`
	Audience  string    `json:"aud"`
	SessionID uuid.UUID `json:"jti"`
}

// LoginResult is returned by Login and Refresh.
type LoginResult struct {
	UserID       uuid.UUID
	Email        string
	Role         string
	AccessToken  string
	RefreshToken *string
	ExpiresAt    time.Time
	SessionID    uuid.UUID
}

// ValidateResult is returned by ValidateToken.
type ValidateResult struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	SessionID uuid.UUID
	ExpiresAt time.Time
}

// PasswordPolicy is the configurable strength policy gating create_user and
// reset_password (spec.md §4.2: "below configured policy (min length,
// class requirements)"), mirroring the original's
// config.security.password_* fields.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumbers   bool
	RequireSymbols   bool
}

// DefaultPasswordPolicy mirrors common defaults for a LIMS deployment:
// at least 10 characters with at least one uppercase letter, one lowercase
// letter, and one digit; symbols optional.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:        10,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireNumbers:   true,
		RequireSymbols:   false,
	}
}

// LockoutPolicy governs failed-login bookkeeping (spec.md §4.2: "threshold
// (configurable, default 5) set locked_until = now + 30 min").
type LockoutPolicy struct {
	MaxFailedAttempts int
	LockoutDuration   time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxFailedAttempts: 5, LockoutDuration: 30 * time.Minute}
}
