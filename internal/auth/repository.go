package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tracseq/lims-core/pkg/constant"
)

// Repository persists users, sessions, and the reset/verification token
// tables. Grounded on the teacher's postgres adapters
// (components/ledger/internal/adapters/database/postgres/organization.postgresql.go):
// manual SQL with squirrel for dynamic fragments, pgconn.PgError mapped to
// the domain error taxonomy, sql.ErrNoRows mapped to NotFound.
//
//go:generate mockgen --destination=repository_mock.go --package=auth . Repository
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockUntil *time.Time) error
	ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error

	CreateSession(ctx context.Context, s *Session) error
	SessionByID(ctx context.Context, id uuid.UUID) (*Session, error)
	SessionByRefreshTokenHash(ctx context.Context, hash string) (*Session, error)
	RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error
	RevokeAllUserSessions(ctx context.Context, userID uuid.UUID, at time.Time) error
	TouchSessionLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateResetToken(ctx context.Context, t *ResetToken) error
	ResetTokenByHash(ctx context.Context, hash string) (*ResetToken, error)
	MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error

	CreateVerificationToken(ctx context.Context, t *VerificationToken) error
	VerificationTokenByHash(ctx context.Context, hash string) (*VerificationToken, error)
	MarkVerificationTokenUsed(ctx context.Context, id uuid.UUID) error
}

// PostgresRepository is the production Repository.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func mapPGError(err error, entityType string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return constant.New(constant.KindNotFound, entityType, entityType+" not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return constant.Wrap(constant.KindDuplicateEmail, entityType, err)
		case "23503": // foreign_key_violation
			return constant.Wrap(constant.KindValidation, entityType, err)
		}
	}

	return constant.Wrap(constant.KindInternal, entityType, err)
}

func (r *PostgresRepository) CreateUser(ctx context.Context, u *User) error {
	query, args, err := sq.Insert("users").
		Columns("id", "email", "password_hash", "role", "status", "failed_login_attempts",
			"locked_until", "email_verified", "last_login", "password_changed_at", "created_at", "updated_at").
		Values(u.ID, u.Email, u.PasswordHash, u.Role, u.Status, u.FailedLoginAttempts,
			u.LockedUntil, u.EmailVerified, u.LastLogin, u.PasswordChangedAt, u.CreatedAt, u.UpdatedAt).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("auth: build insert user: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPGError(err, "user")
	}

	return nil
}

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User

	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &u.FailedLoginAttempts,
		&u.LockedUntil, &u.EmailVerified, &u.LastLogin, &u.PasswordChangedAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return &u, nil
}

const userColumns = "id, email, password_hash, role, status, failed_login_attempts, " +
	"locked_until, email_verified, last_login, password_changed_at, created_at, updated_at"

func (r *PostgresRepository) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE lower(email) = lower($1)", email)

	u, err := scanUser(row)
	if err != nil {
		return nil, mapPGError(err, "user")
	}

	return u, nil
}

func (r *PostgresRepository) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)

	u, err := scanUser(row)
	if err != nil {
		return nil, mapPGError(err, "user")
	}

	return u, nil
}

func (r *PostgresRepository) UpdateUser(ctx context.Context, u *User) error {
	query, args, err := sq.Update("users").
		Set("email", u.Email).
		Set("password_hash", u.PasswordHash).
		Set("role", u.Role).
		Set("status", u.Status).
		Set("failed_login_attempts", u.FailedLoginAttempts).
		Set("locked_until", u.LockedUntil).
		Set("email_verified", u.EmailVerified).
		Set("last_login", u.LastLogin).
		Set("password_changed_at", u.PasswordChangedAt).
		Set("updated_at", u.UpdatedAt).
		Where(sq.Eq{"id": u.ID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("auth: build update user: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return mapPGError(err, "user")
	}

	return nil
}

func (r *PostgresRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockUntil *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts = failed_login_attempts + 1, locked_until = $1 WHERE id = $2",
		lockUntil, id)
	if err != nil {
		return mapPGError(err, "user")
	}

	return nil
}

func (r *PostgresRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts = 0, locked_until = NULL WHERE id = $1", id)
	if err != nil {
		return mapPGError(err, "user")
	}

	return nil
}

func (r *PostgresRepository) CreateSession(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_sessions (id, user_id, token_hash, refresh_token_hash, issued_at, expires_at, last_used_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.UserID, s.TokenHash, s.RefreshTokenHash, s.IssuedAt, s.ExpiresAt, s.LastUsedAt, s.RevokedAt)
	if err != nil {
		return mapPGError(err, "session")
	}

	return nil
}

const sessionColumns = "id, user_id, token_hash, refresh_token_hash, issued_at, expires_at, last_used_at, revoked_at"

func (r *PostgresRepository) SessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM user_sessions WHERE id = $1", id)

	var s Session
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.RefreshTokenHash, &s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt, &s.RevokedAt); err != nil {
		return nil, mapPGError(err, "session")
	}

	return &s, nil
}

func (r *PostgresRepository) SessionByRefreshTokenHash(ctx context.Context, hash string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM user_sessions WHERE refresh_token_hash = $1", hash)

	var s Session
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &s.RefreshTokenHash, &s.IssuedAt, &s.ExpiresAt, &s.LastUsedAt, &s.RevokedAt); err != nil {
		return nil, mapPGError(err, "session")
	}

	return &s, nil
}

func (r *PostgresRepository) RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE user_sessions SET revoked_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return mapPGError(err, "session")
	}

	return nil
}

func (r *PostgresRepository) RevokeAllUserSessions(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE user_sessions SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL", at, userID)
	if err != nil {
		return mapPGError(err, "session")
	}

	return nil
}

func (r *PostgresRepository) TouchSessionLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE user_sessions SET last_used_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return mapPGError(err, "session")
	}

	return nil
}

func (r *PostgresRepository) CreateResetToken(ctx context.Context, t *ResetToken) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used) VALUES ($1, $2, $3, $4, $5)",
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Used)
	if err != nil {
		return mapPGError(err, "reset_token")
	}

	return nil
}

func (r *PostgresRepository) ResetTokenByHash(ctx context.Context, hash string) (*ResetToken, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, used FROM password_reset_tokens WHERE token_hash = $1", hash)

	var t ResetToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used); err != nil {
		return nil, mapPGError(err, "reset_token")
	}

	return &t, nil
}

func (r *PostgresRepository) MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "UPDATE password_reset_tokens SET used = TRUE WHERE id = $1", id)
	if err != nil {
		return mapPGError(err, "reset_token")
	}

	return nil
}

func (r *PostgresRepository) CreateVerificationToken(ctx context.Context, t *VerificationToken) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO email_verification_tokens (id, user_id, token_hash, expires_at, used) VALUES ($1, $2, $3, $4, $5)",
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.Used)
	if err != nil {
		return mapPGError(err, "verification_token")
	}

	return nil
}

func (r *PostgresRepository) VerificationTokenByHash(ctx context.Context, hash string) (*VerificationToken, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, token_hash, expires_at, used FROM email_verification_tokens WHERE token_hash = $1", hash)

	var t VerificationToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Used); err != nil {
		return nil, mapPGError(err, "verification_token")
	}

	return &t, nil
}

func (r *PostgresRepository) MarkVerificationTokenUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, "UPDATE email_verification_tokens SET used = TRUE WHERE id = $1", id)
	if err != nil {
		return mapPGError(err, "verification_token")
	}

	return nil
}

var _ Repository = (*PostgresRepository)(nil)
