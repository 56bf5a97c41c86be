package auth_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tracseq/lims-core/internal/auth"
	"github.com/tracseq/lims-core/pkg/constant"
)

// memoryRepository is a hermetic stand-in for auth.PostgresRepository.
type memoryRepository struct {
	mu                 sync.Mutex
	usersByID          map[uuid.UUID]*auth.User
	sessionsByID       map[uuid.UUID]*auth.Session
	resetTokens        map[uuid.UUID]*auth.ResetToken
	verificationTokens map[uuid.UUID]*auth.VerificationToken
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		usersByID:          map[uuid.UUID]*auth.User{},
		sessionsByID:       map[uuid.UUID]*auth.Session{},
		resetTokens:        map[uuid.UUID]*auth.ResetToken{},
		verificationTokens: map[uuid.UUID]*auth.VerificationToken{},
	}
}

func clone[T any](v T) T { return v }

func (m *memoryRepository) CreateUser(ctx context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(*u)
	m.usersByID[u.ID] = &cp

	return nil
}

func (m *memoryRepository) UserByEmail(ctx context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.usersByID {
		if u.Email == email {
			cp := clone(*u)
			return &cp, nil
		}
	}

	return nil, constant.New(constant.KindNotFound, "user", "user not found")
}

func (m *memoryRepository) UserByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.usersByID[id]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "user", "user not found")
	}

	cp := clone(*u)

	return &cp, nil
}

func (m *memoryRepository) UpdateUser(ctx context.Context, u *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(*u)
	m.usersByID[u.ID] = &cp

	return nil
}

func (m *memoryRepository) IncrementFailedLoginAttempts(ctx context.Context, id uuid.UUID, lockUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usersByID[id]
	u.FailedLoginAttempts++
	u.LockedUntil = lockUntil

	return nil
}

func (m *memoryRepository) ResetFailedLoginAttempts(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.usersByID[id]
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil

	return nil
}

func (m *memoryRepository) CreateSession(ctx context.Context, s *auth.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(*s)
	m.sessionsByID[s.ID] = &cp

	return nil
}

func (m *memoryRepository) SessionByID(ctx context.Context, id uuid.UUID) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessionsByID[id]
	if !ok {
		return nil, constant.New(constant.KindNotFound, "session", "session not found")
	}

	cp := clone(*s)

	return &cp, nil
}

func (m *memoryRepository) SessionByRefreshTokenHash(ctx context.Context, hash string) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessionsByID {
		if s.RefreshTokenHash != nil && *s.RefreshTokenHash == hash {
			cp := clone(*s)
			return &cp, nil
		}
	}

	return nil, constant.New(constant.KindNotFound, "session", "session not found")
}

func (m *memoryRepository) RevokeSession(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessionsByID[id]; ok {
		s.RevokedAt = &at
	}

	return nil
}

func (m *memoryRepository) RevokeAllUserSessions(ctx context.Context, userID uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessionsByID {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &at
		}
	}

	return nil
}

func (m *memoryRepository) TouchSessionLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessionsByID[id]; ok {
		s.LastUsedAt = at
	}

	return nil
}

func (m *memoryRepository) CreateResetToken(ctx context.Context, t *auth.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(*t)
	m.resetTokens[t.ID] = &cp

	return nil
}

func (m *memoryRepository) ResetTokenByHash(ctx context.Context, hash string) (*auth.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.resetTokens {
		if t.TokenHash == hash {
			cp := clone(*t)
			return &cp, nil
		}
	}

	return nil, constant.New(constant.KindNotFound, "reset_token", "reset token not found")
}

func (m *memoryRepository) MarkResetTokenUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.resetTokens[id]; ok {
		t.Used = true
	}

	return nil
}

func (m *memoryRepository) CreateVerificationToken(ctx context.Context, t *auth.VerificationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := clone(*t)
	m.verificationTokens[t.ID] = &cp

	return nil
}

func (m *memoryRepository) VerificationTokenByHash(ctx context.Context, hash string) (*auth.VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.verificationTokens {
		if t.TokenHash == hash {
			cp := clone(*t)
			return &cp, nil
		}
	}

	return nil, constant.New(constant.KindNotFound, "verification_token", "verification token not found")
}

func (m *memoryRepository) MarkVerificationTokenUsed(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.verificationTokens[id]; ok {
		t.Used = true
	}

	return nil
}

var _ auth.Repository = (*memoryRepository)(nil)
