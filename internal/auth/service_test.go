package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracseq/lims-core/internal/auth"
	"github.com/tracseq/lims-core/pkg/clock"
	"github.com/tracseq/lims-core/pkg/constant"
	"github.com/tracseq/lims-core/pkg/idgen"
	"github.com/tracseq/lims-core/pkg/mlog"
)

func newTestService(cfg auth.Config) (*auth.Service, *memoryRepository, *clock.Fake) {
	repo := newMemoryRepository()
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ids := idgen.NewSequential(0)

	svc := auth.NewService(repo, nil, nil, clk, ids, &mlog.NoneLogger{}, cfg)

	return svc, repo, clk
}

func testConfig() auth.Config {
	cfg := auth.DefaultConfig([]byte("test-secret-key-does-not-leave-process"))
	cfg.EmailVerificationNeeded = false

	return cfg
}

func TestCreateUserRejectsWeakPassword(t *testing.T) {
	svc, _, _ := newTestService(testConfig())

	_, err := svc.CreateUser(context.Background(), "scientist@example.com", "short", "technician")
	require.Error(t, err)
	assert.Equal(t, constant.KindWeakPassword, constant.KindOf(err))
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(testConfig())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	_, err = svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.Error(t, err)
	assert.Equal(t, constant.KindDuplicateEmail, constant.KindOf(err))
}

func TestCreateUserWithoutVerificationIsImmediatelyActive(t *testing.T) {
	svc, _, _ := newTestService(testConfig())

	user, err := svc.CreateUser(context.Background(), "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)
	assert.Equal(t, auth.StatusActive, user.Status)
	assert.True(t, user.EmailVerified)
}

func TestLoginSucceedsWithCorrectCredentials(t *testing.T) {
	svc, _, _ := newTestService(testConfig())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", false)
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.Nil(t, result.RefreshToken)
}

func TestLoginWithRememberMeIssuesRefreshToken(t *testing.T) {
	svc, _, _ := newTestService(testConfig())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	result, err := svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", true)
	require.NoError(t, err)
	require.NotNil(t, result.RefreshToken)
}

func TestLoginFailsWithWrongPassword(t *testing.T) {
	svc, _, _ := newTestService(testConfig())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "scientist@example.com", "WrongPassw0rd", false)
	require.Error(t, err)
	assert.Equal(t, constant.KindInvalidCredentials, constant.KindOf(err))
}

func TestLoginLocksAccountAfterMaxFailedAttempts(t *testing.T) {
	cfg := testConfig()
	cfg.LockoutPolicy = auth.LockoutPolicy{MaxFailedAttempts: 3, LockoutDuration: 30 * time.Minute}

	svc, _, clk := newTestService(cfg)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, "scientist@example.com", "WrongPassw0rd", false)
		require.Error(t, err)
	}

	_, err = svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", false)
	require.Error(t, err)
	assert.Equal(t, constant.KindAccountLocked, constant.KindOf(err))

	clk.Advance(31 * time.Minute)

	_, err = svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", false)
	require.NoError(t, err)
}

func TestLoginFailsWhenEmailNotVerified(t *testing.T) {
	cfg := testConfig()
	cfg.EmailVerificationNeeded = true

	svc, _, _ := newTestService(cfg)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", false)
	require.Error(t, err)
	assert.Equal(t, constant.KindAccountNotVerified, constant.KindOf(err))
}

func TestValidateTokenRoundTrip(t *testing.T) {
	svc, _, _ := newTestService(testConfig())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	login, err := svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", false)
	require.NoError(t, err)

	result, err := svc.ValidateToken(ctx, login.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, login.UserID, result.UserID)
	assert.Equal(t, login.SessionID, result.SessionID)
}

func TestValidateTokenFailsAfterTampering(t *testing.T) {
	svc, _, _ := newTestService(testConfig())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	login, err := svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", false)
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, login.AccessToken+"tampered")
	require.Error(t, err)
	assert.Equal(t, constant.KindTokenInvalid, constant.KindOf(err))
}

func TestRefreshRotatesSessionAndRevokesOld(t *testing.T) {
	svc, _, _ := newTestService(testConfig())
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	login, err := svc.Login(ctx, "scientist@example.com", "Str0ngPassw0rd", true)
	require.NoError(t, err)
	require.NotNil(t, login.RefreshToken)

	refreshed, err := svc.Refresh(ctx, *login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.SessionID, refreshed.SessionID)

	_, err = svc.ValidateToken(ctx, login.AccessToken)
	require.Error(t, err)

	_, err = svc.Refresh(ctx, *login.RefreshToken)
	require.Error(t, err)
}

func TestForgotPasswordIsSilentForUnknownEmail(t *testing.T) {
	svc, _, _ := newTestService(testConfig())

	err := svc.ForgotPassword(context.Background(), "nobody@example.com")
	require.NoError(t, err)
}

func TestForgotPasswordCreatesAResetTokenRecord(t *testing.T) {
	svc, repo, _ := newTestService(testConfig())
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, user.Email))
	assert.Len(t, repo.resetTokens, 1)
}

func TestCreateUserWithVerificationIssuesVerificationToken(t *testing.T) {
	cfg := testConfig()
	cfg.EmailVerificationNeeded = true

	svc, repo, _ := newTestService(cfg)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "scientist@example.com", "Str0ngPassw0rd", "technician")
	require.NoError(t, err)
	assert.Equal(t, auth.StatusPendingVerification, user.Status)

	require.Len(t, repo.verificationTokens, 1)
}
