package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gvangeel/yellow/internal/adapter/memory"
	"github.com/gvangeel/yellow/internal/identity"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testEmail    = "user@example.com"
	testPassword = "Passw0rd!"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*identity.Service, *memory.UserStore, *clockwork.FakeClock) {
	t.Helper()

	opts := identity.DefaultOptions()
	opts.BcryptCost = bcrypt.MinCost
	opts.Tokens.SigningKey = []byte("0123456789abcdef0123456789abcdef")

	store := memory.NewUserStore()
	clock := clockwork.NewFakeClockAt(testStart)

	svc, err := identity.NewService(store, opts, clock)
	require.NoError(t, err)
	return svc, store, clock
}

// registerConfirmed creates a user and confirms its email.
func registerConfirmed(t *testing.T, svc *identity.Service) *identity.User {
	t.Helper()
	ctx := context.Background()

	u, err := svc.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)
	token, err := svc.GenerateEmailConfirmationToken(ctx, u)
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmEmail(ctx, u.ID, token))

	u, err = svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	return u
}

func TestNewService_RequiresSigningKey(t *testing.T) {
	opts := identity.DefaultOptions()
	_, err := identity.NewService(memory.NewUserStore(), opts, clockwork.NewFakeClock())
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "New.User@Example.com", testPassword)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, u.ID)
	assert.Equal(t, "New.User@Example.com", u.UserName)
	assert.Equal(t, "NEW.USER@EXAMPLE.COM", u.NormalizedEmail)
	assert.False(t, u.EmailConfirmed)
	assert.True(t, u.LockoutEnabled)
	assert.NotEmpty(t, u.SecurityStamp)
	assert.NotEqual(t, testPassword, u.PasswordHash)
	assert.True(t, testStart.Equal(u.CreatedAt))

	found, err := svc.FindByEmail(ctx, "new.user@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
}

func TestRegister_WeakPassword(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Register(context.Background(), testEmail, "weak")

	var policyErr *identity.PasswordPolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.NotEmpty(t, policyErr.Failures)

	_, err = svc.FindByEmail(context.Background(), testEmail)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "USER@example.com", testPassword)
	assert.True(t, errors.Is(err, identity.ErrDuplicateUserName) || errors.Is(err, identity.ErrDuplicateEmail))
}

func TestPasswordSignIn_UnconfirmedIsNotAllowed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	result, u, err := svc.PasswordSignIn(ctx, testEmail, testPassword, true)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInNotAllowed, result)
	assert.Nil(t, u)
}

func TestPasswordSignIn_ConfirmationNotRequired(t *testing.T) {
	opts := identity.DefaultOptions()
	opts.BcryptCost = bcrypt.MinCost
	opts.Tokens.SigningKey = []byte("key")
	opts.SignIn.RequireConfirmedAccount = false
	svc, err := identity.NewService(memory.NewUserStore(), opts, clockwork.NewFakeClock())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	result, _, err := svc.PasswordSignIn(ctx, testEmail, testPassword, false)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInSucceeded, result)
}

func TestPasswordSignIn_Succeeded(t *testing.T) {
	svc, _, _ := newTestService(t)
	registered := registerConfirmed(t, svc)

	result, u, err := svc.PasswordSignIn(context.Background(), "USER@EXAMPLE.COM", testPassword, true)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInSucceeded, result)
	require.NotNil(t, u)
	assert.Equal(t, registered.ID, u.ID)
}

func TestPasswordSignIn_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	result, u, err := svc.PasswordSignIn(context.Background(), "nobody@example.com", testPassword, true)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInFailed, result)
	assert.Nil(t, u)
}

func TestPasswordSignIn_LockoutAfterMaxFailures(t *testing.T) {
	svc, _, clock := newTestService(t)
	registered := registerConfirmed(t, svc)
	ctx := context.Background()

	for i := 1; i < 5; i++ {
		result, _, err := svc.PasswordSignIn(ctx, testEmail, "wrong", true)
		require.NoError(t, err)
		require.Equal(t, identity.SignInFailed, result, "attempt %d", i)
	}

	result, _, err := svc.PasswordSignIn(ctx, testEmail, "wrong", true)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInLockedOut, result)

	u, err := svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.AccessFailedCount)
	assert.True(t, testStart.Add(5*time.Minute).Equal(u.LockoutEnd), "lockout end %v", u.LockoutEnd)

	// the correct password does not help while locked out
	result, _, err = svc.PasswordSignIn(ctx, testEmail, testPassword, true)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInLockedOut, result)

	clock.Advance(5*time.Minute + time.Second)

	result, _, err = svc.PasswordSignIn(ctx, testEmail, testPassword, true)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInSucceeded, result)

	u, err = svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.True(t, u.LockoutEnd.IsZero())
}

func TestPasswordSignIn_NoLockoutWhenNotRequested(t *testing.T) {
	svc, _, _ := newTestService(t)
	registered := registerConfirmed(t, svc)
	ctx := context.Background()

	for range 10 {
		result, _, err := svc.PasswordSignIn(ctx, testEmail, "wrong", false)
		require.NoError(t, err)
		assert.Equal(t, identity.SignInFailed, result)
	}

	u, err := svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.AccessFailedCount)
}

func TestPasswordSignIn_SuccessResetsFailureCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	registered := registerConfirmed(t, svc)
	ctx := context.Background()

	for range 3 {
		_, _, err := svc.PasswordSignIn(ctx, testEmail, "wrong", true)
		require.NoError(t, err)
	}
	u, err := svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	require.Equal(t, 3, u.AccessFailedCount)

	result, _, err := svc.PasswordSignIn(ctx, testEmail, testPassword, true)
	require.NoError(t, err)
	require.Equal(t, identity.SignInSucceeded, result)

	u, err = svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, u.AccessFailedCount)
}

func TestConfirmEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)
	token, err := svc.GenerateEmailConfirmationToken(ctx, u)
	require.NoError(t, err)

	require.NoError(t, svc.ConfirmEmail(ctx, u.ID, token))

	confirmed, err := svc.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, confirmed.EmailConfirmed)

	// confirming twice is harmless
	assert.NoError(t, svc.ConfirmEmail(ctx, u.ID, token))
}

func TestConfirmEmail_InvalidTokens(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)
	other, err := svc.Register(ctx, "other@example.com", testPassword)
	require.NoError(t, err)

	resetToken, err := svc.GeneratePasswordResetToken(ctx, u)
	require.NoError(t, err)
	otherToken, err := svc.GenerateEmailConfirmationToken(ctx, other)
	require.NoError(t, err)
	token, err := svc.GenerateEmailConfirmationToken(ctx, u)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.ConfirmEmail(ctx, u.ID, "garbage"), identity.ErrInvalidToken)
	assert.ErrorIs(t, svc.ConfirmEmail(ctx, u.ID, resetToken), identity.ErrInvalidToken, "wrong purpose")
	assert.ErrorIs(t, svc.ConfirmEmail(ctx, u.ID, otherToken), identity.ErrInvalidToken, "wrong user")
	assert.ErrorIs(t, svc.ConfirmEmail(ctx, uuid.New(), token), identity.ErrUserNotFound)

	clock.Advance(24*time.Hour + time.Minute)
	assert.ErrorIs(t, svc.ConfirmEmail(ctx, u.ID, token), identity.ErrInvalidToken, "expired")
}

func TestConfirmEmail_ForeignKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	u, err := svc.Register(ctx, testEmail, testPassword)
	require.NoError(t, err)

	opts := identity.DefaultOptions()
	opts.BcryptCost = bcrypt.MinCost
	opts.Tokens.SigningKey = []byte("a-different-signing-key-entirely")
	foreign, err := identity.NewService(memory.NewUserStore(), opts, clockwork.NewFakeClockAt(testStart))
	require.NoError(t, err)

	token, err := foreign.GenerateEmailConfirmationToken(ctx, u)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.ConfirmEmail(ctx, u.ID, token), identity.ErrInvalidToken)
}

func TestResetPassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerConfirmed(t, svc)
	ctx := context.Background()

	token, err := svc.GeneratePasswordResetToken(ctx, u)
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, testEmail, token, "N3wPassword!"))

	result, _, err := svc.PasswordSignIn(ctx, testEmail, testPassword, false)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInFailed, result)

	result, _, err = svc.PasswordSignIn(ctx, testEmail, "N3wPassword!", false)
	require.NoError(t, err)
	assert.Equal(t, identity.SignInSucceeded, result)

	// the stamp rotated, so the token is spent
	err = svc.ResetPassword(ctx, testEmail, token, "An0therOne!")
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestResetPassword_Failures(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerConfirmed(t, svc)
	ctx := context.Background()

	token, err := svc.GeneratePasswordResetToken(ctx, u)
	require.NoError(t, err)

	err = svc.ResetPassword(ctx, "nobody@example.com", token, "N3wPassword!")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	err = svc.ResetPassword(ctx, testEmail, token, "weak")
	var policyErr *identity.PasswordPolicyError
	assert.ErrorAs(t, err, &policyErr)

	// a rejected password leaves the token usable
	assert.NoError(t, svc.ResetPassword(ctx, testEmail, token, "N3wPassword!"))
}

func TestChangePassword(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerConfirmed(t, svc)
	ctx := context.Background()

	_, err := svc.ChangePassword(ctx, u.ID, "wrong", "N3wPassword!")
	assert.ErrorIs(t, err, identity.ErrPasswordMismatch)

	changed, err := svc.ChangePassword(ctx, u.ID, testPassword, "N3wPassword!")
	require.NoError(t, err)
	assert.NotEqual(t, u.SecurityStamp, changed.SecurityStamp)

	_, err = svc.ValidateSecurityStamp(ctx, u.ID, u.SecurityStamp)
	assert.ErrorIs(t, err, identity.ErrInvalidSecurityStamp)

	current, err := svc.ValidateSecurityStamp(ctx, u.ID, changed.SecurityStamp)
	require.NoError(t, err)
	assert.Equal(t, u.ID, current.ID)
}

func TestValidateSecurityStamp_UnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ValidateSecurityStamp(context.Background(), uuid.New(), "anything")
	assert.ErrorIs(t, err, identity.ErrInvalidSecurityStamp)
}

func TestUpdatePhoneNumber(t *testing.T) {
	svc, _, _ := newTestService(t)
	u := registerConfirmed(t, svc)
	ctx := context.Background()

	updated, err := svc.UpdatePhoneNumber(ctx, u.ID, "+1 555 0100")
	require.NoError(t, err)
	assert.Equal(t, "+1 555 0100", updated.PhoneNumber)
	assert.Equal(t, u.SecurityStamp, updated.SecurityStamp)

	cleared, err := svc.UpdatePhoneNumber(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Empty(t, cleared.PhoneNumber)
}

func TestSignInResult_String(t *testing.T) {
	assert.Equal(t, "succeeded", identity.SignInSucceeded.String())
	assert.Equal(t, "failed", identity.SignInFailed.String())
	assert.Equal(t, "locked_out", identity.SignInLockedOut.String())
	assert.Equal(t, "not_allowed", identity.SignInNotAllowed.String())
}
