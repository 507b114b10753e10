package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// SignInResult is the outcome of a password sign-in attempt.
type SignInResult int

const (
	SignInFailed SignInResult = iota
	SignInSucceeded
	SignInLockedOut
	SignInNotAllowed
)

func (r SignInResult) String() string {
	switch r {
	case SignInSucceeded:
		return "succeeded"
	case SignInLockedOut:
		return "locked_out"
	case SignInNotAllowed:
		return "not_allowed"
	default:
		return "failed"
	}
}

// Service implements the account use cases on top of a UserStore.
type Service struct {
	users  UserStore
	opts   Options
	tokens *tokenProvider
	clock  clockwork.Clock

	// compared against when the user does not exist, so that unknown and
	// known emails take the same time to reject
	dummyHash string
}

func NewService(users UserStore, opts Options, clock clockwork.Clock) (*Service, error) {
	if len(opts.Tokens.SigningKey) == 0 {
		return nil, errors.New("identity: token signing key is required")
	}
	if opts.Tokens.Lifespan <= 0 {
		return nil, errors.New("identity: token lifespan must be positive")
	}

	dummy, err := hashPassword(uuid.NewString(), opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	return &Service{
		users: users,
		opts:  opts,
		tokens: &tokenProvider{
			key:      opts.Tokens.SigningKey,
			lifespan: opts.Tokens.Lifespan,
			clock:    clock,
		},
		clock:     clock,
		dummyHash: dummy,
	}, nil
}

// Options returns the policy the service enforces.
func (s *Service) Options() Options {
	return s.opts
}

// Register creates an account whose user name is its email address.
// Policy violations are reported as *PasswordPolicyError; taken emails as
// ErrDuplicateEmail or ErrDuplicateUserName.
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	if err := ValidatePassword(s.opts.Password, password); err != nil {
		return nil, err
	}

	hash, err := hashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	u := &User{
		ID:                 uuid.New(),
		UserName:           email,
		NormalizedUserName: Normalize(email),
		Email:              email,
		NormalizedEmail:    Normalize(email),
		PasswordHash:       hash,
		SecurityStamp:      newStamp(),
		ConcurrencyStamp:   NewConcurrencyStamp(),
		LockoutEnabled:     s.opts.Lockout.AllowedForNewUsers,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "User created a new account with password", "user_id", u.ID.String())
	return u, nil
}

// PasswordSignIn checks the credentials of the account registered under
// email. The user is returned only when the result is SignInSucceeded.
// Failures count toward lockout when lockoutOnFailure is set.
func (s *Service) PasswordSignIn(ctx context.Context, email, password string, lockoutOnFailure bool) (SignInResult, *User, error) {
	u, err := s.users.GetByNormalizedEmail(ctx, Normalize(email))
	if errors.Is(err, ErrUserNotFound) {
		verifyPassword(s.dummyHash, password)
		return SignInFailed, nil, nil
	}
	if err != nil {
		return SignInFailed, nil, err
	}

	if s.opts.SignIn.RequireConfirmedAccount && !u.EmailConfirmed {
		slog.InfoContext(ctx, "User cannot sign in without a confirmed email", "user_id", u.ID.String())
		return SignInNotAllowed, nil, nil
	}
	if u.IsLockedOut(s.clock.Now()) {
		slog.WarnContext(ctx, "User is currently locked out", "user_id", u.ID.String())
		return SignInLockedOut, nil, nil
	}

	if verifyPassword(u.PasswordHash, password) {
		if u.AccessFailedCount > 0 || !u.LockoutEnd.IsZero() {
			u.AccessFailedCount = 0
			u.LockoutEnd = time.Time{}
			if err := s.update(ctx, u); err != nil {
				return SignInFailed, nil, err
			}
		}
		slog.InfoContext(ctx, "User logged in", "user_id", u.ID.String())
		return SignInSucceeded, u, nil
	}

	if lockoutOnFailure && u.LockoutEnabled {
		locked, err := s.accessFailed(ctx, u)
		if err != nil {
			return SignInFailed, nil, err
		}
		if locked {
			slog.WarnContext(ctx, "User account locked out", "user_id", u.ID.String())
			return SignInLockedOut, nil, nil
		}
	}
	return SignInFailed, nil, nil
}

// accessFailed records a failed attempt and locks the account once the
// threshold is reached, resetting the counter. Reports whether it locked.
func (s *Service) accessFailed(ctx context.Context, u *User) (bool, error) {
	u.AccessFailedCount++
	locked := false
	if u.AccessFailedCount >= s.opts.Lockout.MaxFailedAccessAttempts {
		u.LockoutEnd = s.clock.Now().UTC().Add(s.opts.Lockout.DefaultLockoutTimeSpan)
		u.AccessFailedCount = 0
		locked = true
	}
	return locked, s.update(ctx, u)
}

func (s *Service) GenerateEmailConfirmationToken(_ context.Context, u *User) (string, error) {
	return s.tokens.generate(PurposeEmailConfirmation, u)
}

// ConfirmEmail marks the user's email as confirmed if token is a valid
// confirmation token for that user.
func (s *Service) ConfirmEmail(ctx context.Context, userID uuid.UUID, token string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.tokens.validate(PurposeEmailConfirmation, token, u); err != nil {
		return err
	}
	if u.EmailConfirmed {
		return nil
	}

	u.EmailConfirmed = true
	return s.update(ctx, u)
}

func (s *Service) GeneratePasswordResetToken(_ context.Context, u *User) (string, error) {
	return s.tokens.generate(PurposeResetPassword, u)
}

// ResetPassword sets a new password for the account registered under email.
// The security stamp rotates, which also spends the token.
func (s *Service) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	u, err := s.users.GetByNormalizedEmail(ctx, Normalize(email))
	if err != nil {
		return err
	}
	if err := s.tokens.validate(PurposeResetPassword, token, u); err != nil {
		return err
	}
	if err := s.setPassword(u, newPassword); err != nil {
		return err
	}
	if err := s.update(ctx, u); err != nil {
		return err
	}

	slog.InfoContext(ctx, "User reset their password", "user_id", u.ID.String())
	return nil
}

// ChangePassword replaces the password after verifying the current one and
// returns the updated user, whose new security stamp the caller must put in
// a fresh authentication cookie.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, newPassword string) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !verifyPassword(u.PasswordHash, current) {
		return nil, ErrPasswordMismatch
	}
	if err := s.setPassword(u, newPassword); err != nil {
		return nil, err
	}
	if err := s.update(ctx, u); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "User changed their password successfully", "user_id", u.ID.String())
	return u, nil
}

// UpdatePhoneNumber stores phone as the user's phone number; empty clears it.
func (s *Service) UpdatePhoneNumber(ctx context.Context, userID uuid.UUID, phone string) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.PhoneNumber == phone {
		return u, nil
	}

	u.PhoneNumber = phone
	if err := s.update(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.users.GetByNormalizedEmail(ctx, Normalize(email))
}

// ValidateSecurityStamp loads the user and checks that stamp, taken from an
// authentication cookie, is still current.
func (s *Service) ValidateSecurityStamp(ctx context.Context, userID uuid.UUID, stamp string) (*User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidSecurityStamp
	}
	if err != nil {
		return nil, err
	}
	if u.SecurityStamp != stamp {
		return nil, ErrInvalidSecurityStamp
	}
	return u, nil
}

func (s *Service) setPassword(u *User, password string) error {
	if err := ValidatePassword(s.opts.Password, password); err != nil {
		return err
	}
	hash, err := hashPassword(password, s.opts.BcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.SecurityStamp = newStamp()
	return nil
}

func (s *Service) update(ctx context.Context, u *User) error {
	u.UpdatedAt = s.clock.Now().UTC()
	if err := s.users.Update(ctx, u); err != nil {
		return fmt.Errorf("failed to update user %s: %w", u.ID, err)
	}
	return nil
}
