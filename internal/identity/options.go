package identity

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

type PasswordOptions struct {
	RequiredLength         int
	RequiredUniqueChars    int
	RequireDigit           bool
	RequireLowercase       bool
	RequireUppercase       bool
	RequireNonAlphanumeric bool
}

type LockoutOptions struct {
	AllowedForNewUsers      bool
	MaxFailedAccessAttempts int
	DefaultLockoutTimeSpan  time.Duration
}

type SignInOptions struct {
	// RequireConfirmedAccount blocks sign-in until the email is confirmed.
	RequireConfirmedAccount bool
}

type TokenOptions struct {
	SigningKey []byte
	Lifespan   time.Duration
}

type Options struct {
	Password   PasswordOptions
	Lockout    LockoutOptions
	SignIn     SignInOptions
	Tokens     TokenOptions
	BcryptCost int
}

// DefaultOptions returns the account policy the application runs with.
// The token signing key must still be set by the caller.
func DefaultOptions() Options {
	return Options{
		Password: PasswordOptions{
			RequiredLength:         6,
			RequiredUniqueChars:    1,
			RequireDigit:           true,
			RequireLowercase:       true,
			RequireUppercase:       true,
			RequireNonAlphanumeric: true,
		},
		Lockout: LockoutOptions{
			AllowedForNewUsers:      true,
			MaxFailedAccessAttempts: 5,
			DefaultLockoutTimeSpan:  5 * time.Minute,
		},
		SignIn: SignInOptions{
			RequireConfirmedAccount: true,
		},
		Tokens: TokenOptions{
			Lifespan: 24 * time.Hour,
		},
		BcryptCost: bcrypt.DefaultCost,
	}
}
