package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID                 uuid.UUID
	UserName           string
	NormalizedUserName string
	Email              string
	NormalizedEmail    string
	EmailConfirmed     bool
	PasswordHash       string
	// SecurityStamp changes whenever credentials change. Cookies and tokens
	// issued under an older stamp stop being accepted.
	SecurityStamp string
	// ConcurrencyStamp guards updates: a store rejects an update whose
	// stamp no longer matches the persisted row.
	ConcurrencyStamp  string
	PhoneNumber       string
	LockoutEnd        time.Time // zero when not locked out
	LockoutEnabled    bool
	AccessFailedCount int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsLockedOut reports whether the user is locked out at now.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnabled && !u.LockoutEnd.IsZero() && u.LockoutEnd.After(now)
}

// UserStore persists users.
//
// Create fails with ErrDuplicateUserName or ErrDuplicateEmail when a
// normalized name or email is taken. Get methods return ErrUserNotFound.
// Update persists every mutable field, but only if u.ConcurrencyStamp still
// matches the stored row; on success the store assigns a fresh stamp to u.
// A stale stamp yields ErrConcurrencyFailure.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByNormalizedEmail(ctx context.Context, normalizedEmail string) (*User, error)
	GetByNormalizedUserName(ctx context.Context, normalizedUserName string) (*User, error)
	Update(ctx context.Context, u *User) error
}

// Normalize produces the lookup key for user names and emails.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func newStamp() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NewConcurrencyStamp returns a fresh concurrency stamp. Stores call it
// after a successful update.
func NewConcurrencyStamp() string {
	return uuid.NewString()
}
