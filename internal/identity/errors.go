package identity

import (
	"errors"
	"strings"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateUserName    = errors.New("user name is already taken")
	ErrDuplicateEmail       = errors.New("email is already taken")
	ErrConcurrencyFailure   = errors.New("optimistic concurrency failure, object has been modified")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidSecurityStamp = errors.New("security stamp no longer valid")
	ErrPasswordMismatch     = errors.New("incorrect password")
)

// Failure describes one reason a password was rejected.
type Failure struct {
	Code        string
	Description string
}

// PasswordPolicyError lists every password requirement that was not met.
type PasswordPolicyError struct {
	Failures []Failure
}

func (e *PasswordPolicyError) Error() string {
	descs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		descs[i] = f.Description
	}
	return "password rejected: " + strings.Join(descs, " ")
}
