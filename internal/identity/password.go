package identity

import (
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt ignores everything past 72 bytes, so longer passwords are refused
// rather than silently truncated.
const maxPasswordBytes = 72

// ValidatePassword checks password against the policy and returns a
// *PasswordPolicyError listing every unmet requirement, or nil.
func ValidatePassword(opts PasswordOptions, password string) error {
	var failures []Failure

	if len(password) < opts.RequiredLength {
		failures = append(failures, Failure{
			Code:        "PasswordTooShort",
			Description: fmt.Sprintf("Passwords must be at least %d characters.", opts.RequiredLength),
		})
	}
	if len(password) > maxPasswordBytes {
		failures = append(failures, Failure{
			Code:        "PasswordTooLong",
			Description: fmt.Sprintf("Passwords must be at most %d bytes.", maxPasswordBytes),
		})
	}

	var hasDigit, hasLower, hasUpper, hasOther bool
	unique := make(map[rune]struct{})
	for _, r := range password {
		unique[r] = struct{}{}
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			hasOther = true
		}
	}

	if opts.RequireNonAlphanumeric && !hasOther {
		failures = append(failures, Failure{
			Code:        "PasswordRequiresNonAlphanumeric",
			Description: "Passwords must have at least one non alphanumeric character.",
		})
	}
	if opts.RequireDigit && !hasDigit {
		failures = append(failures, Failure{
			Code:        "PasswordRequiresDigit",
			Description: "Passwords must have at least one digit ('0'-'9').",
		})
	}
	if opts.RequireLowercase && !hasLower {
		failures = append(failures, Failure{
			Code:        "PasswordRequiresLower",
			Description: "Passwords must have at least one lowercase ('a'-'z').",
		})
	}
	if opts.RequireUppercase && !hasUpper {
		failures = append(failures, Failure{
			Code:        "PasswordRequiresUpper",
			Description: "Passwords must have at least one uppercase ('A'-'Z').",
		})
	}
	if opts.RequiredUniqueChars >= 1 && len(unique) < opts.RequiredUniqueChars {
		failures = append(failures, Failure{
			Code:        "PasswordRequiresUniqueChars",
			Description: fmt.Sprintf("Passwords must use at least %d different characters.", opts.RequiredUniqueChars),
		})
	}

	if len(failures) > 0 {
		return &PasswordPolicyError{Failures: failures}
	}
	return nil
}

func hashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
