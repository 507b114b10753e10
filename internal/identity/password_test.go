package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failureCodes(t *testing.T, err error) []string {
	t.Helper()
	var policyErr *PasswordPolicyError
	require.True(t, errors.As(err, &policyErr), "expected *PasswordPolicyError, got %T", err)
	codes := make([]string, len(policyErr.Failures))
	for i, f := range policyErr.Failures {
		codes[i] = f.Code
	}
	return codes
}

func TestValidatePassword(t *testing.T) {
	opts := DefaultOptions().Password

	tests := []struct {
		name     string
		password string
		want     []string
	}{
		{"valid", "Passw0rd!", nil},
		{"valid unicode symbol", "Pässw0rd€", nil},
		{"too short", "Pa0!", []string{"PasswordTooShort"}},
		{"no digit", "Password!", []string{"PasswordRequiresDigit"}},
		{"no lowercase", "PASSW0RD!", []string{"PasswordRequiresLower"}},
		{"no uppercase", "passw0rd!", []string{"PasswordRequiresUpper"}},
		{"no symbol", "Passw0rd", []string{"PasswordRequiresNonAlphanumeric"}},
		{"empty", "", []string{
			"PasswordTooShort",
			"PasswordRequiresNonAlphanumeric",
			"PasswordRequiresDigit",
			"PasswordRequiresLower",
			"PasswordRequiresUpper",
			"PasswordRequiresUniqueChars",
		}},
		{"too long for bcrypt", "Aa1!" + strings.Repeat("x", 69), []string{"PasswordTooLong"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(opts, tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.want, failureCodes(t, err))
		})
	}
}

func TestValidatePassword_UniqueChars(t *testing.T) {
	opts := PasswordOptions{RequiredLength: 1, RequiredUniqueChars: 3}

	assert.NoError(t, ValidatePassword(opts, "abc"))
	assert.Equal(t, []string{"PasswordRequiresUniqueChars"}, failureCodes(t, ValidatePassword(opts, "aaab")))
}

func TestValidatePassword_RelaxedPolicy(t *testing.T) {
	opts := PasswordOptions{RequiredLength: 4}
	assert.NoError(t, ValidatePassword(opts, "abcd"))
}

func TestPasswordPolicyError_Message(t *testing.T) {
	err := &PasswordPolicyError{Failures: []Failure{
		{Code: "A", Description: "First."},
		{Code: "B", Description: "Second."},
	}}
	assert.Equal(t, "password rejected: First. Second.", err.Error())
}

func TestHashAndVerify(t *testing.T) {
	hash, err := hashPassword("Passw0rd!", 4)
	require.NoError(t, err)

	assert.NotEqual(t, "Passw0rd!", hash)
	assert.True(t, verifyPassword(hash, "Passw0rd!"))
	assert.False(t, verifyPassword(hash, "passw0rd!"))
	assert.False(t, verifyPassword("not-a-hash", "Passw0rd!"))
}
