package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestDeriveKey(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a, err := DeriveKey(testSecret, PurposeTokens, 32)
		require.NoError(t, err)
		b, err := DeriveKey(testSecret, PurposeTokens, 32)
		require.NoError(t, err)

		assert.Len(t, a, 32)
		assert.Equal(t, a, b)
	})

	t.Run("purposes yield different keys", func(t *testing.T) {
		a, err := DeriveKey(testSecret, PurposeSessionHash, 32)
		require.NoError(t, err)
		b, err := DeriveKey(testSecret, PurposeSessionBlock, 32)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("secrets yield different keys", func(t *testing.T) {
		a, err := DeriveKey(testSecret, PurposeTokens, 32)
		require.NoError(t, err)
		b, err := DeriveKey(testSecret+"x", PurposeTokens, 32)
		require.NoError(t, err)

		assert.NotEqual(t, a, b)
	})

	t.Run("empty secret", func(t *testing.T) {
		_, err := DeriveKey("", PurposeTokens, 32)
		assert.ErrorContains(t, err, "empty secret")
	})

	t.Run("invalid size", func(t *testing.T) {
		_, err := DeriveKey(testSecret, PurposeTokens, 0)
		assert.ErrorContains(t, err, "invalid key size")
	})
}

func TestSessionKeys(t *testing.T) {
	keys, err := SessionKeys(testSecret)
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Len(t, keys[0], 64)
	assert.Len(t, keys[1], 32)
}
