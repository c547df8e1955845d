package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("secret1")
	require.NoError(t, err)

	assert.NotEqual(t, "secret1", hash)
	assert.NoError(t, CheckPassword(hash, "secret1"))
	assert.Error(t, CheckPassword(hash, "secret2"))
}

func TestCheckLegacyPassword(t *testing.T) {
	assert.True(t, CheckLegacyPassword("admin", "admin"))
	assert.False(t, CheckLegacyPassword("admin", "admin "))
	assert.False(t, CheckLegacyPassword("", "admin"))
}

func TestNewResetTokenIsRandom(t *testing.T) {
	a, err := NewResetToken()
	require.NoError(t, err)
	b, err := NewResetToken()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
