package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-pass", hash)

	require.True(t, VerifyPassword(hash, "s3cret-pass"))
	require.False(t, VerifyPassword(hash, "wrong-pass"))
}

func TestHashPasswordRejectsShortPasswords(t *testing.T) {
	_, err := HashPassword("short")
	require.ErrorIs(t, err, ErrPasswordTooShort)
}
