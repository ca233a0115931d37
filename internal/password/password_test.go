package password_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluerise/auth-service/internal/password"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	hash, err := password.Hash("Passw0rd!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	ok, err := password.Verify("Passw0rd!", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = password.Verify("passw0rd!", hash)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestHashIsSalted(t *testing.T) {
	first, err := password.Hash("same-secret")
	require.NoError(t, err)
	second, err := password.Hash("same-secret")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	for _, hash := range []string{first, second} {
		ok, err := password.Verify("same-secret", hash)
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestVerifyMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
	}
	for _, hash := range cases {
		ok, err := password.Verify("whatever", hash)
		require.ErrorIs(t, err, password.ErrInvalidHash, "hash %q", hash)
		require.False(t, ok)
	}
}
