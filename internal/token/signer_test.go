package token_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/bluerise/auth-service/internal/token"
)

func newSigner(t *testing.T, accessTTL, refreshTTL time.Duration) (*token.Signer, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return token.NewSigner(key, accessTTL, refreshTTL), key
}

func TestAccessTokenRoundTrip(t *testing.T) {
	signer, _ := newSigner(t, time.Hour, 24*time.Hour)

	signed, err := signer.SignAccess(42, []string{"user", "admin"})
	require.NoError(t, err)

	claims, err := signer.VerifyAccess(signed)
	require.NoError(t, err)
	require.Equal(t, int64(42), claims.UserID)
	require.Equal(t, []string{"user", "admin"}, claims.Roles)
	require.NotEmpty(t, claims.TokenID)
	require.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	signer, _ := newSigner(t, time.Hour, 24*time.Hour)

	signed, tokenID, err := signer.SignRefresh(7)
	require.NoError(t, err)
	require.NotEmpty(t, tokenID)

	claims, err := signer.VerifyRefresh(signed)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.UserID)
	require.Equal(t, tokenID, claims.TokenID)
}

func TestExpiredTokenRejected(t *testing.T) {
	signer, _ := newSigner(t, -time.Minute, 24*time.Hour)

	signed, err := signer.SignAccess(1, []string{"user"})
	require.NoError(t, err)

	_, err = signer.VerifyAccess(signed)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestTokenUseIsEnforced(t *testing.T) {
	signer, _ := newSigner(t, time.Hour, 24*time.Hour)

	access, err := signer.SignAccess(1, []string{"user"})
	require.NoError(t, err)
	refresh, _, err := signer.SignRefresh(1)
	require.NoError(t, err)

	_, err = signer.VerifyRefresh(access)
	require.ErrorIs(t, err, token.ErrInvalidToken)
	_, err = signer.VerifyAccess(refresh)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestForeignKeyRejected(t *testing.T) {
	signer, _ := newSigner(t, time.Hour, 24*time.Hour)
	other, _ := newSigner(t, time.Hour, 24*time.Hour)

	signed, err := other.SignAccess(1, []string{"user"})
	require.NoError(t, err)

	_, err = signer.VerifyAccess(signed)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestAlgorithmConfusionRejected(t *testing.T) {
	signer, _ := newSigner(t, time.Hour, 24*time.Hour)

	// A token signed with a symmetric algorithm must not verify, no matter
	// what its claims say.
	hsSigner, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: gojose.HS256, Key: []byte("0123456789abcdef0123456789abcdef")},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	now := time.Now().UTC()
	forged, err := gojwt.Signed(hsSigner).Claims(gojwt.Claims{
		Subject:  "1",
		ID:       "forged",
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(time.Hour)),
	}).Claims(map[string]any{"use": "access"}).Serialize()
	require.NoError(t, err)

	_, err = signer.VerifyAccess(forged)
	require.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestLoadPrivateKeyEphemeral(t *testing.T) {
	key, err := token.LoadPrivateKey("")
	require.NoError(t, err)
	require.NotNil(t, key)
}
