package token

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
)

// signingAlgorithm is fixed; verification rejects tokens signed with
// anything else.
const signingAlgorithm = gojose.RS256

// Token use markers embedded in the claim set so an access token can never
// be presented where a refresh token is expected, and vice versa.
const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// ErrInvalidToken covers bad signature, wrong algorithm, expiry, and
// malformed claims. Callers never learn which check failed.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the verified content of an access or refresh token.
type Claims struct {
	UserID    int64
	Roles     []string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type customClaims struct {
	Roles []string `json:"roles,omitempty"`
	Use   string   `json:"use"`
}

// Signer issues and validates RS256-signed JWTs. Access tokens are
// stateless; refresh tokens additionally require a whitelist entry keyed by
// their TokenID, which is the caller's responsibility.
type Signer struct {
	key        *rsa.PrivateKey
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewSigner constructs a Signer around an RSA private key.
func NewSigner(key *rsa.PrivateKey, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{key: key, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// LoadPrivateKey parses a PEM-encoded RSA private key (PKCS#1 or PKCS#8).
// An empty input generates an ephemeral key for development.
func LoadPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	if pemData == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		return key, nil
	}

	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("decode signing key: no PEM block found")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("parse signing key: not an RSA key")
	}
	return key, nil
}

// SignAccess produces a short-lived access token carrying the user's roles.
func (s *Signer) SignAccess(userID int64, roles []string) (string, error) {
	token, _, err := s.sign(userID, roles, useAccess, s.accessTTL)
	return token, err
}

// SignRefresh produces a refresh token and its unique token id. The token
// is not valid until the id is whitelisted in the token store.
func (s *Signer) SignRefresh(userID int64) (string, string, error) {
	return s.sign(userID, nil, useRefresh, s.refreshTTL)
}

func (s *Signer) sign(userID int64, roles []string, use string, ttl time.Duration) (string, string, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: signingAlgorithm, Key: s.key},
		(&gojose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", "", fmt.Errorf("new signer: %w", err)
	}

	now := time.Now().UTC()
	tokenID := uuid.NewString()
	std := gojwt.Claims{
		Subject:  strconv.FormatInt(userID, 10),
		ID:       tokenID,
		IssuedAt: gojwt.NewNumericDate(now),
		Expiry:   gojwt.NewNumericDate(now.Add(ttl)),
	}
	custom := customClaims{Roles: roles, Use: use}

	token, err := gojwt.Signed(signer).Claims(std).Claims(custom).Serialize()
	if err != nil {
		return "", "", fmt.Errorf("serialize jwt: %w", err)
	}
	return token, tokenID, nil
}

// VerifyAccess validates signature and expiry of an access token. It never
// consults the token store: access tokens stay valid until natural expiry.
func (s *Signer) VerifyAccess(token string) (Claims, error) {
	return s.verify(token, useAccess)
}

// VerifyRefresh validates signature and expiry of a refresh token. The
// caller must additionally confirm whitelist membership before honoring it.
func (s *Signer) VerifyRefresh(token string) (Claims, error) {
	return s.verify(token, useRefresh)
}

func (s *Signer) verify(token, use string) (Claims, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{signingAlgorithm})
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	var std gojwt.Claims
	var custom customClaims
	if err := parsed.Claims(&s.key.PublicKey, &std, &custom); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if err := std.Validate(gojwt.Expected{Time: time.Now().UTC()}); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if custom.Use != use || std.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		UserID:  userID,
		Roles:   custom.Roles,
		TokenID: std.ID,
	}
	if std.IssuedAt != nil {
		claims.IssuedAt = std.IssuedAt.Time()
	}
	if std.Expiry != nil {
		claims.ExpiresAt = std.Expiry.Time()
	}
	return claims, nil
}
