package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bluerise/auth-service/internal/domain"
)

// ErrTokenNotFound reports a one-time token that is absent, expired, or
// already redeemed. The distinction is deliberately not exposed.
var ErrTokenNotFound = errors.New("token not found")

// UserRepository exposes persistence for user records.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	// GetByVerifyTokenHash matches only records whose verification token
	// has not yet expired.
	GetByVerifyTokenHash(ctx context.Context, hash string, now time.Time) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	Update(ctx context.Context, user domain.User) error
}

// APIKeyRepository handles API key persistence.
type APIKeyRepository interface {
	Create(ctx context.Context, key domain.APIKey) (domain.APIKey, error)
	ListActive(ctx context.Context) ([]domain.APIKey, error)
	TouchLastUsed(ctx context.Context, keyID int64, at time.Time) error
}

// AuditRepository records login attempt outcomes. Writes are best-effort
// and never gate the login decision.
type AuditRepository interface {
	Record(ctx context.Context, event domain.AuditEvent) error
}

// TokenStore is the key-value backed whitelist of outstanding refresh
// tokens plus single-use password-reset tokens.
type TokenStore interface {
	// WhitelistRefresh registers tokenID -> userID with the given TTL.
	WhitelistRefresh(ctx context.Context, tokenID string, userID int64, ttl time.Duration) error
	// IsWhitelisted reports whether tokenID is present and maps to userID.
	IsWhitelisted(ctx context.Context, tokenID string, userID int64) (bool, error)
	// RevokeRefresh deletes the whitelist entry, returning the number of
	// entries removed. Revoking an absent entry is not an error.
	RevokeRefresh(ctx context.Context, tokenID string) (int64, error)
	// IssueResetToken stores rawToken -> userID with the given TTL.
	IssueResetToken(ctx context.Context, rawToken string, userID int64, ttl time.Duration) error
	// RedeemResetToken atomically fetches and deletes the entry. Under
	// concurrent redemption exactly one caller succeeds; the rest get
	// ErrTokenNotFound.
	RedeemResetToken(ctx context.Context, rawToken string) (int64, error)
}
