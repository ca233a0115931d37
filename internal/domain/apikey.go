package domain

import "time"

// APIKey persists service credentials. KeyHash is the argon2id hash of the
// raw key; the raw value is returned to the creator exactly once.
type APIKey struct {
	ID          int64
	UserID      int64
	Name        string
	KeyHash     string
	Permissions []string
	IsActive    bool
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the key carries an expiry in the past.
func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}
