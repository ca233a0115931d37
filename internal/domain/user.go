package domain

import "time"

// User lifecycle statuses. A user starts pending and becomes active once
// the email address is verified. Inactive and suspended are set by admin
// tooling outside this service.
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusSuspended = "suspended"
)

// Role names assignable to users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an end user that can authenticate against the service.
// VerifyTokenHash holds only the sha256 of the raw verification token; the
// raw value is handed to the mailer once and never persisted.
type User struct {
	ID                 int64
	Email              string
	Name               string
	PasswordHash       string
	Roles              []string
	Status             string
	EmailVerified      bool
	EmailVerifiedAt    *time.Time
	VerifyTokenHash    string
	VerifyTokenExpires *time.Time
	LoginAttempts      int
	LastLoginAt        *time.Time
	LastLoginIP        string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasRole reports whether the user carries any of the given roles.
func (u User) HasRole(roles ...string) bool {
	for _, want := range roles {
		for _, have := range u.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}
