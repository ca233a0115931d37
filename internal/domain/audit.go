package domain

import "time"

// Audit outcomes.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditEvent records a login attempt outcome. UserID is zero when the
// attempted email does not resolve to a user.
type AuditEvent struct {
	ID        int64
	UserID    int64
	Email     string
	IP        string
	Status    string
	Reason    string
	CreatedAt time.Time
}
