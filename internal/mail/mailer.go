package mail

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Mailer delivers account lifecycle links to users.
type Mailer interface {
	DeliverVerificationLink(ctx context.Context, email, token string) error
	DeliverResetLink(ctx context.Context, email, token string) error
}

// LogMailer writes delivery links to the log instead of sending mail. It
// stands in until an SMTP or provider-backed mailer is wired up.
type LogMailer struct {
	logger *zap.Logger
	appURL string
}

var _ Mailer = (*LogMailer)(nil)

// NewLogMailer constructs a log-backed mailer building links off appURL.
func NewLogMailer(logger *zap.Logger, appURL string) *LogMailer {
	if logger == nil {
		logger = zap.L()
	}
	return &LogMailer{logger: logger, appURL: appURL}
}

func (m *LogMailer) DeliverVerificationLink(_ context.Context, email, token string) error {
	m.logger.Info("verification link issued",
		zap.String("email", email),
		zap.String("link", fmt.Sprintf("%s/api/auth/verify-email?token=%s", m.appURL, token)),
	)
	return nil
}

func (m *LogMailer) DeliverResetLink(_ context.Context, email, token string) error {
	m.logger.Info("password reset link issued",
		zap.String("email", email),
		zap.String("link", fmt.Sprintf("%s/reset-password?token=%s", m.appURL, token)),
	)
	return nil
}
