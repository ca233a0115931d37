package bootstrap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bluerise/auth-service/internal/config"
	"github.com/bluerise/auth-service/internal/domain"
	"github.com/bluerise/auth-service/internal/password"
	"github.com/bluerise/auth-service/internal/repository"
)

// EnsureAdmin creates a pre-verified admin user at startup when the admin
// credentials are configured. Without them the hook is a no-op.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, users, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || strings.TrimSpace(cfg.AdminPassword) == "" {
		return nil
	}

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:              node.Generate().Int64(),
		Email:           email,
		Name:            "Admin",
		PasswordHash:    hashed,
		Roles:           []string{domain.RoleUser, domain.RoleAdmin},
		Status:          domain.StatusActive,
		EmailVerified:   true,
		EmailVerifiedAt: &now,
	}

	created, err := users.Create(ctx, user)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil
		}
		return err
	}

	if logger != nil {
		logger.Info("bootstrap admin user created",
			zap.String("email", created.Email),
			zap.Int64("user_id", created.ID),
		)
	}
	return nil
}
