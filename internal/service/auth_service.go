package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bluerise/auth-service/internal/config"
	"github.com/bluerise/auth-service/internal/domain"
	"github.com/bluerise/auth-service/internal/mail"
	pw "github.com/bluerise/auth-service/internal/password"
	"github.com/bluerise/auth-service/internal/repository"
	"github.com/bluerise/auth-service/internal/token"
)

const minPasswordLength = 8

// AuthService encapsulates the account and session lifecycle: registration
// through email verification, login, token refresh, logout, and password
// reset.
type AuthService struct {
	users     repository.UserRepository
	audits    repository.AuditRepository
	store     repository.TokenStore
	signer    *token.Signer
	mailer    mail.Mailer
	snowflake *snowflake.Node
	cfg       config.Config
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAuthService wires dependencies.
func NewAuthService(users repository.UserRepository, audits repository.AuditRepository, store repository.TokenStore, signer *token.Signer, mailer mail.Mailer, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		audits:    audits,
		store:     store,
		signer:    signer,
		mailer:    mailer,
		snowflake: node,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("github.com/bluerise/auth-service/internal/service"),
	}
}

// Register creates a pending user and hands a verification link to the
// mailer. The raw verification token is never persisted, only its hash.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (UserViewModel, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Register")
	defer span.End()

	normalized := normalizeEmail(email)
	if normalized == "" {
		return UserViewModel{}, errInvalidRequest("Email is required.")
	}
	if len(password) < minPasswordLength {
		return UserViewModel{}, errInvalidRequest("Password must be at least 8 characters.")
	}

	if _, err := s.users.GetByEmail(ctx, normalized); err == nil {
		return UserViewModel{}, errConflict("Email already registered.")
	} else if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		return UserViewModel{}, fmt.Errorf("check existing user: %w", err)
	}

	hashed, err := pw.Hash(password)
	if err != nil {
		span.RecordError(err)
		return UserViewModel{}, fmt.Errorf("hash password: %w", err)
	}

	rawToken := randomToken()
	expires := time.Now().UTC().Add(s.cfg.VerifyTokenTTL)

	model := domain.User{
		ID:                 s.snowflake.Generate().Int64(),
		Email:              normalized,
		Name:               strings.TrimSpace(name),
		PasswordHash:       hashed,
		Roles:              []string{domain.RoleUser},
		Status:             domain.StatusPending,
		EmailVerified:      false,
		VerifyTokenHash:    hashToken(rawToken),
		VerifyTokenExpires: &expires,
	}

	created, err := s.users.Create(ctx, model)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return UserViewModel{}, errConflict("Email already registered.")
		}
		span.RecordError(err)
		return UserViewModel{}, fmt.Errorf("create user: %w", err)
	}

	if err := s.mailer.DeliverVerificationLink(ctx, created.Email, rawToken); err != nil {
		s.log().Warn("verification mail delivery failed",
			zap.Int64("user_id", created.ID),
			zap.Error(err),
		)
	}

	return newUserViewModel(created), nil
}

// VerifyEmail redeems a verification token, activating the account. The
// token fields are cleared on success so the link cannot be replayed.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.VerifyEmail")
	defer span.End()

	if rawToken == "" {
		return errInvalidToken("Verification token is required.", http.StatusBadRequest)
	}

	user, err := s.users.GetByVerifyTokenHash(ctx, hashToken(rawToken), time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errInvalidToken("Invalid or expired verification token.", http.StatusBadRequest)
		}
		span.RecordError(err)
		return fmt.Errorf("lookup verification token: %w", err)
	}

	now := time.Now().UTC()
	user.EmailVerified = true
	user.EmailVerifiedAt = &now
	user.Status = domain.StatusActive
	user.VerifyTokenHash = ""
	user.VerifyTokenExpires = nil

	if err := s.users.Update(ctx, user); err != nil {
		span.RecordError(err)
		return fmt.Errorf("activate user: %w", err)
	}
	return nil
}

// Login authenticates email/password and issues an access/refresh token
// pair. Unknown email and wrong password produce identical failures.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Login")
	defer span.End()

	normalized := normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		s.recordAudit(ctx, 0, normalized, ip, domain.AuditFailure, "unknown email")
		return nil, errInvalidCredentials()
	}

	valid, err := pw.Verify(password, user.PasswordHash)
	if err != nil || !valid {
		user.LoginAttempts++
		if updateErr := s.users.Update(ctx, user); updateErr != nil {
			s.log().Warn("failed to record login attempt", zap.Int64("user_id", user.ID), zap.Error(updateErr))
		}
		s.recordAudit(ctx, user.ID, normalized, ip, domain.AuditFailure, "wrong password")
		return nil, errInvalidCredentials()
	}

	if !user.EmailVerified || user.Status != domain.StatusActive {
		s.recordAudit(ctx, user.ID, normalized, ip, domain.AuditFailure, "email not verified")
		return nil, errEmailNotVerified()
	}

	now := time.Now().UTC()
	user.LoginAttempts = 0
	user.LastLoginAt = &now
	user.LastLoginIP = ip
	if err := s.users.Update(ctx, user); err != nil {
		s.log().Warn("failed to record login metadata", zap.Int64("user_id", user.ID), zap.Error(err))
	}

	resp, err := s.issueTokens(ctx, user)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.recordAudit(ctx, user.ID, normalized, ip, domain.AuditSuccess, "")
	return resp, nil
}

// Refresh exchanges a whitelisted refresh token for a fresh access token.
// The refresh token itself stays valid until logout or natural expiry.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := s.startSpan(ctx, "AuthService.Refresh")
	defer span.End()

	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, errInvalidToken("Invalid or expired refresh token.", http.StatusUnauthorized)
	}

	// Whitelist lookup failures deny the request: an unverifiable refresh
	// token is treated as a revoked one.
	ok, err := s.store.IsWhitelisted(ctx, claims.TokenID, claims.UserID)
	if err != nil {
		span.RecordError(err)
		s.log().Error("refresh whitelist check failed", zap.Error(err))
		return nil, errStoreUnavailable()
	}
	if !ok {
		return nil, errInvalidToken("Invalid or expired refresh token.", http.StatusUnauthorized)
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errInvalidToken("Invalid or expired refresh token.", http.StatusUnauthorized)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Status != domain.StatusActive {
		return nil, errInvalidToken("Invalid or expired refresh token.", http.StatusUnauthorized)
	}

	access, err := s.signer.SignAccess(user.ID, user.Roles)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	return &TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.cfg.AccessTokenTTL.Seconds()),
		User:        newUserViewModel(user),
	}, nil
}

// Logout revokes the refresh token's whitelist entry. Revoking an already
// revoked token succeeds, so retried logouts are harmless.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx, span := s.startSpan(ctx, "AuthService.Logout")
	defer span.End()

	claims, err := s.signer.VerifyRefresh(refreshToken)
	if err != nil {
		return errInvalidToken("Invalid refresh token.", http.StatusBadRequest)
	}

	if _, err := s.store.RevokeRefresh(ctx, claims.TokenID); err != nil {
		span.RecordError(err)
		s.log().Error("refresh revocation failed", zap.Error(err))
		return errStoreUnavailable()
	}
	return nil
}

// ForgotPassword issues a one-time reset token when the account exists.
// The caller always gets the same outcome either way, so responses cannot
// be used to enumerate accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ForgotPassword")
	defer span.End()

	normalized := normalizeEmail(email)
	if normalized == "" {
		return errInvalidRequest("Email is required.")
	}

	user, err := s.users.GetByEmail(ctx, normalized)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			span.RecordError(err)
			s.log().Warn("password reset lookup failed", zap.Error(err))
		}
		return nil
	}

	rawToken := randomToken()
	if err := s.store.IssueResetToken(ctx, rawToken, user.ID, s.cfg.ResetTokenTTL); err != nil {
		span.RecordError(err)
		s.log().Error("reset token issuance failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return errStoreUnavailable()
	}

	if err := s.mailer.DeliverResetLink(ctx, user.Email, rawToken); err != nil {
		s.log().Warn("reset mail delivery failed", zap.Int64("user_id", user.ID), zap.Error(err))
	}
	return nil
}

// ResetPassword redeems a one-time reset token and replaces the password.
// Redemption is atomic: concurrent attempts with the same token leave at
// most one winner.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	ctx, span := s.startSpan(ctx, "AuthService.ResetPassword")
	defer span.End()

	if rawToken == "" {
		return errInvalidToken("Reset token is required.", http.StatusBadRequest)
	}
	if len(newPassword) < minPasswordLength {
		return errInvalidRequest("Password must be at least 8 characters.")
	}

	userID, err := s.store.RedeemResetToken(ctx, rawToken)
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return errInvalidToken("Invalid or expired reset token.", http.StatusBadRequest)
		}
		span.RecordError(err)
		s.log().Error("reset token redemption failed", zap.Error(err))
		return errStoreUnavailable()
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load user: %w", err)
	}

	hashed, err := pw.Hash(newPassword)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = hashed
	user.LoginAttempts = 0
	if err := s.users.Update(ctx, user); err != nil {
		span.RecordError(err)
		return fmt.Errorf("store new password: %w", err)
	}
	return nil
}

// GetUserInfo returns the profile for an authenticated user.
func (s *AuthService) GetUserInfo(ctx context.Context, userID int64) (UserViewModel, error) {
	ctx, span := s.startSpan(ctx, "AuthService.GetUserInfo")
	defer span.End()

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return UserViewModel{}, fmt.Errorf("load user: %w", err)
	}
	return newUserViewModel(user), nil
}

func (s *AuthService) issueTokens(ctx context.Context, user domain.User) (*TokenResponse, error) {
	access, err := s.signer.SignAccess(user.ID, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, tokenID, err := s.signer.SignRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	// The whitelist entry must exist before the token leaves the service;
	// a write failure means no session.
	if err := s.store.WhitelistRefresh(ctx, tokenID, user.ID, s.cfg.RefreshTokenTTL); err != nil {
		s.log().Error("refresh whitelist write failed", zap.Int64("user_id", user.ID), zap.Error(err))
		return nil, errStoreUnavailable()
	}

	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTokenTTL.Seconds()),
		User:         newUserViewModel(user),
	}, nil
}

func (s *AuthService) recordAudit(ctx context.Context, userID int64, email, ip, status, reason string) {
	event := domain.AuditEvent{
		ID:     s.snowflake.Generate().Int64(),
		UserID: userID,
		Email:  email,
		IP:     ip,
		Status: status,
		Reason: reason,
	}
	if err := s.audits.Record(ctx, event); err != nil {
		s.log().Warn("audit record failed", zap.String("email", email), zap.Error(err))
	}

	fields := []zap.Field{
		zap.String("event", "login_attempt"),
		zap.String("email", email),
		zap.String("ip", ip),
		zap.String("status", status),
	}
	if userID != 0 {
		fields = append(fields, zap.Int64("user_id", userID))
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	s.log().Info("audit", fields...)
}

func (s *AuthService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *AuthService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func newUserViewModel(user domain.User) UserViewModel {
	return UserViewModel{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Roles:         user.Roles,
		EmailVerified: user.EmailVerified,
	}
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// randomToken returns 192 bits of entropy as hex, matching the size of the
// verification and reset links handed to users.
func randomToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
