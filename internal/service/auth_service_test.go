package service_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bluerise/auth-service/internal/config"
	"github.com/bluerise/auth-service/internal/domain"
	"github.com/bluerise/auth-service/internal/repository"
	"github.com/bluerise/auth-service/internal/service"
	"github.com/bluerise/auth-service/internal/token"
)

func newTestAuthService(t *testing.T) (*service.AuthService, *memoryUserRepo, *memoryTokenStore, *captureMailer, *memoryAuditRepo) {
	t.Helper()

	users := newMemoryUserRepo()
	audits := &memoryAuditRepo{}
	store := newMemoryTokenStore()
	mailer := &captureMailer{}

	key, err := token.LoadPrivateKey("")
	require.NoError(t, err)
	cfg := config.Config{
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		VerifyTokenTTL:  24 * time.Hour,
		ResetTokenTTL:   15 * time.Minute,
	}
	signer := token.NewSigner(key, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := service.NewAuthService(users, audits, store, signer, mailer, node, cfg, zap.NewNop())
	return svc, users, store, mailer, audits
}

func TestRegisterVerifyLoginRefreshLogoutFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, _, mailer, _ := newTestAuthService(t)

	created, err := svc.Register(ctx, "Ada", "Ada@Example.com", "Passw0rd!")
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", created.Email)
	require.False(t, created.EmailVerified)
	require.NotEmpty(t, mailer.verifyToken)

	// Unverified accounts authenticate credentials but get no session.
	_, err = svc.Login(ctx, "ada@example.com", "Passw0rd!", "127.0.0.1")
	var authErr *service.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "email_not_verified", authErr.Code)

	require.NoError(t, svc.VerifyEmail(ctx, mailer.verifyToken))

	// The verification link is single-use.
	err = svc.VerifyEmail(ctx, mailer.verifyToken)
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "invalid_token", authErr.Code)

	resp, err := svc.Login(ctx, "ada@example.com", "Passw0rd!", "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "Bearer", resp.TokenType)

	refreshed, err := svc.Refresh(ctx, resp.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.Empty(t, refreshed.RefreshToken)

	require.NoError(t, svc.Logout(ctx, resp.RefreshToken))

	_, err = svc.Refresh(ctx, resp.RefreshToken)
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.Status)

	// Logout after logout still succeeds.
	require.NoError(t, svc.Logout(ctx, resp.RefreshToken))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestAuthService(t)

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "Passw0rd!")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Imposter", "ADA@example.com", "Passw0rd!")
	var authErr *service.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "conflict", authErr.Code)
	require.Equal(t, http.StatusConflict, authErr.Status)
}

func TestLoginDoesNotRevealWhichFactorFailed(t *testing.T) {
	ctx := context.Background()
	svc, _, _, mailer, audits := newTestAuthService(t)

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, mailer.verifyToken))

	_, unknownErr := svc.Login(ctx, "nobody@example.com", "Passw0rd!", "127.0.0.1")
	_, wrongErr := svc.Login(ctx, "ada@example.com", "wrong password", "127.0.0.1")

	var unknownAuthErr, wrongAuthErr *service.AuthError
	require.ErrorAs(t, unknownErr, &unknownAuthErr)
	require.ErrorAs(t, wrongErr, &wrongAuthErr)
	require.Equal(t, unknownAuthErr.Code, wrongAuthErr.Code)
	require.Equal(t, unknownAuthErr.Status, wrongAuthErr.Status)
	require.Equal(t, unknownAuthErr.Description, wrongAuthErr.Description)

	require.Len(t, audits.events, 2)
	require.Equal(t, domain.AuditFailure, audits.events[0].Status)
	require.Equal(t, domain.AuditFailure, audits.events[1].Status)
}

func TestFailedLoginsIncrementAttemptCounter(t *testing.T) {
	ctx := context.Background()
	svc, users, _, mailer, _ := newTestAuthService(t)

	created, err := svc.Register(ctx, "Ada", "ada@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, mailer.verifyToken))

	for i := 0; i < 3; i++ {
		_, err = svc.Login(ctx, "ada@example.com", "wrong password", "127.0.0.1")
		require.Error(t, err)
	}
	require.Equal(t, 3, users.get(created.ID).LoginAttempts)

	_, err = svc.Login(ctx, "ada@example.com", "Passw0rd!", "127.0.0.1")
	require.NoError(t, err)
	require.Equal(t, 0, users.get(created.ID).LoginAttempts)
}

func TestVerifyEmailExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc, users, _, mailer, _ := newTestAuthService(t)

	created, err := svc.Register(ctx, "Ada", "ada@example.com", "Passw0rd!")
	require.NoError(t, err)

	expired := time.Now().UTC().Add(-time.Minute)
	users.setVerifyExpiry(created.ID, expired)

	err = svc.VerifyEmail(ctx, mailer.verifyToken)
	var authErr *service.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "invalid_token", authErr.Code)
}

func TestForgotPasswordIsGeneric(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, _ := newTestAuthService(t)

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "Passw0rd!")
	require.NoError(t, err)

	require.NoError(t, svc.ForgotPassword(ctx, "ada@example.com"))
	require.NoError(t, svc.ForgotPassword(ctx, "nobody@example.com"))
}

func TestResetPasswordFlow(t *testing.T) {
	ctx := context.Background()
	svc, _, _, mailer, _ := newTestAuthService(t)

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, mailer.verifyToken))
	require.NoError(t, svc.ForgotPassword(ctx, "ada@example.com"))
	require.NotEmpty(t, mailer.resetToken)

	require.NoError(t, svc.ResetPassword(ctx, mailer.resetToken, "NewPassw0rd!"))

	// The reset token is consumed.
	err = svc.ResetPassword(ctx, mailer.resetToken, "AnotherPass1")
	var authErr *service.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "invalid_token", authErr.Code)

	_, err = svc.Login(ctx, "ada@example.com", "Passw0rd!", "127.0.0.1")
	require.Error(t, err)
	_, err = svc.Login(ctx, "ada@example.com", "NewPassw0rd!", "127.0.0.1")
	require.NoError(t, err)
}

func TestConcurrentResetRedemptionHasOneWinner(t *testing.T) {
	ctx := context.Background()
	svc, _, _, mailer, _ := newTestAuthService(t)

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.NoError(t, svc.VerifyEmail(ctx, mailer.verifyToken))
	require.NoError(t, svc.ForgotPassword(ctx, "ada@example.com"))

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- svc.ResetPassword(ctx, mailer.resetToken, "NewPassw0rd!")
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for err := range results {
		if err == nil {
			wins++
		}
	}
	require.Equal(t, 1, wins)
}

// in-memory fakes

type memoryUserRepo struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[int64]domain.User)}
}

func (m *memoryUserRepo) get(id int64) domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id]
}

func (m *memoryUserRepo) setVerifyExpiry(id int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user := m.users[id]
	user.VerifyTokenExpires = &at
	m.users[id] = user
}

func (m *memoryUserRepo) GetByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *memoryUserRepo) GetByID(_ context.Context, userID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return user, nil
}

func (m *memoryUserRepo) GetByVerifyTokenHash(_ context.Context, hash string, now time.Time) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.VerifyTokenHash == hash && user.VerifyTokenExpires != nil && user.VerifyTokenExpires.After(now) {
			return user, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *memoryUserRepo) Create(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryUserRepo) Update(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.UpdatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return nil
}

type memoryAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (m *memoryAuditRepo) Record(_ context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

type memoryTokenStore struct {
	mu      sync.Mutex
	refresh map[string]int64
	reset   map[string]int64
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{refresh: make(map[string]int64), reset: make(map[string]int64)}
}

func (m *memoryTokenStore) WhitelistRefresh(_ context.Context, tokenID string, userID int64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh[tokenID] = userID
	return nil
}

func (m *memoryTokenStore) IsWhitelisted(_ context.Context, tokenID string, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.refresh[tokenID]
	return ok && stored == userID, nil
}

func (m *memoryTokenStore) RevokeRefresh(_ context.Context, tokenID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refresh[tokenID]; !ok {
		return 0, nil
	}
	delete(m.refresh, tokenID)
	return 1, nil
}

func (m *memoryTokenStore) IssueResetToken(_ context.Context, rawToken string, userID int64, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[rawToken] = userID
	return nil
}

func (m *memoryTokenStore) RedeemResetToken(_ context.Context, rawToken string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID, ok := m.reset[rawToken]
	if !ok {
		return 0, repository.ErrTokenNotFound
	}
	delete(m.reset, rawToken)
	return userID, nil
}

type captureMailer struct {
	mu          sync.Mutex
	verifyToken string
	resetToken  string
}

func (m *captureMailer) DeliverVerificationLink(_ context.Context, _ string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyToken = token
	return nil
}

func (m *captureMailer) DeliverResetLink(_ context.Context, _ string, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetToken = token
	return nil
}
