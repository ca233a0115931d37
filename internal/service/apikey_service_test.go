package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bluerise/auth-service/internal/domain"
	"github.com/bluerise/auth-service/internal/service"
)

func newTestAPIKeyService(t *testing.T) (*service.APIKeyService, *memoryAPIKeyRepo) {
	t.Helper()
	repo := &memoryAPIKeyRepo{}
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	return service.NewAPIKeyService(repo, node, zap.NewNop()), repo
}

func TestCreateAndVerifyAPIKey(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestAPIKeyService(t)

	created, err := svc.CreateAPIKey(ctx, 42, "ci-deploy", []string{"read"}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, created.Key)
	require.NotContains(t, repo.get(created.ID).KeyHash, created.Key)

	key, err := svc.VerifyAPIKey(ctx, created.Key)
	require.NoError(t, err)
	require.Equal(t, created.ID, key.ID)
	require.Equal(t, int64(42), key.UserID)
	require.NotNil(t, repo.get(created.ID).LastUsedAt)

	_, err = svc.VerifyAPIKey(ctx, "not-a-key")
	require.ErrorIs(t, err, service.ErrAPIKeyInvalid)
}

func TestExpiredAPIKeyRejected(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestAPIKeyService(t)

	created, err := svc.CreateAPIKey(ctx, 42, "short-lived", nil, time.Hour)
	require.NoError(t, err)

	expired := time.Now().UTC().Add(-time.Minute)
	repo.setExpiry(created.ID, expired)

	_, err = svc.VerifyAPIKey(ctx, created.Key)
	require.ErrorIs(t, err, service.ErrAPIKeyInvalid)
}

type memoryAPIKeyRepo struct {
	mu   sync.Mutex
	keys []domain.APIKey
}

func (m *memoryAPIKeyRepo) get(id int64) domain.APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range m.keys {
		if key.ID == id {
			return key
		}
	}
	return domain.APIKey{}
}

func (m *memoryAPIKeyRepo) setExpiry(id int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		if m.keys[i].ID == id {
			m.keys[i].ExpiresAt = &at
		}
	}
}

func (m *memoryAPIKeyRepo) Create(_ context.Context, key domain.APIKey) (domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key.CreatedAt = time.Now().UTC()
	m.keys = append(m.keys, key)
	return key, nil
}

func (m *memoryAPIKeyRepo) ListActive(_ context.Context) ([]domain.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var active []domain.APIKey
	for _, key := range m.keys {
		if key.IsActive && !key.Expired(now) {
			active = append(active, key)
		}
	}
	return active, nil
}

func (m *memoryAPIKeyRepo) TouchLastUsed(_ context.Context, keyID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.keys {
		if m.keys[i].ID == keyID {
			m.keys[i].LastUsedAt = &at
		}
	}
	return nil
}
