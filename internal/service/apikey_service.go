package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bluerise/auth-service/internal/domain"
	pw "github.com/bluerise/auth-service/internal/password"
	"github.com/bluerise/auth-service/internal/repository"
)

// ErrAPIKeyInvalid reports a key that matches no active record.
var ErrAPIKeyInvalid = errors.New("invalid api key")

// APIKeyService issues and verifies service credentials. Keys are stored
// hashed with the same hasher as passwords; the raw key is returned to the
// creator exactly once.
type APIKeyService struct {
	keys      repository.APIKeyRepository
	snowflake *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewAPIKeyService wires dependencies.
func NewAPIKeyService(keys repository.APIKeyRepository, node *snowflake.Node, logger *zap.Logger) *APIKeyService {
	return &APIKeyService{
		keys:      keys,
		snowflake: node,
		logger:    logger,
		tracer:    otel.Tracer("github.com/bluerise/auth-service/internal/service"),
	}
}

// CreateAPIKey mints a new key for userID. ttl of zero means no expiry.
func (s *APIKeyService) CreateAPIKey(ctx context.Context, userID int64, name string, permissions []string, ttl time.Duration) (CreatedAPIKey, error) {
	ctx, span := s.startSpan(ctx, "APIKeyService.CreateAPIKey")
	defer span.End()

	if strings.TrimSpace(name) == "" {
		return CreatedAPIKey{}, errInvalidRequest("Key name is required.")
	}

	rawKey := randomToken()
	hashed, err := pw.Hash(rawKey)
	if err != nil {
		span.RecordError(err)
		return CreatedAPIKey{}, fmt.Errorf("hash api key: %w", err)
	}

	var expiresAt *time.Time
	if ttl > 0 {
		at := time.Now().UTC().Add(ttl)
		expiresAt = &at
	}

	model := domain.APIKey{
		ID:          s.snowflake.Generate().Int64(),
		UserID:      userID,
		Name:        strings.TrimSpace(name),
		KeyHash:     hashed,
		Permissions: permissions,
		IsActive:    true,
		ExpiresAt:   expiresAt,
	}

	created, err := s.keys.Create(ctx, model)
	if err != nil {
		span.RecordError(err)
		return CreatedAPIKey{}, fmt.Errorf("create api key: %w", err)
	}

	s.log().Info("api key created",
		zap.Int64("key_id", created.ID),
		zap.Int64("user_id", userID),
		zap.String("name", created.Name),
	)

	return CreatedAPIKey{
		APIKeyViewModel: newAPIKeyViewModel(created),
		Key:             rawKey,
	}, nil
}

// VerifyAPIKey matches the raw key against active records. A hashed store
// cannot be queried by key, so verification walks the active set; the key
// count is expected to stay small.
func (s *APIKeyService) VerifyAPIKey(ctx context.Context, rawKey string) (domain.APIKey, error) {
	ctx, span := s.startSpan(ctx, "APIKeyService.VerifyAPIKey")
	defer span.End()

	if rawKey == "" {
		return domain.APIKey{}, ErrAPIKeyInvalid
	}

	active, err := s.keys.ListActive(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.APIKey{}, fmt.Errorf("list api keys: %w", err)
	}

	now := time.Now().UTC()
	for _, key := range active {
		if key.Expired(now) {
			continue
		}
		match, err := pw.Verify(rawKey, key.KeyHash)
		if err != nil || !match {
			continue
		}
		if err := s.keys.TouchLastUsed(ctx, key.ID, now); err != nil {
			s.log().Warn("failed to record api key use", zap.Int64("key_id", key.ID), zap.Error(err))
		}
		return key, nil
	}
	return domain.APIKey{}, ErrAPIKeyInvalid
}

func (s *APIKeyService) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s == nil || s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return s.tracer.Start(ctx, name)
}

func (s *APIKeyService) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}

func newAPIKeyViewModel(key domain.APIKey) APIKeyViewModel {
	view := APIKeyViewModel{
		ID:          key.ID,
		Name:        key.Name,
		Permissions: key.Permissions,
	}
	if key.ExpiresAt != nil {
		view.ExpiresAt = key.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return view
}
