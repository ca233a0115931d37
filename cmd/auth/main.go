package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/bluerise/auth-service/internal/adapter/cache"
	"github.com/bluerise/auth-service/internal/bootstrap"
	"github.com/bluerise/auth-service/internal/config"
	httptransport "github.com/bluerise/auth-service/internal/http"
	"github.com/bluerise/auth-service/internal/http/handler"
	httpmiddleware "github.com/bluerise/auth-service/internal/http/middleware"
	"github.com/bluerise/auth-service/internal/mail"
	apimiddleware "github.com/bluerise/auth-service/internal/middleware"
	"github.com/bluerise/auth-service/internal/repository"
	"github.com/bluerise/auth-service/internal/server"
	"github.com/bluerise/auth-service/internal/service"
	"github.com/bluerise/auth-service/internal/telemetry"
	"github.com/bluerise/auth-service/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newUserRepository,
			newAPIKeyRepository,
			newAuditRepository,
			newRedisClient,
			newTokenStore,
			newSigner,
			newMailer,
			newRateLimiters,
			service.NewAuthService,
			service.NewAPIKeyService,
			handler.NewAuthHandler,
			handler.NewAPIKeyHandler,
			newHealthHandler,
			newAuthMiddleware,
			newAPIKeyMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, bootstrap.EnsureAdmin, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	node, err := snowflake.NewNode(1)
	return node, err
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return repository.NewPostgresUserRepo(pool)
}

func newAPIKeyRepository(pool *pgxpool.Pool) repository.APIKeyRepository {
	return repository.NewPostgresAPIKeyRepo(pool)
}

func newAuditRepository(pool *pgxpool.Pool) repository.AuditRepository {
	return repository.NewPostgresAuditRepo(pool)
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newTokenStore(client redis.UniversalClient) repository.TokenStore {
	return cacheadapter.NewRedisTokenStore(client)
}

func newSigner(cfg config.Config) (*token.Signer, error) {
	key, err := token.LoadPrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return token.NewSigner(key, cfg.AccessTokenTTL, cfg.RefreshTokenTTL), nil
}

func newMailer(cfg config.Config, logger *zap.Logger) mail.Mailer {
	return mail.NewLogMailer(logger, cfg.AppURL)
}

func newRateLimiters(cfg config.Config, client redis.UniversalClient, logger *zap.Logger) httptransport.RateLimiters {
	return httptransport.RateLimiters{
		Global: apimiddleware.NewRedisRateLimiter(client, logger, cfg.RateLimitMax, cfg.RateLimitWindow),
		Login:  apimiddleware.NewRedisRateLimiter(client, logger, cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow),
	}
}

func newHealthHandler(pool *pgxpool.Pool, client redis.UniversalClient) *handler.HealthHandler {
	return handler.NewHealthHandler(pool, client)
}

func newAuthMiddleware(signer *token.Signer) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Signer: signer}
}

func newAPIKeyMiddleware(keys *service.APIKeyService, logger *zap.Logger) *httpmiddleware.APIKeyAuth {
	return &httpmiddleware.APIKeyAuth{Keys: keys, Logger: logger}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
