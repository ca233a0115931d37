package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/bluerise/auth-service/internal/config"
	"github.com/bluerise/auth-service/internal/domain"
	"github.com/bluerise/auth-service/internal/http/handler"
	httpmiddleware "github.com/bluerise/auth-service/internal/http/middleware"
	"github.com/bluerise/auth-service/internal/middleware"
)

// RateLimiters bundles the global and login-specific limiters.
type RateLimiters struct {
	Global *middleware.RedisRateLimiter
	Login  *middleware.RedisRateLimiter
}

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	authHandler *handler.AuthHandler,
	apiKeyHandler *handler.APIKeyHandler,
	healthHandler *handler.HealthHandler,
	authMiddleware *httpmiddleware.Auth,
	apiKeyAuth *httpmiddleware.APIKeyAuth,
	limiters RateLimiters,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	r.Use(limiters.Global.Handler(middleware.ClientIPKey))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/verify-email", authHandler.VerifyEmail)
			auth.GET("/verify-email", authHandler.VerifyEmail)
			auth.POST("/login", limiters.Login.Handler(middleware.LoginKey), authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authHandler.Logout)
			auth.POST("/forgot-password", authHandler.ForgotPassword)
			auth.POST("/reset-password", authHandler.ResetPassword)
		}

		api.GET("/users/me", authMiddleware.ValidateJWT, authHandler.Me)

		apikeys := api.Group("/apikeys")
		apikeys.Use(authMiddleware.ValidateJWT, httpmiddleware.RequireRoles(domain.RoleAdmin))
		{
			apikeys.POST("", apiKeyHandler.Create)
		}

		// Service-to-service surface authenticated by API key instead of a
		// user session.
		internalAPI := api.Group("/internal")
		internalAPI.Use(apiKeyAuth.Validate)
		{
			internalAPI.GET("/ping", handler.InternalPing)
		}

		api.GET("/health", healthHandler.Check)
	}

	return r
}
