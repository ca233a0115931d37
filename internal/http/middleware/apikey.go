package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bluerise/auth-service/internal/domain"
	"github.com/bluerise/auth-service/internal/service"
)

const apiKeyContextKey = "apiKey"

// APIKeyAuth validates the X-API-Key header against stored keys.
type APIKeyAuth struct {
	Keys   *service.APIKeyService
	Logger *zap.Logger
}

// Validate ensures the request carries a valid, active API key.
func (m *APIKeyAuth) Validate(c *gin.Context) {
	raw := c.GetHeader("X-API-Key")
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "X-API-Key header required."})
		return
	}

	key, err := m.Keys.VerifyAPIKey(c.Request.Context(), raw)
	if err != nil {
		if !errors.Is(err, service.ErrAPIKeyInvalid) && m.Logger != nil {
			m.Logger.Error("api key verification failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid API key."})
		return
	}

	c.Set(apiKeyContextKey, key)
	c.Next()
}

// GetAPIKey exposes the verified API key record to handlers.
func GetAPIKey(c *gin.Context) (domain.APIKey, bool) {
	value, ok := c.Get(apiKeyContextKey)
	if !ok {
		return domain.APIKey{}, false
	}
	key, ok := value.(domain.APIKey)
	return key, ok
}
