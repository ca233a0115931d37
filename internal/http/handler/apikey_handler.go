package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bluerise/auth-service/internal/http/middleware"
	"github.com/bluerise/auth-service/internal/service"
)

// APIKeyHandler exposes API key management endpoints.
type APIKeyHandler struct {
	Keys *service.APIKeyService
}

// NewAPIKeyHandler wires the handler.
func NewAPIKeyHandler(keys *service.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{Keys: keys}
}

// Create mints a new API key owned by the authenticated admin. The raw key
// appears in this response only and is stored hashed.
func (h *APIKeyHandler) Create(c *gin.Context) {
	claims, ok := middleware.GetAccessClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "Authentication required."})
		return
	}

	var req struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
		ExpiresIn   string   `json:"expires_in"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid payload."})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Key name is required."})
		return
	}

	var ttl time.Duration
	if req.ExpiresIn != "" {
		parsed, err := time.ParseDuration(req.ExpiresIn)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "expires_in must be a positive duration."})
			return
		}
		ttl = parsed
	}

	created, err := h.Keys.CreateAPIKey(c.Request.Context(), claims.UserID, req.Name, req.Permissions, ttl)
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// InternalPing confirms API-key authentication for service callers.
func InternalPing(c *gin.Context) {
	key, ok := middleware.GetAPIKey(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "error_description": "API key required."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "ok", "key_name": key.Name})
}
