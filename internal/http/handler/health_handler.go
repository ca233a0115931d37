package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports service and backing-store health.
type HealthHandler struct {
	DB    *pgxpool.Pool
	Redis redis.UniversalClient
}

// NewHealthHandler wires the handler.
func NewHealthHandler(db *pgxpool.Pool, rdb redis.UniversalClient) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

// Check pings both stores. Any failing dependency turns the response 503.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	overall := "ok"
	status := http.StatusOK
	dbStatus := "ok"
	redisStatus := "ok"

	if err := h.DB.Ping(ctx); err != nil {
		dbStatus = "unavailable"
	}
	if err := h.Redis.Ping(ctx).Err(); err != nil {
		redisStatus = "unavailable"
	}
	if dbStatus != "ok" || redisStatus != "ok" {
		overall = "degraded"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": gin.H{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}
