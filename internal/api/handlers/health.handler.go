package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/mirador-remedy/pkg/cache"
	"github.com/platformbuilds/mirador-remedy/pkg/logger"
)

type HealthHandler struct {
	cache  cache.ValkeyStore
	logger logger.Logger
}

func NewHealthHandler(c cache.ValkeyStore, logger logger.Logger) *HealthHandler {
	return &HealthHandler{
		cache:  c,
		logger: logger,
	}
}

// GET /health - Quick health check
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "mirador-remedy",
		"version":   "v1.2.0",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GET /ready - Readiness depends on the Valkey store being reachable.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	httpStatus := http.StatusOK
	resp := gin.H{
		"service":   "mirador-remedy",
		"version":   "v1.2.0",
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if err := h.cache.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		resp["error"] = err.Error()
	}
	resp["status"] = status

	c.JSON(httpStatus, resp)
}
