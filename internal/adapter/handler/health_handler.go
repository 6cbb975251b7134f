package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zots0127/fileshare/internal/domain/entities"
)

// HealthService reports service health
type HealthService interface {
	GetHealth(ctx context.Context) (*entities.HealthCheck, error)
	GetReadiness(ctx context.Context) (bool, string)
	GetLiveness(ctx context.Context) bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	health HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(health HealthService) *HealthHandler {
	return &HealthHandler{health: health}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.GetHealth)
	router.GET("/health/live", h.GetLiveness)
	router.GET("/health/ready", h.GetReadiness)
}

// GetHealth returns the status of the catalog, object store, journal and
// staging disk. A partial status still answers 200.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	health, err := h.health.GetHealth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	statusCode := http.StatusOK
	if health.Status == entities.HealthStatusDown {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, health)
}

// GetLiveness returns liveness status
func (h *HealthHandler) GetLiveness(c *gin.Context) {
	if h.health.GetLiveness(c.Request.Context()) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "dead"})
}

// GetReadiness reports whether the catalog and object store can serve requests
func (h *HealthHandler) GetReadiness(c *gin.Context) {
	ready, message := h.health.GetReadiness(c.Request.Context())
	if ready {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"message": message,
		})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":  "not_ready",
		"message": message,
	})
}
