package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthTimeout bounds the database ping
const healthTimeout = 2 * time.Second

// HealthHandler reports liveness and database reachability
type HealthHandler struct {
	ping    func(ctx context.Context) error
	version string
	started time.Time
}

// NewHealthHandler creates a HealthHandler; ping may be nil
func NewHealthHandler(ping func(ctx context.Context) error, version string) *HealthHandler {
	return &HealthHandler{ping: ping, version: version, started: time.Now()}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	}
	if h.ping == nil {
		c.JSON(http.StatusOK, body)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := h.ping(ctx); err != nil {
		body["status"] = "degraded"
		body["database"] = "unreachable"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["database"] = "ok"
	c.JSON(http.StatusOK, body)
}
