package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/fulfillment"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// FulfillmentRunner runs one engine scan
type FulfillmentRunner interface {
	Run(ctx context.Context) (fulfillment.Summary, error)
}

// CronHandler serves the scheduler trigger
type CronHandler struct {
	runner FulfillmentRunner
	now    func() time.Time
}

// NewCronHandler creates a CronHandler
func NewCronHandler(runner FulfillmentRunner) *CronHandler {
	return &CronHandler{runner: runner, now: time.Now}
}

// RunFulfillment handles POST /api/cron/fulfillment
func (h *CronHandler) RunFulfillment(c *gin.Context) {
	summary, err := h.runner.Run(c.Request.Context())
	if err != nil {
		logger.GetGinLogger(c).Error("Scheduled fulfillment run failed", zap.Error(err))
		simpleError(c, http.StatusInternalServerError, "fulfillment run failed")
		return
	}

	ts := summary.FinishedAt
	if ts.IsZero() {
		ts = h.now()
	}
	c.JSON(http.StatusOK, dto.CronRunResponse{
		Success:   true,
		Scanned:   summary.Scanned,
		Forwarded: summary.Forwarded,
		Failed:    summary.Failed,
		Skipped:   summary.Skipped,
		Timestamp: ts.UTC(),
	})
}
