package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/fulfillment"
	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/credential"
	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides the admin response helpers
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with the given status
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// HandleError converts application errors to admin responses. Unknown
// errors are logged and answered with a generic 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, message := classify(err)
	if code == dto.ErrCodeInternal {
		logger.GetGinLogger(c).Error("Request failed", zap.Error(err))
		message = "An unexpected error occurred"
	}
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// classify maps an error to an API error code and a client-safe message
func classify(err error) (string, string) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return dto.NormalizeErrorCode(domainErr.Code), domainErr.Message
	}

	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, credential.ErrNotFound),
		errors.Is(err, webhook.ErrSubscriptionNotFound),
		errors.Is(err, webhook.ErrDeliveryNotFound):
		return dto.ErrCodeNotFound, err.Error()

	case errors.Is(err, fulfillment.ErrNotForwardable),
		errors.Is(err, fulfillment.ErrNotOnHold),
		errors.Is(err, order.ErrInvalidTransition):
		return dto.ErrCodeInvalidState, err.Error()

	case errors.Is(err, mapper.ErrInvalidPayload),
		errors.Is(err, webhook.ErrMissingField),
		errors.Is(err, webhook.ErrUnknownTopic),
		errors.Is(err, webhook.ErrInvalidURL),
		errors.Is(err, credential.ErrInvalidOwner),
		errors.Is(err, credential.ErrInvalidPermission),
		errors.Is(err, credential.ErrNoPermissions):
		return dto.ErrCodeValidation, err.Error()

	case errors.Is(err, integration.ErrPartnerNotConfigured):
		return dto.ErrCodePartnerNotConfigured, err.Error()

	case errors.Is(err, integration.ErrPartnerUnavailable),
		errors.Is(err, integration.ErrPartnerRequestFailed),
		errors.Is(err, integration.ErrPartnerRateLimited),
		errors.Is(err, integration.ErrPartnerAuthFailed),
		errors.Is(err, integration.ErrPartnerInvalidResponse):
		return dto.ErrCodePartnerUnavailable, err.Error()

	case errors.Is(err, storage.ErrNotConfigured):
		return dto.ErrCodeStorageNotConfigured, err.Error()

	case errors.Is(err, storage.ErrObjectExists):
		return dto.ErrCodeConflict, err.Error()
	}
	return dto.ErrCodeInternal, err.Error()
}

// woo sends a WooCommerce error envelope
func woo(c *gin.Context, e dto.WooError) {
	c.JSON(e.Data.Status, e)
}

// simpleError sends the bare {error} body
func simpleError(c *gin.Context, status int, message string) {
	c.JSON(status, dto.SimpleError{Error: message})
}
