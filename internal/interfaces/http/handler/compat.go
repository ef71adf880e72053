package handler

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/fulfillment"
	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/application/podauth"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// CredentialExchanger validates a pair for the token exchange
type CredentialExchanger interface {
	Exchange(ctx context.Context, key, secret string) (podauth.Verdict, error)
}

// WebhookRegistry manages webhook subscriptions
type WebhookRegistry interface {
	Register(ctx context.Context, name string, topic webhook.Topic, deliveryURL string) (*webhook.Subscription, error)
	List(ctx context.Context) ([]webhook.Subscription, error)
	Disable(ctx context.Context, id uuid.UUID) (*webhook.Subscription, error)
}

// TrackingApplier applies partner tracking pushes to orders
type TrackingApplier interface {
	ApplyTrackingUpdate(ctx context.Context, id string, update mapper.TrackingUpdate) (*order.Order, error)
}

// FulfillmentState exposes the engine settings and last run
type FulfillmentState interface {
	Config() fulfillment.Config
	LastRun() *fulfillment.Summary
}

// StoreInfo describes the store in system_status
type StoreInfo struct {
	Name        string
	Environment string
	Version     string
	BaseURL     string
	Currency    string
	Provider    string
	Enabled     bool
	// Interval is the scheduler period of the fulfillment engine
	Interval time.Duration
}

// CompatHandler serves the WooCommerce-compatible partner routes
type CompatHandler struct {
	credentials CredentialExchanger
	products    catalog.Repository
	orders      order.Repository
	webhooks    WebhookRegistry
	tracking    TrackingApplier
	engine      FulfillmentState
	store       StoreInfo
}

// NewCompatHandler creates a CompatHandler
func NewCompatHandler(
	credentials CredentialExchanger,
	products catalog.Repository,
	orders order.Repository,
	webhooks WebhookRegistry,
	tracking TrackingApplier,
	engine FulfillmentState,
	store StoreInfo,
) *CompatHandler {
	return &CompatHandler{
		credentials: credentials,
		products:    products,
		orders:      orders,
		webhooks:    webhooks,
		tracking:    tracking,
		engine:      engine,
		store:       store,
	}
}

// ExchangeToken handles POST /auth/token
func (h *CompatHandler) ExchangeToken(c *gin.Context) {
	var req dto.TokenRequest
	if err := c.ShouldBind(&req); err != nil {
		woo(c, dto.WooInvalidParam("Invalid request body."))
		return
	}

	v, err := h.credentials.Exchange(c.Request.Context(), req.ConsumerKey, req.ConsumerSecret)
	switch {
	case errors.Is(err, podauth.ErrMissingCredentials):
		woo(c, dto.WooInvalidParam("consumer_key and consumer_secret are required."))
		return
	case err != nil:
		woo(c, dto.WooUnauthorized())
		return
	}

	c.JSON(http.StatusOK, dto.TokenResponse{
		ConsumerKey:    strings.TrimSpace(req.ConsumerKey),
		ConsumerSecret: strings.TrimSpace(req.ConsumerSecret),
		Permissions:    v.PermissionList(),
	})
}

// ListProducts handles GET /products
func (h *CompatHandler) ListProducts(c *gin.Context) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		woo(c, dto.WooInvalidParam("Invalid parameter(s): page, per_page, search."))
		return
	}
	q.Normalize()

	products, total, err := h.products.List(c.Request.Context(), catalog.ListFilter{
		Search:   q.Search,
		Page:     q.Page,
		PageSize: q.PerPage,
	})
	if err != nil {
		h.internal(c, "list products", err)
		return
	}

	dto.SetPaginationHeaders(c.Writer.Header(), total, q.PerPage)
	c.JSON(http.StatusOK, mapper.ProductsToExternal(products))
}

// GetProduct handles GET /products/:id
func (h *CompatHandler) GetProduct(c *gin.Context) {
	p, err := h.products.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			woo(c, dto.WooNotFound())
			return
		}
		h.internal(c, "get product", err)
		return
	}
	c.JSON(http.StatusOK, mapper.ProductToExternal(*p))
}

// ListWebhooks handles GET /webhooks
func (h *CompatHandler) ListWebhooks(c *gin.Context) {
	subs, err := h.webhooks.List(c.Request.Context())
	if err != nil {
		h.internal(c, "list webhooks", err)
		return
	}
	c.JSON(http.StatusOK, mapper.SubscriptionsToExternal(subs))
}

// CreateWebhook handles POST /webhooks. Validation failures use the bare
// {error} body.
func (h *CompatHandler) CreateWebhook(c *gin.Context) {
	var req dto.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		simpleError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sub, err := h.webhooks.Register(c.Request.Context(), req.Name, webhook.Topic(strings.TrimSpace(req.Topic)), req.URL())
	if err != nil {
		if isWebhookValidation(err) {
			simpleError(c, http.StatusBadRequest, err.Error())
			return
		}
		h.internal(c, "register webhook", err)
		return
	}
	c.JSON(http.StatusCreated, mapper.SubscriptionToExternal(*sub))
}

// DeleteWebhook handles DELETE /webhooks/:id by disabling the subscription
func (h *CompatHandler) DeleteWebhook(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		woo(c, dto.WooNotFound())
		return
	}
	sub, err := h.webhooks.Disable(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, webhook.ErrSubscriptionNotFound) {
			woo(c, dto.WooNotFound())
			return
		}
		h.internal(c, "disable webhook", err)
		return
	}
	c.JSON(http.StatusOK, mapper.SubscriptionToExternal(*sub))
}

// ListOrders handles GET /orders
func (h *CompatHandler) ListOrders(c *gin.Context) {
	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		woo(c, dto.WooInvalidParam("Invalid parameter(s): page, per_page, status."))
		return
	}
	q.Normalize()

	filter := order.ListFilter{Page: q.Page, PageSize: q.PerPage}
	if q.Status != "" && q.Status != "any" {
		status, ok := parseStatusFilter(q.Status)
		if !ok {
			woo(c, dto.WooInvalidParam("Invalid parameter(s): status."))
			return
		}
		filter.Status = status
	}

	orders, total, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		h.internal(c, "list orders", err)
		return
	}

	dto.SetPaginationHeaders(c.Writer.Header(), total, q.PerPage)
	c.JSON(http.StatusOK, mapper.OrdersToExternal(orders))
}

// GetOrder handles GET /orders/:id
func (h *CompatHandler) GetOrder(c *gin.Context) {
	o, err := h.orders.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			woo(c, dto.WooNotFound())
			return
		}
		h.internal(c, "get order", err)
		return
	}
	c.JSON(http.StatusOK, mapper.OrderToExternal(*o))
}

// UpdateOrder handles PUT /orders/:id, the partner tracking push
func (h *CompatHandler) UpdateOrder(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		woo(c, dto.WooInvalidParam("Invalid request body."))
		return
	}
	ir, err := mapper.ParseTrackingUpdate(body)
	if err != nil {
		woo(c, dto.WooInvalidParam(err.Error()))
		return
	}

	o, err := h.tracking.ApplyTrackingUpdate(c.Request.Context(), c.Param("id"), mapper.TrackingFromIR(ir))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, mapper.OrderToExternal(*o))
	case errors.Is(err, order.ErrOrderNotFound):
		woo(c, dto.WooNotFound())
	case errors.Is(err, order.ErrInvalidTransition), errors.Is(err, mapper.ErrInvalidPayload):
		woo(c, dto.WooInvalidParam(err.Error()))
	case errors.Is(err, fulfillment.ErrConflict):
		woo(c, dto.NewWooError(dto.WooCodeInvalidParam, "Order was modified concurrently, retry the request.", http.StatusConflict))
	default:
		h.internal(c, "apply tracking update", err)
	}
}

// SystemStatus handles GET /system_status. It always answers 200 and
// reports the auth verdict in the body.
func (h *CompatHandler) SystemStatus(c *gin.Context) {
	v := middleware.GetPODVerdict(c)
	cfg := h.engine.Config()

	var lastRun any
	if run := h.engine.LastRun(); run != nil {
		lastRun = run
	}

	c.JSON(http.StatusOK, gin.H{
		"environment": gin.H{
			"home_url":    h.store.BaseURL,
			"site_url":    h.store.BaseURL,
			"version":     h.store.Version,
			"environment": h.store.Environment,
			"go_version":  runtime.Version(),
			"server_time": time.Now().UTC().Format(mapper.DateLayout),
		},
		"settings": gin.H{
			"api_enabled": true,
			"currency":    h.store.Currency,
			"store_name":  h.store.Name,
		},
		"authentication": gin.H{
			"authenticated": v.Valid,
			"permissions":   v.PermissionList(),
		},
		"pod_integration": gin.H{
			"provider":     h.store.Provider,
			"enabled":      h.store.Enabled,
			"max_attempts": cfg.MaxAttempts,
			"interval":     h.store.Interval.String(),
			"last_run":     lastRun,
		},
	})
}

// internal logs err and answers with the WooCommerce internal error envelope
func (h *CompatHandler) internal(c *gin.Context, op string, err error) {
	logger.GetGinLogger(c).Error("Compat request failed", zap.String("operation", op), zap.Error(err))
	woo(c, dto.NewWooError(dto.WooCodeInternal, "Internal server error.", http.StatusInternalServerError))
}

func isWebhookValidation(err error) bool {
	return errors.Is(err, webhook.ErrMissingField) ||
		errors.Is(err, webhook.ErrUnknownTopic) ||
		errors.Is(err, webhook.ErrInvalidURL)
}

// parseStatusFilter accepts internal status names and the WooCommerce
// names that map to exactly one internal status.
func parseStatusFilter(s string) (order.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed":
		return order.StatusShipped, true
	case "on-hold":
		return order.StatusOnHold, true
	case "failed":
		return order.StatusPaymentFailed, true
	}
	return order.ParseStatus(strings.ReplaceAll(s, "-", "_"))
}
