package router

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// CompatPrefix is the WooCommerce REST namespace partners call. The same
// routes are also served at the root.
const CompatPrefix = "/wp-json/wc/v3"

// Handlers groups the HTTP handlers served by the API. Admin may be nil
// when no operator account is configured.
type Handlers struct {
	Health *handler.HealthHandler
	Compat *handler.CompatHandler
	Cron   *handler.CronHandler
	Admin  *handler.AdminHandler
}

// Security carries the authenticators of each route family
type Security struct {
	Partner    middleware.CredentialVerifier
	AdminToken middleware.TokenValidator
	CronSecret string
}

// Options configure the global middleware chain
type Options struct {
	ServiceName    string
	Tracing        bool
	Meter          metric.Meter
	Metrics        http.Handler
	CORS           middleware.CORSConfig
	MaxBodySize    int64
	TrustedProxies []string
	// Limiter throttles partner and login routes; nil disables it
	Limiter *middleware.RateLimiter
}

// New builds the gin engine with every route registered
func New(log *zap.Logger, h Handlers, sec Security, opts Options) (*gin.Engine, error) {
	engine := gin.New()
	if err := engine.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(opts.ServiceName, opts.Tracing),
		middleware.TraceAttributes(),
		logger.GinMiddleware(log),
		middleware.HTTPMetrics(opts.Meter),
		middleware.CORS(opts.CORS),
		middleware.Secure(),
		middleware.BodyLimit(opts.MaxBodySize),
	)

	engine.GET("/health", h.Health.Health)
	if opts.Metrics != nil {
		engine.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	var throttle []gin.HandlerFunc
	if opts.Limiter != nil {
		throttle = append(throttle, middleware.RateLimit(opts.Limiter))
	}

	NewRouter(engine, WithMounts(CompatPrefix, "/")).
		Register(compatRoutes(h.Compat, sec.Partner, throttle)).
		Setup()

	api := NewRouter(engine, WithMounts("/api")).
		Register(cronRoutes(h.Cron, sec.CronSecret))
	if h.Admin != nil {
		api.Register(adminRoutes(h.Admin, sec.AdminToken, log, throttle))
	}
	api.Setup()

	return engine, nil
}

func compatRoutes(h *handler.CompatHandler, verifier middleware.CredentialVerifier, throttle []gin.HandlerFunc) *DomainGroup {
	compat := NewDomainGroup("compat", "").Use(throttle...)
	compat.POST("/auth/token", h.ExchangeToken)

	partner := compat.Group("partner", "").Use(middleware.PODAuth(verifier))
	partner.GET("/products", h.ListProducts)
	partner.GET("/products/:id", h.GetProduct)
	partner.GET("/webhooks", h.ListWebhooks)
	partner.POST("/webhooks", h.CreateWebhook)
	partner.DELETE("/webhooks/:id", h.DeleteWebhook)
	partner.GET("/orders", h.ListOrders)
	partner.GET("/orders/:id", h.GetOrder)
	partner.PUT("/orders/:id", h.UpdateOrder)

	compat.Group("status", "").
		Use(middleware.OptionalPODAuth(verifier)).
		GET("/system_status", h.SystemStatus)

	return compat
}

// cronRoutes accepts GET as well since hosted schedulers only issue GETs
func cronRoutes(h *handler.CronHandler, secret string) *DomainGroup {
	return NewDomainGroup("cron", "/cron").
		Use(middleware.CronSecret(secret)).
		GET("/fulfillment", h.RunFulfillment).
		POST("/fulfillment", h.RunFulfillment)
}

func adminRoutes(h *handler.AdminHandler, tokens middleware.TokenValidator, log *zap.Logger, throttle []gin.HandlerFunc) *DomainGroup {
	admin := NewDomainGroup("admin", "/admin")
	admin.POST("/login", slices.Concat(throttle, []gin.HandlerFunc{h.Login})...)

	secured := admin.Group("secured", "").Use(middleware.JWTAuth(tokens, log))
	secured.GET("/credentials", h.ListCredentials)
	secured.POST("/credentials", h.IssueCredential)
	secured.DELETE("/credentials/:id", h.RevokeCredential)

	secured.GET("/webhooks", h.ListWebhooks)
	secured.DELETE("/webhooks/:id", h.DisableWebhook)
	secured.GET("/webhooks/:id/deliveries", h.ListDeliveries)

	secured.POST("/orders/:id/forward", h.ForwardOrder)
	secured.POST("/orders/:id/resume", h.ResumeOrder)
	secured.POST("/products/sync", h.SyncProducts)

	secured.GET("/debug/logs", h.DebugLogs)
	secured.POST("/debug/logs/archive", h.ArchiveDebugLogs)

	return admin
}
