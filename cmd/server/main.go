package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/storefront/backend/internal/application/fulfillment"
	"github.com/storefront/backend/internal/application/podauth"
	webhookapp "github.com/storefront/backend/internal/application/webhook"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/metrics"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/pod"
	"github.com/storefront/backend/internal/infrastructure/scheduler"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
	"github.com/storefront/backend/internal/infrastructure/webhook"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/storefront/backend/internal/interfaces/http/router"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// The ring buffer sees every entry the main logger writes, so the
	// admin debug route shows the same lines as stdout.
	level := logger.ParseLevel(cfg.Log.Level)
	ring := logger.NewRingBuffer(cfg.DebugLog.Capacity)
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}
	log, err := logger.New(logCfg, logger.NewRingCore(ring, level))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	providers, err := telemetry.Setup(ctx, cfg.Telemetry, log)
	if err != nil {
		log.Fatal("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		if err := providers.Shutdown(context.Background()); err != nil {
			log.Error("Telemetry shutdown failed", zap.Error(err))
		}
	}()
	if core := providers.LogCore(level); core != nil {
		log = log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, core)
		}))
	}
	zap.ReplaceGlobals(log)

	log.Info("Starting POD interoperability service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("provider", cfg.POD.Provider),
		zap.String("version", version),
	)

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	if err := telemetry.InstrumentDB(db.DB, cfg.Telemetry, providers.Meter("storefront/db"), log); err != nil {
		log.Warn("Database instrumentation disabled", zap.Error(err))
	}
	log.Info("Database connected successfully")

	// Repositories
	productRepo := persistence.NewGormProductRepository(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	subscriptionRepo := persistence.NewGormWebhookSubscriptionRepository(db.DB)
	deliveryRepo := persistence.NewGormWebhookDeliveryRepository(db.DB)

	recorder := metrics.NewRecorder()

	// Webhooks
	dedupe := cache.NewIdempotencyStore(ctx, cfg.Redis, log)
	if closer, ok := dedupe.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	webhooks := webhookapp.NewRegistry(subscriptionRepo, deliveryRepo, log)
	notifier := webhookapp.NewNotifier(subscriptionRepo, deliveryRepo, dedupe, webhookapp.NotifierConfig{
		MaxAttempts: cfg.Webhook.MaxAttempts,
		DedupeTTL:   cfg.Webhook.DedupeTTL,
	}, log)
	dispatcher := webhook.NewDispatcher(deliveryRepo, subscriptionRepo, cfg.Webhook, log,
		webhook.WithObserver(recorder),
	)

	// Partners and fulfillment
	partners := pod.NewRegistryFromConfig(cfg.POD, log, pod.WithObserver(recorder.ObservePartnerRequest))
	engine := fulfillment.NewEngine(orderRepo, productRepo, partners, notifier, fulfillment.Config{
		BatchSize:      cfg.Fulfillment.BatchSize,
		Concurrency:    cfg.Fulfillment.Concurrency,
		MaxAttempts:    cfg.Fulfillment.MaxAttempts,
		PartnerTimeout: cfg.Fulfillment.PartnerTimeout,
		ReconcileGrace: cfg.Fulfillment.ReconcileGrace,
		TrackingPoll:   cfg.Fulfillment.TrackingPollEnabled,
	}, log, fulfillment.WithObserver(recorder))
	productSync := fulfillment.NewProductSync(productRepo, partners, notifier, log)

	// Background triggers
	var triggers []*scheduler.PeriodicTrigger
	if cfg.Fulfillment.Enabled {
		t, err := scheduler.NewPeriodicTrigger(scheduler.TriggerConfig{
			Name:     "fulfillment",
			Interval: cfg.Fulfillment.Interval,
		}, func(ctx context.Context) error {
			_, err := engine.Run(ctx)
			return err
		}, log)
		if err != nil {
			log.Fatal("Failed to create fulfillment trigger", zap.Error(err))
		}
		triggers = append(triggers, t)
	}
	if cfg.Webhook.WorkerEnabled {
		t, err := scheduler.NewPeriodicTrigger(scheduler.TriggerConfig{
			Name:       "webhook_dispatch",
			Interval:   cfg.Webhook.PollInterval,
			RunOnStart: true,
		}, func(ctx context.Context) error {
			_, err := dispatcher.RunOnce(ctx)
			return err
		}, log)
		if err != nil {
			log.Fatal("Failed to create webhook trigger", zap.Error(err))
		}
		triggers = append(triggers, t)
	}
	for _, t := range triggers {
		if err := t.Start(ctx); err != nil {
			log.Fatal("Failed to start trigger", zap.Error(err))
		}
	}

	// Credentials and admin auth
	gateway := podauth.NewGateway(credentialRepo, log)
	jwtService := auth.NewJWTService(cfg.JWT)

	var archive storage.Sink
	if cfg.Storage.Enabled {
		sink, err := storage.NewS3Sink(ctx, &cfg.Storage, log)
		if err != nil {
			log.Fatal("Failed to initialize object storage", zap.Error(err))
		}
		archive = sink
	}

	handlers := router.Handlers{
		Health: handler.NewHealthHandler(db.Ping, version),
		Compat: handler.NewCompatHandler(gateway, productRepo, orderRepo, webhooks, engine, engine, handler.StoreInfo{
			Name:        cfg.App.Name,
			Environment: cfg.App.Env,
			Version:     version,
			BaseURL:     cfg.App.BaseURL,
			Currency:    cfg.App.Currency,
			Provider:    string(partners.ActiveCode()),
			Enabled:     cfg.Fulfillment.Enabled,
			Interval:    cfg.Fulfillment.Interval,
		}),
		Cron: handler.NewCronHandler(engine),
	}
	if cfg.Admin.Username != "" && cfg.Admin.PasswordHash != "" {
		handlers.Admin = handler.NewAdminHandler(handler.AdminDeps{
			Admin: handler.AdminCredentials{
				Username:     cfg.Admin.Username,
				PasswordHash: cfg.Admin.PasswordHash,
			},
			Tokens:        jwtService,
			Credentials:   gateway,
			Webhooks:      webhooks,
			Orders:        engine,
			Sync:          productSync,
			Logs:          ring,
			Archive:       archive,
			ArchivePrefix: cfg.Storage.Prefix,
		})
	} else {
		log.Warn("Admin account not configured, admin routes disabled")
	}

	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		go limiter.Run(ctx)
	}

	ginEngine, err := router.New(log, handlers, router.Security{
		Partner:    gateway,
		AdminToken: jwtService,
		CronSecret: cfg.Cron.Secret,
	}, router.Options{
		ServiceName: cfg.Telemetry.ServiceName,
		Tracing:     providers.Enabled(),
		Meter:       providers.Meter("storefront/http"),
		Metrics:     recorder.Handler(),
		CORS: middleware.CORSConfig{
			AllowOrigins: cfg.HTTP.CORSAllowOrigins,
			AllowMethods: cfg.HTTP.CORSAllowMethods,
			AllowHeaders: cfg.HTTP.CORSAllowHeaders,
		},
		MaxBodySize:    cfg.HTTP.MaxBodySize,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Limiter:        limiter,
	})
	if err != nil {
		log.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        ginEngine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case err := <-serverErr:
		log.Error("Server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	for _, t := range triggers {
		if err := t.Stop(shutdownCtx); err != nil {
			log.Warn("Trigger did not stop cleanly", zap.Error(err))
		}
	}
	gateway.Wait()

	log.Info("Server exited gracefully")
}
