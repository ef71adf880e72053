// Package fulfillment forwards paid orders to the configured POD partner
// and drives them through the order state machine.
//
// Key concepts:
//   - Claim: the conditional PAID/FULFILLMENT_ERROR -> PROCESSING update
//     that makes forwarding safe under overlapping runs
//   - Reconciliation: re-resolving claimed orders whose forward never
//     recorded an outcome
//   - Tracking: partner shipment state applied by polling or push
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

var (
	ErrNotForwardable = errors.New("fulfillment: order is not in a forwardable status")
	ErrNotOnHold      = errors.New("fulfillment: order is not on hold")
	ErrConflict       = shared.ErrConcurrencyConflict
)

// persistTimeout bounds state writes that must land even after the run's
// context is cancelled
const persistTimeout = 5 * time.Second

// Outcome is the result of forwarding one order
type Outcome string

const (
	OutcomeForwarded        Outcome = "forwarded"
	OutcomeFailed           Outcome = "failed"
	OutcomeOnHold           Outcome = "on_hold"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeAlreadyForwarded Outcome = "already_forwarded"
	OutcomeAbandoned        Outcome = "abandoned"
)

// Config holds engine settings
type Config struct {
	BatchSize      int
	Concurrency    int
	MaxAttempts    int
	PartnerTimeout time.Duration
	ReconcileGrace time.Duration
	TrackingPoll   bool
}

// ConfigFrom converts application configuration
func ConfigFrom(cfg config.FulfillmentConfig) Config {
	return Config{
		BatchSize:      cfg.BatchSize,
		Concurrency:    cfg.Concurrency,
		MaxAttempts:    cfg.MaxAttempts,
		PartnerTimeout: cfg.PartnerTimeout,
		ReconcileGrace: cfg.ReconcileGrace,
		TrackingPoll:   cfg.TrackingPollEnabled,
	}
}

// StatusNotifier is told about every committed status change
type StatusNotifier interface {
	NotifyOrderStatus(ctx context.Context, o order.Order)
}

// RunObserver records finished runs, typically as metrics
type RunObserver interface {
	ObserveFulfillmentRun(err error, forwarded, failed, skipped, reconciled int, finishedAt time.Time)
}

// Summary reports one engine run
type Summary struct {
	Scanned    int       `json:"scanned"`
	Forwarded  int       `json:"forwarded"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Reconciled int       `json:"reconciled"`
	Shipped    int       `json:"shipped"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Engine is the fulfillment pipeline
type Engine struct {
	orders   order.Repository
	products catalog.Repository
	partners integration.PartnerRegistry
	notifier StatusNotifier
	observer RunObserver
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	lastRun *Summary
}

// Option configures an Engine
type Option func(*Engine)

// WithObserver installs a run observer
func WithObserver(o RunObserver) Option {
	return func(e *Engine) { e.observer = o }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a fulfillment engine. notifier may be nil.
func NewEngine(
	orders order.Repository,
	products catalog.Repository,
	partners integration.PartnerRegistry,
	notifier StatusNotifier,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PartnerTimeout <= 0 {
		cfg.PartnerTimeout = 20 * time.Second
	}
	e := &Engine{
		orders:   orders,
		products: products,
		partners: partners,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("fulfillment"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// LastRun returns the summary of the most recent successful run, or nil
func (e *Engine) LastRun() *Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lastRun == nil {
		return nil
	}
	s := *e.lastRun
	return &s
}

// Run performs one scan: reconcile stuck claims, forward every selected
// order and poll tracking. It returns an error only when the run as a
// whole cannot proceed; per-order failures are recorded on the orders.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	summary := Summary{StartedAt: e.now()}
	err := e.run(ctx, &summary)
	summary.FinishedAt = e.now()

	if e.observer != nil {
		e.observer.ObserveFulfillmentRun(err, summary.Forwarded, summary.Failed, summary.Skipped, summary.Reconciled, summary.FinishedAt)
	}
	if err != nil {
		e.logger.Error("Fulfillment run failed", zap.Error(err))
		return Summary{StartedAt: summary.StartedAt, FinishedAt: summary.FinishedAt}, err
	}

	e.mu.Lock()
	e.lastRun = &summary
	e.mu.Unlock()

	e.logger.Info("Fulfillment run completed",
		zap.Int("scanned", summary.Scanned),
		zap.Int("forwarded", summary.Forwarded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("reconciled", summary.Reconciled),
		zap.Int("shipped", summary.Shipped),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
	)
	return summary, nil
}

func (e *Engine) run(ctx context.Context, summary *Summary) error {
	partner, err := e.partners.Active()
	if err != nil {
		return fmt.Errorf("resolve partner: %w", err)
	}

	if e.cfg.ReconcileGrace > 0 {
		n, err := e.reconcile(ctx, partner)
		if err != nil {
			return fmt.Errorf("reconcile: %w", err)
		}
		summary.Reconciled = n
	}

	candidates, err := e.orders.FindForwardable(ctx, e.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("select forwardable orders: %w", err)
	}
	summary.Scanned = len(candidates)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for _, o := range candidates {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := e.forward(ctx, partner, o)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case OutcomeForwarded:
				summary.Forwarded++
			case OutcomeFailed, OutcomeOnHold:
				summary.Failed++
			default:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if e.cfg.TrackingPoll && ctx.Err() == nil {
		summary.Shipped = e.pollTracking(ctx)
	}
	return ctx.Err()
}

// ForwardOrder forwards a single order now. An order that already carries
// a partner order id outside FULFILLMENT_ERROR is left alone.
func (e *Engine) ForwardOrder(ctx context.Context, id string) (Outcome, error) {
	o, err := e.orders.FindByID(ctx, id)
	if err != nil {
		return "", err
	}
	if o.AlreadyForwarded() {
		return OutcomeAlreadyForwarded, nil
	}
	if !o.Status.IsForwardable() {
		return "", fmt.Errorf("%w: %s", ErrNotForwardable, o.Status)
	}
	partner, err := e.partners.Active()
	if err != nil {
		return "", err
	}
	return e.forward(ctx, partner, *o), nil
}

// forward claims o, submits it and records the outcome
func (e *Engine) forward(ctx context.Context, partner integration.PODPartner, o order.Order) Outcome {
	ctx, span := telemetry.StartSpan(ctx, "fulfillment", "forward",
		telemetry.AttrOrderID, o.ID,
		telemetry.AttrOrderStatus, string(o.Status),
		telemetry.AttrProvider, string(partner.Provider()),
	)
	defer span.End()

	outcome := e.forwardOrder(ctx, partner, o)
	telemetry.SetAttributes(span, telemetry.AttrOutcome, string(outcome))
	return outcome
}

func (e *Engine) forwardOrder(ctx context.Context, partner integration.PODPartner, o order.Order) Outcome {
	log := e.logger.With(zap.String("order_id", o.ID), zap.String("from_status", string(o.Status)))

	if o.AlreadyForwarded() {
		return OutcomeAlreadyForwarded
	}

	token := uuid.NewString()
	attempts := o.FulfillmentAttempts
	claimed, err := e.orders.Apply(ctx, order.Transition{
		ID:             o.ID,
		From:           o.Status,
		To:             order.StatusProcessing,
		At:             e.now(),
		ExpectAttempts: &attempts,
		ClaimToken:     token,
		ClearPartner:   o.HasPartnerOrder(),
	})
	if err != nil {
		log.Error("Claim failed", zap.Error(err))
		return OutcomeSkipped
	}
	if !claimed {
		log.Debug("Order claimed by another run")
		return OutcomeSkipped
	}
	o.Status = order.StatusProcessing
	o.PartnerOrderID, o.PartnerProvider = "", ""

	req, err := e.buildRequest(ctx, partner.Provider(), o)
	if err != nil {
		return e.recordFailure(ctx, log, o, token, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.PartnerTimeout)
	res, err := partner.SubmitOrder(callCtx, req)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// left in PROCESSING; reconciliation resolves it after the grace period
			log.Warn("Forward abandoned by cancellation", zap.Error(err))
			return OutcomeAbandoned
		}
		return e.recordFailure(ctx, log, o, token, err.Error())
	}

	persistCtx, cancelPersist := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancelPersist()
	cleared := ""
	recordedAt := e.now()
	ok, err := e.orders.Apply(persistCtx, order.Transition{
		ID:                o.ID,
		From:              order.StatusProcessing,
		To:                order.StatusProcessing,
		At:                recordedAt,
		ExpectClaimToken:  token,
		RequireNoPartner:  true,
		IncrementAttempts: true,
		PartnerOrderID:    res.PartnerOrderID,
		PartnerProvider:   string(partner.Provider()),
		FailureReason:     &cleared,
	})
	if err != nil || !ok {
		log.Error("Partner accepted order but recording it failed",
			zap.String("partner_order_id", res.PartnerOrderID),
			zap.Bool("applied", ok),
			zap.Error(err),
		)
		return OutcomeAbandoned
	}

	o.FulfillmentAttempts++
	o.UpdatedAt = recordedAt
	o.PartnerOrderID = res.PartnerOrderID
	o.PartnerProvider = string(partner.Provider())
	o.LastFulfillmentError = ""
	log.Info("Order forwarded",
		zap.String("provider", o.PartnerProvider),
		zap.String("partner_order_id", o.PartnerOrderID),
		zap.Int("attempts", o.FulfillmentAttempts),
	)
	e.notify(persistCtx, o)
	return OutcomeForwarded
}

// recordFailure moves a claimed order to FULFILLMENT_ERROR, or ON_HOLD once
// the attempt cap is reached
func (e *Engine) recordFailure(ctx context.Context, log *zap.Logger, o order.Order, token, reason string) Outcome {
	next := o.FailureStatus(e.cfg.MaxAttempts)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	failedAt := e.now()
	ok, err := e.orders.Apply(persistCtx, order.Transition{
		ID:                o.ID,
		From:              order.StatusProcessing,
		To:                next,
		At:                failedAt,
		ExpectClaimToken:  token,
		RequireNoPartner:  true,
		IncrementAttempts: true,
		FailureReason:     &reason,
	})
	if err != nil || !ok {
		log.Error("Recording forward failure failed", zap.String("reason", reason), zap.Bool("applied", ok), zap.Error(err))
		return OutcomeAbandoned
	}

	o.Status = next
	o.FulfillmentAttempts++
	o.UpdatedAt = failedAt
	o.LastFulfillmentError = reason
	log.Warn("Order forward failed",
		zap.String("status", string(next)),
		zap.Int("attempts", o.FulfillmentAttempts),
		zap.String("reason", reason),
	)
	e.notify(persistCtx, o)
	if next == order.StatusOnHold {
		return OutcomeOnHold
	}
	return OutcomeFailed
}

// buildRequest resolves each line to the partner's SKU space
func (e *Engine) buildRequest(ctx context.Context, provider integration.ProviderCode, o order.Order) (*integration.FulfillmentRequest, error) {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := e.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	req := &integration.FulfillmentRequest{
		LocalOrderID: o.ID,
		Currency:     o.Currency,
		Total:        o.Total,
		Lines:        make([]integration.FulfillmentLine, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s not found", it.ProductID)
		}
		sku, ok := p.PartnerSKU()
		if !ok {
			return nil, fmt.Errorf("product %s has no %s", it.ProductID, catalog.MetaPODProductID)
		}
		if owner := p.Meta(catalog.MetaPODProvider); owner != "" && owner != string(provider) {
			return nil, fmt.Errorf("product %s belongs to provider %s, not %s", it.ProductID, owner, provider)
		}
		req.Lines = append(req.Lines, integration.FulfillmentLine{
			ProductID: it.ProductID,
			SKU:       sku,
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
	}
	return req, nil
}

func (e *Engine) notify(ctx context.Context, o order.Order) {
	if e.notifier != nil {
		e.notifier.NotifyOrderStatus(ctx, o)
	}
}
