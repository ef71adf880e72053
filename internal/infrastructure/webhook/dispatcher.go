// Package webhook delivers queued webhook events to partner endpoints.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

// Header names sent with every delivery, matching what WooCommerce emits
const (
	HeaderSignature  = "X-WC-Webhook-Signature"
	HeaderTopic      = "X-WC-Webhook-Topic"
	HeaderWebhookID  = "X-WC-Webhook-ID"
	HeaderDeliveryID = "X-WC-Webhook-Delivery-ID"
	HeaderResource   = "X-WC-Webhook-Resource"
	HeaderEvent      = "X-WC-Webhook-Event"

	userAgent = "PODGateway-Hookshot/1.0"
)

// maxErrorBody bounds how much of a failed response is kept in the log
const maxErrorBody = 512

// DeliveryObserver receives one call per delivery attempt
type DeliveryObserver interface {
	ObserveWebhookDelivery(topic, outcome string, elapsed time.Duration)
}

// DispatchSummary reports one dispatcher pass
type DispatchSummary struct {
	Requeued  int64
	Claimed   int
	Delivered int
	Retrying  int
	Failed    int
}

// Sign returns base64(HMAC-SHA256(secret, body))
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Dispatcher claims due deliveries and POSTs them to subscribers
type Dispatcher struct {
	deliveries    domain.DeliveryRepository
	subscriptions domain.SubscriptionRepository
	client        *http.Client
	cfg           config.WebhookConfig
	observer      DeliveryObserver
	logger        *zap.Logger
	now           func() time.Time
}

// DispatcherOption configures a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithHTTPClient replaces the delivery HTTP client
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithObserver installs a delivery observer
func WithObserver(o DeliveryObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher
func NewDispatcher(
	deliveries domain.DeliveryRepository,
	subscriptions domain.SubscriptionRepository,
	cfg config.WebhookConfig,
	logger *zap.Logger,
	opts ...DispatcherOption,
) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 2 * time.Minute
	}
	d := &Dispatcher{
		deliveries:    deliveries,
		subscriptions: subscriptions,
		client:        &http.Client{Timeout: cfg.RequestTimeout},
		cfg:           cfg,
		logger:        logger.Named("webhook_dispatcher"),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnce re-queues stale claims, then claims and delivers one batch.
// Individual delivery failures are recorded on the delivery; only
// repository failures are returned.
func (d *Dispatcher) RunOnce(ctx context.Context) (DispatchSummary, error) {
	var summary DispatchSummary
	now := d.now()

	requeued, err := d.deliveries.RequeueStale(ctx, now.Add(-d.cfg.Lease))
	if err != nil {
		return summary, fmt.Errorf("requeue stale deliveries: %w", err)
	}
	if requeued > 0 {
		d.logger.Warn("re-queued stale webhook deliveries", zap.Int64("count", requeued))
	}
	summary.Requeued = requeued

	batch, err := d.deliveries.ClaimDue(ctx, now, d.cfg.BatchSize)
	if err != nil {
		return summary, fmt.Errorf("claim due deliveries: %w", err)
	}
	summary.Claimed = len(batch)

	subs := make(map[uuid.UUID]*domain.Subscription)
	for i := range batch {
		if ctx.Err() != nil {
			// unprocessed claims are re-queued after the lease
			break
		}
		del := &batch[i]
		sub, err := d.subscription(ctx, subs, del.SubscriptionID)
		if err != nil {
			return summary, err
		}
		switch d.deliver(ctx, del, sub) {
		case domain.DeliveryDelivered:
			summary.Delivered++
		case domain.DeliveryPending:
			summary.Retrying++
		default:
			summary.Failed++
		}
	}
	return summary, nil
}

func (d *Dispatcher) subscription(ctx context.Context, cache map[uuid.UUID]*domain.Subscription, id uuid.UUID) (*domain.Subscription, error) {
	if s, ok := cache[id]; ok {
		return s, nil
	}
	s, err := d.subscriptions.FindByID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("load subscription %s: %w", id, err)
	}
	cache[id] = s
	return s, nil
}

// deliver performs one attempt and persists its outcome, returning the
// delivery's new status.
func (d *Dispatcher) deliver(ctx context.Context, del *domain.Delivery, sub *domain.Subscription) domain.DeliveryStatus {
	ctx, span := telemetry.StartSpan(ctx, "webhook", "deliver",
		telemetry.AttrDeliveryID, del.ID.String(),
		telemetry.AttrTopic, string(del.Topic),
	)
	defer span.End()

	started := d.now()
	attempt := &domain.DeliveryAttempt{
		ID:         uuid.New(),
		DeliveryID: del.ID,
		Topic:      del.Topic,
		TargetURL:  del.TargetURL,
		Attempt:    del.Attempts + 1,
		StartedAt:  started,
	}

	switch {
	case sub == nil:
		attempt.Error = "subscription deleted"
	case !sub.IsActive():
		attempt.Error = "subscription disabled"
	default:
		attempt.StatusCode, attempt.Error = d.post(ctx, del, sub)
	}
	attempt.FinishedAt = d.now()

	del.Attempts = attempt.Attempt
	del.LastStatusCode = attempt.StatusCode
	del.LastError = attempt.Error
	del.UpdatedAt = attempt.FinishedAt

	outcome := "delivered"
	switch {
	case attempt.Succeeded():
		del.Status = domain.DeliveryDelivered
	case sub == nil || !sub.IsActive() || del.Exhausted():
		del.Status = domain.DeliveryFailed
		outcome = "failed"
	default:
		del.Status = domain.DeliveryPending
		del.NextAttemptAt = attempt.FinishedAt.Add(domain.Backoff(d.cfg.RetryBase, del.Attempts))
		outcome = "retry"
	}

	telemetry.SetAttributes(span, telemetry.AttrOutcome, outcome, "http.status_code", attempt.StatusCode)

	fields := []zap.Field{
		zap.String("delivery_id", del.ID.String()),
		zap.String("topic", string(del.Topic)),
		zap.String("target", del.TargetURL),
		zap.Int("attempt", del.Attempts),
		zap.Int("status_code", attempt.StatusCode),
		zap.String("outcome", outcome),
	}
	if attempt.Error != "" {
		fields = append(fields, zap.String("error", attempt.Error))
	}
	if outcome == "delivered" {
		d.logger.Info("webhook delivered", fields...)
	} else {
		d.logger.Warn("webhook delivery failed", fields...)
	}
	if d.observer != nil {
		d.observer.ObserveWebhookDelivery(string(del.Topic), outcome, attempt.FinishedAt.Sub(started))
	}

	// persist even if ctx was cancelled mid-request
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.deliveries.Complete(saveCtx, del, attempt); err != nil {
		if errors.Is(err, domain.ErrDeliveryLost) {
			d.logger.Warn("webhook attempt superseded by another worker", fields...)
		} else {
			d.logger.Error("failed to record webhook attempt", append(fields, zap.Error(err))...)
		}
	}
	return del.Status
}

// post sends the payload; it returns the HTTP status and an error string
// for anything that is not a 2xx.
func (d *Dispatcher) post(ctx context.Context, del *domain.Delivery, sub *domain.Subscription) (int, string) {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, del.TargetURL, bytes.NewReader(del.Payload))
	if err != nil {
		return 0, err.Error()
	}
	resource, event := splitTopic(del.Topic)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(HeaderSignature, Sign(sub.Secret, del.Payload))
	req.Header.Set(HeaderTopic, string(del.Topic))
	req.Header.Set(HeaderResource, resource)
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderWebhookID, sub.ID.String())
	req.Header.Set(HeaderDeliveryID, del.ID.String())

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err.Error()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, ""
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if len(body) > 0 {
		msg += ": " + string(body)
	}
	return resp.StatusCode, msg
}

func splitTopic(t domain.Topic) (string, string) {
	resource, event, _ := strings.Cut(string(t), ".")
	return resource, event
}
