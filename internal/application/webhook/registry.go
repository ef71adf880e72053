// Package webhook manages partner webhook subscriptions and turns order
// events into queued deliveries.
package webhook

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/storefront/backend/internal/domain/webhook"
)

// defaultDeliveryListLimit caps delivery listings when no limit is given
const defaultDeliveryListLimit = 50

// Registry handles subscription registration and lookup
type Registry struct {
	subs       domain.SubscriptionRepository
	deliveries domain.DeliveryRepository
	logger     *zap.Logger
}

// NewRegistry creates a new webhook registry
func NewRegistry(subs domain.SubscriptionRepository, deliveries domain.DeliveryRepository, logger *zap.Logger) *Registry {
	return &Registry{subs: subs, deliveries: deliveries, logger: logger}
}

// Register validates and stores a subscription
func (r *Registry) Register(ctx context.Context, name string, topic domain.Topic, deliveryURL string) (*domain.Subscription, error) {
	sub, err := domain.NewSubscription(name, topic, deliveryURL)
	if err != nil {
		return nil, err
	}
	if err := r.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	r.logger.Info("Webhook registered",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("topic", string(sub.Topic)),
		zap.String("delivery_url", sub.DeliveryURL),
	)
	return sub, nil
}

// List returns all subscriptions
func (r *Registry) List(ctx context.Context) ([]domain.Subscription, error) {
	return r.subs.List(ctx)
}

// Get returns one subscription
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.subs.FindByID(ctx, id)
}

// Disable stops deliveries to a subscription and returns its new state.
// Disabling twice is not an error.
func (r *Registry) Disable(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	sub, err := r.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return sub, nil
	}
	if err := r.subs.UpdateStatus(ctx, id, domain.SubscriptionDisabled); err != nil {
		return nil, err
	}
	sub.Disable()
	r.logger.Info("Webhook disabled", zap.String("subscription_id", id.String()))
	return sub, nil
}

// Deliveries lists recent deliveries for a subscription
func (r *Registry) Deliveries(ctx context.Context, id uuid.UUID, limit int) ([]domain.Delivery, error) {
	if _, err := r.subs.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultDeliveryListLimit
	}
	return r.deliveries.ListBySubscription(ctx, id, limit)
}

// Attempts lists the attempt log of a delivery
func (r *Registry) Attempts(ctx context.Context, deliveryID uuid.UUID) ([]domain.DeliveryAttempt, error) {
	return r.deliveries.ListAttempts(ctx, deliveryID)
}
