// Package webhook holds partner event subscriptions and the delivery log
// recording every push attempt.
package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/order"
)

// Topic names an event partners can subscribe to
type Topic string

const (
	TopicOrderCreated Topic = "order.created"
	TopicOrderUpdated Topic = "order.updated"
	TopicProductSync  Topic = "product.updated"
)

// OrderStatusTopic returns the topic fired when an order enters s,
// e.g. "order.shipped".
func OrderStatusTopic(s order.Status) Topic {
	return Topic("order." + strings.ToLower(string(s)))
}

// IsValid reports whether partners may subscribe to t
func (t Topic) IsValid() bool {
	switch t {
	case TopicOrderCreated, TopicOrderUpdated, TopicProductSync:
		return true
	}
	for _, s := range order.AllStatuses {
		if t == OrderStatusTopic(s) {
			return true
		}
	}
	return false
}

// SubscriptionStatus is active or disabled
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionDisabled SubscriptionStatus = "disabled"
)

var (
	ErrMissingField         = errors.New("webhook: missing required field")
	ErrUnknownTopic         = errors.New("webhook: unknown topic")
	ErrInvalidURL           = errors.New("webhook: delivery URL must be an absolute http(s) URL")
	ErrSubscriptionNotFound = errors.New("webhook: subscription not found")
	ErrDeliveryNotFound     = errors.New("webhook: delivery not found")
	ErrDeliveryLost         = errors.New("webhook: delivery was completed by another worker")
)

// Subscription is a partner-configured event subscription
type Subscription struct {
	ID          uuid.UUID
	Name        string
	Topic       Topic
	DeliveryURL string
	// Secret signs delivered payloads
	Secret    string
	Status    SubscriptionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscription validates input and creates an active subscription
func NewSubscription(name string, topic Topic, deliveryURL string) (*Subscription, error) {
	name = strings.TrimSpace(name)
	deliveryURL = strings.TrimSpace(deliveryURL)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	case topic == "":
		return nil, fmt.Errorf("%w: topic", ErrMissingField)
	case deliveryURL == "":
		return nil, fmt.Errorf("%w: delivery_url", ErrMissingField)
	}
	if !topic.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	u, err := url.Parse(deliveryURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}

	secret := make([]byte, 24)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("webhook: generate secret: %w", err)
	}

	now := time.Now()
	return &Subscription{
		ID:          uuid.New(),
		Name:        name,
		Topic:       topic,
		DeliveryURL: deliveryURL,
		Secret:      hex.EncodeToString(secret),
		Status:      SubscriptionActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsActive reports whether deliveries should be created for this subscription
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionActive
}

// Disable stops future deliveries
func (s *Subscription) Disable() {
	s.Status = SubscriptionDisabled
	s.UpdatedAt = time.Now()
}

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	Create(ctx context.Context, s *Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
	FindActiveByTopic(ctx context.Context, topic Topic) ([]Subscription, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status SubscriptionStatus) error
}
