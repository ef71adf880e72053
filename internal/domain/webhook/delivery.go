package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the state of a queued push
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryDelivering DeliveryStatus = "delivering"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
)

const maxBackoff = time.Hour

// Delivery is one event queued for one subscription
type Delivery struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	Topic          Topic
	TargetURL      string
	Payload        json.RawMessage
	Status         DeliveryStatus
	Attempts       int
	MaxAttempts    int
	NextAttemptAt  time.Time
	LastStatusCode int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewDelivery queues payload for sub, due immediately
func NewDelivery(sub *Subscription, payload json.RawMessage, maxAttempts int) *Delivery {
	now := time.Now()
	return &Delivery{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		Topic:          sub.Topic,
		TargetURL:      sub.DeliveryURL,
		Payload:        payload,
		Status:         DeliveryPending,
		MaxAttempts:    maxAttempts,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Exhausted reports whether the attempt that just ran was the last allowed one
func (d *Delivery) Exhausted() bool {
	return d.MaxAttempts > 0 && d.Attempts >= d.MaxAttempts
}

// Backoff returns the delay before retry number attempt (1-based):
// base * 2^(attempt-1), capped at one hour.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	if d <= 0 || d > maxBackoff {
		return maxBackoff
	}
	return d
}

// DeliveryAttempt is the log row written for every HTTP try
type DeliveryAttempt struct {
	ID         uuid.UUID
	DeliveryID uuid.UUID
	Topic      Topic
	TargetURL  string
	Attempt    int
	StatusCode int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports a 2xx response with no transport error
func (a *DeliveryAttempt) Succeeded() bool {
	return a.Error == "" && a.StatusCode >= 200 && a.StatusCode < 300
}

// DeliveryRepository persists deliveries and their attempt log
type DeliveryRepository interface {
	Enqueue(ctx context.Context, deliveries []*Delivery) error
	// ClaimDue moves up to limit due pending deliveries to delivering and
	// returns them. A delivery is returned to exactly one caller.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]Delivery, error)
	// RequeueStale returns deliveries stuck in delivering since before cutoff to pending.
	RequeueStale(ctx context.Context, cutoff time.Time) (int64, error)
	// Complete records the attempt and the resulting delivery state in one
	// transaction. It returns ErrDeliveryLost when another worker already
	// recorded an outcome for the same claim.
	Complete(ctx context.Context, d *Delivery, attempt *DeliveryAttempt) error
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]Delivery, error)
	ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]DeliveryAttempt, error)
}
