package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/webhook"
)

// WebhookSubscriptionModel is the persistence model for webhook subscriptions.
type WebhookSubscriptionModel struct {
	ID          uuid.UUID                  `gorm:"type:uuid;primaryKey"`
	Name        string                     `gorm:"type:varchar(255);not null"`
	Topic       webhook.Topic              `gorm:"type:varchar(64);not null;index:idx_webhook_subscriptions_topic_status,priority:1"`
	DeliveryURL string                     `gorm:"type:varchar(1024);not null"`
	Secret      string                     `gorm:"type:varchar(128);not null"`
	Status      webhook.SubscriptionStatus `gorm:"type:varchar(16);not null;default:'active';index:idx_webhook_subscriptions_topic_status,priority:2"`
	CreatedAt   time.Time                  `gorm:"not null"`
	UpdatedAt   time.Time                  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookSubscriptionModel) TableName() string {
	return "webhook_subscriptions"
}

// ToDomain converts the model to a domain subscription
func (m *WebhookSubscriptionModel) ToDomain() *webhook.Subscription {
	return &webhook.Subscription{
		ID:          m.ID,
		Name:        m.Name,
		Topic:       m.Topic,
		DeliveryURL: m.DeliveryURL,
		Secret:      m.Secret,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain subscription
func (m *WebhookSubscriptionModel) FromDomain(s *webhook.Subscription) {
	m.ID = s.ID
	m.Name = s.Name
	m.Topic = s.Topic
	m.DeliveryURL = s.DeliveryURL
	m.Secret = s.Secret
	m.Status = s.Status
	m.CreatedAt = s.CreatedAt
	m.UpdatedAt = s.UpdatedAt
}

// WebhookDeliveryModel is a queued push for one subscription
type WebhookDeliveryModel struct {
	ID             uuid.UUID              `gorm:"type:uuid;primaryKey"`
	SubscriptionID uuid.UUID              `gorm:"type:uuid;not null;index"`
	Topic          webhook.Topic          `gorm:"type:varchar(64);not null"`
	TargetURL      string                 `gorm:"type:varchar(1024);not null"`
	Payload        string                 `gorm:"type:text;not null"`
	Status         webhook.DeliveryStatus `gorm:"type:varchar(16);not null;index:idx_webhook_deliveries_due,priority:1"`
	Attempts       int                    `gorm:"not null;default:0"`
	MaxAttempts    int                    `gorm:"not null"`
	NextAttemptAt  time.Time              `gorm:"not null;index:idx_webhook_deliveries_due,priority:2"`
	LastStatusCode int                    `gorm:"not null;default:0"`
	LastError      string                 `gorm:"type:text"`
	CreatedAt      time.Time              `gorm:"not null"`
	UpdatedAt      time.Time              `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookDeliveryModel) TableName() string {
	return "webhook_deliveries"
}

// ToDomain converts the model to a domain delivery
func (m *WebhookDeliveryModel) ToDomain() *webhook.Delivery {
	return &webhook.Delivery{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		Topic:          m.Topic,
		TargetURL:      m.TargetURL,
		Payload:        []byte(m.Payload),
		Status:         m.Status,
		Attempts:       m.Attempts,
		MaxAttempts:    m.MaxAttempts,
		NextAttemptAt:  m.NextAttemptAt,
		LastStatusCode: m.LastStatusCode,
		LastError:      m.LastError,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain delivery
func (m *WebhookDeliveryModel) FromDomain(d *webhook.Delivery) {
	m.ID = d.ID
	m.SubscriptionID = d.SubscriptionID
	m.Topic = d.Topic
	m.TargetURL = d.TargetURL
	m.Payload = string(d.Payload)
	m.Status = d.Status
	m.Attempts = d.Attempts
	m.MaxAttempts = d.MaxAttempts
	m.NextAttemptAt = d.NextAttemptAt
	m.LastStatusCode = d.LastStatusCode
	m.LastError = d.LastError
	m.CreatedAt = d.CreatedAt
	m.UpdatedAt = d.UpdatedAt
}

// WebhookDeliveryAttemptModel is the per-attempt delivery log
type WebhookDeliveryAttemptModel struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey"`
	DeliveryID uuid.UUID     `gorm:"type:uuid;not null;index"`
	Topic      webhook.Topic `gorm:"type:varchar(64);not null"`
	TargetURL  string        `gorm:"type:varchar(1024);not null"`
	Attempt    int           `gorm:"not null"`
	StatusCode int           `gorm:"not null;default:0"`
	Error      string        `gorm:"type:text"`
	StartedAt  time.Time     `gorm:"not null"`
	FinishedAt time.Time     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookDeliveryAttemptModel) TableName() string {
	return "webhook_delivery_attempts"
}

// ToDomain converts the model to a domain attempt
func (m *WebhookDeliveryAttemptModel) ToDomain() webhook.DeliveryAttempt {
	return webhook.DeliveryAttempt{
		ID:         m.ID,
		DeliveryID: m.DeliveryID,
		Topic:      m.Topic,
		TargetURL:  m.TargetURL,
		Attempt:    m.Attempt,
		StatusCode: m.StatusCode,
		Error:      m.Error,
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}

// FromDomain populates the model from a domain attempt
func (m *WebhookDeliveryAttemptModel) FromDomain(a *webhook.DeliveryAttempt) {
	m.ID = a.ID
	m.DeliveryID = a.DeliveryID
	m.Topic = a.Topic
	m.TargetURL = a.TargetURL
	m.Attempt = a.Attempt
	m.StatusCode = a.StatusCode
	m.Error = a.Error
	m.StartedAt = a.StartedAt
	m.FinishedAt = a.FinishedAt
}

// All returns every model in migration order
func All() []any {
	return []any{
		&CredentialModel{},
		&ProductModel{},
		&OrderModel{},
		&OrderItemModel{},
		&WebhookSubscriptionModel{},
		&WebhookDeliveryModel{},
		&WebhookDeliveryAttemptModel{},
	}
}
