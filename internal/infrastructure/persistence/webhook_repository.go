package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormWebhookSubscriptionRepository implements webhook.SubscriptionRepository
type GormWebhookSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormWebhookSubscriptionRepository creates a new GormWebhookSubscriptionRepository
func NewGormWebhookSubscriptionRepository(db *gorm.DB) *GormWebhookSubscriptionRepository {
	return &GormWebhookSubscriptionRepository{db: db}
}

// Create inserts a subscription
func (r *GormWebhookSubscriptionRepository) Create(ctx context.Context, s *webhook.Subscription) error {
	var model models.WebhookSubscriptionModel
	model.FromDomain(s)
	return r.db.WithContext(ctx).Create(&model).Error
}

// FindByID finds a subscription by ID
func (r *GormWebhookSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*webhook.Subscription, error) {
	var model models.WebhookSubscriptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns every subscription, oldest first
func (r *GormWebhookSubscriptionRepository) List(ctx context.Context) ([]webhook.Subscription, error) {
	var rows []models.WebhookSubscriptionModel
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainSubscriptions(rows), nil
}

// FindActiveByTopic returns active subscriptions for a topic
func (r *GormWebhookSubscriptionRepository) FindActiveByTopic(ctx context.Context, topic webhook.Topic) ([]webhook.Subscription, error) {
	var rows []models.WebhookSubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("topic = ? AND status = ?", topic, webhook.SubscriptionActive).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainSubscriptions(rows), nil
}

// UpdateStatus changes the subscription status
func (r *GormWebhookSubscriptionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status webhook.SubscriptionStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookSubscriptionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return webhook.ErrSubscriptionNotFound
	}
	return nil
}

func toDomainSubscriptions(rows []models.WebhookSubscriptionModel) []webhook.Subscription {
	out := make([]webhook.Subscription, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

// GormWebhookDeliveryRepository implements webhook.DeliveryRepository
type GormWebhookDeliveryRepository struct {
	db *gorm.DB
}

// NewGormWebhookDeliveryRepository creates a new GormWebhookDeliveryRepository
func NewGormWebhookDeliveryRepository(db *gorm.DB) *GormWebhookDeliveryRepository {
	return &GormWebhookDeliveryRepository{db: db}
}

// Enqueue inserts deliveries in one batch
func (r *GormWebhookDeliveryRepository) Enqueue(ctx context.Context, deliveries []*webhook.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	rows := make([]models.WebhookDeliveryModel, len(deliveries))
	for i, d := range deliveries {
		rows[i].FromDomain(d)
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

// ClaimDue selects due pending rows and claims each with a conditional
// UPDATE, so two workers never get the same delivery.
func (r *GormWebhookDeliveryRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]webhook.Delivery, error) {
	var candidates []models.WebhookDeliveryModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", webhook.DeliveryPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	claimed := make([]webhook.Delivery, 0, len(candidates))
	for i := range candidates {
		result := r.db.WithContext(ctx).
			Model(&models.WebhookDeliveryModel{}).
			Where("id = ? AND status = ?", candidates[i].ID, webhook.DeliveryPending).
			Updates(map[string]any{"status": webhook.DeliveryDelivering, "updated_at": now})
		if result.Error != nil {
			return claimed, result.Error
		}
		if result.RowsAffected != 1 {
			continue
		}
		d := candidates[i].ToDomain()
		d.Status = webhook.DeliveryDelivering
		d.UpdatedAt = now
		claimed = append(claimed, *d)
	}
	return claimed, nil
}

// RequeueStale releases deliveries whose worker died mid-flight
func (r *GormWebhookDeliveryRepository) RequeueStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookDeliveryModel{}).
		Where("status = ? AND updated_at < ?", webhook.DeliveryDelivering, cutoff).
		Updates(map[string]any{"status": webhook.DeliveryPending, "updated_at": time.Now()})
	return result.RowsAffected, result.Error
}

// Complete stores the attempt log row and the delivery's new state together.
// d.Attempts already counts this attempt, so the row must still hold the
// count it was claimed with: a delivery that was requeued and finished by
// another worker in the meantime is reported as webhook.ErrDeliveryLost.
func (r *GormWebhookDeliveryRepository) Complete(ctx context.Context, d *webhook.Delivery, attempt *webhook.DeliveryAttempt) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.WebhookDeliveryModel{}).
			Where("id = ? AND status IN ? AND attempts = ?", d.ID,
				[]webhook.DeliveryStatus{webhook.DeliveryDelivering, webhook.DeliveryPending}, d.Attempts-1).
			Updates(map[string]any{
				"status":           d.Status,
				"attempts":         d.Attempts,
				"next_attempt_at":  d.NextAttemptAt,
				"last_status_code": d.LastStatusCode,
				"last_error":       d.LastError,
				"updated_at":       d.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.WebhookDeliveryModel{}).Where("id = ?", d.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return webhook.ErrDeliveryNotFound
			}
			return webhook.ErrDeliveryLost
		}
		if attempt != nil {
			var log models.WebhookDeliveryAttemptModel
			log.FromDomain(attempt)
			if err := tx.Create(&log).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ListBySubscription returns the newest deliveries for a subscription
func (r *GormWebhookDeliveryRepository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]webhook.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.WebhookDeliveryModel
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]webhook.Delivery, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// ListAttempts returns the attempt log for a delivery in order
func (r *GormWebhookDeliveryRepository) ListAttempts(ctx context.Context, deliveryID uuid.UUID) ([]webhook.DeliveryAttempt, error) {
	var rows []models.WebhookDeliveryAttemptModel
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("attempt ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]webhook.DeliveryAttempt, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var (
	_ webhook.SubscriptionRepository = (*GormWebhookSubscriptionRepository)(nil)
	_ webhook.DeliveryRepository     = (*GormWebhookDeliveryRepository)(nil)
)
