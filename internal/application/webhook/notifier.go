package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/shared"
	domain "github.com/storefront/backend/internal/domain/webhook"
)

// NotifierConfig holds notification settings
type NotifierConfig struct {
	MaxAttempts int           // per delivery, independent of fulfillment attempts
	DedupeTTL   time.Duration // how long an (order, status) emit is remembered
}

// Notifier queues one delivery per active subscription of a topic
type Notifier struct {
	subs       domain.SubscriptionRepository
	deliveries domain.DeliveryRepository
	dedupe     shared.IdempotencyStore
	config     NotifierConfig
	logger     *zap.Logger
}

// NewNotifier creates a notifier. dedupe may be nil to disable suppression.
func NewNotifier(
	subs domain.SubscriptionRepository,
	deliveries domain.DeliveryRepository,
	dedupe shared.IdempotencyStore,
	config NotifierConfig,
	logger *zap.Logger,
) *Notifier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = 24 * time.Hour
	}
	return &Notifier{
		subs:       subs,
		deliveries: deliveries,
		dedupe:     dedupe,
		config:     config,
		logger:     logger.Named("webhook_notifier"),
	}
}

// Emit enqueues payload for every active subscription to topic and returns
// how many deliveries were queued.
func (n *Notifier) Emit(ctx context.Context, topic domain.Topic, payload any) (int, error) {
	subs, err := n.subs.FindActiveByTopic(ctx, topic)
	if err != nil {
		return 0, fmt.Errorf("find subscriptions for %s: %w", topic, err)
	}
	if len(subs) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("encode %s payload: %w", topic, err)
	}

	batch := make([]*domain.Delivery, 0, len(subs))
	for i := range subs {
		batch = append(batch, domain.NewDelivery(&subs[i], body, n.config.MaxAttempts))
	}
	if err := n.deliveries.Enqueue(ctx, batch); err != nil {
		return 0, fmt.Errorf("enqueue %s deliveries: %w", topic, err)
	}
	return len(batch), nil
}

// NotifyOrderStatus emits order.<status> and order.updated for o. It runs
// after the status write has committed and never fails the caller: errors
// are logged. Each topic is remembered only once its deliveries are queued,
// keyed by the stored write (status, attempt count, update time), so a
// replay of the same write is suppressed while a later write is not.
func (n *Notifier) NotifyOrderStatus(ctx context.Context, o order.Order) {
	log := n.logger.With(zap.String("order_id", o.ID), zap.String("status", string(o.Status)))

	payload := mapper.OrderToExternal(o)
	for _, topic := range []domain.Topic{domain.OrderStatusTopic(o.Status), domain.TopicOrderUpdated} {
		key := orderEventKey(o, topic)
		if n.seen(ctx, log, key) {
			log.Debug("duplicate order event suppressed", zap.String("topic", string(topic)))
			continue
		}
		queued, err := n.Emit(ctx, topic, payload)
		if err != nil {
			log.Error("failed to queue webhook", zap.String("topic", string(topic)), zap.Error(err))
			continue
		}
		n.remember(ctx, log, key)
		if queued > 0 {
			log.Info("webhook queued", zap.String("topic", string(topic)), zap.Int("deliveries", queued))
		}
	}
}

func orderEventKey(o order.Order, topic domain.Topic) string {
	return fmt.Sprintf("order:%s:%s:%d:%d:%s", o.ID, o.Status, o.FulfillmentAttempts, o.UpdatedAt.UnixNano(), topic)
}

func (n *Notifier) seen(ctx context.Context, log *zap.Logger, key string) bool {
	if n.dedupe == nil {
		return false
	}
	done, err := n.dedupe.IsProcessed(ctx, key)
	if err != nil {
		log.Warn("webhook dedupe check failed, emitting anyway", zap.Error(err))
		return false
	}
	return done
}

func (n *Notifier) remember(ctx context.Context, log *zap.Logger, key string) {
	if n.dedupe == nil {
		return
	}
	if _, err := n.dedupe.MarkProcessed(ctx, key, n.config.DedupeTTL); err != nil {
		log.Warn("webhook dedupe mark failed", zap.Error(err))
	}
}
