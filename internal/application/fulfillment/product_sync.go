package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/telemetry"
)

const (
	syncPageSize = 50
	syncMaxPages = 200
)

// EventEmitter queues webhook deliveries for a topic
type EventEmitter interface {
	Emit(ctx context.Context, topic webhook.Topic, payload any) (int, error)
}

// SyncResult reports one catalog sync
type SyncResult struct {
	Provider  string    `json:"provider"`
	Fetched   int       `json:"fetched"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Invalid   int       `json:"invalid"`
	Pages     int       `json:"pages"`
	Truncated bool      `json:"truncated"`
	SyncedAt  time.Time `json:"synced_at"`
}

// ProductSync imports a partner catalog into the local product store
type ProductSync struct {
	products catalog.Repository
	partners integration.PartnerRegistry
	events   EventEmitter
	logger   *zap.Logger
	now      func() time.Time
}

// NewProductSync creates a catalog importer. events may be nil.
func NewProductSync(products catalog.Repository, partners integration.PartnerRegistry, events EventEmitter, logger *zap.Logger) *ProductSync {
	return &ProductSync{
		products: products,
		partners: partners,
		events:   events,
		logger:   logger.Named("product_sync"),
		now:      time.Now,
	}
}

// Sync imports the active partner's catalog
func (s *ProductSync) Sync(ctx context.Context) (*SyncResult, error) {
	partner, err := s.partners.Active()
	if err != nil {
		return nil, err
	}
	return s.SyncPartner(ctx, partner)
}

// SyncPartner imports one partner's catalog. Entries that fail validation
// are counted and skipped. A local product keeps its id, creation time and
// retail price; everything else follows the partner.
func (s *ProductSync) SyncPartner(ctx context.Context, partner integration.PODPartner) (*SyncResult, error) {
	provider := partner.Provider()
	ctx, span := telemetry.StartSpan(ctx, "product_sync", "sync", telemetry.AttrProvider, string(provider))
	defer span.End()

	result := &SyncResult{Provider: string(provider)}
	log := s.logger.With(zap.String("provider", string(provider)))

	for page := 1; ; page++ {
		if page > syncMaxPages {
			result.Truncated = true
			log.Warn("Catalog sync stopped at page limit", zap.Int("pages", syncMaxPages))
			break
		}
		batch, err := partner.ListProducts(ctx, page, syncPageSize)
		if err != nil {
			telemetry.RecordError(span, err)
			return result, fmt.Errorf("list products page %d: %w", page, err)
		}
		result.Pages++

		for _, pp := range batch.Products {
			result.Fetched++
			if err := s.importProduct(ctx, provider, pp, result); err != nil {
				return result, err
			}
		}
		if !batch.HasMore || len(batch.Products) == 0 {
			break
		}
	}

	result.SyncedAt = s.now()
	log.Info("Catalog sync completed",
		zap.Int("fetched", result.Fetched),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("invalid", result.Invalid),
	)
	return result, nil
}

func (s *ProductSync) importProduct(ctx context.Context, provider integration.ProviderCode, pp integration.PartnerProduct, result *SyncResult) error {
	ir := mapper.PartnerProductIRFrom(provider, pp)
	if err := ir.Validate(); err != nil {
		result.Invalid++
		s.logger.Debug("Skipping invalid partner product",
			zap.String("partner_product_id", pp.PartnerProductID),
			zap.Error(err),
		)
		return nil
	}
	p := mapper.ProductFromPartner(ir)

	existing, err := s.products.FindByPODProduct(ctx, ir.Provider, ir.ProductID)
	switch {
	case err == nil:
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
		if existing.Price.IsPositive() {
			p.Price = existing.Price
		}
		for k, v := range existing.Metadata {
			if _, ok := p.Metadata[k]; !ok {
				p.Metadata[k] = v
			}
		}
		result.Updated++
	case errors.Is(err, catalog.ErrProductNotFound):
		p.CreatedAt = s.now()
		result.Created++
	default:
		return fmt.Errorf("look up %s: %w", ir.ProductID, err)
	}
	p.UpdatedAt = s.now()

	if err := s.products.Upsert(ctx, &p); err != nil {
		return fmt.Errorf("upsert %s: %w", p.ID, err)
	}

	if s.events != nil {
		if _, err := s.events.Emit(ctx, webhook.TopicProductSync, mapper.ProductToExternal(p)); err != nil {
			s.logger.Warn("Queueing product webhook failed", zap.String("product_id", p.ID), zap.Error(err))
		}
	}
	return nil
}
