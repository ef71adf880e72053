package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// Create inserts an order together with its items
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	var model models.OrderModel
	model.FromDomain(o)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&model).Error
	})
}

// FindByID finds an order by ID with its items
func (r *GormOrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	var model models.OrderModel
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of orders and the total match count
func (r *GormOrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, int64, error) {
	filter.Normalize()

	query := r.db.WithContext(ctx).Model(&models.OrderModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column := ResolveSortColumn(filter.OrderBy, OrderSortFields, "created_at")
	dir := ValidateSortOrder(filter.Order, "DESC")

	var rows []models.OrderModel
	if err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: dir == "DESC"}).
		Order("id ASC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return toDomainOrders(rows), total, nil
}

// FindForwardable returns orders eligible for forwarding, oldest first
func (r *GormOrderRepository) FindForwardable(ctx context.Context, limit int) ([]order.Order, error) {
	var rows []models.OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("(status = ? AND partner_order_id IS NULL) OR status = ?",
			order.StatusPaid, order.StatusFulfillmentError).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// FindStuckProcessing returns claimed orders that never got a partner order
func (r *GormOrderRepository) FindStuckProcessing(ctx context.Context, claimedBefore time.Time, limit int) ([]order.Order, error) {
	var rows []models.OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("status = ? AND partner_order_id IS NULL AND claimed_at IS NOT NULL AND claimed_at < ?",
			order.StatusProcessing, claimedBefore).
		Order("claimed_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// FindAwaitingShipment returns PROCESSING orders with a partner order
func (r *GormOrderRepository) FindAwaitingShipment(ctx context.Context, limit int) ([]order.Order, error) {
	var rows []models.OrderModel
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Where("status = ? AND partner_order_id IS NOT NULL", order.StatusProcessing).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// Apply runs the transition as a single UPDATE ... WHERE id = ? AND status = ?
// plus the optional guards. Exactly one affected row means it won.
func (r *GormOrderRepository) Apply(ctx context.Context, t order.Transition) (bool, error) {
	return applyTransition(r.db.WithContext(ctx), t)
}

// ApplyAll runs the transitions in order inside one transaction. If any of
// them matches no row, the whole chain is rolled back and false is returned.
func (r *GormOrderRepository) ApplyAll(ctx context.Context, steps ...order.Transition) (bool, error) {
	for _, t := range steps {
		if err := t.Validate(); err != nil {
			return false, err
		}
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range steps {
			ok, err := applyTransition(tx, t)
			if err != nil {
				return err
			}
			if !ok {
				return errTransitionLost
			}
		}
		return nil
	})
	if errors.Is(err, errTransitionLost) {
		return false, nil
	}
	return err == nil, err
}

var errTransitionLost = errors.New("persistence: transition matched no row")

func applyTransition(db *gorm.DB, t order.Transition) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}

	updates := map[string]any{
		"status":     t.To,
		"updated_at": at,
	}
	switch {
	case t.ResetAttempts:
		updates["fulfillment_attempts"] = 0
	case t.IncrementAttempts:
		updates["fulfillment_attempts"] = gorm.Expr("fulfillment_attempts + 1")
	}
	if t.ClaimToken != "" {
		updates["claim_token"] = t.ClaimToken
		updates["claimed_at"] = at
	}
	if t.PartnerOrderID != "" {
		updates["partner_order_id"] = t.PartnerOrderID
		updates["partner_provider"] = t.PartnerProvider
	} else if t.ClearPartner {
		updates["partner_order_id"] = nil
		updates["partner_provider"] = nil
	}
	if t.FailureReason != nil {
		updates["last_fulfillment_error"] = *t.FailureReason
	}
	if t.Tracking != nil {
		updates["tracking_number"] = t.Tracking.Number
		updates["tracking_carrier"] = t.Tracking.Carrier
		updates["tracking_url"] = t.Tracking.URL
	}

	query := db.
		Model(&models.OrderModel{}).
		Where("id = ? AND status = ?", t.ID, t.From)
	if t.ExpectAttempts != nil {
		query = query.Where("fulfillment_attempts = ?", *t.ExpectAttempts)
	}
	if t.RequireNoPartner {
		query = query.Where("partner_order_id IS NULL")
	}
	if t.ExpectClaimToken != "" {
		query = query.Where("claim_token = ?", t.ExpectClaimToken)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func toDomainOrders(rows []models.OrderModel) []order.Order {
	out := make([]order.Order, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out
}

var _ order.Repository = (*GormOrderRepository)(nil)
