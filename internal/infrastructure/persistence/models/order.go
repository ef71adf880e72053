package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/order"
)

// OrderModel is the persistence model for storefront orders.
type OrderModel struct {
	ID                   string           `gorm:"type:varchar(64);primaryKey"`
	Status               order.Status     `gorm:"type:varchar(32);not null;index:idx_orders_status_created,priority:1"`
	Total                decimal.Decimal  `gorm:"type:decimal(12,2);not null;default:0"`
	Currency             string           `gorm:"type:varchar(3);not null;default:'USD'"`
	FulfillmentAttempts  int              `gorm:"not null;default:0"`
	PartnerOrderID       *string          `gorm:"type:varchar(100);index"`
	PartnerProvider      *string          `gorm:"type:varchar(32)"`
	LastFulfillmentError string           `gorm:"type:text"`
	TrackingNumber       string           `gorm:"type:varchar(100)"`
	TrackingCarrier      string           `gorm:"type:varchar(64)"`
	TrackingURL          string           `gorm:"type:varchar(512)"`
	ClaimToken           string           `gorm:"type:varchar(64)"`
	ClaimedAt            *time.Time       `gorm:"index"`
	CreatedAt            time.Time        `gorm:"not null;index:idx_orders_status_created,priority:2"`
	UpdatedAt            time.Time        `gorm:"not null"`
	Items                []OrderItemModel `gorm:"foreignKey:OrderID;references:ID"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel is one persisted order line
type OrderItemModel struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	OrderID   string          `gorm:"type:varchar(64);not null;index"`
	ProductID string          `gorm:"type:varchar(320);not null"`
	Quantity  int             `gorm:"not null"`
	Price     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the model to a domain order
func (m *OrderModel) ToDomain() *order.Order {
	o := &order.Order{
		ID:                   m.ID,
		Status:               m.Status,
		Total:                m.Total,
		Currency:             m.Currency,
		FulfillmentAttempts:  m.FulfillmentAttempts,
		LastFulfillmentError: m.LastFulfillmentError,
		Tracking: order.Tracking{
			Number:  m.TrackingNumber,
			Carrier: m.TrackingCarrier,
			URL:     m.TrackingURL,
		},
		ClaimToken: m.ClaimToken,
		ClaimedAt:  m.ClaimedAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
		Items:      make([]order.Item, len(m.Items)),
	}
	if m.PartnerOrderID != nil {
		o.PartnerOrderID = *m.PartnerOrderID
	}
	if m.PartnerProvider != nil {
		o.PartnerProvider = *m.PartnerProvider
	}
	for i, it := range m.Items {
		o.Items[i] = order.Item{ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
	}
	return o
}

// FromDomain populates the model and its items from a domain order
func (m *OrderModel) FromDomain(o *order.Order) {
	m.ID = o.ID
	m.Status = o.Status
	m.Total = o.Total
	m.Currency = o.Currency
	m.FulfillmentAttempts = o.FulfillmentAttempts
	m.PartnerOrderID = nullable(o.PartnerOrderID)
	m.PartnerProvider = nullable(o.PartnerProvider)
	m.LastFulfillmentError = o.LastFulfillmentError
	m.TrackingNumber = o.Tracking.Number
	m.TrackingCarrier = o.Tracking.Carrier
	m.TrackingURL = o.Tracking.URL
	m.ClaimToken = o.ClaimToken
	m.ClaimedAt = o.ClaimedAt
	m.CreatedAt = o.CreatedAt
	m.UpdatedAt = o.UpdatedAt
	m.Items = make([]OrderItemModel, len(o.Items))
	for i, it := range o.Items {
		m.Items[i] = OrderItemModel{OrderID: o.ID, ProductID: it.ProductID, Quantity: it.Quantity, Price: it.Price}
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
