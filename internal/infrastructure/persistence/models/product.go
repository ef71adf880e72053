package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/catalog"
)

// ProductModel is the persistence model for catalog products.
type ProductModel struct {
	ID           string            `gorm:"type:varchar(320);primaryKey"`
	Name         string            `gorm:"type:varchar(255);not null"`
	Description  string            `gorm:"type:text"`
	Price        decimal.Decimal   `gorm:"type:decimal(12,2);not null;default:0"`
	Stock        int               `gorm:"not null;default:0"`
	Category     string            `gorm:"type:varchar(100);index"`
	Images       []string          `gorm:"type:text;serializer:json"`
	Metadata     map[string]string `gorm:"type:text;serializer:json"`
	Status       string            `gorm:"type:varchar(20)"`
	PODProvider  string            `gorm:"column:pod_provider;type:varchar(32);index:idx_products_pod,priority:1"`
	PODProductID string            `gorm:"column:pod_product_id;type:varchar(100);index:idx_products_pod,priority:2"`
	CreatedAt    time.Time         `gorm:"not null"`
	UpdatedAt    time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToDomain converts the model to a catalog product
func (m *ProductModel) ToDomain() *catalog.Product {
	p := &catalog.Product{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		Stock:       m.Stock,
		Category:    m.Category,
		Images:      m.Images,
		Metadata:    m.Metadata,
		Status:      m.Status,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Metadata == nil {
		p.Metadata = map[string]string{}
	}
	return p
}

// FromDomain populates the model. The POD link is denormalized from metadata
// into indexed columns for partner product sync lookups.
func (m *ProductModel) FromDomain(p *catalog.Product) {
	m.ID = p.ID
	m.Name = p.Name
	m.Description = p.Description
	m.Price = p.Price
	m.Stock = p.Stock
	m.Category = p.Category
	m.Images = p.Images
	m.Metadata = p.Metadata
	m.Status = p.Status
	m.PODProvider = p.Meta(catalog.MetaPODProvider)
	m.PODProductID = p.Meta(catalog.MetaPODProductID)
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}
