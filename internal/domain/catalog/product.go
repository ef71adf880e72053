// Package catalog holds the storefront product records the compatibility
// layer exposes to print-on-demand partners.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Metadata keys linking a product to a POD partner's identifier space
const (
	MetaPODProvider  = "podProvider"
	MetaPODProductID = "podProductId"
	MetaPODVariantID = "podVariantId"
	MetaProductType  = "type"
	MetaSKU          = "sku"
)

var (
	ErrProductNotFound    = errors.New("catalog: product not found")
	ErrInvalidProductID   = errors.New("catalog: product ID is required")
	ErrInvalidProductName = errors.New("catalog: product name is required")
	ErrNegativePrice      = errors.New("catalog: price cannot be negative")
	ErrNegativeStock      = errors.New("catalog: stock cannot be negative")
)

// Product is the canonical catalog record
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Category    string
	Images      []string
	Metadata    map[string]string
	// Status is an explicit publish state ("publish", "draft", ...); empty
	// means derive it from stock.
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the structural requirements of a product record
func (p *Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidProductID
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrInvalidProductName
	}
	if p.Price.IsNegative() {
		return ErrNegativePrice
	}
	if p.Stock < 0 {
		return ErrNegativeStock
	}
	return nil
}

// InStock reports whether at least one unit is available
func (p *Product) InStock() bool {
	return p.Stock > 0
}

// Meta returns a metadata value or "" when absent
func (p *Product) Meta(key string) string {
	if p.Metadata == nil {
		return ""
	}
	return p.Metadata[key]
}

// IsPOD reports whether the product is sourced from a POD partner
func (p *Product) IsPOD() bool {
	return p.Meta(MetaPODProvider) != "" && p.Meta(MetaPODProductID) != ""
}

// PartnerSKU returns the partner-side identifier used when forwarding an
// order line. The variant id wins over the product id when present.
func (p *Product) PartnerSKU() (string, bool) {
	if v := p.Meta(MetaPODVariantID); v != "" {
		return v, true
	}
	if v := p.Meta(MetaPODProductID); v != "" {
		return v, true
	}
	return "", false
}

// ListFilter narrows product listings
type ListFilter struct {
	Search   string
	Page     int
	PageSize int
	// OrderBy and Order are client sort hints, validated by the repository
	OrderBy string
	Order   string
}

// Normalize applies paging defaults and bounds
func (f *ListFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 10
	}
	if f.PageSize > 100 {
		f.PageSize = 100
	}
}

// Offset returns the row offset for the current page
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Repository reads catalog products. Upsert is used only by partner product sync.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Product, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]*Product, error)
	List(ctx context.Context, filter ListFilter) ([]Product, int64, error)
	FindByPODProduct(ctx context.Context, provider, podProductID string) (*Product, error)
	Upsert(ctx context.Context, p *Product) error
}
