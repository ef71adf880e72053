// Package mapper translates internal records to the WooCommerce wire schema
// partners expect, and partner payloads back into internal records through
// validated intermediate representations.
package mapper

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/webhook"
)

// WooCommerce date format: RFC3339 without zone, in UTC
const DateLayout = "2006-01-02T15:04:05"

// Defaults applied when the internal record does not say
const (
	DefaultProductType = "simple"
	StatusPublish      = "publish"
	StatusDraft        = "draft"
	StockInStock       = "instock"
	StockOutOfStock    = "outofstock"
)

// ExternalProduct is a WooCommerce product resource
type ExternalProduct struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Slug             string             `json:"slug"`
	Type             string             `json:"type"`
	Status           string             `json:"status"`
	Description      string             `json:"description"`
	ShortDescription string             `json:"short_description"`
	SKU              string             `json:"sku"`
	Price            string             `json:"price"`
	RegularPrice     string             `json:"regular_price"`
	SalePrice        string             `json:"sale_price"`
	OnSale           bool               `json:"on_sale"`
	Purchasable      bool               `json:"purchasable"`
	ManageStock      bool               `json:"manage_stock"`
	StockQuantity    int                `json:"stock_quantity"`
	StockStatus      string             `json:"stock_status"`
	Categories       []ExternalCategory `json:"categories"`
	Images           []ExternalImage    `json:"images"`
	MetaData         []ExternalMeta     `json:"meta_data"`
	DateCreated      string             `json:"date_created"`
	DateCreatedGMT   string             `json:"date_created_gmt"`
	DateModified     string             `json:"date_modified"`
	DateModifiedGMT  string             `json:"date_modified_gmt"`
}

// ExternalCategory is a category reference on a product
type ExternalCategory struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ExternalImage is a product image reference
type ExternalImage struct {
	ID       int    `json:"id"`
	Src      string `json:"src"`
	Name     string `json:"name"`
	Alt      string `json:"alt"`
	Position int    `json:"position"`
}

// ExternalMeta is one meta_data entry
type ExternalMeta struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ExternalOrder is a WooCommerce order resource
type ExternalOrder struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	Status          string             `json:"status"`
	Currency        string             `json:"currency"`
	Total           string             `json:"total"`
	LineItems       []ExternalLineItem `json:"line_items"`
	MetaData        []ExternalMeta     `json:"meta_data"`
	DateCreated     string             `json:"date_created"`
	DateCreatedGMT  string             `json:"date_created_gmt"`
	DateModified    string             `json:"date_modified"`
	DateModifiedGMT string             `json:"date_modified_gmt"`
	DatePaid        *string            `json:"date_paid"`
	DateCompleted   *string            `json:"date_completed"`
}

// ExternalLineItem is an order line
type ExternalLineItem struct {
	ID        int    `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
	Total     string `json:"total"`
}

// ExternalSubscription is a WooCommerce webhook resource
type ExternalSubscription struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Topic          string `json:"topic"`
	Resource       string `json:"resource"`
	Event          string `json:"event"`
	DeliveryURL    string `json:"delivery_url"`
	Secret         string `json:"secret"`
	DateCreated    string `json:"date_created"`
	DateCreatedGMT string `json:"date_created_gmt"`
}

// ProductToExternal maps a product. It is total: every field is present
// with a documented default for anything the record leaves empty.
func ProductToExternal(p catalog.Product) ExternalProduct {
	price := p.Price.StringFixed(2)

	stockStatus := StockOutOfStock
	if p.InStock() {
		stockStatus = StockInStock
	}

	status := p.Status
	if status == "" {
		status = StatusDraft
		if p.InStock() {
			status = StatusPublish
		}
	}

	productType := p.Meta(catalog.MetaProductType)
	if productType == "" {
		productType = DefaultProductType
	}

	sku := p.Meta(catalog.MetaSKU)
	if sku == "" {
		sku = p.ID
	}

	categories := []ExternalCategory{}
	if p.Category != "" {
		categories = append(categories, ExternalCategory{Name: p.Category, Slug: slugify(p.Category)})
	}

	images := make([]ExternalImage, 0, len(p.Images))
	for i, src := range p.Images {
		images = append(images, ExternalImage{ID: i + 1, Src: src, Name: p.Name, Alt: p.Name, Position: i})
	}

	created := formatDate(p.CreatedAt)
	modified := formatDate(p.UpdatedAt)

	return ExternalProduct{
		ID:               p.ID,
		Name:             p.Name,
		Slug:             slugify(p.Name),
		Type:             productType,
		Status:           status,
		Description:      p.Description,
		ShortDescription: shortDescription(p.Description),
		SKU:              sku,
		Price:            price,
		RegularPrice:     price,
		SalePrice:        "",
		OnSale:           false,
		Purchasable:      status == StatusPublish,
		ManageStock:      true,
		StockQuantity:    p.Stock,
		StockStatus:      stockStatus,
		Categories:       categories,
		Images:           images,
		MetaData:         sortedMeta(p.Metadata),
		DateCreated:      created,
		DateCreatedGMT:   created,
		DateModified:     modified,
		DateModifiedGMT:  modified,
	}
}

// ProductsToExternal maps a page of products, never returning nil
func ProductsToExternal(products []catalog.Product) []ExternalProduct {
	out := make([]ExternalProduct, 0, len(products))
	for _, p := range products {
		out = append(out, ProductToExternal(p))
	}
	return out
}

// ExternalOrderStatus maps an internal status to the WooCommerce vocabulary
func ExternalOrderStatus(s order.Status) string {
	switch s {
	case order.StatusPending, order.StatusPendingPayment:
		return "pending"
	case order.StatusPaid, order.StatusProcessing:
		return "processing"
	case order.StatusShipped, order.StatusDelivered:
		return "completed"
	case order.StatusOnHold, order.StatusFulfillmentError:
		return "on-hold"
	case order.StatusCancelled:
		return "cancelled"
	case order.StatusRefunded:
		return "refunded"
	case order.StatusPaymentFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Order meta_data keys
const (
	MetaInternalStatus      = "_pod_status"
	MetaPartnerOrderID      = "_pod_partner_order_id"
	MetaPartnerProvider     = "_pod_provider"
	MetaFulfillmentAttempts = "_pod_fulfillment_attempts"
	MetaTrackingNumber      = "_tracking_number"
	MetaTrackingProvider    = "_tracking_provider"
	MetaTrackingURL         = "_tracking_url"
)

// OrderToExternal maps an order
func OrderToExternal(o order.Order) ExternalOrder {
	items := make([]ExternalLineItem, 0, len(o.Items))
	for i, it := range o.Items {
		subtotal := it.Subtotal().StringFixed(2)
		items = append(items, ExternalLineItem{
			ID:        i + 1,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price.StringFixed(2),
			Subtotal:  subtotal,
			Total:     subtotal,
		})
	}

	meta := map[string]string{
		MetaInternalStatus:      string(o.Status),
		MetaFulfillmentAttempts: strconv.Itoa(o.FulfillmentAttempts),
	}
	if o.PartnerOrderID != "" {
		meta[MetaPartnerOrderID] = o.PartnerOrderID
		meta[MetaPartnerProvider] = o.PartnerProvider
	}
	if o.Tracking.Number != "" {
		meta[MetaTrackingNumber] = o.Tracking.Number
	}
	if o.Tracking.Carrier != "" {
		meta[MetaTrackingProvider] = o.Tracking.Carrier
	}
	if o.Tracking.URL != "" {
		meta[MetaTrackingURL] = o.Tracking.URL
	}

	currency := o.Currency
	if currency == "" {
		currency = "USD"
	}

	created := formatDate(o.CreatedAt)
	modified := formatDate(o.UpdatedAt)
	ext := ExternalOrder{
		ID:              o.ID,
		Number:          o.ID,
		Status:          ExternalOrderStatus(o.Status),
		Currency:        currency,
		Total:           o.Total.StringFixed(2),
		LineItems:       items,
		MetaData:        sortedMeta(meta),
		DateCreated:     created,
		DateCreatedGMT:  created,
		DateModified:    modified,
		DateModifiedGMT: modified,
	}
	switch o.Status {
	case order.StatusShipped, order.StatusDelivered:
		ext.DateCompleted = &modified
	}
	return ext
}

// OrdersToExternal maps a page of orders, never returning nil
func OrdersToExternal(orders []order.Order) []ExternalOrder {
	out := make([]ExternalOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderToExternal(o))
	}
	return out
}

// SubscriptionToExternal maps a webhook subscription
func SubscriptionToExternal(s webhook.Subscription) ExternalSubscription {
	resource, event, _ := strings.Cut(string(s.Topic), ".")
	created := formatDate(s.CreatedAt)
	return ExternalSubscription{
		ID:             s.ID.String(),
		Name:           s.Name,
		Status:         string(s.Status),
		Topic:          string(s.Topic),
		Resource:       resource,
		Event:          event,
		DeliveryURL:    s.DeliveryURL,
		Secret:         s.Secret,
		DateCreated:    created,
		DateCreatedGMT: created,
	}
}

// SubscriptionsToExternal maps a subscription list, never returning nil
func SubscriptionsToExternal(subs []webhook.Subscription) []ExternalSubscription {
	out := make([]ExternalSubscription, 0, len(subs))
	for _, s := range subs {
		out = append(out, SubscriptionToExternal(s))
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateLayout)
}

func sortedMeta(m map[string]string) []ExternalMeta {
	out := make([]ExternalMeta, 0, len(m))
	for k, v := range m {
		out = append(out, ExternalMeta{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// shortDescription is the first line of the description, capped at 160 runes
func shortDescription(desc string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(desc), "\n")
	r := []rune(line)
	if len(r) > 160 {
		return string(r[:160])
	}
	return line
}
