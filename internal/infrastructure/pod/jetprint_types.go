package pod

import (
	"strings"

	"github.com/storefront/backend/internal/domain/integration"
)

// JetPrint REST API payloads

type jetprintProduct struct {
	ID          string   `json:"id"`
	VariantID   string   `json:"variant_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Price       string   `json:"price"`
	Images      []string `json:"images"`
	InStock     bool     `json:"in_stock"`
}

type jetprintProductList struct {
	Data    []jetprintProduct `json:"data"`
	Page    int               `json:"page"`
	HasMore bool              `json:"has_more"`
}

type jetprintOrderItem struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type jetprintCreateOrder struct {
	ExternalID string              `json:"external_id"`
	Currency   string              `json:"currency"`
	Total      string              `json:"total"`
	Items      []jetprintOrderItem `json:"items"`
}

type jetprintTracking struct {
	Number  string `json:"number"`
	Carrier string `json:"carrier"`
	URL     string `json:"url"`
}

type jetprintOrder struct {
	ID         string            `json:"id"`
	ExternalID string            `json:"external_id"`
	Status     string            `json:"status"`
	Tracking   *jetprintTracking `json:"tracking"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
}

type jetprintOrderList struct {
	Data []jetprintOrder `json:"data"`
}

type jetprintError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// ID is set on 409 responses for an already submitted external_id
	ID string `json:"id"`
}

func mapJetprintStatus(s string) integration.PartnerOrderStatus {
	switch strings.ToLower(s) {
	case "pending", "received", "accepted":
		return integration.PartnerStatusReceived
	case "printing", "in_production", "production":
		return integration.PartnerStatusInProduction
	case "shipped", "in_transit":
		return integration.PartnerStatusShipped
	case "delivered":
		return integration.PartnerStatusDelivered
	case "cancelled", "canceled", "rejected":
		return integration.PartnerStatusCancelled
	default:
		return integration.PartnerStatusUnknown
	}
}
