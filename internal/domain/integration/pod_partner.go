package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Partner Errors
// ---------------------------------------------------------------------------

var (
	ErrPartnerNotConfigured      = errors.New("integration: POD partner not configured")
	ErrPartnerUnavailable        = errors.New("integration: POD partner temporarily unavailable")
	ErrPartnerRequestFailed      = errors.New("integration: POD partner request failed")
	ErrPartnerRejected           = errors.New("integration: POD partner rejected the order")
	ErrPartnerInvalidResponse    = errors.New("integration: invalid POD partner response")
	ErrPartnerAuthFailed         = errors.New("integration: POD partner authentication failed")
	ErrPartnerRateLimited        = errors.New("integration: POD partner rate limited")
	ErrPartnerOrderNotFound      = errors.New("integration: partner order not found")
	ErrInvalidFulfillmentRequest = errors.New("integration: invalid fulfillment request")
)

// IsTransient reports whether a partner error is worth retrying later
// without operator involvement.
func IsTransient(err error) bool {
	return errors.Is(err, ErrPartnerUnavailable) ||
		errors.Is(err, ErrPartnerRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// ProviderCode identifies a POD partner
type ProviderCode string

const (
	ProviderJetprint      ProviderCode = "jetprint"
	ProviderInterestPrint ProviderCode = "interestprint"
)

// IsValid reports whether the provider has an adapter
func (p ProviderCode) IsValid() bool {
	return p == ProviderJetprint || p == ProviderInterestPrint
}

// ---------------------------------------------------------------------------
// Fulfillment
// ---------------------------------------------------------------------------

// FulfillmentLine is one forwarded order line in the partner's SKU space
type FulfillmentLine struct {
	ProductID string
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
}

// FulfillmentRequest is the partner-neutral order submitted for production
type FulfillmentRequest struct {
	// LocalOrderID is our order id, sent as the partner's external reference
	LocalOrderID string
	Currency     string
	Total        decimal.Decimal
	Lines        []FulfillmentLine
}

// Validate checks the request before it leaves the process
func (r *FulfillmentRequest) Validate() error {
	if r.LocalOrderID == "" {
		return fmt.Errorf("%w: missing order id", ErrInvalidFulfillmentRequest)
	}
	if len(r.Lines) == 0 {
		return fmt.Errorf("%w: no lines", ErrInvalidFulfillmentRequest)
	}
	for _, l := range r.Lines {
		if l.SKU == "" {
			return fmt.Errorf("%w: product %s has no partner SKU", ErrInvalidFulfillmentRequest, l.ProductID)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("%w: product %s quantity %d", ErrInvalidFulfillmentRequest, l.ProductID, l.Quantity)
		}
	}
	return nil
}

// PartnerOrderStatus is the partner-side production state, normalized
type PartnerOrderStatus string

const (
	PartnerStatusReceived     PartnerOrderStatus = "received"
	PartnerStatusInProduction PartnerOrderStatus = "in_production"
	PartnerStatusShipped      PartnerOrderStatus = "shipped"
	PartnerStatusDelivered    PartnerOrderStatus = "delivered"
	PartnerStatusCancelled    PartnerOrderStatus = "cancelled"
	PartnerStatusUnknown      PartnerOrderStatus = "unknown"
)

// SubmitResult is a partner's acceptance of a forwarded order
type SubmitResult struct {
	PartnerOrderID string
	Status         PartnerOrderStatus
	AcceptedAt     time.Time
}

// OrderStatusReport is a partner's view of one order
type OrderStatusReport struct {
	PartnerOrderID string
	LocalOrderID   string
	Status         PartnerOrderStatus
	TrackingNumber string
	Carrier        string
	TrackingURL    string
	UpdatedAt      time.Time
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// PartnerProduct is a product from the partner's catalog
type PartnerProduct struct {
	PartnerProductID string
	VariantID        string
	Name             string
	Description      string
	Category         string
	BasePrice        decimal.Decimal
	Images           []string
	Available        bool
}

// ProductPage is one page of a partner catalog listing
type ProductPage struct {
	Products []PartnerProduct
	Page     int
	HasMore  bool
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// PODPartner is the capability every POD partner adapter provides.
type PODPartner interface {
	// Provider returns the provider code this adapter handles
	Provider() ProviderCode

	// ListProducts returns one page of the partner's catalog (1-based)
	ListProducts(ctx context.Context, page, pageSize int) (*ProductPage, error)

	// SubmitOrder forwards an order for production
	SubmitOrder(ctx context.Context, req *FulfillmentRequest) (*SubmitResult, error)

	// CheckStatus returns the partner's status for an accepted order
	CheckStatus(ctx context.Context, partnerOrderID string) (*OrderStatusReport, error)

	// FindByExternalID looks an order up by our order id. It returns
	// ErrPartnerOrderNotFound when the partner never received it.
	FindByExternalID(ctx context.Context, localOrderID string) (*OrderStatusReport, error)
}

// PartnerRegistry resolves partner adapters
type PartnerRegistry interface {
	// Get returns the adapter for a provider
	Get(code ProviderCode) (PODPartner, error)

	// Active returns the adapter selected by configuration
	Active() (PODPartner, error)

	// List returns all registered adapters
	List() []PODPartner
}
