// Package order holds storefront orders and their fulfillment state machine.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order: not found")
	ErrInvalidTransition = errors.New("order: invalid status transition")
	ErrEmptyOrder        = errors.New("order: at least one item is required")
	ErrInvalidItem       = errors.New("order: invalid line item")
	ErrInvalidOrderID    = errors.New("order: order ID is required")
)

// Item is an order line
type Item struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// Subtotal returns price * quantity
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Tracking is the shipment information reported by a partner
type Tracking struct {
	Number  string
	Carrier string
	URL     string
}

// IsZero reports whether no tracking data is set
func (t Tracking) IsZero() bool {
	return t.Number == "" && t.Carrier == "" && t.URL == ""
}

// Order is a storefront order. Rows are never deleted; cancellation and
// refund are terminal statuses.
type Order struct {
	ID                   string
	Status               Status
	Items                []Item
	Total                decimal.Decimal
	Currency             string
	FulfillmentAttempts  int
	PartnerOrderID       string
	PartnerProvider      string
	LastFulfillmentError string
	Tracking             Tracking
	// ClaimToken identifies the engine run that moved the order into
	// PROCESSING; ClaimedAt is when that happened.
	ClaimToken string
	ClaimedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// New creates an order in the given status with its total computed from items.
func New(id string, status Status, items []Item) (*Order, error) {
	if id == "" {
		return nil, ErrInvalidOrderID
	}
	if !status.IsValid() {
		return nil, fmt.Errorf("order: unknown status %q", status)
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	total := decimal.Zero
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price.IsNegative() {
			return nil, fmt.Errorf("%w: product %q quantity %d", ErrInvalidItem, it.ProductID, it.Quantity)
		}
		total = total.Add(it.Subtotal())
	}
	now := time.Now()
	return &Order{
		ID:        id,
		Status:    status,
		Items:     items,
		Total:     total,
		Currency:  "USD",
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasPartnerOrder reports whether the order was accepted by a partner
func (o *Order) HasPartnerOrder() bool {
	return o.PartnerOrderID != ""
}

// AlreadyForwarded reports whether forwarding again would duplicate a
// partner order. A recorded failure re-opens forwarding.
func (o *Order) AlreadyForwarded() bool {
	return o.HasPartnerOrder() && o.Status != StatusFulfillmentError
}

// FailureStatus returns the status a failed forwarding attempt leads to:
// FULFILLMENT_ERROR while attempts remain, ON_HOLD once the cap is reached.
func (o *Order) FailureStatus(maxAttempts int) Status {
	if maxAttempts > 0 && o.FulfillmentAttempts+1 >= maxAttempts {
		return StatusOnHold
	}
	return StatusFulfillmentError
}

// Transition is a conditional, single-statement order update. It applies
// only when the row is still in From (and the optional guards hold), which
// makes it usable as a per-row claim.
type Transition struct {
	ID   string
	From Status
	To   Status
	At   time.Time

	// Guards
	ExpectAttempts   *int
	RequireNoPartner bool
	ExpectClaimToken string

	// Changes
	IncrementAttempts bool
	ResetAttempts     bool
	// ClaimToken, when set, is stored together with claimed_at = At
	ClaimToken      string
	PartnerOrderID  string
	PartnerProvider string
	ClearPartner    bool
	FailureReason   *string
	Tracking        *Tracking
}

// Validate checks the transition against the state machine
func (t Transition) Validate() error {
	if t.ID == "" {
		return ErrInvalidOrderID
	}
	if t.From != t.To && !t.From.CanTransitionTo(t.To) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.From, t.To)
	}
	return nil
}

// ListFilter narrows order listings
type ListFilter struct {
	Status   Status
	Page     int
	PageSize int
	OrderBy  string
	Order    string
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

// Repository persists orders
type Repository interface {
	Create(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int64, error)

	// FindForwardable returns PAID orders without a partner order and
	// FULFILLMENT_ERROR orders, oldest first.
	FindForwardable(ctx context.Context, limit int) ([]Order, error)
	// FindStuckProcessing returns PROCESSING orders without a partner order
	// claimed before the cutoff, oldest claim first.
	FindStuckProcessing(ctx context.Context, claimedBefore time.Time, limit int) ([]Order, error)
	// FindAwaitingShipment returns PROCESSING orders that carry a partner order.
	FindAwaitingShipment(ctx context.Context, limit int) ([]Order, error)

	// Apply executes t as one conditional UPDATE. It returns false when no
	// row matched, meaning another writer changed the order first.
	Apply(ctx context.Context, t Transition) (bool, error)
	// ApplyAll executes the transitions in order as one atomic write. Either
	// every step matches its row or none of them is kept.
	ApplyAll(ctx context.Context, steps ...Transition) (bool, error)
}
