package mapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/domain/order"
)

// ErrInvalidPayload wraps every decode or validation failure of partner input
var ErrInvalidPayload = errors.New("mapper: invalid partner payload")

// PODStockLevel is the stock reported for available POD products, which
// are made to order.
const PODStockLevel = 999

// FieldError is one failed field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists field failures; it matches ErrInvalidPayload
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidPayload, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

func validateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe)})
	}
	return out
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "url", "http_url":
		return "Invalid URL format"
	case "numeric":
		return "Must be numeric"
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "max":
		return "Must be at most " + e.Param() + " characters"
	default:
		return "Invalid value"
	}
}

// decodeStrict decodes exactly one JSON value
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data", ErrInvalidPayload)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Partner product
// ---------------------------------------------------------------------------

// PartnerProductIR is a partner catalog entry after decoding. Optional
// fields are pointers so "absent" and "empty" stay distinct.
type PartnerProductIR struct {
	Provider    string   `json:"provider" validate:"required,oneof=jetprint interestprint"`
	ProductID   string   `json:"product_id" validate:"required,max=100"`
	VariantID   *string  `json:"variant_id,omitempty" validate:"omitempty,max=128"`
	Name        string   `json:"name" validate:"required,max=255"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty" validate:"omitempty,max=128"`
	Price       string   `json:"price" validate:"required,numeric"`
	Images      []string `json:"images,omitempty" validate:"omitempty,dive,http_url"`
	Available   *bool    `json:"available,omitempty"`
}

// Validate checks the IR, including a non-negative price
func (ir PartnerProductIR) Validate() error {
	if err := validateStruct(ir); err != nil {
		return err
	}
	if d, err := decimal.NewFromString(ir.Price); err != nil || d.IsNegative() {
		return &ValidationError{Fields: []FieldError{{Field: "price", Message: "Must be a non-negative amount"}}}
	}
	return nil
}

// ParsePartnerProduct decodes and validates a partner product payload
func ParsePartnerProduct(data []byte) (PartnerProductIR, error) {
	var ir PartnerProductIR
	if err := decodeStrict(data, &ir); err != nil {
		return PartnerProductIR{}, err
	}
	if err := ir.Validate(); err != nil {
		return PartnerProductIR{}, err
	}
	return ir, nil
}

// PartnerProductIRFrom converts an adapter result into the IR so that
// fetched and pushed catalog entries go through the same validation.
func PartnerProductIRFrom(provider integration.ProviderCode, p integration.PartnerProduct) PartnerProductIR {
	ir := PartnerProductIR{
		Provider:  string(provider),
		ProductID: p.PartnerProductID,
		Name:      p.Name,
		Price:     p.BasePrice.String(),
		Images:    p.Images,
	}
	if p.VariantID != "" {
		ir.VariantID = &p.VariantID
	}
	if p.Description != "" {
		ir.Description = &p.Description
	}
	if p.Category != "" {
		ir.Category = &p.Category
	}
	available := p.Available
	ir.Available = &available
	return ir
}

// PODProductID returns the catalog id assigned to a partner product. The
// partner id is kept byte for byte except outside [A-Za-z0-9._-], where a
// byte is written as ~XX, so two partner ids never share a catalog id.
func PODProductID(provider, partnerProductID string) string {
	var b strings.Builder
	b.WriteString("pod-" + provider + "-")
	for i := 0; i < len(partnerProductID); i++ {
		c := partnerProductID[i]
		if isIDByte(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "~%02X", c)
	}
	return b.String()
}

func isIDByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '.' || c == '_' || c == '-'
}

// ProductFromPartner builds a catalog product from a validated IR. It is
// total on any IR that passed Validate.
func ProductFromPartner(ir PartnerProductIR) catalog.Product {
	price, err := decimal.NewFromString(ir.Price)
	if err != nil {
		price = decimal.Zero
	}

	meta := map[string]string{
		catalog.MetaPODProvider:  ir.Provider,
		catalog.MetaPODProductID: ir.ProductID,
		catalog.MetaProductType:  DefaultProductType,
	}
	if ir.VariantID != nil && *ir.VariantID != "" {
		meta[catalog.MetaPODVariantID] = *ir.VariantID
	}

	stock := PODStockLevel
	if ir.Available != nil && !*ir.Available {
		stock = 0
	}

	p := catalog.Product{
		ID:       PODProductID(ir.Provider, ir.ProductID),
		Name:     strings.TrimSpace(ir.Name),
		Price:    price.Round(2),
		Stock:    stock,
		Images:   append([]string{}, ir.Images...),
		Metadata: meta,
	}
	if ir.Description != nil {
		p.Description = *ir.Description
	}
	if ir.Category != nil {
		p.Category = *ir.Category
	}
	return p
}

// ---------------------------------------------------------------------------
// Tracking update
// ---------------------------------------------------------------------------

// TrackingEvent is what a tracking update asks the engine to do
type TrackingEvent string

const (
	TrackingShipped   TrackingEvent = "shipped"
	TrackingDelivered TrackingEvent = "delivered"
	TrackingCancelled TrackingEvent = "cancelled"
)

// TrackingUpdateIR is the body of PUT /orders/:id. Partners send either
// top-level fields or the WooCommerce shipment-tracking meta keys.
type TrackingUpdateIR struct {
	Status           *string        `json:"status,omitempty" validate:"omitempty,oneof=completed shipped delivered cancelled failed"`
	TrackingNumber   *string        `json:"tracking_number,omitempty" validate:"omitempty,max=128"`
	TrackingProvider *string        `json:"tracking_provider,omitempty" validate:"omitempty,max=128"`
	TrackingURL      *string        `json:"tracking_url,omitempty" validate:"omitempty,http_url"`
	MetaData         []ExternalMeta `json:"meta_data,omitempty" validate:"omitempty,dive"`
}

// TrackingUpdate is a validated tracking push
type TrackingUpdate struct {
	Event    TrackingEvent
	Tracking order.Tracking
	Reason   string
}

// ParseTrackingUpdate decodes and validates a tracking payload
func ParseTrackingUpdate(data []byte) (TrackingUpdateIR, error) {
	var ir TrackingUpdateIR
	if err := decodeStrict(data, &ir); err != nil {
		return TrackingUpdateIR{}, err
	}
	ir.absorbMeta()
	if err := validateStruct(ir); err != nil {
		return TrackingUpdateIR{}, err
	}
	if ir.Status == nil && (ir.TrackingNumber == nil || *ir.TrackingNumber == "") {
		return TrackingUpdateIR{}, &ValidationError{Fields: []FieldError{{Field: "status", Message: "status or tracking_number is required"}}}
	}
	return ir, nil
}

// absorbMeta fills top-level fields from meta_data keys they are missing
func (ir *TrackingUpdateIR) absorbMeta() {
	for _, m := range ir.MetaData {
		v := m.Value
		switch strings.TrimPrefix(m.Key, "_") {
		case "tracking_number":
			if ir.TrackingNumber == nil {
				ir.TrackingNumber = &v
			}
		case "tracking_provider":
			if ir.TrackingProvider == nil {
				ir.TrackingProvider = &v
			}
		case "tracking_url", "custom_tracking_link":
			if ir.TrackingURL == nil {
				ir.TrackingURL = &v
			}
		}
	}
}

// TrackingFromIR converts a validated IR. A bare tracking number means
// the order shipped.
func TrackingFromIR(ir TrackingUpdateIR) TrackingUpdate {
	var u TrackingUpdate
	if ir.TrackingNumber != nil {
		u.Tracking.Number = strings.TrimSpace(*ir.TrackingNumber)
	}
	if ir.TrackingProvider != nil {
		u.Tracking.Carrier = strings.TrimSpace(*ir.TrackingProvider)
	}
	if ir.TrackingURL != nil {
		u.Tracking.URL = strings.TrimSpace(*ir.TrackingURL)
	}

	status := ""
	if ir.Status != nil {
		status = *ir.Status
	}
	switch status {
	case "delivered":
		u.Event = TrackingDelivered
	case "cancelled", "failed":
		u.Event = TrackingCancelled
		u.Reason = "partner reported " + status
	default:
		u.Event = TrackingShipped
	}
	return u
}

// TrackingFromPartnerStatus converts a polled partner status report. ok is
// false when the report calls for no transition.
func TrackingFromPartnerStatus(r integration.OrderStatusReport) (TrackingUpdate, bool) {
	u := TrackingUpdate{Tracking: order.Tracking{Number: r.TrackingNumber, Carrier: r.Carrier, URL: r.TrackingURL}}
	switch r.Status {
	case integration.PartnerStatusShipped:
		u.Event = TrackingShipped
	case integration.PartnerStatusDelivered:
		u.Event = TrackingDelivered
	case integration.PartnerStatusCancelled:
		u.Event = TrackingCancelled
		u.Reason = "partner cancelled order " + r.PartnerOrderID
	default:
		return TrackingUpdate{}, false
	}
	return u, true
}
