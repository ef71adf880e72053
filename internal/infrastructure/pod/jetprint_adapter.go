package pod

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/infrastructure/config"
)

var ErrJetprintMissingAPIKey = errors.New("jetprint: api key is required")

// JetprintAdapter talks to the JetPrint REST API with bearer auth
type JetprintAdapter struct {
	baseURL string
	apiKey  string
	http    *httpClient
}

// NewJetprintAdapter creates the adapter from partner configuration
func NewJetprintAdapter(cfg config.PartnerConfig, opts ...Option) (*JetprintAdapter, error) {
	if cfg.APIKey == "" {
		return nil, ErrJetprintMissingAPIKey
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("jetprint: invalid base url: %w", err)
	}
	return &JetprintAdapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    newHTTPClient(integration.ProviderJetprint, cfg.Timeout, cfg.RateLimit, cfg.RateBurst, opts...),
	}, nil
}

// Provider implements integration.PODPartner
func (a *JetprintAdapter) Provider() integration.ProviderCode {
	return integration.ProviderJetprint
}

// ListProducts implements integration.PODPartner
func (a *JetprintAdapter) ListProducts(ctx context.Context, page, pageSize int) (*integration.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))

	var resp jetprintProductList
	if err := a.call(ctx, "list_products", http.MethodGet, "/products?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	out := &integration.ProductPage{Page: page, HasMore: resp.HasMore, Products: make([]integration.PartnerProduct, 0, len(resp.Data))}
	for _, p := range resp.Data {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: jetprint product %s price %q", integration.ErrPartnerInvalidResponse, p.ID, p.Price)
		}
		out.Products = append(out.Products, integration.PartnerProduct{
			PartnerProductID: p.ID,
			VariantID:        p.VariantID,
			Name:             p.Title,
			Description:      p.Description,
			Category:         p.Category,
			BasePrice:        price,
			Images:           p.Images,
			Available:        p.InStock,
		})
	}
	return out, nil
}

// SubmitOrder implements integration.PODPartner. A 409 for an external id
// JetPrint already holds is treated as acceptance of that earlier order.
func (a *JetprintAdapter) SubmitOrder(ctx context.Context, req *integration.FulfillmentRequest) (*integration.SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload := jetprintCreateOrder{
		ExternalID: req.LocalOrderID,
		Currency:   req.Currency,
		Total:      req.Total.StringFixed(2),
		Items:      make([]jetprintOrderItem, len(req.Lines)),
	}
	for i, l := range req.Lines {
		payload.Items[i] = jetprintOrderItem{SKU: l.SKU, Quantity: l.Quantity, Price: l.UnitPrice.StringFixed(2)}
	}

	httpReq, err := a.newRequest(ctx, http.MethodPost, "/orders", payload)
	if err != nil {
		return nil, err
	}
	status, body, err := a.http.do(ctx, "submit_order", httpReq)
	if err != nil {
		return nil, err
	}

	if status == http.StatusConflict {
		var conflict jetprintError
		if json.Unmarshal(body, &conflict) == nil && conflict.ID != "" {
			return &integration.SubmitResult{PartnerOrderID: conflict.ID, Status: integration.PartnerStatusReceived, AcceptedAt: time.Now()}, nil
		}
	}
	if err := classifyStatus(a.Provider(), status, jetprintDetail(body)); err != nil {
		if errors.Is(err, integration.ErrPartnerOrderNotFound) {
			return nil, fmt.Errorf("%w: jetprint: orders endpoint not found", integration.ErrPartnerRequestFailed)
		}
		return nil, err
	}

	var order jetprintOrder
	if err := json.Unmarshal(body, &order); err != nil || order.ID == "" {
		return nil, fmt.Errorf("%w: jetprint: order response without id", integration.ErrPartnerInvalidResponse)
	}
	return &integration.SubmitResult{
		PartnerOrderID: order.ID,
		Status:         mapJetprintStatus(order.Status),
		AcceptedAt:     parseJetprintTime(order.CreatedAt),
	}, nil
}

// CheckStatus implements integration.PODPartner
func (a *JetprintAdapter) CheckStatus(ctx context.Context, partnerOrderID string) (*integration.OrderStatusReport, error) {
	var order jetprintOrder
	if err := a.call(ctx, "check_status", http.MethodGet, "/orders/"+url.PathEscape(partnerOrderID), nil, &order); err != nil {
		return nil, err
	}
	return a.report(order), nil
}

// FindByExternalID implements integration.PODPartner
func (a *JetprintAdapter) FindByExternalID(ctx context.Context, localOrderID string) (*integration.OrderStatusReport, error) {
	q := url.Values{}
	q.Set("external_id", localOrderID)
	var list jetprintOrderList
	if err := a.call(ctx, "find_by_external_id", http.MethodGet, "/orders?"+q.Encode(), nil, &list); err != nil {
		// only an empty result means the order is unknown; a 404 here is a broken endpoint
		if errors.Is(err, integration.ErrPartnerOrderNotFound) {
			return nil, fmt.Errorf("%w: jetprint: orders endpoint not found", integration.ErrPartnerRequestFailed)
		}
		return nil, err
	}
	for _, o := range list.Data {
		if o.ExternalID == localOrderID {
			return a.report(o), nil
		}
	}
	return nil, fmt.Errorf("%w: jetprint external_id %s", integration.ErrPartnerOrderNotFound, localOrderID)
}

func (a *JetprintAdapter) report(o jetprintOrder) *integration.OrderStatusReport {
	r := &integration.OrderStatusReport{
		PartnerOrderID: o.ID,
		LocalOrderID:   o.ExternalID,
		Status:         mapJetprintStatus(o.Status),
		UpdatedAt:      parseJetprintTime(o.UpdatedAt),
	}
	if o.Tracking != nil {
		r.TrackingNumber = o.Tracking.Number
		r.Carrier = o.Tracking.Carrier
		r.TrackingURL = o.Tracking.URL
	}
	return r
}

func (a *JetprintAdapter) newRequest(ctx context.Context, method, path string, payload any) (*http.Request, error) {
	req, err := newJSONRequest(ctx, method, a.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("jetprint: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	return req, nil
}

// call performs a request and decodes a 2xx JSON body into out
func (a *JetprintAdapter) call(ctx context.Context, operation, method, path string, payload, out any) error {
	req, err := a.newRequest(ctx, method, path, payload)
	if err != nil {
		return err
	}
	status, body, err := a.http.do(ctx, operation, req)
	if err != nil {
		return err
	}
	if err := classifyStatus(a.Provider(), status, jetprintDetail(body)); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: jetprint %s: %v", integration.ErrPartnerInvalidResponse, operation, err)
	}
	return nil
}

func jetprintDetail(body []byte) string {
	var e jetprintError
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

func parseJetprintTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}

var _ integration.PODPartner = (*JetprintAdapter)(nil)
