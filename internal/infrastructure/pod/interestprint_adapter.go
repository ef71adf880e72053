package pod

import (
	"bytes"
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

var (
	ErrInterestprintMissingAppKey    = errors.New("interestprint: app key is required")
	ErrInterestprintMissingAppSecret = errors.New("interestprint: app secret is required")
)

// InterestprintAdapter talks to the InterestPrint open API. Every call is a
// signed JSON POST answered with a {code, msg, data} envelope.
type InterestprintAdapter struct {
	baseURL   string
	appKey    string
	appSecret string
	http      *httpClient
	now       func() time.Time
}

// NewInterestprintAdapter creates the adapter from partner configuration
func NewInterestprintAdapter(cfg config.PartnerConfig, opts ...Option) (*InterestprintAdapter, error) {
	if cfg.APIKey == "" {
		return nil, ErrInterestprintMissingAppKey
	}
	if cfg.APISecret == "" {
		return nil, ErrInterestprintMissingAppSecret
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("interestprint: invalid base url: %w", err)
	}
	return &InterestprintAdapter{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		appKey:    cfg.APIKey,
		appSecret: cfg.APISecret,
		http:      newHTTPClient(integration.ProviderInterestPrint, cfg.Timeout, cfg.RateLimit, cfg.RateBurst, opts...),
		now:       time.Now,
	}, nil
}

// Provider implements integration.PODPartner
func (a *InterestprintAdapter) Provider() integration.ProviderCode {
	return integration.ProviderInterestPrint
}

// ListProducts implements integration.PODPartner
func (a *InterestprintAdapter) ListProducts(ctx context.Context, page, pageSize int) (*integration.ProductPage, error) {
	if page < 1 {
		page = 1
	}
	var list interestprintProductList
	if err := a.call(ctx, "list_products", "/product/list", map[string]int{"page": page, "page_size": pageSize}, &list); err != nil {
		return nil, err
	}

	out := &integration.ProductPage{
		Page:     page,
		HasMore:  page*pageSize < list.Total,
		Products: make([]integration.PartnerProduct, 0, len(list.List)),
	}
	for _, p := range list.List {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: interestprint spu %s price %q", integration.ErrPartnerInvalidResponse, p.SpuID, p.Price)
		}
		out.Products = append(out.Products, integration.PartnerProduct{
			PartnerProductID: p.SpuID,
			VariantID:        p.SkuID,
			Name:             p.Name,
			Description:      p.Desc,
			Category:         p.CategoryName,
			BasePrice:        price,
			Images:           p.Pics,
			Available:        p.OnSale,
		})
	}
	return out, nil
}

// SubmitOrder implements integration.PODPartner. A duplicate out_order_no
// is resolved to the existing partner order.
func (a *InterestprintAdapter) SubmitOrder(ctx context.Context, req *integration.FulfillmentRequest) (*integration.SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	payload := interestprintCreateOrder{
		OutOrderNo: req.LocalOrderID,
		Currency:   req.Currency,
		Amount:     req.Total.StringFixed(2),
		Goods:      make([]interestprintGoods, len(req.Lines)),
	}
	for i, l := range req.Lines {
		payload.Goods[i] = interestprintGoods{SkuID: l.SKU, Num: l.Quantity, Price: l.UnitPrice.StringFixed(2)}
	}

	var order interestprintOrder
	err := a.call(ctx, "submit_order", "/order/create", payload, &order)
	if errors.Is(err, errInterestprintDuplicate) {
		existing, findErr := a.FindByExternalID(ctx, req.LocalOrderID)
		if findErr != nil {
			return nil, findErr
		}
		return &integration.SubmitResult{PartnerOrderID: existing.PartnerOrderID, Status: existing.Status, AcceptedAt: existing.UpdatedAt}, nil
	}
	if err != nil {
		return nil, err
	}
	if order.OrderNo == "" {
		return nil, fmt.Errorf("%w: interestprint: order response without order_no", integration.ErrPartnerInvalidResponse)
	}
	return &integration.SubmitResult{
		PartnerOrderID: order.OrderNo,
		Status:         mapInterestprintState(order.State),
		AcceptedAt:     unixOrNow(order.CreateTime),
	}, nil
}

// CheckStatus implements integration.PODPartner
func (a *InterestprintAdapter) CheckStatus(ctx context.Context, partnerOrderID string) (*integration.OrderStatusReport, error) {
	var order interestprintOrder
	if err := a.call(ctx, "check_status", "/order/detail", map[string]string{"order_no": partnerOrderID}, &order); err != nil {
		return nil, err
	}
	return interestprintReport(order), nil
}

// FindByExternalID implements integration.PODPartner
func (a *InterestprintAdapter) FindByExternalID(ctx context.Context, localOrderID string) (*integration.OrderStatusReport, error) {
	var order interestprintOrder
	if err := a.call(ctx, "find_by_external_id", "/order/detail", map[string]string{"out_order_no": localOrderID}, &order); err != nil {
		return nil, err
	}
	return interestprintReport(order), nil
}

func interestprintReport(o interestprintOrder) *integration.OrderStatusReport {
	return &integration.OrderStatusReport{
		PartnerOrderID: o.OrderNo,
		LocalOrderID:   o.OutOrderNo,
		Status:         mapInterestprintState(o.State),
		TrackingNumber: o.ExpressNo,
		Carrier:        o.ExpressCompany,
		TrackingURL:    o.ExpressURL,
		UpdatedAt:      unixOrNow(o.UpdateTime),
	}
}

var errInterestprintDuplicate = fmt.Errorf("%w: interestprint: duplicate out_order_no", integration.ErrPartnerRejected)

// call signs and posts payload, unwraps the envelope and decodes data into out
func (a *InterestprintAdapter) call(ctx context.Context, operation, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("interestprint: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("interestprint: create request: %w", err)
	}
	ts := strconv.FormatInt(a.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-IP-AppKey", a.appKey)
	req.Header.Set("X-IP-Timestamp", ts)
	req.Header.Set("X-IP-Sign", interestprintSign(a.appSecret, a.appKey, ts, body))

	status, respBody, err := a.http.do(ctx, operation, req)
	if err != nil {
		return err
	}
	if err := classifyStatus(a.Provider(), status, ""); err != nil {
		// unknown orders come back as an envelope code, never as HTTP 404
		if errors.Is(err, integration.ErrPartnerOrderNotFound) {
			return fmt.Errorf("%w: interestprint: %s endpoint not found", integration.ErrPartnerRequestFailed, path)
		}
		return err
	}

	var env interestprintEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("%w: interestprint %s: %v", integration.ErrPartnerInvalidResponse, operation, err)
	}
	switch env.Code {
	case interestprintCodeOK:
	case interestprintCodeAuth:
		return fmt.Errorf("%w: interestprint: %s", integration.ErrPartnerAuthFailed, env.Msg)
	case interestprintCodeRateLimited:
		return fmt.Errorf("%w: interestprint: %s", integration.ErrPartnerRateLimited, env.Msg)
	case interestprintCodeNotFound:
		return fmt.Errorf("%w: interestprint: %s", integration.ErrPartnerOrderNotFound, env.Msg)
	case interestprintCodeDuplicate:
		return errInterestprintDuplicate
	default:
		return fmt.Errorf("%w: interestprint: code %d: %s", integration.ErrPartnerRejected, env.Code, env.Msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: interestprint %s data: %v", integration.ErrPartnerInvalidResponse, operation, err)
	}
	return nil
}

func unixOrNow(sec int64) time.Time {
	if sec <= 0 {
		return time.Now()
	}
	return time.Unix(sec, 0).UTC()
}

var _ integration.PODPartner = (*InterestprintAdapter)(nil)
