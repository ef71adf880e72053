package pod

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/infrastructure/config"
)

const (
	testAppKey    = "ip-app"
	testAppSecret = "ip-secret"
)

// newTestInterestprint starts a server that verifies the signature on every request before
// delegating to route.
func newTestInterestprint(t *testing.T, route func(path string, body []byte) (int, any)) *InterestprintAdapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, testAppKey, r.Header.Get("X-IP-AppKey"))
		assert.Equal(t, "1760870000", r.Header.Get("X-IP-Timestamp"))
		want := interestprintSign(testAppSecret, testAppKey, r.Header.Get("X-IP-Timestamp"), body)
		assert.Equal(t, want, r.Header.Get("X-IP-Sign"))

		code, payload := route(r.URL.Path, body)
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(srv.Close)

	a, err := NewInterestprintAdapter(config.PartnerConfig{BaseURL: srv.URL, APIKey: testAppKey, APISecret: testAppSecret})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Unix(1760870000, 0) }
	return a
}

func ok(data any) map[string]any {
	return map[string]any{"code": 0, "msg": "ok", "data": data}
}

func TestNewInterestprintAdapter_Validation(t *testing.T) {
	_, err := NewInterestprintAdapter(config.PartnerConfig{BaseURL: "https://x.example", APISecret: "s"})
	assert.ErrorIs(t, err, ErrInterestprintMissingAppKey)
	_, err = NewInterestprintAdapter(config.PartnerConfig{BaseURL: "https://x.example", APIKey: "k"})
	assert.ErrorIs(t, err, ErrInterestprintMissingAppSecret)
}

func TestInterestprintSign_Deterministic(t *testing.T) {
	a := interestprintSign("s", "k", "1", []byte(`{}`))
	assert.Equal(t, a, interestprintSign("s", "k", "1", []byte(`{}`)))
	assert.NotEqual(t, a, interestprintSign("s", "k", "2", []byte(`{}`)))
	assert.Len(t, a, 64)
}

func TestInterestprintAdapter_ListProducts(t *testing.T) {
	a := newTestInterestprint(t, func(path string, body []byte) (int, any) {
		assert.Equal(t, "/product/list", path)
		assert.JSONEq(t, `{"page":1,"page_size":2}`, string(body))
		return http.StatusOK, ok(map[string]any{
			"total": 3,
			"list": []map[string]any{
				{"spu_id": "spu-1", "sku_id": "sku-1", "name": "Mug", "price": "8.00", "on_sale": true},
				{"spu_id": "spu-2", "sku_id": "sku-2", "name": "Cap", "price": "11.00"},
			},
		})
	})

	page, err := a.ListProducts(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Products, 2)
	assert.Equal(t, "spu-1", page.Products[0].PartnerProductID)
	assert.Equal(t, "sku-1", page.Products[0].VariantID)
	assert.False(t, page.Products[1].Available)
}

func TestInterestprintAdapter_SubmitOrder(t *testing.T) {
	a := newTestInterestprint(t, func(path string, body []byte) (int, any) {
		assert.Equal(t, "/order/create", path)
		var req interestprintCreateOrder
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "order-1", req.OutOrderNo)
		require.Len(t, req.Goods, 1)
		assert.Equal(t, 2, req.Goods[0].Num)
		return http.StatusOK, ok(map[string]any{"order_no": "IP100", "out_order_no": "order-1", "state": 0, "create_time": 1760870000})
	})

	res, err := a.SubmitOrder(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "IP100", res.PartnerOrderID)
	assert.Equal(t, integration.PartnerStatusReceived, res.Status)
	assert.Equal(t, int64(1760870000), res.AcceptedAt.Unix())
}

func TestInterestprintAdapter_SubmitOrder_DuplicateResolvesExisting(t *testing.T) {
	a := newTestInterestprint(t, func(path string, body []byte) (int, any) {
		switch path {
		case "/order/create":
			return http.StatusOK, map[string]any{"code": interestprintCodeDuplicate, "msg": "duplicate out_order_no"}
		default:
			assert.JSONEq(t, `{"out_order_no":"order-1"}`, string(body))
			return http.StatusOK, ok(map[string]any{"order_no": "IP-EXIST", "out_order_no": "order-1", "state": 1})
		}
	})

	res, err := a.SubmitOrder(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "IP-EXIST", res.PartnerOrderID)
	assert.Equal(t, integration.PartnerStatusInProduction, res.Status)
}

func TestInterestprintAdapter_EnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		code int
		want error
	}{
		{"auth", interestprintCodeAuth, integration.ErrPartnerAuthFailed},
		{"rate limited", interestprintCodeRateLimited, integration.ErrPartnerRateLimited},
		{"not found", interestprintCodeNotFound, integration.ErrPartnerOrderNotFound},
		{"other", 3005, integration.ErrPartnerRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestInterestprint(t, func(string, []byte) (int, any) {
				return http.StatusOK, map[string]any{"code": tt.code, "msg": "failed"}
			})
			_, err := a.CheckStatus(context.Background(), "IP1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestInterestprintAdapter_HTTPFailure(t *testing.T) {
	a := newTestInterestprint(t, func(string, []byte) (int, any) {
		return http.StatusServiceUnavailable, map[string]any{}
	})
	_, err := a.CheckStatus(context.Background(), "IP1")
	assert.ErrorIs(t, err, integration.ErrPartnerUnavailable)
}

func TestInterestprintAdapter_FindByExternalID(t *testing.T) {
	t.Run("unknown order", func(t *testing.T) {
		a := newTestInterestprint(t, func(string, []byte) (int, any) {
			return http.StatusOK, map[string]any{"code": interestprintCodeNotFound, "msg": "order not exist"}
		})
		_, err := a.FindByExternalID(context.Background(), "order-1")
		assert.ErrorIs(t, err, integration.ErrPartnerOrderNotFound)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		a := newTestInterestprint(t, func(string, []byte) (int, any) {
			return http.StatusNotFound, map[string]any{}
		})
		_, err := a.FindByExternalID(context.Background(), "order-1")
		assert.ErrorIs(t, err, integration.ErrPartnerRequestFailed)
		assert.NotErrorIs(t, err, integration.ErrPartnerOrderNotFound)
	})
}

func TestInterestprintAdapter_CheckStatus(t *testing.T) {
	a := newTestInterestprint(t, func(path string, body []byte) (int, any) {
		assert.Equal(t, "/order/detail", path)
		return http.StatusOK, ok(map[string]any{
			"order_no": "IP1", "out_order_no": "order-1", "state": 2,
			"express_no": "SF123", "express_company": "SF Express", "update_time": 1760870500,
		})
	})

	rep, err := a.CheckStatus(context.Background(), "IP1")
	require.NoError(t, err)
	assert.Equal(t, integration.PartnerStatusShipped, rep.Status)
	assert.Equal(t, "SF123", rep.TrackingNumber)
	assert.Equal(t, "SF Express", rep.Carrier)
}

func TestMapInterestprintState(t *testing.T) {
	assert.Equal(t, integration.PartnerStatusDelivered, mapInterestprintState(3))
	assert.Equal(t, integration.PartnerStatusCancelled, mapInterestprintState(-1))
	assert.Equal(t, integration.PartnerStatusUnknown, mapInterestprintState(42))
}
