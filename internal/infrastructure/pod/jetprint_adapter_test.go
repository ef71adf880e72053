package pod

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/infrastructure/config"
)

func newTestJetprint(t *testing.T, handler http.HandlerFunc, opts ...Option) *JetprintAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	a, err := NewJetprintAdapter(config.PartnerConfig{BaseURL: srv.URL, APIKey: "jp-key", Timeout: 2 * time.Second}, opts...)
	require.NoError(t, err)
	return a
}

func sampleRequest() *integration.FulfillmentRequest {
	return &integration.FulfillmentRequest{
		LocalOrderID: "order-1",
		Currency:     "USD",
		Total:        decimal.RequireFromString("39.98"),
		Lines: []integration.FulfillmentLine{
			{ProductID: "p1", SKU: "JP-TEE-M", Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		},
	}
}

func TestNewJetprintAdapter_Validation(t *testing.T) {
	_, err := NewJetprintAdapter(config.PartnerConfig{BaseURL: "https://api.example.com"})
	assert.ErrorIs(t, err, ErrJetprintMissingAPIKey)

	_, err = NewJetprintAdapter(config.PartnerConfig{BaseURL: "not a url", APIKey: "k"})
	assert.Error(t, err)
}

func TestJetprintAdapter_ListProducts(t *testing.T) {
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jp-key", r.Header.Get("Authorization"))
		assert.Equal(t, "/products", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"data":[{"id":"jp-1","variant_id":"v1","title":"Tee","price":"12.50","images":["a.png"],"in_stock":true}],"page":2,"has_more":true}`))
	})

	page, err := a.ListProducts(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	require.Len(t, page.Products, 1)
	p := page.Products[0]
	assert.Equal(t, "jp-1", p.PartnerProductID)
	assert.Equal(t, "Tee", p.Name)
	assert.True(t, p.BasePrice.Equal(decimal.RequireFromString("12.5")))
	assert.True(t, p.Available)
}

func TestJetprintAdapter_ListProducts_BadPrice(t *testing.T) {
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":"jp-1","price":"free"}]}`))
	})
	_, err := a.ListProducts(context.Background(), 1, 10)
	assert.ErrorIs(t, err, integration.ErrPartnerInvalidResponse)
}

func TestJetprintAdapter_SubmitOrder(t *testing.T) {
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body jetprintCreateOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "order-1", body.ExternalID)
		assert.Equal(t, "39.98", body.Total)
		require.Len(t, body.Items, 1)
		assert.Equal(t, "JP-TEE-M", body.Items[0].SKU)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"jp-order-9","external_id":"order-1","status":"received","created_at":"2026-10-19T10:00:00Z"}`))
	})

	res, err := a.SubmitOrder(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "jp-order-9", res.PartnerOrderID)
	assert.Equal(t, integration.PartnerStatusReceived, res.Status)
	assert.Equal(t, 2026, res.AcceptedAt.Year())
}

func TestJetprintAdapter_SubmitOrder_ConflictIsAcceptance(t *testing.T) {
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"duplicate","id":"jp-order-existing"}`))
	})

	res, err := a.SubmitOrder(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "jp-order-existing", res.PartnerOrderID)
}

func TestJetprintAdapter_SubmitOrder_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, integration.ErrPartnerAuthFailed},
		{"rate limited", http.StatusTooManyRequests, integration.ErrPartnerRateLimited},
		{"unprocessable", http.StatusUnprocessableEntity, integration.ErrPartnerRejected},
		{"server error", http.StatusBadGateway, integration.ErrPartnerUnavailable},
		{"missing endpoint", http.StatusNotFound, integration.ErrPartnerRequestFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			})
			_, err := a.SubmitOrder(context.Background(), sampleRequest())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJetprintAdapter_SubmitOrder_InvalidRequestNeverSent(t *testing.T) {
	var calls atomic.Int32
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	_, err := a.SubmitOrder(context.Background(), &integration.FulfillmentRequest{LocalOrderID: "o"})
	assert.ErrorIs(t, err, integration.ErrInvalidFulfillmentRequest)
	assert.Zero(t, calls.Load())
}

func TestJetprintAdapter_CheckStatus(t *testing.T) {
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders/jp-order-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"jp-order-9","external_id":"order-1","status":"shipped","tracking":{"number":"1Z999","carrier":"UPS","url":"https://t.example/1Z999"}}`))
	})

	rep, err := a.CheckStatus(context.Background(), "jp-order-9")
	require.NoError(t, err)
	assert.Equal(t, integration.PartnerStatusShipped, rep.Status)
	assert.Equal(t, "1Z999", rep.TrackingNumber)
	assert.Equal(t, "UPS", rep.Carrier)
	assert.Equal(t, "order-1", rep.LocalOrderID)
}

func TestJetprintAdapter_FindByExternalID(t *testing.T) {
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("external_id") == "order-1" {
			_, _ = w.Write([]byte(`{"data":[{"id":"jp-order-9","external_id":"order-1","status":"printing"}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})

	rep, err := a.FindByExternalID(context.Background(), "order-1")
	require.NoError(t, err)
	assert.Equal(t, "jp-order-9", rep.PartnerOrderID)
	assert.Equal(t, integration.PartnerStatusInProduction, rep.Status)

	_, err = a.FindByExternalID(context.Background(), "order-2")
	assert.ErrorIs(t, err, integration.ErrPartnerOrderNotFound)
}

func TestJetprintAdapter_FindByExternalID_MissingEndpointIsNotAnUnknownOrder(t *testing.T) {
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := a.FindByExternalID(context.Background(), "order-1")
	assert.ErrorIs(t, err, integration.ErrPartnerRequestFailed)
	assert.NotErrorIs(t, err, integration.ErrPartnerOrderNotFound)
}

func TestJetprintAdapter_ObserverAndTimeout(t *testing.T) {
	var observed []int
	a := newTestJetprint(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}, WithObserver(func(_ integration.ProviderCode, op string, status int, _ time.Duration) {
		assert.Equal(t, "check_status", op)
		observed = append(observed, status)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := a.CheckStatus(ctx, "x")
	assert.ErrorIs(t, err, integration.ErrPartnerUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, integration.IsTransient(err))
	assert.Equal(t, []int{0}, observed)
}
