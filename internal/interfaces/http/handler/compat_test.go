package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/application/fulfillment"
	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/application/podauth"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/credential"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

type compatFixture struct {
	exchanger *MockExchanger
	products  *MockProductRepository
	orders    *MockOrderRepository
	webhooks  *MockWebhookRegistry
	engine    *MockEngine
	handler   *CompatHandler
	router    *gin.Engine
}

func newCompatFixture(verdict *podauth.Verdict) *compatFixture {
	f := &compatFixture{
		exchanger: new(MockExchanger),
		products:  new(MockProductRepository),
		orders:    new(MockOrderRepository),
		webhooks:  new(MockWebhookRegistry),
		engine:    new(MockEngine),
	}
	f.handler = NewCompatHandler(f.exchanger, f.products, f.orders, f.webhooks, f.engine, f.engine, StoreInfo{
		Name:        "Test Store",
		Environment: "test",
		Version:     "1.2.3",
		BaseURL:     "https://shop.example.com",
		Currency:    "EUR",
		Provider:    "printful",
		Enabled:     true,
		Interval:    5 * time.Minute,
	})

	r := gin.New()
	if verdict != nil {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.PODVerdictKey, *verdict)
			c.Next()
		})
	}
	r.POST("/auth/token", f.handler.ExchangeToken)
	r.GET("/products", f.handler.ListProducts)
	r.GET("/products/:id", f.handler.GetProduct)
	r.GET("/webhooks", f.handler.ListWebhooks)
	r.POST("/webhooks", f.handler.CreateWebhook)
	r.DELETE("/webhooks/:id", f.handler.DeleteWebhook)
	r.GET("/orders", f.handler.ListOrders)
	r.GET("/orders/:id", f.handler.GetOrder)
	r.PUT("/orders/:id", f.handler.UpdateOrder)
	r.GET("/system_status", f.handler.SystemStatus)
	f.router = r
	return f
}

func (f *compatFixture) do(method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeWoo(t *testing.T, w *httptest.ResponseRecorder) dto.WooError {
	t.Helper()
	var e dto.WooError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

func sampleProduct(id string) catalog.Product {
	return catalog.Product{
		ID:        id,
		Name:      "Mug " + id,
		Price:     decimal.RequireFromString("12.50"),
		Stock:     3,
		Category:  "Drinkware",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func sampleOrder(t *testing.T, id string, status order.Status) *order.Order {
	t.Helper()
	o, err := order.New(id, status, []order.Item{{ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("12.50")}})
	require.NoError(t, err)
	return o
}

func TestCompatHandler_ExchangeToken(t *testing.T) {
	t.Run("valid pair", func(t *testing.T) {
		f := newCompatFixture(nil)
		set, err := credential.NewPermissionSet(credential.PermissionRead, credential.PermissionWrite)
		require.NoError(t, err)
		f.exchanger.On("Exchange", mock.Anything, "ck_1", "cs_1").
			Return(podauth.Verdict{Valid: true, OwnerID: "partner", Permissions: set}, nil)

		w := f.do(http.MethodPost, "/auth/token", []byte(`{"consumer_key":"ck_1","consumer_secret":"cs_1"}`))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp dto.TokenResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "ck_1", resp.ConsumerKey)
		assert.Equal(t, []string{"read", "write"}, resp.Permissions)
		f.exchanger.AssertExpectations(t)
	})

	t.Run("missing field", func(t *testing.T) {
		f := newCompatFixture(nil)
		f.exchanger.On("Exchange", mock.Anything, "ck_1", "").
			Return(podauth.Verdict{}, podauth.ErrMissingCredentials)

		w := f.do(http.MethodPost, "/auth/token", []byte(`{"consumer_key":"ck_1"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.WooCodeInvalidParam, decodeWoo(t, w).Code)
	})

	t.Run("invalid pair", func(t *testing.T) {
		f := newCompatFixture(nil)
		f.exchanger.On("Exchange", mock.Anything, "ck_1", "wrong").
			Return(podauth.Verdict{}, podauth.ErrInvalidCredentials)

		w := f.do(http.MethodPost, "/auth/token", []byte(`{"consumer_key":"ck_1","consumer_secret":"wrong"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		e := decodeWoo(t, w)
		assert.Equal(t, dto.WooCodeCannotView, e.Code)
		assert.Equal(t, dto.WooUnauthorizedMessage, e.Message)
		assert.Equal(t, http.StatusUnauthorized, e.Data.Status)
	})
}

func TestCompatHandler_ListProducts(t *testing.T) {
	f := newCompatFixture(nil)
	f.products.On("List", mock.Anything, catalog.ListFilter{Search: "mug", Page: 2, PageSize: 2}).
		Return([]catalog.Product{sampleProduct("p3"), sampleProduct("p4")}, int64(5), nil)

	w := f.do(http.MethodGet, "/products?page=2&per_page=2&search=mug", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "5", w.Header().Get(dto.HeaderTotal))
	assert.Equal(t, "3", w.Header().Get(dto.HeaderTotalPages))
	assert.Equal(t, "5", w.Header().Get(dto.HeaderWPTotal))
	assert.Equal(t, "3", w.Header().Get(dto.HeaderWPTotalPages))

	var body []mapper.ExternalProduct
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "p3", body[0].ID)
	assert.Equal(t, "12.50", body[0].Price)
	f.products.AssertExpectations(t)
}

func TestCompatHandler_ListProducts_InvalidPerPage(t *testing.T) {
	f := newCompatFixture(nil)

	w := f.do(http.MethodGet, "/products?per_page=500", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.WooCodeInvalidParam, decodeWoo(t, w).Code)
	f.products.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestCompatHandler_GetProduct(t *testing.T) {
	f := newCompatFixture(nil)
	p := sampleProduct("p1")
	f.products.On("FindByID", mock.Anything, "p1").Return(&p, nil)
	f.products.On("FindByID", mock.Anything, "missing").Return(nil, catalog.ErrProductNotFound)

	w := f.do(http.MethodGet, "/products/p1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Mug p1"`)

	w = f.do(http.MethodGet, "/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, dto.WooCodeInvalidID, decodeWoo(t, w).Code)
}

func TestCompatHandler_CreateWebhook(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		f := newCompatFixture(nil)
		sub := &webhook.Subscription{
			ID:          uuid.New(),
			Name:        "orders",
			Topic:       webhook.TopicOrderCreated,
			DeliveryURL: "https://partner.example.com/hook",
			Secret:      "s3cret",
			Status:      webhook.SubscriptionActive,
			CreatedAt:   time.Now(),
		}
		f.webhooks.On("Register", mock.Anything, "orders", webhook.TopicOrderCreated, "https://partner.example.com/hook").
			Return(sub, nil)

		w := f.do(http.MethodPost, "/webhooks",
			[]byte(`{"name":"orders","topic":"order.created","deliveryUrl":" https://partner.example.com/hook "}`))

		require.Equal(t, http.StatusCreated, w.Code)
		var body mapper.ExternalSubscription
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, sub.ID.String(), body.ID)
		assert.Equal(t, "order.created", body.Topic)
	})

	t.Run("validation error uses bare body", func(t *testing.T) {
		f := newCompatFixture(nil)
		f.webhooks.On("Register", mock.Anything, "orders", webhook.Topic("order.exploded"), "https://partner.example.com/hook").
			Return(nil, webhook.ErrUnknownTopic)

		w := f.do(http.MethodPost, "/webhooks",
			[]byte(`{"name":"orders","topic":"order.exploded","delivery_url":"https://partner.example.com/hook"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body dto.SimpleError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, webhook.ErrUnknownTopic.Error(), body.Error)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		f := newCompatFixture(nil)

		w := f.do(http.MethodPost, "/webhooks", []byte(`{"name":`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"invalid JSON body"}`, w.Body.String())
	})
}

func TestCompatHandler_DeleteWebhook(t *testing.T) {
	f := newCompatFixture(nil)
	id := uuid.New()
	missing := uuid.New()
	f.webhooks.On("Disable", mock.Anything, id).Return(&webhook.Subscription{ID: id, Name: "orders", Topic: webhook.TopicOrderUpdated}, nil)
	f.webhooks.On("Disable", mock.Anything, missing).Return(nil, webhook.ErrSubscriptionNotFound)

	w := f.do(http.MethodDelete, "/webhooks/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodDelete, "/webhooks/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodDelete, "/webhooks/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.webhooks.AssertNumberOfCalls(t, "Disable", 2)
}

func TestCompatHandler_ListOrders_StatusFilter(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		status order.Status
	}{
		{"no filter", "", ""},
		{"any", "?status=any", ""},
		{"woo completed", "?status=completed", order.StatusShipped},
		{"woo on-hold", "?status=on-hold", order.StatusOnHold},
		{"internal name", "?status=pending-payment", order.StatusPendingPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCompatFixture(nil)
			f.orders.On("List", mock.Anything, order.ListFilter{Status: tt.status, Page: 1, PageSize: 10}).
				Return([]order.Order{*sampleOrder(t, "o1", order.StatusPaid)}, int64(1), nil)

			w := f.do(http.MethodGet, "/orders"+tt.query, nil)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "1", w.Header().Get(dto.HeaderTotal))
			assert.Equal(t, "1", w.Header().Get(dto.HeaderTotalPages))
			f.orders.AssertExpectations(t)
		})
	}

	t.Run("unknown status", func(t *testing.T) {
		f := newCompatFixture(nil)

		w := f.do(http.MethodGet, "/orders?status=teleported", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		f.orders.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
	})
}

func TestCompatHandler_GetOrder(t *testing.T) {
	f := newCompatFixture(nil)
	f.orders.On("FindByID", mock.Anything, "o1").Return(sampleOrder(t, "o1", order.StatusShipped), nil)
	f.orders.On("FindByID", mock.Anything, "o2").Return(nil, order.ErrOrderNotFound)

	w := f.do(http.MethodGet, "/orders/o1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body mapper.ExternalOrder
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "completed", body.Status)
	assert.Equal(t, "25.00", body.Total)

	w = f.do(http.MethodGet, "/orders/o2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompatHandler_UpdateOrder(t *testing.T) {
	shipped := mapper.TrackingUpdate{
		Event:    mapper.TrackingShipped,
		Tracking: order.Tracking{Number: "1Z999", Carrier: "UPS"},
	}
	body := []byte(`{"tracking_number":"1Z999","tracking_provider":"UPS"}`)

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"applied", nil, http.StatusOK},
		{"not found", order.ErrOrderNotFound, http.StatusNotFound},
		{"invalid transition", order.ErrInvalidTransition, http.StatusBadRequest},
		{"concurrent update", fulfillment.ErrConflict, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCompatFixture(nil)
			if tt.err == nil {
				o := sampleOrder(t, "o1", order.StatusShipped)
				o.Tracking = shipped.Tracking
				f.engine.On("ApplyTrackingUpdate", mock.Anything, "o1", shipped).Return(o, nil)
			} else {
				f.engine.On("ApplyTrackingUpdate", mock.Anything, "o1", shipped).Return(nil, tt.err)
			}

			w := f.do(http.MethodPut, "/orders/o1", body)

			assert.Equal(t, tt.wantStatus, w.Code)
			f.engine.AssertExpectations(t)
		})
	}

	t.Run("invalid payload", func(t *testing.T) {
		f := newCompatFixture(nil)

		w := f.do(http.MethodPut, "/orders/o1", []byte(`{"status":"teleported"}`))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.WooCodeInvalidParam, decodeWoo(t, w).Code)
		f.engine.AssertNotCalled(t, "ApplyTrackingUpdate", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCompatHandler_SystemStatus(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		f := newCompatFixture(nil)
		f.engine.On("Config").Return(fulfillment.Config{MaxAttempts: 3})
		f.engine.On("LastRun").Return(nil)

		w := f.do(http.MethodGet, "/system_status", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["authentication"]["authenticated"])
		assert.Equal(t, []any{}, body["authentication"]["permissions"])
		assert.Equal(t, "EUR", body["settings"]["currency"])
		assert.Equal(t, "https://shop.example.com", body["environment"]["home_url"])
		assert.Equal(t, "printful", body["pod_integration"]["provider"])
		assert.Equal(t, float64(3), body["pod_integration"]["max_attempts"])
		assert.Equal(t, "5m0s", body["pod_integration"]["interval"])
		assert.Nil(t, body["pod_integration"]["last_run"])
	})

	t.Run("authenticated with last run", func(t *testing.T) {
		set, err := credential.NewPermissionSet(credential.PermissionRead)
		require.NoError(t, err)
		f := newCompatFixture(&podauth.Verdict{Valid: true, Permissions: set})
		f.engine.On("Config").Return(fulfillment.Config{MaxAttempts: 5})
		f.engine.On("LastRun").Return(&fulfillment.Summary{Scanned: 4, Forwarded: 3, Failed: 1})

		w := f.do(http.MethodGet, "/system_status", nil)

		require.Equal(t, http.StatusOK, w.Code)
		var body map[string]map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, true, body["authentication"]["authenticated"])
		assert.Equal(t, []any{"read"}, body["authentication"]["permissions"])
		lastRun, ok := body["pod_integration"]["last_run"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, float64(3), lastRun["forwarded"])
	})
}
