package mapper

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/webhook"
)

var fixedTime = time.Date(2026, 10, 19, 8, 30, 0, 0, time.FixedZone("CST", 8*3600))

func TestProductToExternal_Defaults(t *testing.T) {
	p := catalog.Product{ID: "p1", Name: "Plain Mug", Price: decimal.RequireFromString("10"), Stock: 3, Metadata: map[string]string{}}

	ext := ProductToExternal(p)
	assert.Equal(t, "p1", ext.ID)
	assert.Equal(t, "10.00", ext.Price)
	assert.Equal(t, "10.00", ext.RegularPrice)
	assert.Equal(t, DefaultProductType, ext.Type)
	assert.Equal(t, StatusPublish, ext.Status)
	assert.Equal(t, StockInStock, ext.StockStatus)
	assert.True(t, ext.ManageStock)
	assert.Equal(t, "p1", ext.SKU)
	assert.Equal(t, "plain-mug", ext.Slug)
	assert.NotNil(t, ext.Categories)
	assert.NotNil(t, ext.Images)
	assert.NotNil(t, ext.MetaData)

	// every contractual field is present in the JSON even when empty
	raw, err := json.Marshal(ext)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, k := range []string{"id", "name", "type", "status", "sku", "price", "regular_price", "stock_status", "stock_quantity", "manage_stock", "categories", "images", "meta_data", "date_created", "date_modified"} {
		assert.Contains(t, fields, k)
		assert.NotNil(t, fields[k], k)
	}
}

func TestProductToExternal_NilMetadataAndOutOfStock(t *testing.T) {
	ext := ProductToExternal(catalog.Product{ID: "p2", Name: "Cap", Price: decimal.RequireFromString("7.5")})
	assert.Equal(t, "7.50", ext.Price)
	assert.Equal(t, StockOutOfStock, ext.StockStatus)
	assert.Equal(t, StatusDraft, ext.Status)
	assert.False(t, ext.Purchasable)
	assert.Equal(t, []ExternalMeta{}, ext.MetaData)
	assert.Equal(t, []ExternalCategory{}, ext.Categories)
}

func TestProductToExternal_ExplicitValues(t *testing.T) {
	p := catalog.Product{
		ID:        "p3",
		Name:      "Poster",
		Price:     decimal.RequireFromString("12.345"),
		Stock:     0,
		Status:    "private",
		Category:  "Wall Art",
		Images:    []string{"https://img/1.png", "https://img/2.png"},
		Metadata:  map[string]string{"type": "variable", "sku": "POST-1", "zeta": "z", "alpha": "a"},
		CreatedAt: fixedTime,
		UpdatedAt: fixedTime.Add(time.Hour),
	}
	ext := ProductToExternal(p)
	assert.Equal(t, "12.35", ext.Price)
	assert.Equal(t, "private", ext.Status)
	assert.Equal(t, "variable", ext.Type)
	assert.Equal(t, "POST-1", ext.SKU)
	require.Len(t, ext.Categories, 1)
	assert.Equal(t, "wall-art", ext.Categories[0].Slug)
	require.Len(t, ext.Images, 2)
	assert.Equal(t, 1, ext.Images[1].Position)
	assert.Equal(t, "alpha", ext.MetaData[0].Key)
	assert.Equal(t, "zeta", ext.MetaData[len(ext.MetaData)-1].Key)
	assert.Equal(t, "2026-10-19T00:30:00", ext.DateCreated)
	assert.Equal(t, "2026-10-19T01:30:00", ext.DateModified)
}

func TestProductToExternal_ByteIdentical(t *testing.T) {
	p := catalog.Product{
		ID: "p4", Name: "Tee", Price: decimal.RequireFromString("19.99"), Stock: 5,
		Metadata:  map[string]string{"podProvider": "jetprint", "podProductId": "jp-1", "a": "1", "b": "2", "c": "3"},
		CreatedAt: fixedTime, UpdatedAt: fixedTime,
	}
	first, err := json.Marshal(ProductToExternal(p))
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := json.Marshal(ProductToExternal(p))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestExternalOrderStatus(t *testing.T) {
	tests := map[order.Status]string{
		order.StatusPending:          "pending",
		order.StatusPendingPayment:   "pending",
		order.StatusPaid:             "processing",
		order.StatusProcessing:       "processing",
		order.StatusShipped:          "completed",
		order.StatusDelivered:        "completed",
		order.StatusOnHold:           "on-hold",
		order.StatusFulfillmentError: "on-hold",
		order.StatusCancelled:        "cancelled",
		order.StatusRefunded:         "refunded",
		order.StatusPaymentFailed:    "failed",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExternalOrderStatus(in), in)
	}
}

func TestOrderToExternal(t *testing.T) {
	o, err := order.New("o1", order.StatusShipped, []order.Item{
		{ProductID: "p1", Quantity: 2, Price: decimal.RequireFromString("10")},
	})
	require.NoError(t, err)
	o.PartnerOrderID = "jp-9"
	o.PartnerProvider = "jetprint"
	o.FulfillmentAttempts = 1
	o.Tracking = order.Tracking{Number: "1Z", Carrier: "UPS"}

	ext := OrderToExternal(*o)
	assert.Equal(t, "completed", ext.Status)
	assert.Equal(t, "20.00", ext.Total)
	require.Len(t, ext.LineItems, 1)
	assert.Equal(t, "20.00", ext.LineItems[0].Subtotal)
	assert.Equal(t, "10.00", ext.LineItems[0].Price)
	require.NotNil(t, ext.DateCompleted)

	meta := map[string]string{}
	for _, m := range ext.MetaData {
		meta[m.Key] = m.Value
	}
	assert.Equal(t, "jp-9", meta[MetaPartnerOrderID])
	assert.Equal(t, "1", meta[MetaFulfillmentAttempts])
	assert.Equal(t, "1Z", meta[MetaTrackingNumber])
	assert.Equal(t, "SHIPPED", meta[MetaInternalStatus])
	assert.NotContains(t, meta, MetaTrackingURL)
}

func TestSubscriptionToExternal(t *testing.T) {
	s := webhook.Subscription{ID: uuid.New(), Name: "n", Topic: "order.shipped", DeliveryURL: "https://partner/hook", Status: webhook.SubscriptionActive, CreatedAt: fixedTime}
	ext := SubscriptionToExternal(s)
	assert.Equal(t, "order", ext.Resource)
	assert.Equal(t, "shipped", ext.Event)
	assert.Equal(t, "active", ext.Status)
	assert.Equal(t, []ExternalSubscription{}, SubscriptionsToExternal(nil))
}

func TestParsePartnerProduct(t *testing.T) {
	ir, err := ParsePartnerProduct([]byte(`{"provider":"jetprint","product_id":"JP 100","name":" Tee ","price":"12.5","images":["https://img/a.png"]}`))
	require.NoError(t, err)
	assert.Nil(t, ir.VariantID)
	assert.Nil(t, ir.Available)

	p := ProductFromPartner(ir)
	assert.Equal(t, "pod-jetprint-JP~20100", p.ID)
	assert.Equal(t, "Tee", p.Name)
	assert.Equal(t, PODStockLevel, p.Stock)
	assert.True(t, p.IsPOD())
	assert.Equal(t, "JP 100", p.Meta(catalog.MetaPODProductID))
	assert.True(t, p.Price.Equal(decimal.RequireFromString("12.50")))
	require.NoError(t, p.Validate())
}

func TestPODProductID_DistinctPartnerIDsStayDistinct(t *testing.T) {
	assert.NotEqual(t, PODProductID("jetprint", "AB_1"), PODProductID("jetprint", "ab-1"))
	assert.NotEqual(t, PODProductID("jetprint", "a b"), PODProductID("jetprint", "a-b"))
	assert.NotEqual(t, PODProductID("jetprint", "x"), PODProductID("interestprint", "x"))
	assert.Equal(t, "pod-jetprint-~2F~23", PODProductID("jetprint", "/#"))
	assert.Equal(t, "pod-jetprint-AB_1.v2", PODProductID("jetprint", "AB_1.v2"))
}

func TestParsePartnerProduct_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"provider":`},
		{"missing name", `{"provider":"jetprint","product_id":"1","price":"1"}`},
		{"unknown provider", `{"provider":"printful","product_id":"1","name":"x","price":"1"}`},
		{"non numeric price", `{"provider":"jetprint","product_id":"1","name":"x","price":"abc"}`},
		{"negative price", `{"provider":"jetprint","product_id":"1","name":"x","price":"-1"}`},
		{"numeric price type", `{"provider":"jetprint","product_id":"1","name":"x","price":1}`},
		{"bad image url", `{"provider":"jetprint","product_id":"1","name":"x","price":"1","images":["not a url"]}`},
		{"trailing data", `{"provider":"jetprint","product_id":"1","name":"x","price":"1"} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePartnerProduct([]byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestPartnerProductIRFrom_UnavailableHasNoStock(t *testing.T) {
	ir := PartnerProductIRFrom(integration.ProviderInterestPrint, integration.PartnerProduct{
		PartnerProductID: "spu-1", VariantID: "sku-1", Name: "Mug", BasePrice: decimal.RequireFromString("8"),
	})
	require.NoError(t, ir.Validate())
	p := ProductFromPartner(ir)
	assert.Zero(t, p.Stock)
	assert.Equal(t, "sku-1", p.Meta(catalog.MetaPODVariantID))
	sku, ok := p.PartnerSKU()
	assert.True(t, ok)
	assert.Equal(t, "sku-1", sku)
}

func TestParseTrackingUpdate(t *testing.T) {
	t.Run("top level", func(t *testing.T) {
		ir, err := ParseTrackingUpdate([]byte(`{"status":"completed","tracking_number":"1Z","tracking_provider":"UPS","tracking_url":"https://ups.example/1Z"}`))
		require.NoError(t, err)
		u := TrackingFromIR(ir)
		assert.Equal(t, TrackingShipped, u.Event)
		assert.Equal(t, order.Tracking{Number: "1Z", Carrier: "UPS", URL: "https://ups.example/1Z"}, u.Tracking)
	})
	t.Run("meta data only", func(t *testing.T) {
		ir, err := ParseTrackingUpdate([]byte(`{"meta_data":[{"key":"_tracking_number","value":"SF1"},{"key":"_tracking_provider","value":"SF"}]}`))
		require.NoError(t, err)
		u := TrackingFromIR(ir)
		assert.Equal(t, TrackingShipped, u.Event)
		assert.Equal(t, "SF1", u.Tracking.Number)
		assert.Equal(t, "SF", u.Tracking.Carrier)
	})
	t.Run("delivered", func(t *testing.T) {
		ir, err := ParseTrackingUpdate([]byte(`{"status":"delivered"}`))
		require.NoError(t, err)
		assert.Equal(t, TrackingDelivered, TrackingFromIR(ir).Event)
	})
	t.Run("cancelled", func(t *testing.T) {
		ir, err := ParseTrackingUpdate([]byte(`{"status":"cancelled"}`))
		require.NoError(t, err)
		u := TrackingFromIR(ir)
		assert.Equal(t, TrackingCancelled, u.Event)
		assert.NotEmpty(t, u.Reason)
	})
	t.Run("empty", func(t *testing.T) {
		_, err := ParseTrackingUpdate([]byte(`{}`))
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
	t.Run("unsupported status", func(t *testing.T) {
		_, err := ParseTrackingUpdate([]byte(`{"status":"processing","tracking_number":"x"}`))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "status", verr.Fields[0].Field)
	})
}

func TestTrackingFromPartnerStatus(t *testing.T) {
	_, ok := TrackingFromPartnerStatus(integration.OrderStatusReport{Status: integration.PartnerStatusInProduction})
	assert.False(t, ok)

	u, ok := TrackingFromPartnerStatus(integration.OrderStatusReport{Status: integration.PartnerStatusShipped, TrackingNumber: "1Z"})
	assert.True(t, ok)
	assert.Equal(t, TrackingShipped, u.Event)
	assert.Equal(t, "1Z", u.Tracking.Number)
}
