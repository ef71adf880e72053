package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/integration"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.ObserveWebhookDelivery("order.shipped", "delivered", 20*time.Millisecond)
	r.ObserveWebhookDelivery("order.shipped", "delivered", 30*time.Millisecond)
	r.ObserveWebhookDelivery("order.shipped", "retry", time.Second)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.webhookDeliveries.WithLabelValues("order.shipped", "delivered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.webhookDeliveries.WithLabelValues("order.shipped", "retry")))

	r.ObservePartnerRequest(integration.ProviderJetprint, "submit_order", 201, 10*time.Millisecond)
	r.ObservePartnerRequest(integration.ProviderJetprint, "submit_order", 0, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.partnerRequests.WithLabelValues("jetprint", "submit_order", "201")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.partnerRequests.WithLabelValues("jetprint", "submit_order", "error")))

	finished := time.Unix(1760870000, 0)
	r.ObserveFulfillmentRun(nil, 3, 1, 2, 0, finished)
	r.ObserveFulfillmentRun(errors.New("db down"), 0, 0, 0, 0, finished)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fulfillmentRuns.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fulfillmentRuns.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.fulfillmentOrders.WithLabelValues("forwarded")))
	assert.Equal(t, 1760870000.0, testutil.ToFloat64(r.lastRun))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveWebhookDelivery("order.updated", "failed", time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pod_webhook_deliveries_total{outcome="failed",topic="order.updated"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRecorder_NilSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveWebhookDelivery("t", "delivered", 0)
		r.ObservePartnerRequest(integration.ProviderJetprint, "op", 200, 0)
		r.ObserveFulfillmentRun(nil, 1, 0, 0, 0, time.Now())
	})
	assert.Nil(t, r.Registry())
}
