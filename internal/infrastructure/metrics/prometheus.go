// Package metrics exposes the gateway's Prometheus collectors on a
// dedicated registry scraped at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storefront/backend/internal/domain/integration"
)

const namespace = "pod"

// Recorder holds every collector. All methods are safe on a nil receiver so
// components can run without metrics in tests.
type Recorder struct {
	registry *prometheus.Registry

	webhookDeliveries *prometheus.CounterVec
	webhookDuration   *prometheus.HistogramVec
	partnerRequests   *prometheus.CounterVec
	partnerDuration   *prometheus.HistogramVec
	fulfillmentRuns   *prometheus.CounterVec
	fulfillmentOrders *prometheus.CounterVec
	lastRun           prometheus.Gauge
}

// NewRecorder creates a recorder on a fresh registry with Go and process
// collectors attached.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		webhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery attempts by topic and outcome.",
		}, []string{"topic", "outcome"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_delivery_duration_seconds",
			Help:      "Webhook delivery latency in seconds.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"topic"}),
		partnerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partner_requests_total",
			Help:      "POD partner API calls by provider, operation and HTTP status.",
		}, []string{"provider", "operation", "status"}),
		partnerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "partner_request_duration_seconds",
			Help:      "POD partner API latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "operation"}),
		fulfillmentRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_runs_total",
			Help:      "Fulfillment engine runs by result.",
		}, []string{"result"}),
		fulfillmentOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_orders_total",
			Help:      "Orders handled by the fulfillment engine by outcome.",
		}, []string{"outcome"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fulfillment_last_run_timestamp_seconds",
			Help:      "Unix time the last fulfillment run finished.",
		}),
	}

	r.registry.MustRegister(
		r.webhookDeliveries,
		r.webhookDuration,
		r.partnerRequests,
		r.partnerDuration,
		r.fulfillmentRuns,
		r.fulfillmentOrders,
		r.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveWebhookDelivery records one delivery attempt. outcome is one of
// delivered, retry or failed.
func (r *Recorder) ObserveWebhookDelivery(topic, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.webhookDeliveries.WithLabelValues(topic, outcome).Inc()
	r.webhookDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// ObservePartnerRequest matches pod.RequestObserver
func (r *Recorder) ObservePartnerRequest(provider integration.ProviderCode, operation string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	r.partnerRequests.WithLabelValues(string(provider), operation, code).Inc()
	r.partnerDuration.WithLabelValues(string(provider), operation).Observe(elapsed.Seconds())
}

// ObserveFulfillmentRun records a finished engine run
func (r *Recorder) ObserveFulfillmentRun(err error, forwarded, failed, skipped, reconciled int, finishedAt time.Time) {
	if r == nil {
		return
	}
	if err != nil {
		r.fulfillmentRuns.WithLabelValues("error").Inc()
		return
	}
	r.fulfillmentRuns.WithLabelValues("ok").Inc()
	r.fulfillmentOrders.WithLabelValues("forwarded").Add(float64(forwarded))
	r.fulfillmentOrders.WithLabelValues("failed").Add(float64(failed))
	r.fulfillmentOrders.WithLabelValues("skipped").Add(float64(skipped))
	r.fulfillmentOrders.WithLabelValues("reconciled").Add(float64(reconciled))
	r.lastRun.Set(float64(finishedAt.Unix()))
}
