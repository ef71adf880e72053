// Package pod contains the POD partner adapters (JetPrint, InterestPrint)
// and the registry that selects the configured one.
package pod

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/storefront/backend/internal/domain/integration"
)

// maxResponseSize caps how much of a partner response body is read (10MB)
const maxResponseSize = 10 * 1024 * 1024

// RequestObserver is notified after every partner HTTP call. status is 0
// when no response was received.
type RequestObserver func(provider integration.ProviderCode, operation string, status int, elapsed time.Duration)

// Option configures an adapter
type Option func(*httpClient)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(h *httpClient) { h.client = c }
}

// WithObserver installs a request observer, typically for metrics
func WithObserver(o RequestObserver) Option {
	return func(h *httpClient) { h.observe = o }
}

// WithRateLimit overrides the request pacing (requests per second, burst)
func WithRateLimit(rps float64, burst int) Option {
	return func(h *httpClient) { h.limiter = newLimiter(rps, burst) }
}

// httpClient is the transport shared by adapters: pacing, size limits,
// status classification and observation.
type httpClient struct {
	provider integration.ProviderCode
	client   *http.Client
	limiter  *rate.Limiter
	observe  RequestObserver
}

func newHTTPClient(provider integration.ProviderCode, timeout time.Duration, rps float64, burst int, opts ...Option) *httpClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	h := &httpClient{
		provider: provider,
		client:   &http.Client{Timeout: timeout},
		limiter:  newLimiter(rps, burst),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// do sends req after waiting for the limiter and returns status and body.
// Transport failures wrap ErrPartnerUnavailable; context errors are kept
// so callers can tell a deadline from a refusal.
func (h *httpClient) do(ctx context.Context, operation string, req *http.Request) (int, []byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("%w: rate limiter: %w", integration.ErrPartnerUnavailable, err)
	}

	start := time.Now()
	resp, err := h.client.Do(req.WithContext(ctx))
	if err != nil {
		h.record(operation, 0, start)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, fmt.Errorf("%w: %s: %w", integration.ErrPartnerUnavailable, h.provider, ctxErr)
		}
		return 0, nil, fmt.Errorf("%w: %s: %v", integration.ErrPartnerUnavailable, h.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	h.record(operation, resp.StatusCode, start)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: %s: reading response: %v", integration.ErrPartnerUnavailable, h.provider, err)
	}
	return resp.StatusCode, body, nil
}

func (h *httpClient) record(operation string, status int, start time.Time) {
	if h.observe != nil {
		h.observe(h.provider, operation, status, time.Since(start))
	}
}

// newJSONRequest builds a request with a JSON body (nil for none)
func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// classifyStatus maps a non-2xx HTTP status to the partner error taxonomy
func classifyStatus(provider integration.ProviderCode, status int, detail string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s: HTTP %d", integration.ErrPartnerAuthFailed, provider, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", integration.ErrPartnerRateLimited, provider)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", integration.ErrPartnerOrderNotFound, provider)
	case status >= 500:
		return fmt.Errorf("%w: %s: HTTP %d", integration.ErrPartnerUnavailable, provider, status)
	case status >= 400:
		if detail == "" {
			detail = http.StatusText(status)
		}
		return fmt.Errorf("%w: %s: HTTP %d: %s", integration.ErrPartnerRejected, provider, status, detail)
	}
	return nil
}
