package podauth

import (
	"net/http"
	"strings"
)

// Header names WooCommerce clients use for header-based auth
const (
	HeaderConsumerKey    = "X-WC-Consumer-Key"
	HeaderConsumerSecret = "X-WC-Consumer-Secret"
)

// ExtractCredentials reads a consumer key/secret from r. Basic auth wins,
// then the X-WC headers, then the consumer_key/consumer_secret query
// parameters. ok is false when no complete pair is present.
func ExtractCredentials(r *http.Request) (key, secret string, ok bool) {
	if k, s, found := r.BasicAuth(); found && k != "" && s != "" {
		return k, s, true
	}
	if k, s := strings.TrimSpace(r.Header.Get(HeaderConsumerKey)), strings.TrimSpace(r.Header.Get(HeaderConsumerSecret)); k != "" && s != "" {
		return k, s, true
	}
	q := r.URL.Query()
	if k, s := q.Get("consumer_key"), q.Get("consumer_secret"); k != "" && s != "" {
		return k, s, true
	}
	return "", "", false
}
