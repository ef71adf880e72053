package dto

import (
	"strings"
	"time"
)

// TokenRequest is the credential exchange body
type TokenRequest struct {
	ConsumerKey    string `json:"consumer_key" form:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret" form:"consumer_secret"`
}

// TokenResponse echoes a validated pair with its permissions
type TokenResponse struct {
	ConsumerKey    string   `json:"consumer_key"`
	ConsumerSecret string   `json:"consumer_secret"`
	Permissions    []string `json:"permissions"`
}

// CreateWebhookRequest registers a subscription. deliveryUrl is accepted
// alongside WooCommerce's delivery_url.
type CreateWebhookRequest struct {
	Name           string `json:"name"`
	Topic          string `json:"topic"`
	DeliveryURL    string `json:"delivery_url"`
	DeliveryURLAlt string `json:"deliveryUrl"`
}

// URL returns whichever delivery URL spelling was sent
func (r CreateWebhookRequest) URL() string {
	if u := strings.TrimSpace(r.DeliveryURL); u != "" {
		return u
	}
	return strings.TrimSpace(r.DeliveryURLAlt)
}

// LoginRequest is the admin login body
type LoginRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Password string `json:"password" binding:"required,max=128"`
}

// IssueCredentialRequest creates a partner credential
type IssueCredentialRequest struct {
	OwnerID     string   `json:"owner_id" binding:"required,max=100"`
	Description string   `json:"description" binding:"max=255"`
	Permissions []string `json:"permissions" binding:"required,min=1,dive,oneof=read write"`
}

// CredentialResponse describes a credential. The secret is only filled
// in the issuance response.
type CredentialResponse struct {
	ID             string     `json:"id"`
	ConsumerKey    string     `json:"consumer_key"`
	ConsumerSecret string     `json:"consumer_secret,omitempty"`
	OwnerID        string     `json:"owner_id"`
	Description    string     `json:"description,omitempty"`
	Permissions    []string   `json:"permissions"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CronRunResponse is the scheduled trigger result
type CronRunResponse struct {
	Success   bool      `json:"success"`
	Scanned   int       `json:"scanned"`
	Forwarded int       `json:"forwarded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryResponse is one queued webhook push
type DeliveryResponse struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	Topic          string    `json:"topic"`
	TargetURL      string    `json:"target_url"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	MaxAttempts    int       `json:"max_attempts"`
	NextAttemptAt  time.Time `json:"next_attempt_at"`
	LastStatusCode int       `json:"last_status_code,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ForwardResponse reports a single-order forward
type ForwardResponse struct {
	OrderID string `json:"order_id"`
	Outcome string `json:"outcome"`
}

// ArchiveResponse reports where a snapshot was written
type ArchiveResponse struct {
	Key     string `json:"key"`
	Entries int    `json:"entries"`
}
