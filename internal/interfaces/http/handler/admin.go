package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/storefront/backend/internal/application/fulfillment"
	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/domain/credential"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/storage"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// dummyHash keeps login timing the same whether or not the username matched
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-the-password"), bcrypt.MinCost)

// TokenIssuer signs admin tokens
type TokenIssuer interface {
	Generate(username string) (*auth.Token, error)
}

// CredentialManager issues and revokes partner credentials
type CredentialManager interface {
	Issue(ctx context.Context, ownerID, description string, perms ...credential.Permission) (*credential.Credential, error)
	Revoke(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]credential.Credential, error)
}

// WebhookAdmin is the admin view of the webhook registry
type WebhookAdmin interface {
	List(ctx context.Context) ([]webhook.Subscription, error)
	Disable(ctx context.Context, id uuid.UUID) (*webhook.Subscription, error)
	Deliveries(ctx context.Context, id uuid.UUID, limit int) ([]webhook.Delivery, error)
}

// OrderOperator runs manual fulfillment actions
type OrderOperator interface {
	ForwardOrder(ctx context.Context, id string) (fulfillment.Outcome, error)
	Resume(ctx context.Context, id string) (*order.Order, error)
}

// ProductSyncer pulls the active partner's catalog
type ProductSyncer interface {
	Sync(ctx context.Context) (*fulfillment.SyncResult, error)
}

// AdminCredentials is the configured operator account
type AdminCredentials struct {
	Username     string
	PasswordHash string
}

// AdminHandler serves /api/admin
type AdminHandler struct {
	BaseHandler
	admin       AdminCredentials
	tokens      TokenIssuer
	credentials CredentialManager
	webhooks    WebhookAdmin
	orders      OrderOperator
	sync        ProductSyncer
	logs        *logger.RingBuffer
	archive     storage.Sink
	prefix      string
	now         func() time.Time
}

// AdminDeps groups AdminHandler collaborators. Archive may be nil when
// object storage is disabled.
type AdminDeps struct {
	Admin         AdminCredentials
	Tokens        TokenIssuer
	Credentials   CredentialManager
	Webhooks      WebhookAdmin
	Orders        OrderOperator
	Sync          ProductSyncer
	Logs          *logger.RingBuffer
	Archive       storage.Sink
	ArchivePrefix string
}

// NewAdminHandler creates an AdminHandler
func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{
		admin:       deps.Admin,
		tokens:      deps.Tokens,
		credentials: deps.Credentials,
		webhooks:    deps.Webhooks,
		orders:      deps.Orders,
		sync:        deps.Sync,
		logs:        deps.Logs,
		archive:     deps.Archive,
		prefix:      deps.ArchivePrefix,
		now:         time.Now,
	}
}

// Login handles POST /api/admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, "username and password are required")
		return
	}

	userOK := h.admin.Username != "" &&
		subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.admin.Username)) == 1
	hash := []byte(h.admin.PasswordHash)
	if !userOK || len(hash) == 0 {
		hash = dummyHash
	}
	passOK := bcrypt.CompareHashAndPassword(hash, []byte(req.Password)) == nil
	if !userOK || !passOK {
		logger.GetGinLogger(c).Warn("Admin login rejected", zap.String("username", req.Username))
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidCredentials, "Invalid username or password")
		return
	}

	token, err := h.tokens.Generate(h.admin.Username)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, token)
}

// IssueCredential handles POST /api/admin/credentials
func (h *AdminHandler) IssueCredential(c *gin.Context) {
	var req dto.IssueCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
		return
	}
	perms := make([]credential.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, credential.Permission(p))
	}

	cred, err := h.credentials.Issue(c.Request.Context(), req.OwnerID, req.Description, perms...)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := credentialResponse(*cred)
	resp.ConsumerSecret = cred.Secret
	h.Created(c, resp)
}

// ListCredentials handles GET /api/admin/credentials. Secrets are never listed.
func (h *AdminHandler) ListCredentials(c *gin.Context) {
	creds, err := h.credentials.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.CredentialResponse, 0, len(creds))
	for _, cred := range creds {
		out = append(out, credentialResponse(cred))
	}
	h.Success(c, out)
}

// RevokeCredential handles DELETE /api/admin/credentials/:id
func (h *AdminHandler) RevokeCredential(c *gin.Context) {
	id, ok := h.uuidParam(c)
	if !ok {
		return
	}
	if err := h.credentials.Revoke(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"id": id.String(), "revoked": true})
}

// ListWebhooks handles GET /api/admin/webhooks
func (h *AdminHandler) ListWebhooks(c *gin.Context) {
	subs, err := h.webhooks.List(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, mapper.SubscriptionsToExternal(subs))
}

// DisableWebhook handles DELETE /api/admin/webhooks/:id
func (h *AdminHandler) DisableWebhook(c *gin.Context) {
	id, ok := h.uuidParam(c)
	if !ok {
		return
	}
	sub, err := h.webhooks.Disable(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, mapper.SubscriptionToExternal(*sub))
}

// ListDeliveries handles GET /api/admin/webhooks/:id/deliveries?limit=
func (h *AdminHandler) ListDeliveries(c *gin.Context) {
	id, ok := h.uuidParam(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	limit = min(max(limit, 0), 200)

	deliveries, err := h.webhooks.Deliveries(c.Request.Context(), id, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	out := make([]dto.DeliveryResponse, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, dto.DeliveryResponse{
			ID:             d.ID.String(),
			SubscriptionID: d.SubscriptionID.String(),
			Topic:          string(d.Topic),
			TargetURL:      d.TargetURL,
			Status:         string(d.Status),
			Attempts:       d.Attempts,
			MaxAttempts:    d.MaxAttempts,
			NextAttemptAt:  d.NextAttemptAt,
			LastStatusCode: d.LastStatusCode,
			LastError:      d.LastError,
			CreatedAt:      d.CreatedAt,
		})
	}
	h.Success(c, out)
}

// ForwardOrder handles POST /api/admin/orders/:id/forward
func (h *AdminHandler) ForwardOrder(c *gin.Context) {
	id := c.Param("id")
	outcome, err := h.orders.ForwardOrder(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ForwardResponse{OrderID: id, Outcome: string(outcome)})
}

// ResumeOrder handles POST /api/admin/orders/:id/resume
func (h *AdminHandler) ResumeOrder(c *gin.Context) {
	o, err := h.orders.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, mapper.OrderToExternal(*o))
}

// SyncProducts handles POST /api/admin/products/sync
func (h *AdminHandler) SyncProducts(c *gin.Context) {
	result, err := h.sync.Sync(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// DebugLogs handles GET /api/admin/debug/logs
func (h *AdminHandler) DebugLogs(c *gin.Context) {
	if h.logs == nil {
		h.Success(c, gin.H{"entries": []logger.RingEntry{}, "capacity": 0, "dropped": 0})
		return
	}
	h.Success(c, gin.H{
		"entries":  h.logs.Snapshot(),
		"capacity": h.logs.Capacity(),
		"dropped":  h.logs.Dropped(),
	})
}

// ArchiveDebugLogs handles POST /api/admin/debug/logs/archive. The
// snapshot is written as a new object; the buffer is left untouched.
func (h *AdminHandler) ArchiveDebugLogs(c *gin.Context) {
	if h.archive == nil || h.logs == nil {
		h.HandleError(c, storage.ErrNotConfigured)
		return
	}
	entries := h.logs.Snapshot()
	body, err := json.Marshal(entries)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	key := storage.ArchiveKey(h.prefix, "debug-logs.json", h.now())
	if err := h.archive.Put(c.Request.Context(), key, body, "application/json"); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ArchiveResponse{Key: key, Entries: len(entries)})
}

func (h *AdminHandler) uuidParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func credentialResponse(cred credential.Credential) dto.CredentialResponse {
	return dto.CredentialResponse{
		ID:          cred.ID.String(),
		ConsumerKey: cred.Key,
		OwnerID:     cred.OwnerID,
		Description: cred.Description,
		Permissions: cred.Permissions.List(),
		LastUsedAt:  cred.LastUsedAt,
		CreatedAt:   cred.CreatedAt,
	}
}
