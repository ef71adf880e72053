package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/storefront/backend/internal/application/fulfillment"
	"github.com/storefront/backend/internal/application/mapper"
	"github.com/storefront/backend/internal/application/podauth"
	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/credential"
	"github.com/storefront/backend/internal/domain/order"
	"github.com/storefront/backend/internal/domain/webhook"
	"github.com/storefront/backend/internal/infrastructure/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockProductRepository implements catalog.Repository for testing
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByID(ctx context.Context, id string) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*catalog.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(map[string]*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) List(ctx context.Context, filter catalog.ListFilter) ([]catalog.Product, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]catalog.Product), args.Get(1).(int64), args.Error(2)
}

func (m *MockProductRepository) FindByPODProduct(ctx context.Context, provider, podProductID string) (*catalog.Product, error) {
	args := m.Called(ctx, provider, podProductID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) Upsert(ctx context.Context, p *catalog.Product) error {
	return m.Called(ctx, p).Error(0)
}

// MockOrderRepository implements order.Repository for testing
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	return m.Called(ctx, o).Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]order.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) FindForwardable(ctx context.Context, limit int) ([]order.Order, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindStuckProcessing(ctx context.Context, claimedBefore time.Time, limit int) ([]order.Order, error) {
	args := m.Called(ctx, claimedBefore, limit)
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindAwaitingShipment(ctx context.Context, limit int) ([]order.Order, error) {
	args := m.Called(ctx, limit)
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) Apply(ctx context.Context, t order.Transition) (bool, error) {
	args := m.Called(ctx, t)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderRepository) ApplyAll(ctx context.Context, steps ...order.Transition) (bool, error) {
	args := m.Called(ctx, steps)
	return args.Bool(0), args.Error(1)
}

// MockExchanger implements CredentialExchanger
type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Exchange(ctx context.Context, key, secret string) (podauth.Verdict, error) {
	args := m.Called(ctx, key, secret)
	return args.Get(0).(podauth.Verdict), args.Error(1)
}

// MockWebhookRegistry implements WebhookRegistry and WebhookAdmin
type MockWebhookRegistry struct {
	mock.Mock
}

func (m *MockWebhookRegistry) Register(ctx context.Context, name string, topic webhook.Topic, deliveryURL string) (*webhook.Subscription, error) {
	args := m.Called(ctx, name, topic, deliveryURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Subscription), args.Error(1)
}

func (m *MockWebhookRegistry) List(ctx context.Context) ([]webhook.Subscription, error) {
	args := m.Called(ctx)
	return args.Get(0).([]webhook.Subscription), args.Error(1)
}

func (m *MockWebhookRegistry) Disable(ctx context.Context, id uuid.UUID) (*webhook.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webhook.Subscription), args.Error(1)
}

func (m *MockWebhookRegistry) Deliveries(ctx context.Context, id uuid.UUID, limit int) ([]webhook.Delivery, error) {
	args := m.Called(ctx, id, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]webhook.Delivery), args.Error(1)
}

// MockEngine implements TrackingApplier, FulfillmentState, FulfillmentRunner and OrderOperator
type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ApplyTrackingUpdate(ctx context.Context, id string, update mapper.TrackingUpdate) (*order.Order, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockEngine) Config() fulfillment.Config {
	return m.Called().Get(0).(fulfillment.Config)
}

func (m *MockEngine) LastRun() *fulfillment.Summary {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*fulfillment.Summary)
}

func (m *MockEngine) Run(ctx context.Context) (fulfillment.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(fulfillment.Summary), args.Error(1)
}

func (m *MockEngine) ForwardOrder(ctx context.Context, id string) (fulfillment.Outcome, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(fulfillment.Outcome), args.Error(1)
}

func (m *MockEngine) Resume(ctx context.Context, id string) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

// MockCredentialManager implements CredentialManager
type MockCredentialManager struct {
	mock.Mock
}

func (m *MockCredentialManager) Issue(ctx context.Context, ownerID, description string, perms ...credential.Permission) (*credential.Credential, error) {
	args := m.Called(ctx, ownerID, description, perms)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Credential), args.Error(1)
}

func (m *MockCredentialManager) Revoke(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockCredentialManager) List(ctx context.Context) ([]credential.Credential, error) {
	args := m.Called(ctx)
	return args.Get(0).([]credential.Credential), args.Error(1)
}

// MockSyncer implements ProductSyncer
type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) Sync(ctx context.Context) (*fulfillment.SyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fulfillment.SyncResult), args.Error(1)
}

// MockTokenIssuer implements TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Generate(username string) (*auth.Token, error) {
	args := m.Called(username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Token), args.Error(1)
}
