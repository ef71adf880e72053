package fulfillment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/catalog"
	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/domain/order"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// memoryOrders mirrors the conditional UPDATE of the SQL repository
type memoryOrders struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	// applyErr, when set, fails every Apply for the given target status
	applyErr map[order.Status]error
	// chains counts ApplyAll calls
	chains int
}

func newMemoryOrders(orders ...*order.Order) *memoryOrders {
	m := &memoryOrders{orders: map[string]*order.Order{}, applyErr: map[order.Status]error{}}
	for _, o := range orders {
		m.orders[o.ID] = o
	}
	return m
}

func (m *memoryOrders) Create(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memoryOrders) FindByID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memoryOrders) get(id string) order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memoryOrders) List(_ context.Context, _ order.ListFilter) ([]order.Order, int64, error) {
	out := m.selectOrders(func(*order.Order) bool { return true }, 0)
	return out, int64(len(out)), nil
}

func (m *memoryOrders) selectOrders(keep func(*order.Order) bool, limit int) []order.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []order.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *memoryOrders) FindForwardable(_ context.Context, limit int) ([]order.Order, error) {
	return m.selectOrders(func(o *order.Order) bool {
		return (o.Status == order.StatusPaid && o.PartnerOrderID == "") || o.Status == order.StatusFulfillmentError
	}, limit), nil
}

func (m *memoryOrders) FindStuckProcessing(_ context.Context, claimedBefore time.Time, limit int) ([]order.Order, error) {
	return m.selectOrders(func(o *order.Order) bool {
		return o.Status == order.StatusProcessing && o.PartnerOrderID == "" &&
			o.ClaimedAt != nil && o.ClaimedAt.Before(claimedBefore)
	}, limit), nil
}

func (m *memoryOrders) FindAwaitingShipment(_ context.Context, limit int) ([]order.Order, error) {
	return m.selectOrders(func(o *order.Order) bool {
		return o.Status == order.StatusProcessing && o.PartnerOrderID != ""
	}, limit), nil
}

func (m *memoryOrders) Apply(_ context.Context, t order.Transition) (bool, error) {
	if err := t.Validate(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(t)
}

func (m *memoryOrders) ApplyAll(_ context.Context, steps ...order.Transition) (bool, error) {
	for _, t := range steps {
		if err := t.Validate(); err != nil {
			return false, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chains++

	saved := map[string]order.Order{}
	for _, t := range steps {
		if o, ok := m.orders[t.ID]; ok {
			if _, seen := saved[t.ID]; !seen {
				saved[t.ID] = *o
			}
		}
	}
	for _, t := range steps {
		ok, err := m.applyLocked(t)
		if err != nil || !ok {
			for id, o := range saved {
				cp := o
				m.orders[id] = &cp
			}
			return false, err
		}
	}
	return true, nil
}

func (m *memoryOrders) applyLocked(t order.Transition) (bool, error) {
	if err := m.applyErr[t.To]; err != nil {
		return false, err
	}

	o, ok := m.orders[t.ID]
	if !ok || o.Status != t.From {
		return false, nil
	}
	if t.ExpectAttempts != nil && o.FulfillmentAttempts != *t.ExpectAttempts {
		return false, nil
	}
	if t.RequireNoPartner && o.PartnerOrderID != "" {
		return false, nil
	}
	if t.ExpectClaimToken != "" && o.ClaimToken != t.ExpectClaimToken {
		return false, nil
	}

	o.Status = t.To
	o.UpdatedAt = t.At
	switch {
	case t.ResetAttempts:
		o.FulfillmentAttempts = 0
	case t.IncrementAttempts:
		o.FulfillmentAttempts++
	}
	if t.ClaimToken != "" {
		at := t.At
		o.ClaimToken, o.ClaimedAt = t.ClaimToken, &at
	}
	if t.PartnerOrderID != "" {
		o.PartnerOrderID, o.PartnerProvider = t.PartnerOrderID, t.PartnerProvider
	} else if t.ClearPartner {
		o.PartnerOrderID, o.PartnerProvider = "", ""
	}
	if t.FailureReason != nil {
		o.LastFulfillmentError = *t.FailureReason
	}
	if t.Tracking != nil {
		o.Tracking = *t.Tracking
	}
	return true, nil
}

type memoryProducts struct {
	mu       sync.Mutex
	products map[string]*catalog.Product
	upserts  int
}

func newMemoryProducts(products ...catalog.Product) *memoryProducts {
	m := &memoryProducts{products: map[string]*catalog.Product{}}
	for i := range products {
		p := products[i]
		m.products[p.ID] = &p
	}
	return m
}

func (m *memoryProducts) FindByID(_ context.Context, id string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryProducts) FindByIDs(_ context.Context, ids []string) (map[string]*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*catalog.Product, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func (m *memoryProducts) List(_ context.Context, _ catalog.ListFilter) ([]catalog.Product, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (m *memoryProducts) FindByPODProduct(_ context.Context, provider, podProductID string) (*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.products {
		if p.Meta(catalog.MetaPODProvider) == provider && p.Meta(catalog.MetaPODProductID) == podProductID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, catalog.ErrProductNotFound
}

func (m *memoryProducts) Upsert(_ context.Context, p *catalog.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.products[p.ID] = &cp
	m.upserts++
	return nil
}

// fakePartner records calls and delegates to optional hooks
type fakePartner struct {
	code integration.ProviderCode

	mu        sync.Mutex
	submitted []integration.FulfillmentRequest
	submitFn  func(ctx context.Context, req *integration.FulfillmentRequest) (*integration.SubmitResult, error)
	findFn    func(localOrderID string) (*integration.OrderStatusReport, error)
	statusFn  func(partnerOrderID string) (*integration.OrderStatusReport, error)
	pages     [][]integration.PartnerProduct
	listErr   error
}

func newFakePartner(code integration.ProviderCode) *fakePartner {
	return &fakePartner{code: code}
}

func (p *fakePartner) Provider() integration.ProviderCode { return p.code }

func (p *fakePartner) ListProducts(_ context.Context, page, _ int) (*integration.ProductPage, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	if page > len(p.pages) {
		return &integration.ProductPage{Page: page}, nil
	}
	return &integration.ProductPage{Products: p.pages[page-1], Page: page, HasMore: page < len(p.pages)}, nil
}

func (p *fakePartner) SubmitOrder(ctx context.Context, req *integration.FulfillmentRequest) (*integration.SubmitResult, error) {
	p.mu.Lock()
	p.submitted = append(p.submitted, *req)
	n := len(p.submitted)
	p.mu.Unlock()
	if p.submitFn != nil {
		return p.submitFn(ctx, req)
	}
	return &integration.SubmitResult{
		PartnerOrderID: strings.ToUpper(string(p.code)) + "-" + req.LocalOrderID + "-" + string(rune('0'+n)),
		Status:         integration.PartnerStatusReceived,
		AcceptedAt:     fixedNow,
	}, nil
}

func (p *fakePartner) submitCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.submitted)
}

func (p *fakePartner) CheckStatus(_ context.Context, partnerOrderID string) (*integration.OrderStatusReport, error) {
	if p.statusFn != nil {
		return p.statusFn(partnerOrderID)
	}
	return &integration.OrderStatusReport{PartnerOrderID: partnerOrderID, Status: integration.PartnerStatusInProduction}, nil
}

func (p *fakePartner) FindByExternalID(_ context.Context, localOrderID string) (*integration.OrderStatusReport, error) {
	if p.findFn != nil {
		return p.findFn(localOrderID)
	}
	return nil, integration.ErrPartnerOrderNotFound
}

type fakeRegistry struct {
	active    integration.ProviderCode
	partners  map[integration.ProviderCode]integration.PODPartner
	activeErr error
}

func newFakeRegistry(active *fakePartner, others ...*fakePartner) *fakeRegistry {
	r := &fakeRegistry{partners: map[integration.ProviderCode]integration.PODPartner{}}
	if active != nil {
		r.active = active.code
		r.partners[active.code] = active
	}
	for _, p := range others {
		r.partners[p.code] = p
	}
	return r
}

func (r *fakeRegistry) Get(code integration.ProviderCode) (integration.PODPartner, error) {
	p, ok := r.partners[code]
	if !ok {
		return nil, integration.ErrPartnerNotConfigured
	}
	return p, nil
}

func (r *fakeRegistry) Active() (integration.PODPartner, error) {
	if r.activeErr != nil {
		return nil, r.activeErr
	}
	return r.Get(r.active)
}

func (r *fakeRegistry) List() []integration.PODPartner {
	out := make([]integration.PODPartner, 0, len(r.partners))
	for _, p := range r.partners {
		out = append(out, p)
	}
	return out
}

type recordingNotifier struct {
	mu       sync.Mutex
	statuses []order.Status
}

func (n *recordingNotifier) NotifyOrderStatus(_ context.Context, o order.Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, o.Status)
}

func (n *recordingNotifier) seen() []order.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]order.Status(nil), n.statuses...)
}

type recordingObserver struct {
	runs      int
	lastErr   error
	forwarded int
	failed    int
}

func (r *recordingObserver) ObserveFulfillmentRun(err error, forwarded, failed, _, _ int, _ time.Time) {
	r.runs++
	r.lastErr = err
	r.forwarded = forwarded
	r.failed = failed
}

func podProduct(id, provider, partnerID string) catalog.Product {
	return catalog.Product{
		ID:    id,
		Name:  "Poster " + id,
		Price: decimal.RequireFromString("19.99"),
		Stock: 999,
		Metadata: map[string]string{
			catalog.MetaPODProvider:  provider,
			catalog.MetaPODProductID: partnerID,
		},
	}
}

func paidOrder(id string, productIDs ...string) *order.Order {
	items := make([]order.Item, 0, len(productIDs))
	for _, pid := range productIDs {
		items = append(items, order.Item{ProductID: pid, Quantity: 1, Price: decimal.RequireFromString("19.99")})
	}
	o, err := order.New(id, order.StatusPaid, items)
	if err != nil {
		panic(err)
	}
	return o
}
