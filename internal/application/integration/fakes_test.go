package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/erp/storesync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Store configs
// ---------------------------------------------------------------------------

type staticConfigs map[string]*integration.StoreConfig

func (s staticConfigs) Get(tenant string) (*integration.StoreConfig, error) {
	cfg, ok := s[tenant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrTenantNotFound, tenant)
	}
	c := *cfg
	return &c, nil
}

func (s staticConfigs) Tenants() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	return out
}

func acmeConfig() *integration.StoreConfig {
	return &integration.StoreConfig{
		Tenant: "acme",
		Storefront: integration.StorefrontConfig{
			Platform:    integration.StorefrontPlatformShopify,
			ShopDomain:  "acme.myshopify.com",
			AccessToken: "shpat_acme",
			APIVersion:  "2024-01",
			LocationID:  "55",
		},
		ERP: integration.ERPConfig{
			Platform:      integration.ERPPlatformUnleashed,
			APIID:         "acme-id",
			APISecret:     "acme-secret",
			BaseURL:       "https://api.unleashedsoftware.com",
			WarehouseCode: "MAIN",
		},
		MinSyncDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ---------------------------------------------------------------------------
// Storefront
// ---------------------------------------------------------------------------

type fakeStorefront struct {
	mu       sync.Mutex
	orders   []integration.SourceOrder
	items    []integration.InventoryItem
	queries  []integration.OrderQuery
	sets     []integration.InventoryLevelUpdate
	setErr   map[string]error
	fetchErr error
	location string
	// window makes FetchOrders honor Since and Limit like the storefront does.
	window bool
}

func (f *fakeStorefront) Platform() integration.StorefrontPlatform {
	return integration.StorefrontPlatformShopify
}

func (f *fakeStorefront) FetchOrders(_ context.Context, _ *integration.StoreConfig, q integration.OrderQuery) ([]integration.SourceOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if !f.window {
		out := make([]integration.SourceOrder, len(f.orders))
		copy(out, f.orders)
		return out, nil
	}
	var out []integration.SourceOrder
	for _, o := range f.orders {
		if !o.PlacedAt.Before(q.Since) {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PlacedAt.Before(out[j].PlacedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *fakeStorefront) ListInventoryItems(context.Context, *integration.StoreConfig) ([]integration.InventoryItem, error) {
	return f.items, nil
}

func (f *fakeStorefront) SetInventoryLevel(_ context.Context, _ *integration.StoreConfig, u integration.InventoryLevelUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setErr[u.SKU]; err != nil {
		return err
	}
	f.sets = append(f.sets, u)
	return nil
}

func (f *fakeStorefront) PrimaryLocationID(context.Context, *integration.StoreConfig) (string, error) {
	return f.location, nil
}

// ---------------------------------------------------------------------------
// ERP
// ---------------------------------------------------------------------------

// MockERPClient is a mock implementation of integration.ERPClient
type MockERPClient struct {
	mock.Mock
}

func (m *MockERPClient) Platform() integration.ERPPlatform {
	return integration.ERPPlatformUnleashed
}

func (m *MockERPClient) CreateSalesOrder(ctx context.Context, cfg *integration.StoreConfig, req *integration.ERPSalesOrderRequest) (*integration.ERPSalesOrderResult, error) {
	args := m.Called(ctx, cfg, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ERPSalesOrderResult), args.Error(1)
}

func (m *MockERPClient) FindSalesOrderByReference(ctx context.Context, cfg *integration.StoreConfig, reference string) (*integration.ERPSalesOrderResult, error) {
	args := m.Called(ctx, cfg, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ERPSalesOrderResult), args.Error(1)
}

func (m *MockERPClient) FindOrCreateCustomer(ctx context.Context, cfg *integration.StoreConfig, draft integration.ERPCustomerDraft) (*integration.ERPCustomerRef, error) {
	args := m.Called(ctx, cfg, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ERPCustomerRef), args.Error(1)
}

func (m *MockERPClient) ListStockOnHand(ctx context.Context, cfg *integration.StoreConfig) ([]integration.StockLevel, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.StockLevel), args.Error(1)
}

// ---------------------------------------------------------------------------
// Ledger
// ---------------------------------------------------------------------------

// memLedger is an in-memory SyncLedger with the same Begin semantics as
// the gorm repository.
type memLedger struct {
	mu      sync.Mutex
	entries map[string]*integration.LedgerEntry
	now     func() time.Time
}

func newMemLedger(now func() time.Time) *memLedger {
	return &memLedger{entries: make(map[string]*integration.LedgerEntry), now: now}
}

func ledgerKey(tenant, key string, kind integration.LedgerKind) string {
	return tenant + "|" + key + "|" + string(kind)
}

func (l *memLedger) FindByKey(_ context.Context, tenant, key string, kind integration.LedgerKind) (*integration.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ledgerKey(tenant, key, kind)]
	if !ok {
		return nil, integration.ErrLedgerEntryNotFound
	}
	c := *e
	return &c, nil
}

func (l *memLedger) List(_ context.Context, filter integration.LedgerFilter) ([]integration.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []integration.LedgerEntry
	for _, e := range l.entries {
		if filter.Tenant != "" && e.Tenant != filter.Tenant {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (l *memLedger) Begin(_ context.Context, tenant, key string, kind integration.LedgerKind, staleAfter time.Duration) (*integration.BeginResult, error) {
	if err := integration.ValidateLedgerKey(tenant, key, kind); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	k := ledgerKey(tenant, key, kind)
	e, ok := l.entries[k]
	if !ok {
		e = &integration.LedgerEntry{
			ID:             uuid.New(),
			Tenant:         tenant,
			IdempotencyKey: key,
			Kind:           kind,
			Status:         integration.LedgerStatusPending,
			AttemptCount:   1,
			CreatedAt:      now,
			StartedAt:      now,
			UpdatedAt:      now,
		}
		l.entries[k] = e
		c := *e
		return &integration.BeginResult{Entry: &c, Acquired: true}, nil
	}
	if !e.Reclaimable(now, staleAfter) {
		c := *e
		return &integration.BeginResult{Entry: &c}, nil
	}
	prev := e.Status
	e.Status = integration.LedgerStatusPending
	e.AttemptCount++
	e.StartedAt = now
	e.CompletedAt = nil
	e.UpdatedAt = now
	c := *e
	return &integration.BeginResult{Entry: &c, Acquired: true, Reclaimed: true, PreviousStatus: prev}, nil
}

func (l *memLedger) Complete(_ context.Context, id uuid.UUID, status integration.LedgerStatus, detail integration.CompletionDetail) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.ID != id {
			continue
		}
		if e.Status != integration.LedgerStatusPending || !status.IsTerminal() {
			return integration.ErrLedgerInvalidTransition
		}
		now := l.now()
		e.Status = status
		e.ExternalRef = detail.ExternalRef
		e.LastError = detail.Error
		e.ErrorClass = detail.ErrorClass
		e.CompletedAt = &now
		e.UpdatedAt = now
		return nil
	}
	return integration.ErrLedgerEntryNotFound
}

func (l *memLedger) get(tenant, key string) *integration.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ledgerKey(tenant, key, integration.LedgerKindOrder)]
	if !ok {
		return nil
	}
	c := *e
	return &c
}

// ---------------------------------------------------------------------------
// Bundle mappings, cursors, cache
// ---------------------------------------------------------------------------

type fakeMappings struct {
	byTenant map[string][]integration.BundleMapping
	calls    int
	err      error
}

func (f *fakeMappings) ListByTenant(_ context.Context, tenant string) ([]integration.BundleMapping, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byTenant[tenant], nil
}

func acmeMappings() *fakeMappings {
	return &fakeMappings{byTenant: map[string][]integration.BundleMapping{
		"acme": {
			{
				Tenant:        "acme",
				StorefrontSKU: "BUNDLE-1",
				Components: []integration.BundleComponent{
					{ERPProductCode: "RAW-A", QuantityMultiplier: decimal.NewFromInt(3)},
					{ERPProductCode: "RAW-B", QuantityMultiplier: decimal.NewFromInt(1)},
				},
			},
			{
				Tenant:        "acme",
				StorefrontSKU: "BROKEN",
				Components: []integration.BundleComponent{
					{ERPProductCode: "RAW-C", QuantityMultiplier: decimal.Zero},
				},
			},
		},
	}}
}

type memCursors struct {
	mu  sync.Mutex
	pos map[string]time.Time
}

func (c *memCursors) Get(_ context.Context, tenant string, kind integration.LedgerKind) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos[tenant+"|"+string(kind)], nil
}

func (c *memCursors) Advance(_ context.Context, tenant string, kind integration.LedgerKind, to time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pos == nil {
		c.pos = map[string]time.Time{}
	}
	k := tenant + "|" + string(kind)
	if to.After(c.pos[k]) {
		c.pos[k] = to
	}
	return nil
}

type memQuantityCache struct {
	mu  sync.Mutex
	qty map[integration.QuantityKey]int64
}

func (c *memQuantityCache) Get(_ context.Context, key integration.QuantityKey) (int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.qty[key]
	return q, ok, nil
}

func (c *memQuantityCache) Set(_ context.Context, key integration.QuantityKey, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qty == nil {
		c.qty = map[integration.QuantityKey]int64{}
	}
	c.qty[key] = qty
	return nil
}

// ---------------------------------------------------------------------------
// Clock
// ---------------------------------------------------------------------------

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func noSleep(context.Context, time.Duration) error { return nil }
