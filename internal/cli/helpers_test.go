package cli

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type staticConfigs map[string]*integration.StoreConfig

func (s staticConfigs) Get(tenant string) (*integration.StoreConfig, error) {
	cfg, ok := s[tenant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrTenantNotFound, tenant)
	}
	return cfg, nil
}

func (s staticConfigs) Tenants() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func testConfigs() staticConfigs {
	return staticConfigs{
		"acme":   {Tenant: "acme", Storefront: integration.StorefrontConfig{ShopDomain: "acme.myshopify.com", LocationID: "loc-1"}},
		"globex": {Tenant: "globex", Storefront: integration.StorefrontConfig{ShopDomain: "globex.myshopify.com", LocationID: "loc-9"}},
	}
}

type fakeOrders struct {
	mu        sync.Mutex
	summaries map[string]*appintegration.OrderRunSummary
	errs      map[string]error
	calls     []appintegration.OrderRunOptions
	tenants   []string
}

func (f *fakeOrders) Run(_ context.Context, tenant string, opts appintegration.OrderRunOptions) (*appintegration.OrderRunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	f.tenants = append(f.tenants, tenant)
	s := f.summaries[tenant]
	if s == nil {
		s = &appintegration.OrderRunSummary{Tenant: tenant, DryRun: opts.DryRun}
	}
	return s, f.errs[tenant]
}

type fakeInventory struct {
	reports map[string]*appintegration.InventoryReport
	errs    map[string]error
	calls   []appintegration.InventoryRunOptions
}

func (f *fakeInventory) Run(_ context.Context, tenant string, opts appintegration.InventoryRunOptions) (*appintegration.InventoryReport, error) {
	f.calls = append(f.calls, opts)
	r := f.reports[tenant]
	if r == nil {
		r = &appintegration.InventoryReport{Tenant: tenant, DryRun: opts.DryRun}
	}
	return r, f.errs[tenant]
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) FindByKey(ctx context.Context, tenant, key string, kind integration.LedgerKind) (*integration.LedgerEntry, error) {
	args := m.Called(ctx, tenant, key, kind)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.LedgerEntry), args.Error(1)
}

func (m *mockLedger) List(ctx context.Context, filter integration.LedgerFilter) ([]integration.LedgerEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.LedgerEntry), args.Error(1)
}

type memoryMappings struct {
	byKey map[string]integration.BundleMapping
}

func newMemoryMappings(ms ...integration.BundleMapping) *memoryMappings {
	mm := &memoryMappings{byKey: map[string]integration.BundleMapping{}}
	for _, m := range ms {
		mm.byKey[m.Tenant+"/"+m.StorefrontSKU] = m
	}
	return mm
}

func (m *memoryMappings) ListByTenant(_ context.Context, tenant string) ([]integration.BundleMapping, error) {
	var out []integration.BundleMapping
	for _, v := range m.byKey {
		if v.Tenant == tenant {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StorefrontSKU < out[j].StorefrontSKU })
	return out, nil
}

func (m *memoryMappings) Replace(_ context.Context, mapping *integration.BundleMapping) error {
	m.byKey[mapping.Tenant+"/"+mapping.StorefrontSKU] = *mapping
	return nil
}

func (m *memoryMappings) Deactivate(_ context.Context, tenant, sku string) error {
	key := tenant + "/" + sku
	if _, ok := m.byKey[key]; !ok {
		return integration.ErrBundleMappingNotFound
	}
	delete(m.byKey, key)
	return nil
}

type mockERP struct {
	mock.Mock
}

func (m *mockERP) Platform() integration.ERPPlatform { return integration.ERPPlatformUnleashed }

func (m *mockERP) CreateSalesOrder(ctx context.Context, cfg *integration.StoreConfig, req *integration.ERPSalesOrderRequest) (*integration.ERPSalesOrderResult, error) {
	args := m.Called(ctx, cfg, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ERPSalesOrderResult), args.Error(1)
}

func (m *mockERP) FindSalesOrderByReference(ctx context.Context, cfg *integration.StoreConfig, reference string) (*integration.ERPSalesOrderResult, error) {
	args := m.Called(ctx, cfg, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ERPSalesOrderResult), args.Error(1)
}

func (m *mockERP) FindOrCreateCustomer(ctx context.Context, cfg *integration.StoreConfig, draft integration.ERPCustomerDraft) (*integration.ERPCustomerRef, error) {
	args := m.Called(ctx, cfg, draft)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.ERPCustomerRef), args.Error(1)
}

func (m *mockERP) ListStockOnHand(ctx context.Context, cfg *integration.StoreConfig) ([]integration.StockLevel, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.StockLevel), args.Error(1)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

func newTestApp() *App {
	return &App{
		Logger:    zap.NewNop(),
		Configs:   testConfigs(),
		Ledger:    &mockLedger{},
		Mappings:  newMemoryMappings(),
		ERP:       &mockERP{},
		Orders:    &fakeOrders{},
		Inventory: &fakeInventory{},
	}
}

type runResult struct {
	out   string
	err   error
	modes []BootMode
	// closed counts App.Close calls
	closed int
}

// execute runs the command tree against app and captures stdout.
func execute(t *testing.T, app *App, args ...string) runResult {
	t.Helper()

	res := runResult{}
	factory := func(_ context.Context, _ *RootOptions, mode BootMode) (*App, error) {
		res.modes = append(res.modes, mode)
		app.onClose(func(context.Context) error {
			res.closed++
			return nil
		})
		return app, nil
	}

	cmd := NewRootCommand(factory)
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	res.err = cmd.ExecuteContext(context.Background())
	res.out = stdout.String()
	return res
}

func requireExitCode(t *testing.T, want int, err error) {
	t.Helper()
	require.Equal(t, want, GetExitCode(err), "error: %v", err)
}
