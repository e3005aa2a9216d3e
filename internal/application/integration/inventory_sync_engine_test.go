package integration

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/erp/storesync/internal/domain/integration"
)

func stock(code, warehouse, qty string) integration.StockLevel {
	return integration.StockLevel{ProductCode: code, WarehouseCode: warehouse, QtyOnHand: decimal.RequireFromString(qty)}
}

func variant(sku string, available int64, policy integration.InventoryPolicy) integration.InventoryItem {
	return integration.InventoryItem{SKU: sku, InventoryItemID: "inv-" + sku, Available: available, Policy: policy}
}

// levelKey is the cache key of a variant built by variant at acme's location.
func levelKey(sku string) integration.QuantityKey {
	return integration.QuantityKey{Tenant: "acme", LocationID: "55", InventoryItemID: "inv-" + sku}
}

type inventoryFixture struct {
	storefront *fakeStorefront
	erp        *MockERPClient
	cache      *memQuantityCache
	engine     *InventorySyncEngine
}

func newInventoryFixture(cfg *integration.StoreConfig, levels []integration.StockLevel, items ...integration.InventoryItem) *inventoryFixture {
	f := &inventoryFixture{
		storefront: &fakeStorefront{items: items, location: "99"},
		erp:        &MockERPClient{},
		cache:      &memQuantityCache{},
	}
	f.erp.On("ListStockOnHand", mock.Anything, mock.Anything).Return(levels, nil)
	f.engine = NewInventorySyncEngine(
		staticConfigs{"acme": cfg},
		f.storefront,
		f.erp,
		WithQuantityCache(f.cache),
		WithSleep(noSleep),
	)
	return f
}

func defaultLevels() []integration.StockLevel {
	return []integration.StockLevel{
		stock("RAW-A", "MAIN", "10.7"),
		stock("RAW-A", "OTHER", "2"),
		stock("RAW-B", "MAIN", "5"),
		stock("RAW-C", "MAIN", "3"),
		stock("RAW-D", "MAIN", "-2"),
	}
}

func defaultVariants() []integration.InventoryItem {
	return []integration.InventoryItem{
		variant("RAW-A", 4, integration.InventoryPolicyDeny),
		variant("RAW-B", 5, integration.InventoryPolicyDeny),
		variant("RAW-D", 1, integration.InventoryPolicyContinue),
		variant("RAW-E", 8, integration.InventoryPolicyDeny),
		variant("", 3, integration.InventoryPolicyDeny),
	}
}

func TestInventorySyncEngine_Run(t *testing.T) {
	ctx := context.Background()
	f := newInventoryFixture(acmeConfig(), defaultLevels(), defaultVariants()...)

	report, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
	require.NoError(t, err)

	require.Len(t, f.storefront.sets, 1)
	assert.Equal(t, integration.InventoryLevelUpdate{
		LocationID:      "55",
		InventoryItemID: "inv-RAW-A",
		SKU:             "RAW-A",
		Available:       10,
	}, f.storefront.sets[0])

	assert.Equal(t, 4, report.ERPSKUs)
	assert.Equal(t, []InventoryChange{{SKU: "RAW-A", InventoryItemID: "inv-RAW-A", From: 4, To: 10}}, report.Updated)
	assert.Equal(t, 1, report.Unchanged)
	assert.Equal(t, []string{"RAW-D"}, report.SkippedOversell)
	assert.Equal(t, []string{"RAW-C"}, report.NotInStorefront)
	assert.Equal(t, []string{"RAW-E"}, report.NotInERP)
	assert.False(t, report.HasFailures())

	qty, ok, _ := f.cache.Get(ctx, levelKey("RAW-A"))
	assert.True(t, ok)
	assert.Equal(t, int64(10), qty)
	qty, ok, _ = f.cache.Get(ctx, levelKey("RAW-B"))
	assert.True(t, ok)
	assert.Equal(t, int64(5), qty)

	t.Run("second run pushes nothing", func(t *testing.T) {
		again, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
		require.NoError(t, err)
		assert.Empty(t, again.Updated)
		assert.Equal(t, 2, again.Unchanged)
		assert.Len(t, f.storefront.sets, 1)
	})
}

func TestInventorySyncEngine_CacheWinsOverStorefront(t *testing.T) {
	ctx := context.Background()
	f := newInventoryFixture(acmeConfig(), []integration.StockLevel{stock("RAW-A", "MAIN", "10")},
		variant("RAW-A", 7, integration.InventoryPolicyDeny))
	require.NoError(t, f.cache.Set(ctx, levelKey("RAW-A"), 10))

	report, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
	require.NoError(t, err)
	assert.Empty(t, f.storefront.sets)
	assert.Equal(t, 1, report.Unchanged)
}

func TestInventorySyncEngine_VariantsSharingSKU(t *testing.T) {
	ctx := context.Background()
	first := variant("RAW-B", 1, integration.InventoryPolicyDeny)
	second := variant("RAW-B", 2, integration.InventoryPolicyDeny)
	second.InventoryItemID = "inv-RAW-B-2"
	f := newInventoryFixture(acmeConfig(), []integration.StockLevel{stock("RAW-B", "MAIN", "5")}, first, second)

	report, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
	require.NoError(t, err)
	require.Len(t, f.storefront.sets, 2)
	assert.Equal(t, "inv-RAW-B", f.storefront.sets[0].InventoryItemID)
	assert.Equal(t, "inv-RAW-B-2", f.storefront.sets[1].InventoryItemID)
	for _, set := range f.storefront.sets {
		assert.Equal(t, int64(5), set.Available)
	}
	assert.Len(t, report.Updated, 2)

	qty, ok, _ := f.cache.Get(ctx, integration.QuantityKey{Tenant: "acme", LocationID: "55", InventoryItemID: "inv-RAW-B-2"})
	assert.True(t, ok)
	assert.Equal(t, int64(5), qty)

	t.Run("second run pushes nothing", func(t *testing.T) {
		again, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
		require.NoError(t, err)
		assert.Empty(t, again.Updated)
		assert.Equal(t, 2, again.Unchanged)
		assert.Len(t, f.storefront.sets, 2)
	})
}

func TestInventorySyncEngine_DryRun(t *testing.T) {
	ctx := context.Background()
	f := newInventoryFixture(acmeConfig(), defaultLevels(), defaultVariants()...)

	report, err := f.engine.Run(ctx, "acme", InventoryRunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, f.storefront.sets)
	require.Len(t, report.Updated, 1)
	assert.Equal(t, int64(10), report.Updated[0].To)

	_, ok, _ := f.cache.Get(ctx, levelKey("RAW-A"))
	assert.False(t, ok)
	_, ok, _ = f.cache.Get(ctx, levelKey("RAW-B"))
	assert.False(t, ok)
}

func TestInventorySyncEngine_Failures(t *testing.T) {
	ctx := context.Background()
	levels := []integration.StockLevel{stock("RAW-A", "MAIN", "10"), stock("RAW-B", "MAIN", "3")}
	items := []integration.InventoryItem{
		variant("RAW-A", 1, integration.InventoryPolicyDeny),
		variant("RAW-B", 1, integration.InventoryPolicyDeny),
	}

	t.Run("per-sku errors do not abort", func(t *testing.T) {
		f := newInventoryFixture(acmeConfig(), levels, items...)
		f.storefront.setErr = map[string]error{"RAW-A": fmt.Errorf("%w: HTTP 422", integration.ErrStorefrontRequest)}

		report, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
		require.NoError(t, err)
		require.Len(t, report.Errors, 1)
		assert.Equal(t, "RAW-A", report.Errors[0].SKU)
		assert.True(t, report.HasFailures())
		require.Len(t, f.storefront.sets, 1)
		assert.Equal(t, "RAW-B", f.storefront.sets[0].SKU)

		_, ok, _ := f.cache.Get(ctx, levelKey("RAW-A"))
		assert.False(t, ok)
	})

	t.Run("auth failure aborts", func(t *testing.T) {
		f := newInventoryFixture(acmeConfig(), levels, items...)
		f.storefront.setErr = map[string]error{"RAW-A": fmt.Errorf("%w: HTTP 401", integration.ErrAuth)}

		_, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
		assert.ErrorIs(t, err, ErrRunAborted)
		assert.ErrorIs(t, err, integration.ErrAuth)
		assert.Empty(t, f.storefront.sets)
	})

	t.Run("ERP failure fails the run", func(t *testing.T) {
		f := newInventoryFixture(acmeConfig(), nil)
		f.erp.ExpectedCalls = nil
		f.erp.On("ListStockOnHand", mock.Anything, mock.Anything).Return(nil, integration.ErrAuth)

		_, err := f.engine.Run(ctx, "acme", InventoryRunOptions{})
		assert.ErrorIs(t, err, integration.ErrAuth)
	})
}

func TestInventorySyncEngine_LocationFallback(t *testing.T) {
	cfg := acmeConfig()
	cfg.Storefront.LocationID = ""
	f := newInventoryFixture(cfg, []integration.StockLevel{stock("RAW-A", "", "2")},
		variant("RAW-A", 0, integration.InventoryPolicyDeny))

	report, err := f.engine.Run(context.Background(), "acme", InventoryRunOptions{})
	require.NoError(t, err)
	assert.Equal(t, "99", report.LocationID)
	require.Len(t, f.storefront.sets, 1)
	assert.Equal(t, "99", f.storefront.sets[0].LocationID)
}

func TestAggregateStock(t *testing.T) {
	t.Run("warehouse filter", func(t *testing.T) {
		got := aggregateStock(acmeConfig(), defaultLevels())
		assert.Equal(t, map[string]int64{"RAW-A": 10, "RAW-B": 5, "RAW-C": 3, "RAW-D": 0}, got)
	})

	t.Run("all warehouses without filter", func(t *testing.T) {
		cfg := acmeConfig()
		cfg.ERP.WarehouseCode = ""
		got := aggregateStock(cfg, []integration.StockLevel{stock("RAW-A", "MAIN", "0.6"), stock("RAW-A", "OTHER", "0.6")})
		assert.Equal(t, int64(1), got["RAW-A"])
	})
}
