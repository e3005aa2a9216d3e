package integration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
)

// InventorySyncEngine pushes ERP stock on hand to the storefront. It writes
// only quantities that changed since the last push and keeps no ledger.
type InventorySyncEngine struct {
	configs    integration.StoreConfigProvider
	storefront integration.StorefrontClient
	erp        integration.ERPClient
	cache      integration.QuantityCache
	metrics    SyncMetrics
	logger     *zap.Logger
	settings   EngineSettings
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewInventorySyncEngine creates an inventory engine. Without
// WithQuantityCache every run compares against the storefront's own numbers.
func NewInventorySyncEngine(
	configs integration.StoreConfigProvider,
	storefront integration.StorefrontClient,
	erp integration.ERPClient,
	opts ...EngineOption,
) *InventorySyncEngine {
	o := buildEngineOptions(opts)
	return &InventorySyncEngine{
		configs:    configs,
		storefront: storefront,
		erp:        erp,
		cache:      o.cache,
		metrics:    o.metrics,
		logger:     o.logger.Named("inventory_sync"),
		settings:   o.settings,
		now:        o.now,
		sleep:      o.sleep,
	}
}

// Run reconciles one tenant. Per-SKU failures are collected in the report;
// an authentication failure stops the run.
func (e *InventorySyncEngine) Run(ctx context.Context, tenant string, opts InventoryRunOptions) (report *InventoryReport, err error) {
	ctx, span := tracer.Start(ctx, "inventory_sync.run", trace.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.Bool("dry_run", opts.DryRun),
	))
	defer func() { endSpan(span, err) }()

	started := e.now()
	report = &InventoryReport{Tenant: tenant, DryRun: opts.DryRun, StartedAt: started}
	defer func() {
		report.FinishedAt = e.now()
		e.metrics.RecordRun(ctx, tenant, integration.LedgerKindInventory, report.FinishedAt.Sub(started), err)
	}()

	cfg, err := e.configs.Get(tenant)
	if err != nil {
		return report, err
	}

	runCtx := ctx
	if e.settings.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.settings.RunTimeout)
		defer cancel()
	}
	log := e.logger.With(zap.String("tenant", tenant), zap.Bool("dry_run", opts.DryRun))

	locationID := cfg.Storefront.LocationID
	if locationID == "" {
		locationID, err = e.storefront.PrimaryLocationID(runCtx, cfg)
		if err != nil {
			return report, fmt.Errorf("resolve storefront location: %w", err)
		}
	}
	report.LocationID = locationID

	levels, err := e.erp.ListStockOnHand(runCtx, cfg)
	if err != nil {
		return report, fmt.Errorf("list ERP stock: %w", err)
	}
	stock := aggregateStock(cfg, levels)
	report.ERPSKUs = len(stock)

	items, err := e.storefront.ListInventoryItems(runCtx, cfg)
	if err != nil {
		return report, fmt.Errorf("list storefront inventory: %w", err)
	}
	bySKU := make(map[string][]integration.InventoryItem, len(items))
	for _, it := range items {
		if it.SKU == "" {
			continue
		}
		bySKU[it.SKU] = append(bySKU[it.SKU], it)
	}

	skus := make([]string, 0, len(stock))
	for sku := range stock {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	for _, sku := range skus {
		if runCtx.Err() != nil {
			log.Warn("Run deadline reached, remaining SKUs deferred to next run")
			break
		}
		variants, ok := bySKU[sku]
		if !ok {
			report.NotInStorefront = append(report.NotInStorefront, sku)
			continue
		}
		qty := stock[sku]
		for _, item := range variants {
			if err := e.reconcileItem(runCtx, cfg, locationID, item, qty, opts, report, log); err != nil {
				return report, fmt.Errorf("%w: %w", ErrRunAborted, err)
			}
		}
	}

	for sku := range bySKU {
		if _, ok := stock[sku]; !ok {
			report.NotInERP = append(report.NotInERP, sku)
		}
	}
	sort.Strings(report.NotInERP)

	log.Info("Inventory sync finished",
		zap.String("location_id", locationID),
		zap.Int("erp_skus", report.ERPSKUs),
		zap.Int("updated", len(report.Updated)),
		zap.Int("unchanged", report.Unchanged),
		zap.Int("oversell_skipped", len(report.SkippedOversell)),
		zap.Int("not_in_storefront", len(report.NotInStorefront)),
		zap.Int("not_in_erp", len(report.NotInERP)),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

// reconcileItem pushes qty to one variant when it differs from the last
// known value. Only authentication failures are returned.
func (e *InventorySyncEngine) reconcileItem(
	ctx context.Context,
	cfg *integration.StoreConfig,
	locationID string,
	item integration.InventoryItem,
	qty int64,
	opts InventoryRunOptions,
	report *InventoryReport,
	log *zap.Logger,
) error {
	if item.Policy.AllowsOversell() {
		report.SkippedOversell = append(report.SkippedOversell, item.SKU)
		e.metrics.RecordInventoryPush(ctx, cfg.Tenant, InventoryOutcomeOversell)
		return nil
	}

	key := integration.QuantityKey{Tenant: cfg.Tenant, LocationID: locationID, InventoryItemID: item.InventoryItemID}
	last, known := item.Available, false
	if e.cache != nil {
		cached, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			log.Warn("Quantity cache read failed", zap.String("sku", item.SKU), zap.Error(err))
		} else if ok {
			last, known = cached, true
		}
	}

	if last == qty {
		report.Unchanged++
		e.metrics.RecordInventoryPush(ctx, cfg.Tenant, InventoryOutcomeUnchanged)
		if !known && !opts.DryRun {
			e.remember(ctx, key, qty, log)
		}
		return nil
	}

	change := InventoryChange{SKU: item.SKU, InventoryItemID: item.InventoryItemID, From: last, To: qty}
	if opts.DryRun {
		log.Info("Dry run: would set inventory level",
			zap.String("sku", item.SKU),
			zap.Int64("from", last),
			zap.Int64("to", qty),
		)
		report.Updated = append(report.Updated, change)
		return nil
	}

	policy := retryPolicy{
		maxAttempts: e.settings.MaxAttempts,
		baseDelay:   e.settings.RetryBaseDelay,
		maxDelay:    e.settings.RetryMaxDelay,
		sleep:       e.sleep,
	}
	_, err := policy.do(ctx, func(int) error {
		return e.storefront.SetInventoryLevel(ctx, cfg, integration.InventoryLevelUpdate{
			LocationID:      locationID,
			InventoryItemID: item.InventoryItemID,
			SKU:             item.SKU,
			Available:       qty,
		})
	})
	if err != nil {
		report.Errors = append(report.Errors, InventoryError{SKU: item.SKU, Error: err.Error()})
		e.metrics.RecordInventoryPush(ctx, cfg.Tenant, InventoryOutcomeFailed)
		log.Warn("Failed to set inventory level", zap.String("sku", item.SKU), zap.Error(err))
		if errors.Is(err, integration.ErrAuth) {
			return err
		}
		return nil
	}

	report.Updated = append(report.Updated, change)
	e.metrics.RecordInventoryPush(ctx, cfg.Tenant, InventoryOutcomeUpdated)
	e.remember(ctx, key, qty, log)
	log.Debug("Inventory level set", zap.String("sku", item.SKU), zap.Int64("from", last), zap.Int64("to", qty))
	return nil
}

func (e *InventorySyncEngine) remember(ctx context.Context, key integration.QuantityKey, qty int64, log *zap.Logger) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Set(ctx, key, qty); err != nil {
		log.Warn("Quantity cache write failed", zap.String("inventory_item_id", key.InventoryItemID), zap.Error(err))
	}
}

// aggregateStock sums on-hand quantities per product code, restricted to the
// tenant's warehouse when one is configured, then floors to whole units.
func aggregateStock(cfg *integration.StoreConfig, levels []integration.StockLevel) map[string]int64 {
	sums := make(map[string]decimal.Decimal, len(levels))
	for _, l := range levels {
		if l.ProductCode == "" {
			continue
		}
		if wh := cfg.ERP.WarehouseCode; wh != "" && l.WarehouseCode != "" && l.WarehouseCode != wh {
			continue
		}
		sums[l.ProductCode] = sums[l.ProductCode].Add(l.QtyOnHand)
	}
	out := make(map[string]int64, len(sums))
	for code, qty := range sums {
		out[code] = integration.StockLevel{ProductCode: code, QtyOnHand: qty}.Units()
	}
	return out
}
