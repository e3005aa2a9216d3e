package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	appintegration "github.com/erp/storesync/internal/application/integration"
	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/cache"
	"github.com/erp/storesync/internal/infrastructure/config"
	"github.com/erp/storesync/internal/infrastructure/ecommerce"
	"github.com/erp/storesync/internal/infrastructure/logger"
	"github.com/erp/storesync/internal/infrastructure/persistence"
	"github.com/erp/storesync/internal/infrastructure/scheduler"
	"github.com/erp/storesync/internal/infrastructure/secrets"
	"github.com/erp/storesync/internal/infrastructure/telemetry"
	"github.com/erp/storesync/internal/interfaces/http/handler"
)

// BootMode selects how much of the process a command needs.
type BootMode int

const (
	// BootStorage loads config, credentials, the database and the ERP client.
	BootStorage BootMode = iota
	// BootEngines also resolves storefront locations and builds the sync engines.
	BootEngines
)

// App is the wired process. Commands only see the interfaces they need so
// tests can hand in fakes.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	Configs   integration.StoreConfigProvider
	Ledger    integration.LedgerReader
	Mappings  integration.BundleMappingRepository
	ERP       integration.ERPClient
	Orders    scheduler.OrderRunner
	Inventory scheduler.InventoryRunner

	// Deliveries remembers webhook delivery ids; nil disables the check.
	Deliveries handler.DeliveryDeduper

	HealthChecks   map[string]handler.HealthCheck
	TracingEnabled bool
	// Tracer is nil in tests; serve links it to the profiler when both run
	Tracer *telemetry.TracerProvider

	closers []func(context.Context) error
}

// AppFactory builds an App for a command.
type AppFactory func(ctx context.Context, opts *RootOptions, mode BootMode) (*App, error)

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return errors.Join(errs...)
}

// Bootstrap is the production AppFactory.
func Bootstrap(ctx context.Context, opts *RootOptions, mode BootMode) (app *App, err error) {
	if os.Getenv("STORESYNC_APP_ENV") != "production" {
		if err := godotenv.Overload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
			app = nil
		}
	}()

	// Logging goes to stderr so --format json output on stdout stays clean
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	if cfg.Log.Format != "" {
		logCfg.Format = cfg.Log.Format
	}
	if cfg.Log.Output != "" && cfg.Log.Output != "stdout" {
		logCfg.Output = cfg.Log.Output
	}
	if opts.Verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	app.Logger = log

	providers, err := telemetry.Setup(ctx, telemetry.FromAppConfig(cfg.Telemetry), log)
	if err != nil {
		return nil, err
	}
	app.onClose(providers.Shutdown)
	log = providers.Logs.Bridge(log, logger.ParseLevel(logCfg.Level))
	app.Logger = log
	app.TracingEnabled = providers.Tracer.IsEnabled()
	app.Tracer = providers.Tracer
	meter := providers.Meter.Meter("github.com/erp/storesync")

	fetcher := secrets.NewFetcher(
		secrets.WithLogger(log),
		secrets.WithEnvironment(cfg.Secrets.Environment),
		secrets.WithDefaultProject(cfg.Secrets.DefaultProject),
		secrets.WithProjectMap(cfg.Secrets.ProjectMap),
		secrets.WithFallbackFile(cfg.Secrets.FallbackFile),
		secrets.WithMeter(meter),
	)
	app.onClose(func(context.Context) error { return fetcher.Close() })

	shopify, err := ecommerce.NewShopifyAdapter(&ecommerce.ShopifyConfig{
		Timeout:    cfg.Sync.RequestTimeout,
		PageSize:   cfg.Sync.FetchLimit,
		PageDelay:  cfg.Sync.PageDelay,
		WriteDelay: cfg.Sync.WriteDelay,
	}, log)
	if err != nil {
		return nil, err
	}
	unleashedCfg := ecommerce.NewUnleashedConfig()
	unleashedCfg.Timeout = cfg.Sync.RequestTimeout
	unleashed, err := ecommerce.NewUnleashedAdapter(unleashedCfg, log)
	if err != nil {
		return nil, err
	}
	app.ERP = unleashed

	registryOpts := []config.RegistryOption{
		config.WithSecretResolver(fetcher),
		config.WithRegistryLogger(log),
	}
	if mode == BootEngines {
		registryOpts = append(registryOpts, config.WithLocationResolver(shopify))
	}
	registry, err := config.NewRegistry(ctx, cfg.Tenants, registryOpts...)
	if err != nil {
		return nil, err
	}
	app.Configs = registry

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(logCfg.Level)))
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return db.Close() })
	if cfg.Database.Driver == "sqlite" {
		if err := db.AutoMigrate(); err != nil {
			return nil, err
		}
	}
	if app.TracingEnabled {
		if err := telemetry.InstrumentDB(db.DB, cfg.Database.Driver, log); err != nil {
			return nil, err
		}
	}
	app.HealthChecks = map[string]handler.HealthCheck{
		"database": func(context.Context) error { return db.Ping() },
	}

	ledger := persistence.NewGormSyncLedgerRepository(db.DB)
	mappings := persistence.NewGormBundleMappingRepository(db.DB)
	app.Ledger = ledger
	app.Mappings = mappings

	if mode != BootEngines {
		return app, nil
	}

	caches := cache.NewFactory(cfg.Redis, cfg.Sync, cache.WithLogger(log))
	quantities, err := caches.CreateQuantityCache(ctx)
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return quantities.Close() })
	deliveries, err := caches.CreateDeliveryStore(ctx)
	if err != nil {
		return nil, err
	}
	app.onClose(func(context.Context) error { return deliveries.Close() })
	app.Deliveries = deliveries

	metrics, err := telemetry.NewSyncMetrics(meter, log)
	if err != nil {
		return nil, err
	}

	engineOpts := []appintegration.EngineOption{
		appintegration.WithLogger(log),
		appintegration.WithMetrics(metrics),
		appintegration.WithSettings(EngineSettings(cfg.Sync)),
		appintegration.WithCursorStore(persistence.NewGormSyncCursorRepository(db.DB)),
		appintegration.WithQuantityCache(quantities),
	}
	app.Orders = appintegration.NewOrderSyncEngine(registry, shopify, unleashed, ledger,
		appintegration.NewBundleResolver(mappings, log), engineOpts...)
	app.Inventory = appintegration.NewInventorySyncEngine(registry, shopify, unleashed, engineOpts...)

	return app, nil
}

// EngineSettings maps the sync section of the config onto the engines.
func EngineSettings(s config.SyncConfig) appintegration.EngineSettings {
	out := appintegration.DefaultEngineSettings()
	if s.RunTimeout > 0 {
		out.RunTimeout = s.RunTimeout
	}
	if s.StaleAfter > 0 {
		out.StaleAfter = s.StaleAfter
	}
	if s.RequestTimeout > 0 {
		out.RequestTimeout = s.RequestTimeout
	}
	if s.MaxAttempts > 0 {
		out.MaxAttempts = s.MaxAttempts
	}
	if s.RetryBaseDelay > 0 {
		out.RetryBaseDelay = s.RetryBaseDelay
	}
	if s.RetryMaxDelay > 0 {
		out.RetryMaxDelay = s.RetryMaxDelay
	}
	if s.FetchLimit > 0 {
		out.FetchLimit = s.FetchLimit
	}
	return out
}
