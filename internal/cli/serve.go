package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/scheduler"
	"github.com/erp/storesync/internal/infrastructure/telemetry"
	"github.com/erp/storesync/internal/interfaces/http/router"
)

const shutdownTimeout = 30 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr         string
	Kinds        []string
	NoRunOnStart bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync scheduler and the HTTP ops surface",
		Long: `Run order and inventory sync loops for every configured tenant, accept
Shopify webhooks that trigger an early run, and expose health, ledger and
job history over HTTP. Stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default :<app.port>)")
	cmd.Flags().StringSliceVar(&opts.Kinds, "kinds", nil, "loops to schedule (order,inventory); default both")
	cmd.Flags().BoolVar(&opts.NoRunOnStart, "no-run-on-start", false, "wait one interval before the first run")

	return cmd
}

func (o *ServeOptions) kinds() ([]integration.LedgerKind, error) {
	out := make([]integration.LedgerKind, 0, len(o.Kinds))
	for _, k := range o.Kinds {
		kind := integration.LedgerKind(k)
		if !kind.IsValid() {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --kinds value %q", k))
		}
		out = append(out, kind)
	}
	return out, nil
}

// schedulerConfig maps the sync settings onto the scheduler, keeping
// defaults for anything left unset.
func (o *ServeOptions) schedulerConfig(app *App, kinds []integration.LedgerKind) scheduler.SyncSchedulerConfig {
	cfg := scheduler.DefaultSyncSchedulerConfig()
	cfg.Kinds = kinds
	cfg.RunOnStart = !o.NoRunOnStart
	if app.Config == nil {
		return cfg
	}
	s := app.Config.Sync
	if s.OrderInterval > 0 {
		cfg.OrderInterval = s.OrderInterval
	}
	if s.InventoryInterval > 0 {
		cfg.InventoryInterval = s.InventoryInterval
	}
	if s.HistorySize > 0 {
		cfg.HistorySize = s.HistorySize
	}
	return cfg
}

// server is everything serve starts and stops.
type server struct {
	sched *scheduler.SyncScheduler
	http  *http.Server
}

func (o *ServeOptions) build(app *App) (*server, error) {
	kinds, err := o.kinds()
	if err != nil {
		return nil, err
	}

	log := app.Logger
	if log == nil {
		log = zap.NewNop()
	}

	executor := scheduler.NewEngineExecutor(app.Orders, app.Inventory, log)
	sched, err := scheduler.NewSyncScheduler(o.schedulerConfig(app, kinds), executor, app.Configs, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid scheduler settings", err)
	}

	deps := router.Deps{
		Logger:         log,
		TracingEnabled: app.TracingEnabled,
		Version:        telemetry.Version,
		ServiceName:    "storesync",
		Configs:        app.Configs,
		Ledger:         app.Ledger,
		Scheduler:      sched,
		Deliveries:     app.Deliveries,
		HealthChecks:   app.HealthChecks,
	}
	addr := o.Addr
	if app.Config != nil {
		deps.HTTP = app.Config.HTTP
		if app.Config.Telemetry.ServiceName != "" {
			deps.ServiceName = app.Config.Telemetry.ServiceName
		}
		if addr == "" {
			addr = ":" + app.Config.App.Port
		}
		if app.Config.App.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
	}
	if addr == "" {
		addr = ":8080"
	}

	engine, err := router.NewEngine(deps)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid HTTP settings", err)
	}
	return &server{sched: sched, http: router.NewServer(addr, engine, deps.HTTP)}, nil
}

// startProfiler pushes profiles to Pyroscope when telemetry.profiling is
// enabled and ties CPU samples to spans when tracing is on too.
func startProfiler(app *App, log *zap.Logger) (*telemetry.Profiler, error) {
	var cfg telemetry.ProfilerConfig
	if app.Config != nil {
		cfg = telemetry.ProfilerFromAppConfig(app.Config.Telemetry)
	}
	profiler, err := telemetry.NewProfiler(cfg, log)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "profiler failed to start", err)
	}
	if profiler.IsEnabled() && app.Tracer != nil {
		app.Tracer.EnableSpanProfiles()
	}
	return profiler, nil
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	app, closeApp, err := opts.open(ctx, BootEngines)
	if err != nil {
		return err
	}
	defer closeApp()

	srv, err := opts.build(app)
	if err != nil {
		return err
	}
	log := app.Logger
	if log == nil {
		log = zap.NewNop()
	}

	profiler, err := startProfiler(app, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Warn("Profiler stop incomplete", zap.Error(err))
		}
	}()

	if err := srv.sched.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "scheduler failed to start", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.http.Addr))
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
			runErr = WrapExitError(ExitFailure, "HTTP server failed", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if err := srv.sched.Stop(shutdownCtx); err != nil {
		log.Warn("Scheduler stop incomplete", zap.Error(err))
	}
	return runErr
}
