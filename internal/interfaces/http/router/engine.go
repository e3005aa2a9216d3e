package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/erp/storesync/docs"
	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/config"
	"github.com/erp/storesync/internal/infrastructure/logger"
	"github.com/erp/storesync/internal/interfaces/http/dto"
	"github.com/erp/storesync/internal/interfaces/http/handler"
	"github.com/erp/storesync/internal/interfaces/http/middleware"
)

// Deps are the collaborators of the ops surface
type Deps struct {
	Logger         *zap.Logger
	HTTP           config.HTTPConfig
	ServiceName    string
	TracingEnabled bool
	Version        string

	Configs      integration.StoreConfigProvider
	Ledger       integration.LedgerReader
	Scheduler    handler.SyncTrigger
	Deliveries   handler.DeliveryDeduper
	HealthChecks map[string]handler.HealthCheck
}

// NewEngine builds the gin engine:
//
//	GET  /healthz
//	POST /webhooks/shopify/:tenant
//	GET  /api/v1/system/info
//	GET  /api/v1/sync/jobs
//	GET  /api/v1/sync/loops
//	GET  /api/v1/tenants/:tenant/ledger
//	GET  /api/v1/tenants/:tenant/jobs
//	POST /api/v1/tenants/:tenant/sync/:kind
//	GET  /swagger/*any
//
// Only /api/v1 sits behind the API token; webhooks carry their own HMAC.
// The docs answer 404 unless http.swagger.enabled is set.
func NewEngine(d Deps) (*gin.Engine, error) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(d.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(
		middleware.Tracing(middleware.TracingConfig{ServiceName: d.ServiceName, Enabled: d.TracingEnabled}),
		logger.GinMiddleware(log),
		logger.Recovery(log),
		middleware.SpanAttributes(),
	)
	if d.HTTP.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(d.HTTP.MaxBodySize))
	}

	systemHandler := handler.NewSystemHandler(d.Version, d.HealthChecks)
	syncHandler := handler.NewSyncHandler(d.Ledger, d.Scheduler, d.Configs)
	webhookHandler := handler.NewWebhookHandler(d.Configs, d.Scheduler, d.Deliveries)

	health := NewDomainGroup("health", "")
	health.GET("/healthz", systemHandler.Health)

	webhooks := NewDomainGroup("webhooks", "/webhooks")
	webhooks.POST("/shopify/:tenant", webhookHandler.Shopify)

	system := NewDomainGroup("system", "/system")
	system.GET("/info", systemHandler.GetSystemInfo)

	syncRoutes := NewDomainGroup("sync", "/sync")
	syncRoutes.GET("/jobs", syncHandler.ListJobs)
	syncRoutes.GET("/loops", syncHandler.ListLoops)

	tenants := NewDomainGroup("tenants", "/tenants/:tenant")
	tenants.GET("/ledger", syncHandler.ListLedger)
	tenants.GET("/jobs", syncHandler.ListTenantJobs)
	tenants.POST("/sync/:kind", syncHandler.TriggerSync)

	NewRouter(engine, WithAPIVersion("v1"), WithAPIMiddleware(middleware.APIToken(d.HTTP.APIToken))).
		RegisterRoot(health).
		RegisterRoot(webhooks).
		Register(system).
		Register(syncRoutes).
		Register(tenants).
		Setup()

	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:      d.HTTP.SwaggerEnabled,
			RequireToken: d.HTTP.SwaggerRequireToken,
			AllowedIPs:   d.HTTP.SwaggerAllowedIPs,
		}, middleware.APIToken(d.HTTP.APIToken)),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.NewErrorResponse(dto.ErrCodeNotFound, "route not found"))
	})

	return engine, nil
}

// NewServer wraps engine in an http.Server configured from cfg
func NewServer(addr string, engine http.Handler, cfg config.HTTPConfig) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
}
