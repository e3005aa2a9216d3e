package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func okHandler(body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, body)
	}
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())

	assert.NotNil(t, r)
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)
	assert.Empty(t, r.rootRegistrars)
}

func TestRouterWithAPIVersion(t *testing.T) {
	r := NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()

	tenants := NewDomainGroup("tenants", "/tenants")
	tenants.GET("/:tenant/ledger", okHandler("ledger"))

	webhooks := NewDomainGroup("webhooks", "/webhooks")
	webhooks.POST("/shopify/:tenant", okHandler("hook"))

	NewRouter(engine).Register(tenants).RegisterRoot(webhooks).Setup()

	tests := []struct {
		name   string
		method string
		path   string
		status int
		body   string
	}{
		{"versioned route", http.MethodGet, "/api/v1/tenants/acme/ledger", http.StatusOK, "ledger"},
		{"root route", http.MethodPost, "/webhooks/shopify/acme", http.StatusOK, "hook"},
		{"root route is not versioned", http.MethodPost, "/api/v1/webhooks/shopify/acme", http.StatusNotFound, ""},
		{"versioned route is not at root", http.MethodGet, "/tenants/acme/ledger", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(engine, tt.method, tt.path)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestRouterAPIMiddleware(t *testing.T) {
	engine := gin.New()
	deny := func(c *gin.Context) {
		c.AbortWithStatus(http.StatusUnauthorized)
	}

	api := NewDomainGroup("sync", "/sync")
	api.GET("/jobs", okHandler("jobs"))
	health := NewDomainGroup("health", "")
	health.GET("/healthz", okHandler("ok"))

	NewRouter(engine, WithAPIMiddleware(deny)).Register(api).RegisterRoot(health).Setup()

	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/sync/jobs").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/healthz").Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("creates group with name and prefix", func(t *testing.T) {
		g := NewDomainGroup("tenants", "/tenants")
		assert.Equal(t, "tenants", g.Name())
		assert.Equal(t, "/tenants", g.Prefix())
	})

	t.Run("applies middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("test", "/test")
		g.Use(func(c *gin.Context) {
			c.Header("X-Test-Middleware", "applied")
			c.Next()
		})
		g.GET("/items", okHandler("ok"))
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/test/items")
		assert.Equal(t, "applied", w.Header().Get("X-Test-Middleware"))
	})

	t.Run("creates subgroups", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("tenants", "/tenants/:tenant")
		g.Group("ledger", "/ledger").GET("", okHandler("ledger"))
		g.Group("sync", "/sync").POST("/:kind", okHandler("sync"))
		g.RegisterRoutes(engine.Group("/api/v1"))

		w1 := serve(engine, http.MethodGet, "/api/v1/tenants/acme/ledger")
		assert.Equal(t, http.StatusOK, w1.Code)
		assert.Equal(t, "ledger", w1.Body.String())

		w2 := serve(engine, http.MethodPost, "/api/v1/tenants/acme/sync/order")
		assert.Equal(t, http.StatusOK, w2.Code)
		assert.Equal(t, "sync", w2.Body.String())
	})
}

func TestChainedMethodCalls(t *testing.T) {
	engine := gin.New()

	g := NewDomainGroup("test", "/test")
	g.GET("/a", okHandler("a")).POST("/b", okHandler("b"))
	NewRouter(engine).Register(g).Setup()

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/test/a").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodPost, "/api/v1/test/b").Code)
}
