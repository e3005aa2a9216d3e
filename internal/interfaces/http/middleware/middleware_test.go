package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/infrastructure/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBodyLimit(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{"within limit", "hello", http.StatusOK},
		{"at limit", "0123456789", http.StatusOK},
		{"over limit", "0123456789x", http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.Use(BodyLimit(10))
			engine.POST("/", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestBodyLimit_StreamingBody(t *testing.T) {
	engine := gin.New()
	engine.Use(BodyLimit(4))
	engine.POST("/", func(c *gin.Context) {
		if _, err := c.GetRawData(); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long"))
	req.ContentLength = -1
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAPIToken(t *testing.T) {
	tests := []struct {
		name           string
		token          string
		header         string
		expectedStatus int
	}{
		{"disabled", "", "", http.StatusOK},
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
		{"missing", "s3cret", "", http.StatusUnauthorized},
		{"wrong", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := gin.New()
			engine.Use(APIToken(tt.token))
			engine.GET("/", func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestTracing_Disabled(t *testing.T) {
	engine := gin.New()
	engine.Use(Tracing(TracingConfig{Enabled: false}), SpanAttributes())
	engine.GET("/", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestTracing_SpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	engine := gin.New()
	engine.Use(
		Tracing(DefaultTracingConfig()),
		logger.GinMiddleware(zap.NewNop()),
		SpanAttributes(),
	)
	engine.GET("/tenants/:tenant/ledger", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	engine.GET("/tenants/:tenant/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	t.Run("tags tenant and request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/tenants/acme/ledger", nil)
		req.Header.Set(logger.RequestIDHeader, "req-1")
		engine.ServeHTTP(httptest.NewRecorder(), req)

		spans := recorder.Ended()
		require.NotEmpty(t, spans)
		attrs := spans[len(spans)-1].Attributes()
		assert.Contains(t, attrs, attribute.String("tenant", "acme"))
		assert.Contains(t, attrs, attribute.String("request_id", "req-1"))
	})

	t.Run("marks server errors", func(t *testing.T) {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tenants/acme/boom", nil))

		spans := recorder.Ended()
		require.NotEmpty(t, spans)
		assert.Equal(t, codes.Error, spans[len(spans)-1].Status().Code)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab", truncate("abc", 2))
}
