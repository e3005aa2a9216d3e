// Package middleware provides HTTP middleware for the storesync ops surface.
package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/erp/storesync/internal/infrastructure/logger"
)

const (
	// MaxRequestIDLength caps request IDs copied onto spans.
	MaxRequestIDLength = 128
	// MaxTenantLength caps tenant path parameters copied onto spans.
	MaxTenantLength = 64
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "storesync",
		Enabled:     true,
	}
}

// Tracing wraps otelgin so every request gets a server span named after its
// route pattern.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return otelgin.Middleware(cfg.ServiceName)
}

// SpanAttributes enriches the active span after routing and marks server
// errors. Place it after Tracing and the logger middleware.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := truncate(c.Writer.Header().Get(logger.RequestIDHeader), MaxRequestIDLength); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if tenant := c.Param("tenant"); tenant != "" {
			span.SetAttributes(attribute.String("tenant", truncate(tenant, MaxTenantLength)))
		}

		c.Next()

		if status := c.Writer.Status(); status >= 500 {
			span.SetStatus(codes.Error, "Internal Server Error")
		}
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
