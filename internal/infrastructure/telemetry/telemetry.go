// Package telemetry wires OpenTelemetry metrics, traces and logs for the
// sync service and exports them to an OTLP collector over gRPC.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/infrastructure/config"
)

// Version is reported as service.version on every signal.
var Version = "dev"

// Config holds telemetry configuration shared by all signals.
type Config struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
	SamplingRatio     float64
	LogsEnabled       bool
}

// FromAppConfig maps the config file section onto Config.
func FromAppConfig(c config.TelemetryConfig) Config {
	return Config{
		Enabled:           c.Enabled,
		CollectorEndpoint: c.CollectorEndpoint,
		ServiceName:       c.ServiceName,
		Insecure:          c.Insecure,
		ExportInterval:    c.ExportInterval,
		SamplingRatio:     c.SamplingRatio,
		LogsEnabled:       c.LogsEnabled,
	}
}

func newResource(serviceName string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// Providers bundles the three signal providers so callers shut them down
// together.
type Providers struct {
	Meter  *MeterProvider
	Tracer *TracerProvider
	Logs   *LoggerProvider
}

// Setup creates every provider for cfg. With telemetry disabled the
// providers are inert and the global no-op implementations stay in place.
func Setup(ctx context.Context, cfg Config, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mp, err := NewMeterProvider(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	tp, err := NewTracerProvider(ctx, cfg, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	lp, err := NewLoggerProvider(ctx, cfg, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return &Providers{Meter: mp, Tracer: tp, Logs: lp}, nil
}

// Shutdown flushes and stops every provider, returning all errors joined.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.Meter.Shutdown(ctx),
		p.Tracer.Shutdown(ctx),
		p.Logs.Shutdown(ctx),
	)
}
