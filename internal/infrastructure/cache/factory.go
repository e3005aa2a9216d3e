package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/config"
)

// Backend names accepted by sync.quantity_cache
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// QuantityCache is an integration.QuantityCache that owns resources.
type QuantityCache interface {
	integration.QuantityCache
	Close() error
}

// Factory creates the process-shared caches based on configuration. The
// backend chosen by sync.quantity_cache applies to every cache it builds.
type Factory struct {
	redisConfig           config.RedisConfig
	backend               string
	ttl                   time.Duration
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// FactoryOption is a functional option for configuring the factory
type FactoryOption func(*Factory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether to fall back to memory when Redis is unavailable.
// Default is true.
func WithInMemoryFallback(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowInMemoryFallback = allow
	}
}

// NewFactory creates a new factory
func NewFactory(redisCfg config.RedisConfig, syncCfg config.SyncConfig, opts ...FactoryOption) *Factory {
	f := &Factory{
		redisConfig:           redisCfg,
		backend:               syncCfg.QuantityCache,
		ttl:                   syncCfg.QuantityCacheTTL,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateQuantityCache builds the last-seen quantity cache. A redis backend
// that cannot connect falls back to memory unless fallback is disabled.
func (f *Factory) CreateQuantityCache(ctx context.Context) (QuantityCache, error) {
	client, err := f.redisClient(ctx, "quantity cache")
	if err != nil {
		return nil, err
	}
	if client == nil {
		return NewInMemoryQuantityCache(f.ttl), nil
	}
	return NewRedisQuantityCache(client, f.redisConfig.KeyPrefix, f.ttl), nil
}

// CreateDeliveryStore builds the webhook delivery store on the same backend.
func (f *Factory) CreateDeliveryStore(ctx context.Context) (DeliveryStore, error) {
	client, err := f.redisClient(ctx, "webhook delivery store")
	if err != nil {
		return nil, err
	}
	if client == nil {
		return NewInMemoryDeliveryStore(DefaultDeliveryTTL), nil
	}
	return NewRedisDeliveryStore(client, f.redisConfig.KeyPrefix, DefaultDeliveryTTL), nil
}

// redisClient returns nil, nil when memory should be used.
func (f *Factory) redisClient(ctx context.Context, what string) (*redis.Client, error) {
	switch f.backend {
	case "", BackendMemory:
		return nil, nil
	case BackendRedis:
		client, err := NewRedisClient(ctx, f.redisConfig)
		if err == nil {
			f.logger.Info("Using Redis "+what, zap.String("addr", f.redisConfig.Addr()))
			return client, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis %s unavailable: %w", what, err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory "+what+". "+
			"Processes will not share its state.",
			zap.Error(err),
		)
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", f.backend)
	}
}
