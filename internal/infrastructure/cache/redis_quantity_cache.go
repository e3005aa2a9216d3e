package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/erp/storesync/internal/domain/integration"
	"github.com/erp/storesync/internal/infrastructure/config"
)

const defaultQuantityKeyPrefix = "storesync:"

// RedisQuantityCache implements integration.QuantityCache using Redis so that
// several processes share the last-seen quantities.
type RedisQuantityCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisClient opens a client and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisQuantityCache creates a cache on an existing client
func NewRedisQuantityCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisQuantityCache {
	if keyPrefix == "" {
		keyPrefix = defaultQuantityKeyPrefix
	}
	return &RedisQuantityCache{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Key returns the Redis key of an inventory level
func (c *RedisQuantityCache) Key(key integration.QuantityKey) string {
	return c.keyPrefix + "qty:" + key.String()
}

// Get returns the last quantity recorded for key
func (c *RedisQuantityCache) Get(ctx context.Context, key integration.QuantityKey) (int64, bool, error) {
	qty, err := c.client.Get(ctx, c.Key(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read cached quantity: %w", err)
	}
	return qty, true, nil
}

// Set records qty for key
func (c *RedisQuantityCache) Set(ctx context.Context, key integration.QuantityKey, qty int64) error {
	if err := c.client.Set(ctx, c.Key(key), qty, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cached quantity: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisQuantityCache) Close() error {
	return c.client.Close()
}

// Ensure RedisQuantityCache implements QuantityCache
var _ integration.QuantityCache = (*RedisQuantityCache)(nil)
