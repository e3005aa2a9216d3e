package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDeliveryTTL covers Shopify's redelivery window for a failed webhook.
const DefaultDeliveryTTL = 48 * time.Hour

// DeliveryStore remembers webhook delivery ids so a redelivered webhook does
// not trigger a second run.
type DeliveryStore interface {
	// MarkDelivered returns true the first time (tenant, id) is seen
	// within the TTL and false for repeats.
	MarkDelivered(ctx context.Context, tenant, id string) (bool, error)
	Close() error
}

// ---------------------------------------------------------------------------
// In-memory
// ---------------------------------------------------------------------------

// InMemoryDeliveryStore implements DeliveryStore with a map. It suits a
// single serve process.
type InMemoryDeliveryStore struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDeliveryStore creates a store and starts its cleanup goroutine
func NewInMemoryDeliveryStore(ttl time.Duration) *InMemoryDeliveryStore {
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	s := &InMemoryDeliveryStore{
		entries:  make(map[string]time.Time),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.cleanupLoop(cleanupInterval(ttl))
	return s
}

// MarkDelivered implements DeliveryStore
func (s *InMemoryDeliveryStore) MarkDelivered(_ context.Context, tenant, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tenant + "\x00" + id
	now := s.now()
	if expiresAt, ok := s.entries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	s.entries[key] = now.Add(s.ttl)
	return true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemoryDeliveryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Size returns the number of remembered deliveries
func (s *InMemoryDeliveryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *InMemoryDeliveryStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemoryDeliveryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, expiresAt := range s.entries {
		if !now.Before(expiresAt) {
			delete(s.entries, k)
		}
	}
}

// ---------------------------------------------------------------------------
// Redis
// ---------------------------------------------------------------------------

// RedisDeliveryStore implements DeliveryStore with SETNX so several serve
// processes behind one webhook URL agree on what was seen.
type RedisDeliveryStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisDeliveryStore creates a store on an existing client
func NewRedisDeliveryStore(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisDeliveryStore {
	if keyPrefix == "" {
		keyPrefix = defaultQuantityKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultDeliveryTTL
	}
	return &RedisDeliveryStore{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Key returns the Redis key of one delivery
func (s *RedisDeliveryStore) Key(tenant, id string) string {
	return s.keyPrefix + "webhook:" + tenant + ":" + id
}

// MarkDelivered implements DeliveryStore
func (s *RedisDeliveryStore) MarkDelivered(ctx context.Context, tenant, id string) (bool, error) {
	fresh, err := s.client.SetNX(ctx, s.Key(tenant, id), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return fresh, nil
}

// Close closes the Redis client
func (s *RedisDeliveryStore) Close() error {
	return s.client.Close()
}

var (
	_ DeliveryStore = (*InMemoryDeliveryStore)(nil)
	_ DeliveryStore = (*RedisDeliveryStore)(nil)
)
