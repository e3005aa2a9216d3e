package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/storesync/internal/domain/integration"
)

type quantityEntry struct {
	qty       int64
	expiresAt time.Time
}

// InMemoryQuantityCache implements integration.QuantityCache using an in-memory map.
// State is lost on restart; the engine then compares against the storefront's
// reported quantity instead.
type InMemoryQuantityCache struct {
	mu        sync.RWMutex
	entries   map[integration.QuantityKey]quantityEntry
	ttl       time.Duration
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryQuantityCache creates a cache whose entries expire after ttl.
// A non-positive ttl keeps entries forever.
func NewInMemoryQuantityCache(ttl time.Duration) *InMemoryQuantityCache {
	c := &InMemoryQuantityCache{
		entries:  make(map[integration.QuantityKey]quantityEntry),
		ttl:      ttl,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	if ttl > 0 {
		c.wg.Add(1)
		go c.cleanupLoop(cleanupInterval(ttl))
	}
	return c
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < 5*time.Minute {
		return ttl
	}
	return 5 * time.Minute
}

// Get returns the last quantity recorded for key
func (c *InMemoryQuantityCache) Get(_ context.Context, key integration.QuantityKey) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return 0, false, nil
	}
	return e.qty, true, nil
}

// Set records qty for key
func (c *InMemoryQuantityCache) Set(_ context.Context, key integration.QuantityKey, qty int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := quantityEntry{qty: qty}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (c *InMemoryQuantityCache) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopChan)
		c.wg.Wait()
	})
	return nil
}

// Size returns the number of entries, expired ones included until cleanup.
func (c *InMemoryQuantityCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *InMemoryQuantityCache) expired(e quantityEntry) bool {
	return !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt)
}

func (c *InMemoryQuantityCache) cleanupLoop(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

func (c *InMemoryQuantityCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, k)
		}
	}
}

// Ensure InMemoryQuantityCache implements QuantityCache
var _ integration.QuantityCache = (*InMemoryQuantityCache)(nil)
