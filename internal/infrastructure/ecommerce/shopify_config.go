package ecommerce

import (
	"errors"
	"time"
)

const (
	defaultShopifyTimeout    = 30 * time.Second
	defaultShopifyPageSize   = 250
	defaultShopifyPageDelay  = 250 * time.Millisecond
	defaultShopifyWriteDelay = 500 * time.Millisecond
	maxShopifyPageSize       = 250
)

// Errors for Shopify configuration
var (
	ErrShopifyConfigInvalidPageSize = errors.New("shopify: page size must be between 1 and 250")
	ErrShopifyConfigInvalidDelay    = errors.New("shopify: delays must not be negative")
)

// ShopifyConfig holds process-wide settings of the Shopify adapter.
type ShopifyConfig struct {
	Timeout  time.Duration
	PageSize int
	// PageDelay is slept between listing pages to stay under the REST bucket.
	PageDelay time.Duration
	// WriteDelay is slept after every inventory write.
	WriteDelay time.Duration
}

// NewShopifyConfig returns a config with defaults.
func NewShopifyConfig() *ShopifyConfig {
	return &ShopifyConfig{
		Timeout:    defaultShopifyTimeout,
		PageSize:   defaultShopifyPageSize,
		PageDelay:  defaultShopifyPageDelay,
		WriteDelay: defaultShopifyWriteDelay,
	}
}

// Validate validates the configuration and fills unset fields
func (c *ShopifyConfig) Validate() error {
	if c.PageSize < 0 || c.PageSize > maxShopifyPageSize {
		return ErrShopifyConfigInvalidPageSize
	}
	if c.PageDelay < 0 || c.WriteDelay < 0 {
		return ErrShopifyConfigInvalidDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultShopifyTimeout
	}
	if c.PageSize == 0 {
		c.PageSize = defaultShopifyPageSize
	}
	return nil
}
