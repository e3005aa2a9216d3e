package ecommerce

import (
	"errors"
	"time"
)

const (
	// UnleashedProductionAPIURL is the public API endpoint
	UnleashedProductionAPIURL = "https://api.unleashedsoftware.com"

	defaultUnleashedTimeout        = 30 * time.Second
	defaultUnleashedStockPageSize  = 200
	defaultUnleashedLookupPageSize = 100
	defaultTaxCode                 = "G.S.T."
	defaultCurrency                = "AUD"
)

// Errors for Unleashed configuration
var (
	ErrUnleashedConfigInvalidPageSize = errors.New("unleashed: page size must be positive")
)

// UnleashedConfig holds process-wide settings of the Unleashed adapter.
// Tenant credentials live in StoreConfig and are passed per call.
type UnleashedConfig struct {
	// Timeout bounds one HTTP round trip, including an in-flight POST
	// that outlives the run deadline.
	Timeout time.Duration
	// StockPageSize is the page size of StockOnHand listings
	StockPageSize int
	// LookupPageSize is how many recent sales orders are scanned when
	// looking an order up by reference
	LookupPageSize int
	// DefaultTaxCode applies when a tenant does not set one
	DefaultTaxCode string
	// DefaultCurrency applies when neither the order nor the tenant has one
	DefaultCurrency string
}

// NewUnleashedConfig returns a config with defaults.
func NewUnleashedConfig() *UnleashedConfig {
	return &UnleashedConfig{
		Timeout:         defaultUnleashedTimeout,
		StockPageSize:   defaultUnleashedStockPageSize,
		LookupPageSize:  defaultUnleashedLookupPageSize,
		DefaultTaxCode:  defaultTaxCode,
		DefaultCurrency: defaultCurrency,
	}
}

// Validate validates the configuration and fills unset fields
func (c *UnleashedConfig) Validate() error {
	if c.StockPageSize < 0 || c.LookupPageSize < 0 {
		return ErrUnleashedConfigInvalidPageSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultUnleashedTimeout
	}
	if c.StockPageSize == 0 {
		c.StockPageSize = defaultUnleashedStockPageSize
	}
	if c.LookupPageSize == 0 {
		c.LookupPageSize = defaultUnleashedLookupPageSize
	}
	if c.DefaultTaxCode == "" {
		c.DefaultTaxCode = defaultTaxCode
	}
	if c.DefaultCurrency == "" {
		c.DefaultCurrency = defaultCurrency
	}
	return nil
}
