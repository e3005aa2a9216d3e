package integration

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Platforms
// ---------------------------------------------------------------------------

// StorefrontPlatform discriminates the storefront half of a StoreConfig.
type StorefrontPlatform string

const (
	// StorefrontPlatformShopify is the Shopify Admin REST API
	StorefrontPlatformShopify StorefrontPlatform = "shopify"
)

// IsValid returns true if the storefront platform has an adapter
func (p StorefrontPlatform) IsValid() bool {
	return p == StorefrontPlatformShopify
}

// String returns the string representation of StorefrontPlatform
func (p StorefrontPlatform) String() string {
	return string(p)
}

// ERPPlatform discriminates the ERP half of a StoreConfig.
type ERPPlatform string

const (
	// ERPPlatformUnleashed is the Unleashed inventory API
	ERPPlatformUnleashed ERPPlatform = "unleashed"
)

// IsValid returns true if the ERP platform has an adapter
func (p ERPPlatform) IsValid() bool {
	return p == ERPPlatformUnleashed
}

// String returns the string representation of ERPPlatform
func (p ERPPlatform) String() string {
	return string(p)
}

// SignatureMode selects which request parts the ERP signature covers.
type SignatureMode string

const (
	// SignatureModeCanonical signs method ++ url ++ query
	SignatureModeCanonical SignatureMode = "canonical"
	// SignatureModeQuery signs the query string only
	SignatureModeQuery SignatureMode = "query"
)

// IsValid returns true if the signature mode is known
func (m SignatureMode) IsValid() bool {
	switch m {
	case SignatureModeCanonical, SignatureModeQuery:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// StoreConfig
// ---------------------------------------------------------------------------

// StorefrontConfig holds storefront credentials for one tenant.
type StorefrontConfig struct {
	Platform      StorefrontPlatform `validate:"required"`
	ShopDomain    string             `validate:"required,hostname"`
	AccessToken   string             `validate:"required"`
	APIVersion    string             `validate:"required"`
	LocationID    string
	WebhookSecret string
	// BaseURL overrides https://<ShopDomain> (tests, proxies)
	BaseURL string `validate:"omitempty,url"`
}

// ERPConfig holds ERP credentials for one tenant.
type ERPConfig struct {
	Platform      ERPPlatform `validate:"required"`
	APIID         string      `validate:"required"`
	APISecret     string      `validate:"required"`
	BaseURL       string      `validate:"required,url"`
	WarehouseCode string
	TaxCode       string
	Currency      string `validate:"omitempty,len=3"`
	SignatureMode SignatureMode
}

// StoreConfig is the validated, immutable configuration of one tenant.
type StoreConfig struct {
	Tenant      string `validate:"required,max=64"`
	DisplayName string
	Storefront  StorefrontConfig
	ERP         ERPConfig
	// MinSyncDate is the hard lower bound for orders the engine may touch.
	MinSyncDate time.Time `validate:"required"`
	// Zero intervals fall back to the global sync settings.
	OrderInterval     time.Duration
	InventoryInterval time.Duration
	// TitleSKURules map SKU-less lines to an ERP code by title, first match wins.
	TitleSKURules []TitleSKURule
}

// TitleSKURule matches a product title (case-insensitive regex) to an ERP code.
type TitleSKURule struct {
	Pattern string
	SKU     string
}

// Validate performs the domain checks that struct tags cannot express.
func (c *StoreConfig) Validate() error {
	if strings.TrimSpace(c.Tenant) == "" {
		return NewConfigError(c.Tenant, "tenant id is empty")
	}
	if strings.Contains(c.Tenant, ":") {
		return NewConfigError(c.Tenant, "tenant id must not contain ':'")
	}
	if !c.Storefront.Platform.IsValid() {
		return NewConfigError(c.Tenant, "unsupported storefront platform %q", c.Storefront.Platform)
	}
	if !c.ERP.Platform.IsValid() {
		return NewConfigError(c.Tenant, "unsupported ERP platform %q", c.ERP.Platform)
	}
	if strings.TrimSpace(c.Storefront.AccessToken) == "" {
		return NewConfigError(c.Tenant, "storefront access token is empty")
	}
	if strings.TrimSpace(c.ERP.APIID) == "" || strings.TrimSpace(c.ERP.APISecret) == "" {
		return NewConfigError(c.Tenant, "ERP credentials are empty")
	}
	if c.ERP.SignatureMode != "" && !c.ERP.SignatureMode.IsValid() {
		return NewConfigError(c.Tenant, "unknown signature mode %q", c.ERP.SignatureMode)
	}
	if c.MinSyncDate.IsZero() {
		return NewConfigError(c.Tenant, "min sync date is required")
	}
	if c.OrderInterval < 0 || c.InventoryInterval < 0 {
		return NewConfigError(c.Tenant, "sync intervals must not be negative")
	}
	return nil
}

// WithLocationID returns a copy carrying the resolved storefront location.
func (c StoreConfig) WithLocationID(locationID string) StoreConfig {
	c.Storefront.LocationID = locationID
	return c
}

// EffectiveSignatureMode defaults to canonical signing.
func (c *StoreConfig) EffectiveSignatureMode() SignatureMode {
	if c.ERP.SignatureMode == "" {
		return SignatureModeCanonical
	}
	return c.ERP.SignatureMode
}

// FetchWindowStart picks the lower bound for an order fetch.
// An explicit since wins over the cursor hint, but nothing goes below MinSyncDate.
func (c *StoreConfig) FetchWindowStart(cursor, since time.Time) time.Time {
	start := cursor
	if !since.IsZero() {
		start = since
	}
	if start.Before(c.MinSyncDate) {
		return c.MinSyncDate
	}
	return start
}

// AcceptsOrder reports whether an order placed at placedAt is inside the cutoff.
func (c *StoreConfig) AcceptsOrder(placedAt time.Time) bool {
	return !placedAt.Before(c.MinSyncDate)
}

// IdempotencyKey is the tenant-scoped key of a source order.
func IdempotencyKey(tenant, orderNumber string) string {
	return tenant + ":" + orderNumber
}
