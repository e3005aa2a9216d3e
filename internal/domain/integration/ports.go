package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Inventory value objects
// ---------------------------------------------------------------------------

// InventoryPolicy is the storefront's behaviour when stock runs out.
type InventoryPolicy string

const (
	InventoryPolicyDeny     InventoryPolicy = "deny"
	InventoryPolicyContinue InventoryPolicy = "continue"
)

// AllowsOversell is true when the storefront keeps selling at zero stock.
func (p InventoryPolicy) AllowsOversell() bool {
	return p == InventoryPolicyContinue
}

// InventoryItem is a storefront variant with a SKU.
type InventoryItem struct {
	SKU             string
	InventoryItemID string
	ProductID       string
	VariantID       string
	Title           string
	Available       int64
	Policy          InventoryPolicy
}

// StockLevel is the ERP on-hand quantity of one product.
type StockLevel struct {
	ProductCode   string
	WarehouseCode string
	QtyOnHand     decimal.Decimal
}

// Units floors the on-hand quantity to whole units; negatives clamp to zero.
func (s StockLevel) Units() int64 {
	u := s.QtyOnHand.Floor().IntPart()
	if u < 0 {
		return 0
	}
	return u
}

// InventoryLevelUpdate sets the available quantity of one item at one location.
type InventoryLevelUpdate struct {
	LocationID      string
	InventoryItemID string
	SKU             string
	Available       int64
}

// OrderQuery bounds a storefront order fetch.
type OrderQuery struct {
	// Since is inclusive; orders are returned ascending by placement time.
	Since time.Time
	Limit int
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// StorefrontClient is the port for storefront adapters.
type StorefrontClient interface {
	Platform() StorefrontPlatform
	FetchOrders(ctx context.Context, cfg *StoreConfig, query OrderQuery) ([]SourceOrder, error)
	ListInventoryItems(ctx context.Context, cfg *StoreConfig) ([]InventoryItem, error)
	SetInventoryLevel(ctx context.Context, cfg *StoreConfig, update InventoryLevelUpdate) error
	// PrimaryLocationID is the fallback when a tenant has no configured location.
	PrimaryLocationID(ctx context.Context, cfg *StoreConfig) (string, error)
}

// ERPClient is the port for ERP adapters. Every call signs its own request.
type ERPClient interface {
	Platform() ERPPlatform
	CreateSalesOrder(ctx context.Context, cfg *StoreConfig, req *ERPSalesOrderRequest) (*ERPSalesOrderResult, error)
	// FindSalesOrderByReference returns (nil, nil) when no order carries reference.
	FindSalesOrderByReference(ctx context.Context, cfg *StoreConfig, reference string) (*ERPSalesOrderResult, error)
	FindOrCreateCustomer(ctx context.Context, cfg *StoreConfig, draft ERPCustomerDraft) (*ERPCustomerRef, error)
	ListStockOnHand(ctx context.Context, cfg *StoreConfig) ([]StockLevel, error)
}

// StoreConfigProvider resolves a tenant's configuration.
type StoreConfigProvider interface {
	Get(tenant string) (*StoreConfig, error)
	Tenants() []string
}

// QuantityKey identifies one storefront inventory level: an inventory item
// at a location. Variants sharing a SKU have distinct keys.
type QuantityKey struct {
	Tenant          string
	LocationID      string
	InventoryItemID string
}

// String returns tenant:location:item
func (k QuantityKey) String() string {
	return k.Tenant + ":" + k.LocationID + ":" + k.InventoryItemID
}

// QuantityCache remembers the last quantity pushed per inventory level.
type QuantityCache interface {
	// Get returns ok=false on a miss.
	Get(ctx context.Context, key QuantityKey) (qty int64, ok bool, err error)
	Set(ctx context.Context, key QuantityKey, qty int64) error
}
