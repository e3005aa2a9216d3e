package ecommerce

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/storesync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Shopify Admin REST types
// ---------------------------------------------------------------------------

// ShopifyCustomer is the customer block of an order.
type ShopifyCustomer struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// ShopifyAddress is a shipping or billing address.
type ShopifyAddress struct {
	Name     string `json:"name"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone"`
}

// ShopifyLineItem is one order line. Prices are decimal strings.
type ShopifyLineItem struct {
	ID        int64           `json:"id"`
	SKU       string          `json:"sku"`
	Title     string          `json:"title"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	VariantID int64           `json:"variant_id"`
}

// ShopifyOrder is the order resource.
type ShopifyOrder struct {
	ID              int64             `json:"id"`
	Name            string            `json:"name"`
	OrderNumber     int64             `json:"order_number"`
	Email           string            `json:"email"`
	CreatedAt       time.Time         `json:"created_at"`
	Currency        string            `json:"currency"`
	FinancialStatus string            `json:"financial_status"`
	Customer        *ShopifyCustomer  `json:"customer"`
	LineItems       []ShopifyLineItem `json:"line_items"`
	ShippingAddress *ShopifyAddress   `json:"shipping_address"`
}

// ShopifyOrdersResponse wraps orders.json.
type ShopifyOrdersResponse struct {
	Orders []ShopifyOrder `json:"orders"`
}

// ShopifyVariant is one product variant.
type ShopifyVariant struct {
	ID                int64  `json:"id"`
	ProductID         int64  `json:"product_id"`
	Title             string `json:"title"`
	SKU               string `json:"sku"`
	InventoryItemID   int64  `json:"inventory_item_id"`
	InventoryQuantity int64  `json:"inventory_quantity"`
	InventoryPolicy   string `json:"inventory_policy"`
}

// ShopifyProduct is the product resource.
type ShopifyProduct struct {
	ID       int64            `json:"id"`
	Title    string           `json:"title"`
	Variants []ShopifyVariant `json:"variants"`
}

// ShopifyProductsResponse wraps products.json.
type ShopifyProductsResponse struct {
	Products []ShopifyProduct `json:"products"`
}

// ShopifyLocation is a fulfilment location.
type ShopifyLocation struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// ShopifyLocationsResponse wraps locations.json.
type ShopifyLocationsResponse struct {
	Locations []ShopifyLocation `json:"locations"`
}

// ShopifyInventoryLevelSet is the body of inventory_levels/set.json.
type ShopifyInventoryLevelSet struct {
	InventoryItemID int64 `json:"inventory_item_id"`
	LocationID      int64 `json:"location_id"`
	Available       int64 `json:"available"`
}

// ShopifyErrorResponse carries the "errors" member of a failed call.
type ShopifyErrorResponse struct {
	Errors any `json:"errors"`
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// ToSourceOrder normalizes a Shopify order for a tenant.
func (o *ShopifyOrder) ToSourceOrder(tenant string) integration.SourceOrder {
	src := integration.SourceOrder{
		ID:              strconv.FormatInt(o.ID, 10),
		OrderNumber:     strconv.FormatInt(o.OrderNumber, 10),
		Tenant:          tenant,
		Currency:        o.Currency,
		Email:           o.Email,
		FinancialStatus: o.FinancialStatus,
		PlacedAt:        o.CreatedAt.UTC(),
		LineItems:       make([]integration.SourceLineItem, 0, len(o.LineItems)),
	}
	if o.Customer != nil {
		src.Customer = integration.Customer{
			ID:        strconv.FormatInt(o.Customer.ID, 10),
			FirstName: o.Customer.FirstName,
			LastName:  o.Customer.LastName,
			Email:     o.Customer.Email,
		}
	}
	if a := o.ShippingAddress; a != nil {
		src.ShippingAddress = &integration.Address{
			Name:     a.Name,
			Address1: a.Address1,
			Address2: a.Address2,
			City:     a.City,
			Province: a.Province,
			PostCode: a.Zip,
			Country:  a.Country,
			Phone:    a.Phone,
		}
	}
	for _, li := range o.LineItems {
		src.LineItems = append(src.LineItems, integration.SourceLineItem{
			SKU:       li.SKU,
			Title:     li.Title,
			Quantity:  li.Quantity,
			UnitPrice: li.Price,
		})
	}
	return src
}

// toInventoryItem converts a variant; variants without SKU are not tracked.
func (v *ShopifyVariant) toInventoryItem(product *ShopifyProduct) integration.InventoryItem {
	policy := integration.InventoryPolicyDeny
	if v.InventoryPolicy == string(integration.InventoryPolicyContinue) {
		policy = integration.InventoryPolicyContinue
	}
	title := product.Title
	if v.Title != "" && v.Title != "Default Title" {
		title += " - " + v.Title
	}
	return integration.InventoryItem{
		SKU:             v.SKU,
		InventoryItemID: strconv.FormatInt(v.InventoryItemID, 10),
		ProductID:       strconv.FormatInt(product.ID, 10),
		VariantID:       strconv.FormatInt(v.ID, 10),
		Title:           title,
		Available:       v.InventoryQuantity,
		Policy:          policy,
	}
}
