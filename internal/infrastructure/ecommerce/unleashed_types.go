package ecommerce

import (
	"encoding/json"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Common Unleashed API Types
// ---------------------------------------------------------------------------

// UnleashedPagination is the paging block of list responses.
type UnleashedPagination struct {
	NumberOfItems int `json:"NumberOfItems"`
	PageSize      int `json:"PageSize"`
	PageNumber    int `json:"PageNumber"`
	NumberOfPages int `json:"NumberOfPages"`
}

// UnleashedList is the generic list envelope.
type UnleashedList[T any] struct {
	Pagination *UnleashedPagination `json:"Pagination,omitempty"`
	Items      []T                  `json:"Items"`
}

// UnleashedErrorResponse is returned by the API on validation failures.
type UnleashedErrorResponse struct {
	Description      string `json:"description"`
	DebugInformation string `json:"DebugInformation,omitempty"`
}

// ---------------------------------------------------------------------------
// Sales orders
// ---------------------------------------------------------------------------

// UnleashedCustomerRef is the customer reference embedded in a sales order.
type UnleashedCustomerRef struct {
	CustomerCode string `json:"CustomerCode"`
	CustomerName string `json:"CustomerName,omitempty"`
	Guid         string `json:"Guid,omitempty"`
}

// UnleashedProductRef is the product reference of a sales order line.
type UnleashedProductRef struct {
	Guid               string `json:"Guid,omitempty"`
	ProductCode        string `json:"ProductCode"`
	ProductDescription string `json:"ProductDescription,omitempty"`
}

// UnleashedSalesOrderLine is one sales order line. Amounts are JSON numbers
// on the wire; decimal.Decimal would marshal them as strings.
type UnleashedSalesOrderLine struct {
	Guid          string              `json:"Guid,omitempty"`
	LineNumber    int                 `json:"LineNumber"`
	LineType      *string             `json:"LineType,omitempty"`
	Product       UnleashedProductRef `json:"Product"`
	OrderQuantity float64             `json:"OrderQuantity"`
	UnitPrice     float64             `json:"UnitPrice"`
	DiscountRate  float64             `json:"DiscountRate"`
	LineTotal     float64             `json:"LineTotal"`
	TaxRate       float64             `json:"TaxRate"`
	LineTax       float64             `json:"LineTax"`
	Comments      string              `json:"Comments,omitempty"`
}

// UnleashedTaxRef references a tax code.
type UnleashedTaxRef struct {
	TaxCode string `json:"TaxCode"`
}

// UnleashedCurrencyRef references a currency.
type UnleashedCurrencyRef struct {
	CurrencyCode string `json:"CurrencyCode"`
}

// UnleashedWarehouseRef references a warehouse.
type UnleashedWarehouseRef struct {
	WarehouseCode string `json:"WarehouseCode"`
	WarehouseName string `json:"WarehouseName,omitempty"`
	Guid          string `json:"Guid,omitempty"`
}

// UnleashedSalesOrder is the sales order resource.
type UnleashedSalesOrder struct {
	Guid                   string                    `json:"Guid,omitempty"`
	OrderNumber            string                    `json:"OrderNumber,omitempty"`
	OrderDate              UnleashedDate             `json:"OrderDate"`
	RequiredDate           UnleashedDate             `json:"RequiredDate"`
	OrderStatus            string                    `json:"OrderStatus"`
	Customer               UnleashedCustomerRef      `json:"Customer"`
	CustomerRef            string                    `json:"CustomerRef,omitempty"`
	Comments               string                    `json:"Comments,omitempty"`
	Warehouse              *UnleashedWarehouseRef    `json:"Warehouse,omitempty"`
	DeliveryName           string                    `json:"DeliveryName,omitempty"`
	DeliveryStreetAddress  string                    `json:"DeliveryStreetAddress,omitempty"`
	DeliveryStreetAddress2 string                    `json:"DeliveryStreetAddress2,omitempty"`
	DeliverySuburb         string                    `json:"DeliverySuburb,omitempty"`
	DeliveryCity           string                    `json:"DeliveryCity,omitempty"`
	DeliveryRegion         string                    `json:"DeliveryRegion,omitempty"`
	DeliveryCountry        string                    `json:"DeliveryCountry,omitempty"`
	DeliveryPostCode       string                    `json:"DeliveryPostCode,omitempty"`
	Currency               *UnleashedCurrencyRef     `json:"Currency,omitempty"`
	Tax                    *UnleashedTaxRef          `json:"Tax,omitempty"`
	SalesOrderLines        []UnleashedSalesOrderLine `json:"SalesOrderLines"`
	SubTotal               float64                   `json:"SubTotal"`
	TaxTotal               float64                   `json:"TaxTotal"`
	Total                  float64                   `json:"Total"`
}

// ---------------------------------------------------------------------------
// Customers and stock
// ---------------------------------------------------------------------------

// UnleashedCustomer is the customer resource.
type UnleashedCustomer struct {
	Guid         string `json:"Guid,omitempty"`
	CustomerCode string `json:"CustomerCode"`
	CustomerName string `json:"CustomerName"`
	Email        string `json:"Email,omitempty"`
	ContactName  string `json:"ContactName,omitempty"`
	Address1     string `json:"Address1,omitempty"`
	City         string `json:"City,omitempty"`
	Region       string `json:"Region,omitempty"`
	PostalCode   string `json:"PostalCode,omitempty"`
	Country      string `json:"Country,omitempty"`
}

// UnleashedStockOnHand is one row of the StockOnHand resource.
type UnleashedStockOnHand struct {
	ProductCode        string          `json:"ProductCode"`
	ProductDescription string          `json:"ProductDescription,omitempty"`
	ProductGuid        string          `json:"ProductGuid,omitempty"`
	WarehouseCode      string          `json:"WarehouseCode,omitempty"`
	QtyOnHand          decimal.Decimal `json:"QtyOnHand"`
	AvailableQty       decimal.Decimal `json:"AvailableQty"`
	AllocatedQty       decimal.Decimal `json:"AllocatedQty"`
}

// ---------------------------------------------------------------------------
// Dates
// ---------------------------------------------------------------------------

var unleashedDatePattern = regexp.MustCompile(`^/Date\((-?\d+)\)/$`)

// UnleashedDate reads /Date(ms)/ and ISO timestamps, and writes ISO 8601.
type UnleashedDate struct {
	time.Time
}

// MarshalJSON writes the zone-less UTC form the ERP accepts.
func (d UnleashedDate) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.UTC().Format("2006-01-02T15:04:05"))
}

// UnmarshalJSON accepts /Date(ms)/, RFC3339 and the ERP's zone-less form.
func (d *UnleashedDate) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		d.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t, err := ParseUnleashedDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ParseUnleashedDate parses the formats the ERP emits.
func ParseUnleashedDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if m := unleashedDatePattern.FindStringSubmatch(s); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}
