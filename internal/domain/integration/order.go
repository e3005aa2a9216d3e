package integration

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// SourceOrder (storefront side)
// ---------------------------------------------------------------------------

// Address is a postal address as reported by the storefront.
type Address struct {
	Name     string
	Address1 string
	Address2 string
	City     string
	Province string
	PostCode string
	Country  string
	Phone    string
}

// Customer is the storefront customer attached to an order.
type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
}

// FullName joins first and last name.
func (c Customer) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// SourceLineItem is one storefront order line.
type SourceLineItem struct {
	SKU       string
	Title     string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// SourceOrder is a normalized, read-only storefront order snapshot.
type SourceOrder struct {
	ID              string
	OrderNumber     string
	Tenant          string
	Currency        string
	Email           string
	FinancialStatus string
	Customer        Customer
	LineItems       []SourceLineItem
	ShippingAddress *Address
	PlacedAt        time.Time
}

// IdempotencyKey returns tenant:orderNumber.
func (o *SourceOrder) IdempotencyKey() string {
	return IdempotencyKey(o.Tenant, o.OrderNumber)
}

// ---------------------------------------------------------------------------
// ERPSalesOrderRequest (ERP side)
// ---------------------------------------------------------------------------

// ERPOrderStatusParked is used for every created order; completion needs
// batch allocation inside the ERP.
const ERPOrderStatusParked = "Parked"

// ERPCustomerRef identifies an ERP customer.
type ERPCustomerRef struct {
	Code string
	Name string
	GUID string
}

// ERPCustomerDraft is used to find or create the ERP customer of an order.
type ERPCustomerDraft struct {
	Code    string
	Name    string
	Email   string
	Address *Address
}

// ERPSalesOrderLine is one priced ERP line.
type ERPSalesOrderLine struct {
	LineNumber  int
	ProductCode string
	Quantity    int64
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
	Comments    string
}

// ERPSalesOrderRequest is the translated ERP payload. Derived, never stored.
type ERPSalesOrderRequest struct {
	// Reference is the storefront order id, stored by the ERP as CustomerRef.
	Reference     string
	OrderNumber   string
	Customer      ERPCustomerRef
	WarehouseCode string
	OrderDate     time.Time
	RequiredDate  time.Time
	Status        string
	Currency      string
	TaxCode       string
	Comments      string
	Delivery      *Address
	Lines         []ERPSalesOrderLine
	SubTotal      decimal.Decimal
}

// Validate rejects payloads the ERP would refuse structurally.
func (r *ERPSalesOrderRequest) Validate() error {
	if len(r.Lines) == 0 {
		return ErrPermanentValidation
	}
	if strings.TrimSpace(r.Reference) == "" || strings.TrimSpace(r.Customer.Code) == "" {
		return ErrPermanentValidation
	}
	for _, l := range r.Lines {
		if l.Quantity <= 0 || strings.TrimSpace(l.ProductCode) == "" {
			return ErrPermanentValidation
		}
	}
	return nil
}

// ERPSalesOrderResult identifies an ERP sales order.
type ERPSalesOrderResult struct {
	OrderNumber string
	GUID        string
	Reference   string
}

// ExternalRef is the identifier written to the ledger.
func (r *ERPSalesOrderResult) ExternalRef() string {
	if r.OrderNumber != "" {
		return r.OrderNumber
	}
	return r.GUID
}
