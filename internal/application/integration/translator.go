package integration

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erp/storesync/internal/domain/integration"
)

const (
	defaultTaxCode  = "G.S.T."
	defaultCurrency = "AUD"
	customerPrefix  = "SHOPIFY-"
	guestCustomer   = "GUEST"
)

// resolvedItem pairs a storefront line with its expanded ERP lines.
type resolvedItem struct {
	source integration.SourceLineItem
	lines  []integration.ERPLine
}

// CustomerDraftFor builds the ERP customer lookup for an order.
func CustomerDraftFor(order *integration.SourceOrder) integration.ERPCustomerDraft {
	id := strings.TrimSpace(order.Customer.ID)
	if id == "" {
		id = guestCustomer
	}

	email := order.Customer.Email
	if email == "" {
		email = order.Email
	}

	name := order.Customer.FullName()
	if name == "" && order.ShippingAddress != nil {
		name = order.ShippingAddress.Name
	}
	if name == "" {
		name = email
	}
	if name == "" {
		name = customerPrefix + id
	}

	return integration.ERPCustomerDraft{
		Code:    customerPrefix + id,
		Name:    name,
		Email:   email,
		Address: order.ShippingAddress,
	}
}

// BuildSalesOrderRequest translates a resolved storefront order into the ERP
// payload. Passthrough lines carry the storefront price; bundle components
// are priced zero and reference the bundle title.
func BuildSalesOrderRequest(cfg *integration.StoreConfig, order *integration.SourceOrder, items []resolvedItem, customer integration.ERPCustomerRef) *integration.ERPSalesOrderRequest {
	req := &integration.ERPSalesOrderRequest{
		Reference:     order.ID,
		OrderNumber:   order.OrderNumber,
		Customer:      customer,
		WarehouseCode: cfg.ERP.WarehouseCode,
		OrderDate:     order.PlacedAt,
		RequiredDate:  order.PlacedAt,
		Status:        integration.ERPOrderStatusParked,
		Currency:      orderCurrency(cfg, order),
		TaxCode:       firstNonEmpty(cfg.ERP.TaxCode, defaultTaxCode),
		Comments:      orderComments(order),
		Delivery:      order.ShippingAddress,
		SubTotal:      decimal.Zero,
	}

	n := 0
	for _, item := range items {
		for _, l := range item.lines {
			n++
			line := integration.ERPSalesOrderLine{
				LineNumber:  n,
				ProductCode: l.ProductCode,
				Quantity:    l.Quantity,
				UnitPrice:   decimal.Zero,
				LineTotal:   decimal.Zero,
			}
			if l.FromBundle() {
				line.Comments = "Bundle: " + firstNonEmpty(item.source.Title, l.BundleSKU)
			} else {
				line.UnitPrice = item.source.UnitPrice
				line.LineTotal = item.source.UnitPrice.Mul(decimal.NewFromInt(l.Quantity)).Round(2)
			}
			req.SubTotal = req.SubTotal.Add(line.LineTotal)
			req.Lines = append(req.Lines, line)
		}
	}
	return req
}

func orderComments(order *integration.SourceOrder) string {
	return fmt.Sprintf("Shopify Order #%s. Email: %s. Payment: %s",
		order.OrderNumber,
		firstNonEmpty(order.Email, order.Customer.Email, "n/a"),
		firstNonEmpty(order.FinancialStatus, "unknown"),
	)
}

func orderCurrency(cfg *integration.StoreConfig, order *integration.SourceOrder) string {
	return strings.ToUpper(firstNonEmpty(order.Currency, cfg.ERP.Currency, defaultCurrency))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
