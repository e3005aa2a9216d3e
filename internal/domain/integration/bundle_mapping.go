package integration

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// BundleMapping
// ---------------------------------------------------------------------------

// BundleComponent is one ERP item inside a bundle.
type BundleComponent struct {
	ERPProductCode     string
	QuantityMultiplier decimal.Decimal
}

// BundleMapping expands a storefront SKU into an ordered list of ERP components.
type BundleMapping struct {
	Tenant        string
	StorefrontSKU string
	Components    []BundleComponent
}

// Validate reports malformed mapping data as a MappingCorruptError.
func (m *BundleMapping) Validate() error {
	if len(m.Components) == 0 {
		return &MappingCorruptError{Tenant: m.Tenant, SKU: m.StorefrontSKU, Reason: "no components"}
	}
	for i, c := range m.Components {
		if strings.TrimSpace(c.ERPProductCode) == "" {
			return &MappingCorruptError{Tenant: m.Tenant, SKU: m.StorefrontSKU, Reason: "component " + strconv.Itoa(i) + " has empty ERP code"}
		}
		if !c.QuantityMultiplier.IsPositive() {
			return &MappingCorruptError{
				Tenant: m.Tenant,
				SKU:    m.StorefrontSKU,
				Reason: "component " + c.ERPProductCode + " has non-positive multiplier " + c.QuantityMultiplier.String(),
			}
		}
	}
	return nil
}

// ERPLine is one resolved ERP line before pricing.
type ERPLine struct {
	ProductCode string
	Quantity    int64
	// BundleSKU is set when the line came from a bundle expansion.
	BundleSKU string
}

// FromBundle reports whether the line is a bundle component.
func (l ERPLine) FromBundle() bool {
	return l.BundleSKU != ""
}

// ExpandLine resolves one order line. A nil mapping is the passthrough case:
// the SKU becomes the ERP code unchanged. Component quantities are
// qty × multiplier rounded half-up to whole units.
func ExpandLine(tenant string, mapping *BundleMapping, sku string, qty int64) ([]ERPLine, error) {
	if qty <= 0 {
		return nil, ErrInvalidLineQuantity
	}
	if mapping == nil {
		return []ERPLine{{ProductCode: sku, Quantity: qty}}, nil
	}
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	lines := make([]ERPLine, 0, len(mapping.Components))
	q := decimal.NewFromInt(qty)
	for _, c := range mapping.Components {
		units := q.Mul(c.QuantityMultiplier).Round(0)
		if !units.IsPositive() {
			return nil, &MappingCorruptError{
				Tenant: tenant,
				SKU:    sku,
				Reason: "component " + c.ERPProductCode + " rounds to zero units",
			}
		}
		lines = append(lines, ERPLine{
			ProductCode: c.ERPProductCode,
			Quantity:    units.IntPart(),
			BundleSKU:   sku,
		})
	}
	return lines, nil
}

// BundleMappingReader loads mappings for the resolver.
type BundleMappingReader interface {
	// ListByTenant returns every active mapping of a tenant, components in order.
	ListByTenant(ctx context.Context, tenant string) ([]BundleMapping, error)
}

// BundleMappingWriter maintains the mapping table from operator tooling.
type BundleMappingWriter interface {
	// Replace swaps all components of (tenant, sku) atomically.
	Replace(ctx context.Context, mapping *BundleMapping) error
	// Deactivate hides a mapping from the resolver without deleting it.
	Deactivate(ctx context.Context, tenant, sku string) error
}

// BundleMappingRepository combines reader and writer.
type BundleMappingRepository interface {
	BundleMappingReader
	BundleMappingWriter
}
