package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/storesync/internal/domain/integration"
)

func TestBundleResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	mappings := &fakeMappings{byTenant: map[string][]integration.BundleMapping{
		"acme": {{
			Tenant:        "acme",
			StorefrontSKU: "SKU-A",
			Components: []integration.BundleComponent{
				{ERPProductCode: "X", QuantityMultiplier: decimal.NewFromInt(2)},
				{ERPProductCode: "Y", QuantityMultiplier: decimal.NewFromInt(1)},
			},
		}},
	}}
	r := NewBundleResolver(mappings, nil)
	require.NoError(t, r.Load(ctx, "acme"))

	tests := []struct {
		name    string
		tenant  string
		sku     string
		qty     int64
		want    []integration.ERPLine
		wantErr error
	}{
		{
			name:   "bundle expands per component",
			tenant: "acme",
			sku:    "SKU-A",
			qty:    3,
			want: []integration.ERPLine{
				{ProductCode: "X", Quantity: 6, BundleSKU: "SKU-A"},
				{ProductCode: "Y", Quantity: 3, BundleSKU: "SKU-A"},
			},
		},
		{
			name:   "unmapped sku passes through",
			tenant: "acme",
			sku:    "PLAIN",
			qty:    4,
			want:   []integration.ERPLine{{ProductCode: "PLAIN", Quantity: 4}},
		},
		{
			name:   "mappings are tenant scoped",
			tenant: "globex",
			sku:    "SKU-A",
			qty:    1,
			want:   []integration.ERPLine{{ProductCode: "SKU-A", Quantity: 1}},
		},
		{
			name:    "non-positive quantity",
			tenant:  "acme",
			sku:     "SKU-A",
			qty:     0,
			wantErr: integration.ErrInvalidLineQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.tenant, tt.sku, tt.qty)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBundleResolver_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("snapshot is per load", func(t *testing.T) {
		mappings := acmeMappings()
		r := NewBundleResolver(mappings, nil)
		require.NoError(t, r.Load(ctx, "acme"))

		mappings.byTenant["acme"] = nil
		lines, err := r.Resolve(ctx, "acme", "BUNDLE-1", 1)
		require.NoError(t, err)
		assert.Len(t, lines, 2)

		require.NoError(t, r.Load(ctx, "acme"))
		lines, err = r.Resolve(ctx, "acme", "BUNDLE-1", 1)
		require.NoError(t, err)
		assert.Equal(t, []integration.ERPLine{{ProductCode: "BUNDLE-1", Quantity: 1}}, lines)
	})

	t.Run("resolve loads lazily once", func(t *testing.T) {
		mappings := acmeMappings()
		r := NewBundleResolver(mappings, nil)
		_, err := r.Resolve(ctx, "acme", "BUNDLE-1", 1)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, "acme", "PLAIN", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, mappings.calls)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		r := NewBundleResolver(&fakeMappings{err: errors.New("db down")}, nil)
		assert.Error(t, r.Load(ctx, "acme"))
	})

	t.Run("corrupt mapping fails only that sku", func(t *testing.T) {
		r := NewBundleResolver(acmeMappings(), nil)
		_, err := r.Resolve(ctx, "acme", "BROKEN", 1)
		assert.ErrorIs(t, err, integration.ErrMappingCorrupt)

		var corrupt *integration.MappingCorruptError
		require.True(t, errors.As(err, &corrupt))
		assert.Equal(t, "BROKEN", corrupt.SKU)

		_, err = r.Resolve(ctx, "acme", "BUNDLE-1", 1)
		assert.NoError(t, err)
	})
}

func TestBundleResolver_ResolveItem(t *testing.T) {
	ctx := context.Background()
	r := NewBundleResolver(acmeMappings(), nil)

	t.Run("default title rule", func(t *testing.T) {
		lines, err := r.ResolveItem(ctx, acmeConfig(), integration.SourceLineItem{Title: "Lion's Mane Capsules (90)", Quantity: 2})
		require.NoError(t, err)
		assert.Equal(t, []integration.ERPLine{{ProductCode: "CAPS90LION", Quantity: 2}}, lines)
	})

	t.Run("configured rules replace defaults, first match wins", func(t *testing.T) {
		cfg := acmeConfig()
		cfg.TitleSKURules = []integration.TitleSKURule{
			{Pattern: `gift\s*card`, SKU: "GIFT"},
			{Pattern: `card`, SKU: "CARD"},
		}
		lines, err := r.ResolveItem(ctx, cfg, integration.SourceLineItem{Title: "Gift Card $50", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, "GIFT", lines[0].ProductCode)

		_, err = r.ResolveItem(ctx, cfg, integration.SourceLineItem{Title: "Lions Mane Capsule", Quantity: 1})
		assert.ErrorIs(t, err, ErrUnresolvedLine)
	})

	t.Run("title rule result goes through bundle mappings", func(t *testing.T) {
		cfg := acmeConfig()
		cfg.TitleSKURules = []integration.TitleSKURule{{Pattern: `starter`, SKU: "BUNDLE-1"}}
		lines, err := r.ResolveItem(ctx, cfg, integration.SourceLineItem{Title: "Starter kit", Quantity: 2})
		require.NoError(t, err)
		require.Len(t, lines, 2)
		assert.Equal(t, int64(6), lines[0].Quantity)
	})

	t.Run("unmatched sku-less line", func(t *testing.T) {
		_, err := r.ResolveItem(ctx, acmeConfig(), integration.SourceLineItem{Title: "Mystery item", Quantity: 1})
		assert.ErrorIs(t, err, ErrUnresolvedLine)
	})

	t.Run("sku wins over title", func(t *testing.T) {
		lines, err := r.ResolveItem(ctx, acmeConfig(), integration.SourceLineItem{SKU: "RAW-Z", Title: "Lion's Mane Capsules", Quantity: 1})
		require.NoError(t, err)
		assert.Equal(t, "RAW-Z", lines[0].ProductCode)
	})
}
