package ecommerce

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/storesync/internal/domain/integration"
)

func newUnleashedStoreConfig(baseURL string) *integration.StoreConfig {
	return &integration.StoreConfig{
		Tenant: "acme",
		Storefront: integration.StorefrontConfig{
			Platform:    integration.StorefrontPlatformShopify,
			ShopDomain:  "acme.myshopify.com",
			AccessToken: "shpat_test",
			APIVersion:  "2024-01",
		},
		ERP: integration.ERPConfig{
			Platform:      integration.ERPPlatformUnleashed,
			APIID:         "acme-id",
			APISecret:     "secret-key",
			BaseURL:       baseURL,
			WarehouseCode: "MAIN",
		},
		MinSyncDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestUnleashedAdapter(t *testing.T) *UnleashedAdapter {
	t.Helper()
	adapter, err := NewUnleashedAdapter(&UnleashedConfig{Timeout: 5 * time.Second, LookupPageSize: 50}, nil)
	require.NoError(t, err)
	return adapter
}

// verifySignature recomputes the canonical signature the way the ERP does.
func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()
	want := Sign("secret-key", r.Method, "http://"+r.Host+r.URL.Path, r.URL.RawQuery)
	assert.Equal(t, want, r.Header.Get(HeaderAuthSignature))
	assert.Equal(t, "acme-id", r.Header.Get(HeaderAuthID))
}

func sampleSalesOrderRequest() *integration.ERPSalesOrderRequest {
	return &integration.ERPSalesOrderRequest{
		Reference:   "450789469",
		OrderNumber: "1001",
		Customer:    integration.ERPCustomerRef{Code: "SHOPIFY-7", Name: "Jane Doe"},
		OrderDate:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:      integration.ERPOrderStatusParked,
		Lines: []integration.ERPSalesOrderLine{
			{LineNumber: 1, ProductCode: "RAW-A", Quantity: 6, UnitPrice: decimal.Zero, LineTotal: decimal.Zero, Comments: "Bundle: Starter Kit"},
			{LineNumber: 2, ProductCode: "RAW-B", Quantity: 2, UnitPrice: decimal.Zero, LineTotal: decimal.Zero, Comments: "Bundle: Starter Kit"},
		},
		SubTotal: decimal.RequireFromString("59.90"),
	}
}

// ---------------------------------------------------------------------------
// Config Tests
// ---------------------------------------------------------------------------

func TestUnleashedConfig_Validate(t *testing.T) {
	t.Run("fills defaults", func(t *testing.T) {
		cfg := &UnleashedConfig{}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, defaultUnleashedTimeout, cfg.Timeout)
		assert.Equal(t, defaultUnleashedStockPageSize, cfg.StockPageSize)
		assert.Equal(t, defaultUnleashedLookupPageSize, cfg.LookupPageSize)
		assert.Equal(t, "G.S.T.", cfg.DefaultTaxCode)
		assert.Equal(t, "AUD", cfg.DefaultCurrency)
	})

	t.Run("rejects negative page size", func(t *testing.T) {
		cfg := &UnleashedConfig{StockPageSize: -1}
		assert.ErrorIs(t, cfg.Validate(), ErrUnleashedConfigInvalidPageSize)
	})
}

// ---------------------------------------------------------------------------
// Sales order Tests
// ---------------------------------------------------------------------------

func TestUnleashedAdapter_CreateSalesOrder(t *testing.T) {
	wantGUID := SalesOrderGUID("acme", "1001").String()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/SalesOrders/"+wantGUID, r.URL.Path)

		var so UnleashedSalesOrder
		require.NoError(t, json.NewDecoder(r.Body).Decode(&so))
		assert.Equal(t, "Parked", so.OrderStatus)
		assert.Equal(t, "450789469", so.CustomerRef)
		assert.Equal(t, "SHOPIFY-7", so.Customer.CustomerCode)
		assert.Equal(t, "G.S.T.", so.Tax.TaxCode)
		assert.Equal(t, "AUD", so.Currency.CurrencyCode)
		assert.Equal(t, "MAIN", so.Warehouse.WarehouseCode)
		require.Len(t, so.SalesOrderLines, 2)
		assert.Equal(t, "RAW-A", so.SalesOrderLines[0].Product.ProductCode)
		assert.Equal(t, float64(6), so.SalesOrderLines[0].OrderQuantity)
		assert.Equal(t, 59.9, so.SubTotal)

		so.OrderNumber = "SO-00000042"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(so)
	}))
	defer server.Close()

	adapter := newTestUnleashedAdapter(t)
	result, err := adapter.CreateSalesOrder(context.Background(), newUnleashedStoreConfig(server.URL), sampleSalesOrderRequest())
	require.NoError(t, err)
	assert.Equal(t, "SO-00000042", result.OrderNumber)
	assert.Equal(t, wantGUID, result.GUID)
	assert.Equal(t, "SO-00000042", result.ExternalRef())
}

func TestUnleashedAdapter_CreateSalesOrder_RejectsEmptyOrder(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	req := sampleSalesOrderRequest()
	req.Lines = nil

	adapter := newTestUnleashedAdapter(t)
	_, err := adapter.CreateSalesOrder(context.Background(), newUnleashedStoreConfig(server.URL), req)
	assert.ErrorIs(t, err, integration.ErrPermanentValidation)
	assert.Zero(t, calls.Load())
}

func TestUnleashedAdapter_ErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryAfter string
		wantErr    error
		wantClass  integration.ErrorClass
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"description":"signature mismatch"}`, wantErr: integration.ErrAuth, wantClass: integration.ErrorClassAuth},
		{name: "forbidden", status: http.StatusForbidden, wantErr: integration.ErrAuth, wantClass: integration.ErrorClassAuth},
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "3", wantErr: integration.ErrTransientNetwork, wantClass: integration.ErrorClassTransient},
		{name: "server error", status: http.StatusBadGateway, wantErr: integration.ErrTransientNetwork, wantClass: integration.ErrorClassTransient},
		{name: "duplicate", status: http.StatusBadRequest, body: `{"description":"Sales order SO-00000042 already exists"}`, wantErr: integration.ErrDuplicateOrder, wantClass: integration.ErrorClassDuplicate},
		{name: "validation", status: http.StatusBadRequest, body: `{"description":"Product RAW-Z not found"}`, wantErr: integration.ErrPermanentValidation, wantClass: integration.ErrorClassValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.retryAfter != "" {
					w.Header().Set("Retry-After", tt.retryAfter)
				}
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			adapter := newTestUnleashedAdapter(t)
			_, err := adapter.CreateSalesOrder(context.Background(), newUnleashedStoreConfig(server.URL), sampleSalesOrderRequest())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantClass, integration.ClassifyError(err))
		})
	}

	t.Run("duplicate carries ERP order number", func(t *testing.T) {
		err := classifyERPResponse(http.StatusBadRequest, "", []byte(`Order SO-00000042 already exists`))
		var dup *integration.DuplicateOrderError
		require.True(t, errors.As(err, &dup))
		assert.Equal(t, "SO-00000042", dup.ERPOrderID)
	})

	t.Run("retry after is parsed", func(t *testing.T) {
		err := classifyERPResponse(http.StatusTooManyRequests, "7", nil)
		var te *integration.TransientError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 7*time.Second, te.RetryAfter)
		assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	})
}

func TestUnleashedAdapter_FindSalesOrderByReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, "/SalesOrders", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("pageSize"))
		_, _ = io.WriteString(w, `{"Pagination":{"NumberOfItems":2,"PageSize":50,"PageNumber":1,"NumberOfPages":1},
			"Items":[
				{"Guid":"g-1","OrderNumber":"SO-1","CustomerRef":"111","OrderDate":"/Date(1709287200000)/","OrderStatus":"Parked","Customer":{"CustomerCode":"C"},"SalesOrderLines":[]},
				{"Guid":"g-2","OrderNumber":"SO-2","CustomerRef":"450789469","OrderDate":"2024-03-01T10:00:00","OrderStatus":"Parked","Customer":{"CustomerCode":"C"},"SalesOrderLines":[]}
			]}`)
	}))
	defer server.Close()

	adapter := newTestUnleashedAdapter(t)
	cfg := newUnleashedStoreConfig(server.URL)

	found, err := adapter.FindSalesOrderByReference(context.Background(), cfg, "450789469")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "SO-2", found.OrderNumber)
	assert.Equal(t, "g-2", found.GUID)

	missing, err := adapter.FindSalesOrderByReference(context.Background(), cfg, "999")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUnleashedAdapter_GetSalesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("orderNumber") == "SO-1" {
			_, _ = io.WriteString(w, `{"Items":[{"OrderNumber":"SO-1","OrderDate":"/Date(1709287200000)/","OrderStatus":"Parked","Customer":{"CustomerCode":"C"},"SalesOrderLines":[]}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"Items":[]}`)
	}))
	defer server.Close()

	adapter := newTestUnleashedAdapter(t)
	cfg := newUnleashedStoreConfig(server.URL)

	so, err := adapter.GetSalesOrder(context.Background(), cfg, "SO-1")
	require.NoError(t, err)
	require.NotNil(t, so)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), so.OrderDate.Time)

	so, err = adapter.GetSalesOrder(context.Background(), cfg, "SO-404")
	require.NoError(t, err)
	assert.Nil(t, so)
}

// ---------------------------------------------------------------------------
// Customer Tests
// ---------------------------------------------------------------------------

func TestUnleashedAdapter_FindOrCreateCustomer(t *testing.T) {
	t.Run("existing customer is reused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "SHOPIFY-7", r.URL.Query().Get("customerCode"))
			_, _ = io.WriteString(w, `{"Items":[{"Guid":"c-1","CustomerCode":"SHOPIFY-7","CustomerName":"Jane Doe"}]}`)
		}))
		defer server.Close()

		adapter := newTestUnleashedAdapter(t)
		ref, err := adapter.FindOrCreateCustomer(context.Background(), newUnleashedStoreConfig(server.URL),
			integration.ERPCustomerDraft{Code: "SHOPIFY-7", Name: "Jane Doe"})
		require.NoError(t, err)
		assert.Equal(t, "c-1", ref.GUID)
	})

	t.Run("missing customer is created", func(t *testing.T) {
		var posted atomic.Bool
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			verifySignature(t, r)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `{"Items":[]}`)
				return
			}
			posted.Store(true)
			var c UnleashedCustomer
			require.NoError(t, json.NewDecoder(r.Body).Decode(&c))
			assert.Equal(t, "SHOPIFY-7", c.CustomerCode)
			assert.Equal(t, "Sydney", c.City)
			_ = json.NewEncoder(w).Encode(c)
		}))
		defer server.Close()

		adapter := newTestUnleashedAdapter(t)
		ref, err := adapter.FindOrCreateCustomer(context.Background(), newUnleashedStoreConfig(server.URL),
			integration.ERPCustomerDraft{
				Code:    "SHOPIFY-7",
				Name:    "Jane Doe",
				Address: &integration.Address{City: "Sydney"},
			})
		require.NoError(t, err)
		assert.True(t, posted.Load())
		assert.Equal(t, "SHOPIFY-7", ref.Code)
		assert.NotEmpty(t, ref.GUID)
	})
}

// ---------------------------------------------------------------------------
// Stock Tests
// ---------------------------------------------------------------------------

func TestUnleashedAdapter_ListStockOnHand(t *testing.T) {
	var pages atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)
		assert.Equal(t, "MAIN", r.URL.Query().Get("warehouseCode"))
		pages.Add(1)
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = io.WriteString(w, `{"Pagination":{"NumberOfPages":2,"PageNumber":1},"Items":[{"ProductCode":"RAW-A","QtyOnHand":12.5},{"ProductCode":"RAW-B","QtyOnHand":-3}]}`)
		default:
			_, _ = io.WriteString(w, `{"Pagination":{"NumberOfPages":2,"PageNumber":2},"Items":[{"ProductCode":"RAW-C","QtyOnHand":4}]}`)
		}
	}))
	defer server.Close()

	adapter := newTestUnleashedAdapter(t)
	levels, err := adapter.ListStockOnHand(context.Background(), newUnleashedStoreConfig(server.URL))
	require.NoError(t, err)
	require.Len(t, levels, 3)
	assert.Equal(t, int32(2), pages.Load())
	assert.Equal(t, int64(12), levels[0].Units())
	assert.Equal(t, int64(0), levels[1].Units())
	assert.Equal(t, "RAW-C", levels[2].ProductCode)
}

func TestUnleashedAdapter_NetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	adapter := newTestUnleashedAdapter(t)
	_, err := adapter.ListStockOnHand(context.Background(), newUnleashedStoreConfig(url))
	assert.True(t, integration.IsRetryable(err))
}

func TestSalesOrderGUID_Deterministic(t *testing.T) {
	assert.Equal(t, SalesOrderGUID("acme", "1001"), SalesOrderGUID("acme", "1001"))
	assert.NotEqual(t, SalesOrderGUID("acme", "1001"), SalesOrderGUID("globex", "1001"))
}
