package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from a platform API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// guidNamespace seeds deterministic resource guids so that a retried create
// addresses the same ERP resource instead of a new one.
var guidNamespace = uuid.MustParse("6f1c7f0e-3b5e-4d55-9a57-2b8f0c1d9e42")

var (
	duplicatePhrases    = []string{"already exists", "duplicate", "already been used"}
	erpOrderNumberRegex = regexp.MustCompile(`SO-\d+`)
)

// UnleashedAdapter implements integration.ERPClient for Unleashed.
type UnleashedAdapter struct {
	config     *UnleashedConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewUnleashedAdapter creates a new Unleashed adapter with the given configuration
func NewUnleashedAdapter(config *UnleashedConfig, logger *zap.Logger) (*UnleashedAdapter, error) {
	if config == nil {
		config = NewUnleashedConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnleashedAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.Named("unleashed"),
	}, nil
}

// Platform returns the ERP platform this adapter handles
func (a *UnleashedAdapter) Platform() integration.ERPPlatform {
	return integration.ERPPlatformUnleashed
}

// ---------------------------------------------------------------------------
// Sales orders
// ---------------------------------------------------------------------------

// CreateSalesOrder posts a new parked sales order. The resource guid is
// derived from the tenant and source order number, so a repeated POST for
// the same order is rejected by the ERP as a duplicate.
func (a *UnleashedAdapter) CreateSalesOrder(ctx context.Context, cfg *integration.StoreConfig, req *integration.ERPSalesOrderRequest) (*integration.ERPSalesOrderResult, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: order %s has no valid lines", err, req.OrderNumber)
	}

	guid := SalesOrderGUID(cfg.Tenant, req.OrderNumber)
	payload := a.toUnleashedSalesOrder(cfg, req)
	payload.Guid = guid.String()

	body, err := a.doRequest(ctx, cfg, http.MethodPost, "SalesOrders/"+guid.String(), nil, payload)
	if err != nil {
		var dup *integration.DuplicateOrderError
		if errors.As(err, &dup) {
			dup.Reference = req.Reference
		}
		return nil, err
	}

	var created UnleashedSalesOrder
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("unleashed: failed to parse created order: %w", err)
	}
	if created.Guid == "" {
		created.Guid = guid.String()
	}

	return &integration.ERPSalesOrderResult{
		OrderNumber: created.OrderNumber,
		GUID:        created.Guid,
		Reference:   created.CustomerRef,
	}, nil
}

// FindSalesOrderByReference scans the most recent sales orders for one whose
// CustomerRef equals reference. The API's customerRef filter is unreliable,
// so matching happens locally.
func (a *UnleashedAdapter) FindSalesOrderByReference(ctx context.Context, cfg *integration.StoreConfig, reference string) (*integration.ERPSalesOrderResult, error) {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(a.config.LookupPageSize))

	body, err := a.doRequest(ctx, cfg, http.MethodGet, "SalesOrders", query, nil)
	if err != nil {
		return nil, err
	}

	var list UnleashedList[UnleashedSalesOrder]
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unleashed: failed to parse sales orders: %w", err)
	}

	for _, so := range list.Items {
		if so.CustomerRef == reference {
			return &integration.ERPSalesOrderResult{
				OrderNumber: so.OrderNumber,
				GUID:        so.Guid,
				Reference:   so.CustomerRef,
			}, nil
		}
	}
	return nil, nil
}

// GetSalesOrder fetches one sales order by its ERP order number.
// Returns (nil, nil) when the order does not exist.
func (a *UnleashedAdapter) GetSalesOrder(ctx context.Context, cfg *integration.StoreConfig, orderNumber string) (*UnleashedSalesOrder, error) {
	query := url.Values{}
	query.Set("orderNumber", orderNumber)

	body, err := a.doRequest(ctx, cfg, http.MethodGet, "SalesOrders", query, nil)
	if err != nil {
		return nil, err
	}

	var list UnleashedList[UnleashedSalesOrder]
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unleashed: failed to parse sales orders: %w", err)
	}
	if len(list.Items) == 0 {
		return nil, nil
	}
	return &list.Items[0], nil
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

// FindOrCreateCustomer looks the customer up by code and creates it when missing.
func (a *UnleashedAdapter) FindOrCreateCustomer(ctx context.Context, cfg *integration.StoreConfig, draft integration.ERPCustomerDraft) (*integration.ERPCustomerRef, error) {
	query := url.Values{}
	query.Set("customerCode", draft.Code)

	body, err := a.doRequest(ctx, cfg, http.MethodGet, "Customers", query, nil)
	if err != nil {
		return nil, err
	}

	var list UnleashedList[UnleashedCustomer]
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("unleashed: failed to parse customers: %w", err)
	}
	for _, c := range list.Items {
		if strings.EqualFold(c.CustomerCode, draft.Code) {
			return &integration.ERPCustomerRef{Code: c.CustomerCode, Name: c.CustomerName, GUID: c.Guid}, nil
		}
	}

	guid := uuid.NewSHA1(guidNamespace, []byte("customer:"+cfg.Tenant+":"+draft.Code))
	customer := UnleashedCustomer{
		Guid:         guid.String(),
		CustomerCode: draft.Code,
		CustomerName: draft.Name,
		Email:        draft.Email,
		ContactName:  draft.Name,
	}
	if draft.Address != nil {
		customer.Address1 = draft.Address.Address1
		customer.City = draft.Address.City
		customer.Region = draft.Address.Province
		customer.PostalCode = draft.Address.PostCode
		customer.Country = draft.Address.Country
	}

	body, err = a.doRequest(ctx, cfg, http.MethodPost, "Customers/"+guid.String(), nil, customer)
	if err != nil {
		if integration.ClassifyError(err) == integration.ErrorClassDuplicate {
			// Created by an earlier attempt whose response was lost.
			return &integration.ERPCustomerRef{Code: draft.Code, Name: draft.Name, GUID: guid.String()}, nil
		}
		return nil, err
	}

	var created UnleashedCustomer
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("unleashed: failed to parse created customer: %w", err)
	}
	a.logger.Info("Created ERP customer",
		zap.String("tenant", cfg.Tenant),
		zap.String("customer_code", draft.Code),
	)
	return &integration.ERPCustomerRef{Code: created.CustomerCode, Name: created.CustomerName, GUID: created.Guid}, nil
}

// ---------------------------------------------------------------------------
// Stock
// ---------------------------------------------------------------------------

// ListStockOnHand walks every StockOnHand page.
func (a *UnleashedAdapter) ListStockOnHand(ctx context.Context, cfg *integration.StoreConfig) ([]integration.StockLevel, error) {
	levels := make([]integration.StockLevel, 0)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		query := url.Values{}
		query.Set("pageSize", strconv.Itoa(a.config.StockPageSize))
		query.Set("page", strconv.Itoa(page))
		if cfg.ERP.WarehouseCode != "" {
			query.Set("warehouseCode", cfg.ERP.WarehouseCode)
		}

		body, err := a.doRequest(ctx, cfg, http.MethodGet, "StockOnHand", query, nil)
		if err != nil {
			return nil, err
		}

		var list UnleashedList[UnleashedStockOnHand]
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("unleashed: failed to parse stock on hand: %w", err)
		}
		for _, item := range list.Items {
			levels = append(levels, integration.StockLevel{
				ProductCode:   item.ProductCode,
				WarehouseCode: item.WarehouseCode,
				QtyOnHand:     item.QtyOnHand,
			})
		}

		if list.Pagination == nil || page >= list.Pagination.NumberOfPages || len(list.Items) == 0 {
			break
		}
	}
	return levels, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// doRequest signs and sends one request and classifies failures into the
// integration error taxonomy. The signature is computed here, per call.
func (a *UnleashedAdapter) doRequest(ctx context.Context, cfg *integration.StoreConfig, method, path string, query url.Values, payload any) ([]byte, error) {
	endpoint := strings.TrimRight(cfg.ERP.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	rawQuery := ""
	if len(query) > 0 {
		rawQuery = query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("unleashed: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	target := endpoint
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("unleashed: failed to create request: %w", err)
	}
	NewSignedRequest(cfg, method, endpoint, rawQuery).Apply(req)

	start := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &integration.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &integration.TransientError{StatusCode: resp.StatusCode, Cause: err}
	}

	a.logger.Debug("Unleashed request",
		zap.String("tenant", cfg.Tenant),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return nil, classifyERPResponse(resp.StatusCode, resp.Header.Get("Retry-After"), body)
	}
	return body, nil
}

// classifyERPResponse maps an HTTP failure onto the error taxonomy.
func classifyERPResponse(status int, retryAfter string, body []byte) error {
	snippet := truncate(string(body), 512)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", integration.ErrAuth, status, snippet)
	case status == http.StatusRequestTimeout || status == http.StatusTooEarly ||
		status == http.StatusTooManyRequests || status >= 500:
		return &integration.TransientError{
			StatusCode: status,
			RetryAfter: parseRetryAfter(retryAfter),
			Cause:      fmt.Errorf("HTTP %d: %s", status, snippet),
		}
	case isDuplicateBody(body):
		return &integration.DuplicateOrderError{ERPOrderID: erpOrderNumberRegex.FindString(string(body))}
	default:
		return fmt.Errorf("%w: HTTP %d: %s", integration.ErrPermanentValidation, status, snippet)
	}
}

func isDuplicateBody(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, phrase := range duplicatePhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// parseRetryAfter reads delta-seconds; HTTP dates are ignored.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

// SalesOrderGUID is the deterministic ERP guid of a source order.
func SalesOrderGUID(tenant, orderNumber string) uuid.UUID {
	return uuid.NewSHA1(guidNamespace, []byte("salesorder:"+integration.IdempotencyKey(tenant, orderNumber)))
}

// toUnleashedSalesOrder converts the domain payload to the wire format
func (a *UnleashedAdapter) toUnleashedSalesOrder(cfg *integration.StoreConfig, req *integration.ERPSalesOrderRequest) *UnleashedSalesOrder {
	taxCode := req.TaxCode
	if taxCode == "" {
		taxCode = a.config.DefaultTaxCode
	}
	currency := req.Currency
	if currency == "" {
		currency = a.config.DefaultCurrency
	}
	status := req.Status
	if status == "" {
		status = integration.ERPOrderStatusParked
	}

	so := &UnleashedSalesOrder{
		OrderDate:    UnleashedDate{req.OrderDate},
		RequiredDate: UnleashedDate{req.RequiredDate},
		OrderStatus:  status,
		Customer: UnleashedCustomerRef{
			CustomerCode: req.Customer.Code,
			CustomerName: req.Customer.Name,
			Guid:         req.Customer.GUID,
		},
		CustomerRef:     req.Reference,
		Comments:        req.Comments,
		Currency:        &UnleashedCurrencyRef{CurrencyCode: currency},
		Tax:             &UnleashedTaxRef{TaxCode: taxCode},
		SalesOrderLines: make([]UnleashedSalesOrderLine, 0, len(req.Lines)),
		SubTotal:        req.SubTotal.Round(2).InexactFloat64(),
		Total:           req.SubTotal.Round(2).InexactFloat64(),
	}

	warehouse := req.WarehouseCode
	if warehouse == "" {
		warehouse = cfg.ERP.WarehouseCode
	}
	if warehouse != "" {
		so.Warehouse = &UnleashedWarehouseRef{WarehouseCode: warehouse}
	}

	if d := req.Delivery; d != nil {
		so.DeliveryName = d.Name
		so.DeliveryStreetAddress = d.Address1
		so.DeliveryStreetAddress2 = d.Address2
		so.DeliverySuburb = d.City
		so.DeliveryCity = d.City
		so.DeliveryRegion = d.Province
		so.DeliveryPostCode = d.PostCode
		so.DeliveryCountry = d.Country
	}

	for _, line := range req.Lines {
		so.SalesOrderLines = append(so.SalesOrderLines, UnleashedSalesOrderLine{
			LineNumber:    line.LineNumber,
			Product:       UnleashedProductRef{ProductCode: line.ProductCode},
			OrderQuantity: float64(line.Quantity),
			UnitPrice:     line.UnitPrice.InexactFloat64(),
			LineTotal:     line.LineTotal.Round(2).InexactFloat64(),
			Comments:      line.Comments,
		})
	}
	return so
}

// Ensure UnleashedAdapter implements integration.ERPClient
var _ integration.ERPClient = (*UnleashedAdapter)(nil)
