package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
)

// HeaderShopifyAccessToken carries the Admin API token.
const HeaderShopifyAccessToken = "X-Shopify-Access-Token"

var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// ShopifyAdapter implements integration.StorefrontClient for the Shopify Admin REST API.
type ShopifyAdapter struct {
	config     *ShopifyConfig
	httpClient *http.Client
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewShopifyAdapter creates a new Shopify adapter with the given configuration
func NewShopifyAdapter(config *ShopifyConfig, logger *zap.Logger) (*ShopifyAdapter, error) {
	if config == nil {
		config = NewShopifyConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopifyAdapter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger.Named("shopify"),
		sleep:      sleepContext,
	}, nil
}

// Platform returns the storefront platform this adapter handles
func (a *ShopifyAdapter) Platform() integration.StorefrontPlatform {
	return integration.StorefrontPlatformShopify
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// FetchOrders returns orders created at or after query.Since, ascending by
// creation time, following Link pagination until Limit orders are collected.
func (a *ShopifyAdapter) FetchOrders(ctx context.Context, cfg *integration.StoreConfig, query integration.OrderQuery) ([]integration.SourceOrder, error) {
	pageSize := a.config.PageSize
	if query.Limit > 0 && query.Limit < pageSize {
		pageSize = query.Limit
	}

	params := url.Values{}
	params.Set("status", "any")
	params.Set("order", "created_at asc")
	params.Set("limit", strconv.Itoa(pageSize))
	if !query.Since.IsZero() {
		params.Set("created_at_min", query.Since.UTC().Format(time.RFC3339))
	}

	next := a.adminURL(cfg, "orders.json") + "?" + params.Encode()
	orders := make([]ShopifyOrder, 0)
	for next != "" {
		var page ShopifyOrdersResponse
		link, err := a.getJSON(ctx, cfg, next, &page)
		if err != nil {
			return nil, err
		}
		orders = append(orders, page.Orders...)
		if query.Limit > 0 && len(orders) >= query.Limit {
			break
		}
		next = parseNextLink(link)
		if next != "" {
			if err := a.sleep(ctx, a.config.PageDelay); err != nil {
				return nil, err
			}
		}
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	if query.Limit > 0 && len(orders) > query.Limit {
		orders = orders[:query.Limit]
	}

	result := make([]integration.SourceOrder, 0, len(orders))
	for i := range orders {
		result = append(result, orders[i].ToSourceOrder(cfg.Tenant))
	}
	return result, nil
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// ListInventoryItems walks products.json by since_id and returns every
// variant that carries a SKU.
func (a *ShopifyAdapter) ListInventoryItems(ctx context.Context, cfg *integration.StoreConfig) ([]integration.InventoryItem, error) {
	items := make([]integration.InventoryItem, 0)
	var sinceID int64
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(a.config.PageSize))
		params.Set("since_id", strconv.FormatInt(sinceID, 10))

		var page ShopifyProductsResponse
		if _, err := a.getJSON(ctx, cfg, a.adminURL(cfg, "products.json")+"?"+params.Encode(), &page); err != nil {
			return nil, err
		}
		if len(page.Products) == 0 {
			break
		}
		for i := range page.Products {
			product := &page.Products[i]
			for j := range product.Variants {
				v := &product.Variants[j]
				if strings.TrimSpace(v.SKU) == "" {
					continue
				}
				items = append(items, v.toInventoryItem(product))
			}
		}
		sinceID = page.Products[len(page.Products)-1].ID
		if err := a.sleep(ctx, a.config.PageDelay); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// SetInventoryLevel writes an absolute available quantity.
func (a *ShopifyAdapter) SetInventoryLevel(ctx context.Context, cfg *integration.StoreConfig, update integration.InventoryLevelUpdate) error {
	itemID, err := strconv.ParseInt(update.InventoryItemID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid inventory item id %q", integration.ErrStorefrontRequest, update.InventoryItemID)
	}
	locationID, err := strconv.ParseInt(update.LocationID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid location id %q", integration.ErrStorefrontRequest, update.LocationID)
	}

	body, err := json.Marshal(ShopifyInventoryLevelSet{
		InventoryItemID: itemID,
		LocationID:      locationID,
		Available:       update.Available,
	})
	if err != nil {
		return fmt.Errorf("shopify: failed to encode inventory level: %w", err)
	}

	if _, _, err := a.doRequest(ctx, cfg, http.MethodPost, a.adminURL(cfg, "inventory_levels/set.json"), body); err != nil {
		return err
	}
	return a.sleep(ctx, a.config.WriteDelay)
}

// PrimaryLocationID returns the first active location of the shop.
func (a *ShopifyAdapter) PrimaryLocationID(ctx context.Context, cfg *integration.StoreConfig) (string, error) {
	var resp ShopifyLocationsResponse
	if _, err := a.getJSON(ctx, cfg, a.adminURL(cfg, "locations.json"), &resp); err != nil {
		return "", err
	}
	for _, loc := range resp.Locations {
		if loc.Active {
			return strconv.FormatInt(loc.ID, 10), nil
		}
	}
	return "", fmt.Errorf("%w: shop %s has no active location", integration.ErrStorefrontRequest, cfg.Storefront.ShopDomain)
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

func (a *ShopifyAdapter) adminURL(cfg *integration.StoreConfig, resource string) string {
	base := strings.TrimRight(cfg.Storefront.BaseURL, "/")
	if base == "" {
		base = "https://" + cfg.Storefront.ShopDomain
	}
	return base + "/admin/api/" + cfg.Storefront.APIVersion + "/" + resource
}

func (a *ShopifyAdapter) getJSON(ctx context.Context, cfg *integration.StoreConfig, target string, out any) (string, error) {
	body, header, err := a.doRequest(ctx, cfg, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return "", fmt.Errorf("shopify: failed to parse response: %w", err)
	}
	return header.Get("Link"), nil
}

func (a *ShopifyAdapter) doRequest(ctx context.Context, cfg *integration.StoreConfig, method, target string, payload []byte) ([]byte, http.Header, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("shopify: failed to create request: %w", err)
	}
	req.Header.Set(HeaderShopifyAccessToken, cfg.Storefront.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &integration.TransientError{Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, nil, &integration.TransientError{StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode >= 400 {
		a.logger.Warn("Shopify request failed",
			zap.String("tenant", cfg.Tenant),
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
		)
		return nil, nil, classifyStorefrontResponse(resp.StatusCode, resp.Header.Get("Retry-After"), body)
	}
	return body, resp.Header, nil
}

// classifyStorefrontResponse maps a failed storefront call onto the taxonomy.
func classifyStorefrontResponse(status int, retryAfter string, body []byte) error {
	snippet := truncate(string(body), 512)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: storefront HTTP %d: %s", integration.ErrAuth, status, snippet)
	case status == http.StatusTooManyRequests || status >= 500:
		return &integration.TransientError{
			StatusCode: status,
			RetryAfter: parseRetryAfter(retryAfter),
			Cause:      fmt.Errorf("storefront HTTP %d: %s", status, snippet),
		}
	default:
		return fmt.Errorf("%w: HTTP %d: %s", integration.ErrStorefrontRequest, status, snippet)
	}
}

// parseNextLink extracts the rel="next" target of a Link header.
func parseNextLink(link string) string {
	if link == "" {
		return ""
	}
	m := linkNextPattern.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Ensure ShopifyAdapter implements integration.StorefrontClient
var _ integration.StorefrontClient = (*ShopifyAdapter)(nil)
