package integration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
)

// ErrUnresolvedLine marks a line with no SKU that no title rule matched.
var ErrUnresolvedLine = errors.New("integration: line has no SKU and matches no title rule")

// DefaultTitleSKURules apply to tenants that configure none.
var DefaultTitleSKURules = []integration.TitleSKURule{
	{Pattern: `lion'?s?\s*mane.*capsule`, SKU: "CAPS90LION"},
}

// BundleResolver expands storefront SKUs into ERP lines using a per-run
// snapshot of the tenant's mapping table. It never calls external APIs.
type BundleResolver struct {
	reader integration.BundleMappingReader
	logger *zap.Logger

	mu       sync.RWMutex
	tables   map[string]map[string]*integration.BundleMapping
	patterns map[string]*regexp.Regexp
}

// NewBundleResolver creates a resolver backed by reader.
func NewBundleResolver(reader integration.BundleMappingReader, logger *zap.Logger) *BundleResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BundleResolver{
		reader:   reader,
		logger:   logger.Named("bundle_resolver"),
		tables:   make(map[string]map[string]*integration.BundleMapping),
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Load replaces the tenant's snapshot with the current mapping table.
// Engines call it once at the start of every run.
func (r *BundleResolver) Load(ctx context.Context, tenant string) error {
	mappings, err := r.reader.ListByTenant(ctx, tenant)
	if err != nil {
		return fmt.Errorf("load bundle mappings for %s: %w", tenant, err)
	}

	table := make(map[string]*integration.BundleMapping, len(mappings))
	for i := range mappings {
		m := mappings[i]
		table[m.StorefrontSKU] = &m
	}

	r.mu.Lock()
	r.tables[tenant] = table
	r.mu.Unlock()

	r.logger.Debug("Loaded bundle mappings",
		zap.String("tenant", tenant),
		zap.Int("count", len(table)),
	)
	return nil
}

// Resolve expands one storefront SKU. Unmapped SKUs pass through unchanged;
// a corrupt mapping yields a MappingCorruptError for this line only.
func (r *BundleResolver) Resolve(ctx context.Context, tenant, sku string, qty int64) ([]integration.ERPLine, error) {
	r.mu.RLock()
	table, loaded := r.tables[tenant]
	r.mu.RUnlock()

	if !loaded {
		if err := r.Load(ctx, tenant); err != nil {
			return nil, err
		}
		r.mu.RLock()
		table = r.tables[tenant]
		r.mu.RUnlock()
	}

	return integration.ExpandLine(tenant, table[sku], sku, qty)
}

// ResolveItem resolves an order line, falling back to the tenant's title
// rules when the line carries no SKU.
func (r *BundleResolver) ResolveItem(ctx context.Context, cfg *integration.StoreConfig, item integration.SourceLineItem) ([]integration.ERPLine, error) {
	sku := strings.TrimSpace(item.SKU)
	if sku == "" {
		matched, ok := r.matchTitle(cfg, item.Title)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnresolvedLine, item.Title)
		}
		sku = matched
	}
	return r.Resolve(ctx, cfg.Tenant, sku, item.Quantity)
}

func (r *BundleResolver) matchTitle(cfg *integration.StoreConfig, title string) (string, bool) {
	rules := cfg.TitleSKURules
	if len(rules) == 0 {
		rules = DefaultTitleSKURules
	}
	for _, rule := range rules {
		re, err := r.compile(rule.Pattern)
		if err != nil {
			r.logger.Warn("Ignoring invalid title rule",
				zap.String("tenant", cfg.Tenant),
				zap.String("pattern", rule.Pattern),
				zap.Error(err),
			)
			continue
		}
		if re.MatchString(title) {
			return rule.SKU, true
		}
	}
	return "", false
}

func (r *BundleResolver) compile(pattern string) (*regexp.Regexp, error) {
	r.mu.RLock()
	re, ok := r.patterns[pattern]
	r.mu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.patterns[pattern] = re
	r.mu.Unlock()
	return re, nil
}
