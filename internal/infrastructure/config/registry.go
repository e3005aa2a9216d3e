package config

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/erp/storesync/internal/domain/integration"
)

const (
	defaultShopifyAPIVersion = "2024-01"
	defaultERPBaseURL        = "https://api.unleashedsoftware.com"
)

// SecretResolver resolves secret:// and env:// references.
type SecretResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// LocationResolver finds the storefront location used for inventory writes
// when a tenant does not configure one.
type LocationResolver interface {
	PrimaryLocationID(ctx context.Context, cfg *integration.StoreConfig) (string, error)
}

// Registry holds the validated, immutable StoreConfig of every tenant.
type Registry struct {
	configs map[string]*integration.StoreConfig
	tenants []string
}

type registryOptions struct {
	secrets SecretResolver
	locator LocationResolver
	logger  *zap.Logger
}

// RegistryOption customises registry construction.
type RegistryOption func(*registryOptions)

// WithSecretResolver resolves credential references while loading.
func WithSecretResolver(r SecretResolver) RegistryOption {
	return func(o *registryOptions) { o.secrets = r }
}

// WithLocationResolver fetches and caches missing storefront location ids.
func WithLocationResolver(l LocationResolver) RegistryOption {
	return func(o *registryOptions) { o.locator = l }
}

// WithRegistryLogger sets the logger.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(o *registryOptions) { o.logger = l }
}

// NewRegistry builds and validates every tenant. Any failure is a config
// error and the caller must refuse to start.
func NewRegistry(ctx context.Context, tenants map[string]TenantConfig, opts ...RegistryOption) (*Registry, error) {
	o := registryOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if len(tenants) == 0 {
		return nil, ErrNoTenants
	}

	configs := make([]*integration.StoreConfig, 0, len(tenants))
	for id, raw := range tenants {
		cfg, err := buildStoreConfig(ctx, id, raw, o.secrets)
		if err != nil {
			return nil, err
		}
		if cfg.Storefront.LocationID == "" && o.locator != nil {
			loc, err := o.locator.PrimaryLocationID(ctx, cfg)
			if err != nil {
				return nil, integration.NewConfigError(id, "resolve storefront location: %v", err)
			}
			resolved := cfg.WithLocationID(loc)
			cfg = &resolved
			o.logger.Info("Resolved storefront location",
				zap.String("tenant", id),
				zap.String("location_id", loc),
			)
		}
		configs = append(configs, cfg)
	}
	return NewStaticRegistry(configs...)
}

// NewStaticRegistry builds a registry from already assembled configs.
func NewStaticRegistry(configs ...*integration.StoreConfig) (*Registry, error) {
	r := &Registry{configs: make(map[string]*integration.StoreConfig, len(configs))}
	for _, cfg := range configs {
		if err := ValidateStoreConfig(cfg); err != nil {
			return nil, err
		}
		if _, dup := r.configs[cfg.Tenant]; dup {
			return nil, integration.NewConfigError(cfg.Tenant, "declared twice")
		}
		c := *cfg
		r.configs[cfg.Tenant] = &c
		r.tenants = append(r.tenants, cfg.Tenant)
	}
	sort.Strings(r.tenants)
	return r, nil
}

// Get returns the config of tenant
func (r *Registry) Get(tenant string) (*integration.StoreConfig, error) {
	cfg, ok := r.configs[tenant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrTenantNotFound, tenant)
	}
	c := *cfg
	return &c, nil
}

// Tenants returns every tenant id, sorted
func (r *Registry) Tenants() []string {
	out := make([]string, len(r.tenants))
	copy(out, r.tenants)
	return out
}

// All returns every config in tenant order
func (r *Registry) All() []*integration.StoreConfig {
	out := make([]*integration.StoreConfig, 0, len(r.tenants))
	for _, t := range r.tenants {
		c := *r.configs[t]
		out = append(out, &c)
	}
	return out
}

// Select resolves a CLI target: a tenant id or "all".
func (r *Registry) Select(target string) ([]string, error) {
	if target == "all" {
		return r.Tenants(), nil
	}
	if _, ok := r.configs[target]; !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrTenantNotFound, target)
	}
	return []string{target}, nil
}

var _ integration.StoreConfigProvider = (*Registry)(nil)

// ---------------------------------------------------------------------------
// Building and validation
// ---------------------------------------------------------------------------

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStoreConfig runs struct tag validation followed by domain checks.
func ValidateStoreConfig(cfg *integration.StoreConfig) error {
	if cfg == nil {
		return integration.NewConfigError("", "nil config")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace()+" ("+fe.Tag()+")")
			}
			return integration.NewConfigError(cfg.Tenant, "invalid fields: %s", strings.Join(fields, ", "))
		}
		return integration.NewConfigError(cfg.Tenant, "%v", err)
	}
	return cfg.Validate()
}

func buildStoreConfig(ctx context.Context, tenant string, raw TenantConfig, secrets SecretResolver) (*integration.StoreConfig, error) {
	minSync, err := ParseMinSyncDate(raw.MinSyncDate)
	if err != nil {
		return nil, integration.NewConfigError(tenant, "min_sync_date: %v", err)
	}

	resolve := func(field, value string) (string, error) {
		if !isReference(value) {
			return value, nil
		}
		if secrets == nil {
			return "", integration.NewConfigError(tenant, "%s is a reference but no secret resolver is configured", field)
		}
		v, err := secrets.Resolve(ctx, value)
		if err != nil {
			return "", integration.NewConfigError(tenant, "%s: %v", field, err)
		}
		return v, nil
	}

	accessToken, err := resolve("storefront.access_token", raw.Storefront.AccessToken)
	if err != nil {
		return nil, err
	}
	webhookSecret, err := resolve("storefront.webhook_secret", raw.Storefront.WebhookSecret)
	if err != nil {
		return nil, err
	}
	apiID, err := resolve("erp.api_id", raw.ERP.APIID)
	if err != nil {
		return nil, err
	}
	apiSecret, err := resolve("erp.api_secret", raw.ERP.APISecret)
	if err != nil {
		return nil, err
	}

	cfg := &integration.StoreConfig{
		Tenant:      tenant,
		DisplayName: raw.DisplayName,
		Storefront: integration.StorefrontConfig{
			Platform:      integration.StorefrontPlatform(orDefault(raw.Storefront.Platform, string(integration.StorefrontPlatformShopify))),
			ShopDomain:    raw.Storefront.ShopDomain,
			AccessToken:   accessToken,
			APIVersion:    orDefault(raw.Storefront.APIVersion, defaultShopifyAPIVersion),
			LocationID:    raw.Storefront.LocationID,
			WebhookSecret: webhookSecret,
			BaseURL:       raw.Storefront.BaseURL,
		},
		ERP: integration.ERPConfig{
			Platform:      integration.ERPPlatform(orDefault(raw.ERP.Platform, string(integration.ERPPlatformUnleashed))),
			APIID:         apiID,
			APISecret:     apiSecret,
			BaseURL:       orDefault(raw.ERP.BaseURL, defaultERPBaseURL),
			WarehouseCode: raw.ERP.WarehouseCode,
			TaxCode:       raw.ERP.TaxCode,
			Currency:      strings.ToUpper(raw.ERP.Currency),
			SignatureMode: integration.SignatureMode(raw.ERP.SignatureMode),
		},
		MinSyncDate:       minSync,
		OrderInterval:     raw.OrderInterval,
		InventoryInterval: raw.InventoryInterval,
	}
	for _, rule := range raw.TitleSKURules {
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			return nil, integration.NewConfigError(tenant, "title_sku_rules: %v", err)
		}
		cfg.TitleSKURules = append(cfg.TitleSKURules, integration.TitleSKURule{Pattern: rule.Pattern, SKU: rule.SKU})
	}
	return cfg, nil
}

// ParseMinSyncDate accepts RFC3339 or a plain date (midnight UTC).
func ParseMinSyncDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC3339 or YYYY-MM-DD, got %q", s)
	}
	return t.UTC(), nil
}

func isReference(v string) bool {
	return strings.HasPrefix(v, "secret://") || strings.HasPrefix(v, "env://")
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
