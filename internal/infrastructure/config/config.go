package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Sync      SyncConfig
	Secrets   SecretsConfig
	Telemetry TelemetryConfig
	// Tenants is keyed by tenant id
	Tenants map[string]TenantConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether the process runs in production.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	Path            string // sqlite file path
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
	// APIToken guards /api/v1 with a bearer token; empty leaves it open
	APIToken string
	// Swagger serves the OpenAPI docs under /swagger when enabled
	SwaggerEnabled      bool
	SwaggerRequireToken bool
	SwaggerAllowedIPs   []string
}

// SyncConfig holds engine and scheduler settings shared by all tenants
type SyncConfig struct {
	OrderInterval     time.Duration
	InventoryInterval time.Duration
	// RunTimeout is the deadline of one run; no new order starts after it
	RunTimeout time.Duration
	// StaleAfter is the age at which a pending ledger entry may be reclaimed
	StaleAfter     time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	FetchLimit     int
	RequestTimeout time.Duration
	PageDelay      time.Duration
	WriteDelay     time.Duration
	// QuantityCache is memory or redis
	QuantityCache    string
	QuantityCacheTTL time.Duration
	HistorySize      int
}

// SecretsConfig configures secret:// resolution
type SecretsConfig struct {
	Environment    string
	DefaultProject string
	ProjectMap     map[string]string
	FallbackFile   string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	Insecure          bool
	ExportInterval    time.Duration
	// SamplingRatio applies to traces; 0 falls back to 1 (sample everything)
	SamplingRatio float64
	// LogsEnabled additionally ships zap output to the collector
	LogsEnabled bool
	Profiling   ProfilingConfig
}

// ProfilingConfig configures continuous profiling pushed to Pyroscope
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	BasicAuthUser     string
	BasicAuthPassword string
}

// TenantConfig is the raw per-tenant block of the config file. Credential
// fields may hold secret:// or env:// references.
type TenantConfig struct {
	DisplayName       string          `mapstructure:"display_name"`
	MinSyncDate       string          `mapstructure:"min_sync_date"`
	OrderInterval     time.Duration   `mapstructure:"order_interval"`
	InventoryInterval time.Duration   `mapstructure:"inventory_interval"`
	TitleSKURules     []TitleSKURule  `mapstructure:"title_sku_rules"`
	Storefront        StorefrontBlock `mapstructure:"storefront"`
	ERP               ERPBlock        `mapstructure:"erp"`
}

// TitleSKURule maps SKU-less storefront lines to an ERP code by title.
type TitleSKURule struct {
	Pattern string `mapstructure:"pattern"`
	SKU     string `mapstructure:"sku"`
}

// StorefrontBlock is the storefront section of a tenant.
type StorefrontBlock struct {
	Platform      string `mapstructure:"platform"`
	ShopDomain    string `mapstructure:"shop_domain"`
	AccessToken   string `mapstructure:"access_token"`
	APIVersion    string `mapstructure:"api_version"`
	LocationID    string `mapstructure:"location_id"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url"`
}

// ERPBlock is the ERP section of a tenant.
type ERPBlock struct {
	Platform      string `mapstructure:"platform"`
	APIID         string `mapstructure:"api_id"`
	APISecret     string `mapstructure:"api_secret"`
	BaseURL       string `mapstructure:"base_url"`
	WarehouseCode string `mapstructure:"warehouse_code"`
	TaxCode       string `mapstructure:"tax_code"`
	Currency      string `mapstructure:"currency"`
	SignatureMode string `mapstructure:"signature_mode"`
}

// ErrNoTenants is returned when the config declares no tenant.
var ErrNoTenants = errors.New("config: no tenants configured")

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with STORESYNC_ prefix (e.g., STORESYNC_DATABASE_PASSWORD)
// 2. the config file (path, or config.toml in the search paths)
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/storesync")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("STORESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			Path:            v.GetString("database.path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			APIToken:       v.GetString("http.api_token"),

			SwaggerEnabled:      v.GetBool("http.swagger.enabled"),
			SwaggerRequireToken: v.GetBool("http.swagger.require_token"),
			SwaggerAllowedIPs:   v.GetStringSlice("http.swagger.allowed_ips"),
		},
		Sync: SyncConfig{
			OrderInterval:     v.GetDuration("sync.order_interval"),
			InventoryInterval: v.GetDuration("sync.inventory_interval"),
			RunTimeout:        v.GetDuration("sync.run_timeout"),
			StaleAfter:        v.GetDuration("sync.stale_after"),
			MaxAttempts:       v.GetInt("sync.max_attempts"),
			RetryBaseDelay:    v.GetDuration("sync.retry_base_delay"),
			RetryMaxDelay:     v.GetDuration("sync.retry_max_delay"),
			FetchLimit:        v.GetInt("sync.fetch_limit"),
			RequestTimeout:    v.GetDuration("sync.request_timeout"),
			PageDelay:         v.GetDuration("sync.page_delay"),
			WriteDelay:        v.GetDuration("sync.write_delay"),
			QuantityCache:     v.GetString("sync.quantity_cache"),
			QuantityCacheTTL:  v.GetDuration("sync.quantity_cache_ttl"),
			HistorySize:       v.GetInt("sync.history_size"),
		},
		Secrets: SecretsConfig{
			Environment:    v.GetString("secrets.environment"),
			DefaultProject: v.GetString("secrets.default_project"),
			ProjectMap:     v.GetStringMapString("secrets.project_map"),
			FallbackFile:   v.GetString("secrets.fallback_file"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ExportInterval:    v.GetDuration("telemetry.export_interval"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			Profiling: ProfilingConfig{
				Enabled:           v.GetBool("telemetry.profiling.enabled"),
				ServerAddress:     v.GetString("telemetry.profiling.server_address"),
				BasicAuthUser:     v.GetString("telemetry.profiling.basic_auth_user"),
				BasicAuthPassword: v.GetString("telemetry.profiling.basic_auth_password"),
			},
		},
	}

	if err := v.UnmarshalKey("tenants", &cfg.Tenants); err != nil {
		return nil, fmt.Errorf("error decoding tenants: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storesync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storesync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "storesync.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "storesync:"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stderr"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 2 << 20 // 2MB
	}
	if cfg.Sync.OrderInterval == 0 {
		cfg.Sync.OrderInterval = 5 * time.Minute
	}
	if cfg.Sync.InventoryInterval == 0 {
		cfg.Sync.InventoryInterval = 30 * time.Minute
	}
	if cfg.Sync.RunTimeout == 0 {
		cfg.Sync.RunTimeout = 10 * time.Minute
	}
	if cfg.Sync.StaleAfter == 0 {
		cfg.Sync.StaleAfter = 15 * time.Minute
	}
	if cfg.Sync.MaxAttempts == 0 {
		cfg.Sync.MaxAttempts = 4
	}
	if cfg.Sync.RetryBaseDelay == 0 {
		cfg.Sync.RetryBaseDelay = time.Second
	}
	if cfg.Sync.RetryMaxDelay == 0 {
		cfg.Sync.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Sync.FetchLimit == 0 {
		cfg.Sync.FetchLimit = 50
	}
	if cfg.Sync.RequestTimeout == 0 {
		cfg.Sync.RequestTimeout = 30 * time.Second
	}
	if cfg.Sync.PageDelay == 0 {
		cfg.Sync.PageDelay = 250 * time.Millisecond
	}
	if cfg.Sync.WriteDelay == 0 {
		cfg.Sync.WriteDelay = 500 * time.Millisecond
	}
	if cfg.Sync.QuantityCache == "" {
		cfg.Sync.QuantityCache = "memory"
	}
	if cfg.Sync.QuantityCacheTTL == 0 {
		cfg.Sync.QuantityCacheTTL = 7 * 24 * time.Hour
	}
	if cfg.Sync.HistorySize == 0 {
		cfg.Sync.HistorySize = 100
	}
	if cfg.Secrets.Environment == "" {
		cfg.Secrets.Environment = cfg.App.Env
	}
	if cfg.Secrets.FallbackFile == "" {
		cfg.Secrets.FallbackFile = ".secrets.local"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "storesync"
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = 30 * time.Second
	}
	if cfg.Telemetry.SamplingRatio <= 0 || cfg.Telemetry.SamplingRatio > 1 {
		cfg.Telemetry.SamplingRatio = 1
	}
	if cfg.Tenants == nil {
		cfg.Tenants = map[string]TenantConfig{}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Sync.QuantityCache {
	case "memory", "redis":
	default:
		return fmt.Errorf("sync.quantity_cache must be memory or redis, got %q", c.Sync.QuantityCache)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.RetryMaxDelay < c.Sync.RetryBaseDelay {
		return fmt.Errorf("sync.retry_max_delay (%s) cannot be below sync.retry_base_delay (%s)",
			c.Sync.RetryMaxDelay, c.Sync.RetryBaseDelay)
	}
	if c.Sync.StaleAfter <= c.Sync.RequestTimeout {
		return fmt.Errorf("sync.stale_after (%s) must exceed sync.request_timeout (%s)",
			c.Sync.StaleAfter, c.Sync.RequestTimeout)
	}

	if c.Telemetry.Profiling.Enabled && c.Telemetry.Profiling.ServerAddress == "" {
		return fmt.Errorf("telemetry.profiling.server_address is required when profiling is enabled")
	}

	if c.App.IsProduction() {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
