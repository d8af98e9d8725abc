// Package config handles loading and validation of service configuration.
// Supports both development (env vars) and production (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/shopspring/decimal"
	"golang.org/x/mod/semver"

	"storefront/internal/model"
)

// Backend types.
const (
	BackendHTTP = "http"
	BackendFake = "fake"
)

// Cart storage types.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Config holds all service configuration.
// Environment determines whether the backend API key loads from env vars
// (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject    string
	BackendSecret string

	Backend BackendConfig
	Cart    CartConfig

	CatalogRefresh   time.Duration
	SessionIdle      time.Duration
	MinClientVersion string
	TaxRate          decimal.Decimal
}

// BackendConfig selects and configures the storefront API.
type BackendConfig struct {
	Type            string        `json:"type"`
	URL             string        `json:"url"`
	APIKey          string        `json:"api_key"`
	Timeout         time.Duration `json:"-"`
	ChromeTLS       bool          `json:"chrome_tls"`
	FakeCatalogFile string        `json:"fake_catalog_file"`
}

// CartConfig selects where carts are persisted.
type CartConfig struct {
	Storage  string        `json:"storage"`
	Dir      string        `json:"dir"`
	RedisURL string        `json:"redis_url"`
	TTL      time.Duration `json:"-"`
}

// Defaults.
const (
	DefaultBackendURL     = "http://127.0.0.1:8000/api"
	DefaultBackendTimeout = 15 * time.Second
	DefaultCatalogRefresh = 5 * time.Minute
	DefaultSessionIdle    = 30 * time.Minute
	DefaultCartTTL        = 30 * 24 * time.Hour
	DefaultBackendSecret  = "storefront-backend-api-key"
)

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:             envOrDefault("PORT", "8080"),
		Environment:      envOrDefault("ENVIRONMENT", "development"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		GCPProject:       os.Getenv("GCP_PROJECT"),
		BackendSecret:    envOrDefault("BACKEND_SECRET", DefaultBackendSecret),
		MinClientVersion: os.Getenv("MIN_CLIENT_VERSION"),
		Backend: BackendConfig{
			Type:            envOrDefault("BACKEND_TYPE", BackendHTTP),
			URL:             envOrDefault("BACKEND_URL", DefaultBackendURL),
			FakeCatalogFile: os.Getenv("FAKE_CATALOG_FILE"),
		},
		Cart: CartConfig{
			Storage:  envOrDefault("CART_STORAGE", StorageMemory),
			Dir:      os.Getenv("CART_DIR"),
			RedisURL: os.Getenv("REDIS_URL"),
		},
	}

	var err error
	if cfg.Backend.Timeout, err = durationOrDefault(os.Getenv("BACKEND_TIMEOUT"), DefaultBackendTimeout); err != nil {
		return nil, fmt.Errorf("BACKEND_TIMEOUT: %w", err)
	}
	if cfg.Cart.TTL, err = durationOrDefault(os.Getenv("CART_TTL"), DefaultCartTTL); err != nil {
		return nil, fmt.Errorf("CART_TTL: %w", err)
	}
	if cfg.CatalogRefresh, err = durationOrDefault(os.Getenv("CATALOG_REFRESH"), DefaultCatalogRefresh); err != nil {
		return nil, fmt.Errorf("CATALOG_REFRESH: %w", err)
	}
	if cfg.SessionIdle, err = durationOrDefault(os.Getenv("SESSION_IDLE"), DefaultSessionIdle); err != nil {
		return nil, fmt.Errorf("SESSION_IDLE: %w", err)
	}
	if cfg.TaxRate, err = rateOrDefault(os.Getenv("TAX_RATE")); err != nil {
		return nil, fmt.Errorf("TAX_RATE: %w", err)
	}
	if v := os.Getenv("TLS_FINGERPRINT"); v != "" {
		if cfg.Backend.ChromeTLS, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("TLS_FINGERPRINT: %w", err)
		}
	}

	if cfg.Environment == "production" && cfg.Backend.Type == BackendHTTP {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading backend API key: %w", err)
		}
	} else {
		cfg.Backend.APIKey = os.Getenv("BACKEND_API_KEY")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port             string        `json:"port"`
		Environment      string        `json:"environment"`
		LogLevel         string        `json:"log_level"`
		Backend          BackendConfig `json:"backend"`
		BackendTimeout   string        `json:"backend_timeout"`
		Cart             CartConfig    `json:"cart"`
		CartTTL          string        `json:"cart_ttl"`
		CatalogRefresh   string        `json:"catalog_refresh"`
		SessionIdle      string        `json:"session_idle"`
		MinClientVersion string        `json:"min_client_version"`
		TaxRate          string        `json:"tax_rate"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:             withDefault(fileConfig.Port, "8080"),
		Environment:      withDefault(fileConfig.Environment, "development"),
		LogLevel:         withDefault(fileConfig.LogLevel, "info"),
		Backend:          fileConfig.Backend,
		Cart:             fileConfig.Cart,
		MinClientVersion: fileConfig.MinClientVersion,
	}
	cfg.Backend.Type = withDefault(cfg.Backend.Type, BackendHTTP)
	cfg.Backend.URL = withDefault(cfg.Backend.URL, DefaultBackendURL)
	cfg.Cart.Storage = withDefault(cfg.Cart.Storage, StorageMemory)

	if cfg.Backend.Timeout, err = durationOrDefault(fileConfig.BackendTimeout, DefaultBackendTimeout); err != nil {
		return nil, fmt.Errorf("backend_timeout: %w", err)
	}
	if cfg.Cart.TTL, err = durationOrDefault(fileConfig.CartTTL, DefaultCartTTL); err != nil {
		return nil, fmt.Errorf("cart_ttl: %w", err)
	}
	if cfg.CatalogRefresh, err = durationOrDefault(fileConfig.CatalogRefresh, DefaultCatalogRefresh); err != nil {
		return nil, fmt.Errorf("catalog_refresh: %w", err)
	}
	if cfg.SessionIdle, err = durationOrDefault(fileConfig.SessionIdle, DefaultSessionIdle); err != nil {
		return nil, fmt.Errorf("session_idle: %w", err)
	}
	if cfg.TaxRate, err = rateOrDefault(fileConfig.TaxRate); err != nil {
		return nil, fmt.Errorf("tax_rate: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager fetches the backend API key from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{backend_secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.BackendSecret)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	c.Backend.APIKey = strings.TrimSpace(string(result.Payload.Data))
	return nil
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	switch c.Backend.Type {
	case BackendHTTP:
		u, err := url.Parse(c.Backend.URL)
		if err != nil {
			return fmt.Errorf("invalid backend url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("backend url must be http or https, got %q", c.Backend.URL)
		}
	case BackendFake:
	default:
		return fmt.Errorf("unknown backend type %q (http or fake)", c.Backend.Type)
	}

	switch c.Cart.Storage {
	case StorageMemory:
	case StorageFile:
		if c.Cart.Dir == "" {
			return fmt.Errorf("cart dir is required for file storage")
		}
	case StorageRedis:
		if c.Cart.RedisURL == "" {
			return fmt.Errorf("redis url is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown cart storage %q (memory, file or redis)", c.Cart.Storage)
	}

	if c.MinClientVersion != "" {
		v := c.MinClientVersion
		if !strings.HasPrefix(v, "v") {
			v = "v" + v
		}
		if !semver.IsValid(v) {
			return fmt.Errorf("min client version %q is not a semantic version", c.MinClientVersion)
		}
	}

	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax rate %s must be in [0, 1)", c.TaxRate)
	}
	return nil
}

func durationOrDefault(val string, defaultVal time.Duration) (time.Duration, error) {
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", val)
	}
	return d, nil
}

func rateOrDefault(val string) (decimal.Decimal, error) {
	if val == "" {
		return model.DefaultTaxRate, nil
	}
	return decimal.NewFromString(val)
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
