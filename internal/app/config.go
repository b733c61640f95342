package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/openkart/commerce/internal/domain/checkout"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Pricing      PricingConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PricingConfig sets order-level charges applied at checkout.
type PricingConfig struct {
	TaxRate               string `default:"0.10" usage:"Flat tax rate applied to the subtotal" flag:"tax-rate"`
	ShippingCost          string `default:"5.99" usage:"Flat shipping cost per order" flag:"shipping-cost"`
	FreeShippingThreshold string `default:"0" usage:"Subtotal above which shipping is free (0 disables)" flag:"free-shipping-threshold"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.pricing(); err != nil {
		return nil, errors.Wrap(err, "pricing config")
	}

	return &cfg, nil
}

// pricing parses the decimal pricing fields. Values are kept as strings in
// Config because aconfig has no decimal decoder.
func (c *Config) pricing() (checkout.PricingConfig, error) {
	var (
		p   checkout.PricingConfig
		err error
	)
	if p.TaxRate, err = decimal.NewFromString(c.Pricing.TaxRate); err != nil {
		return p, errors.Wrap(err, "tax rate")
	}
	if p.ShippingCost, err = decimal.NewFromString(c.Pricing.ShippingCost); err != nil {
		return p, errors.Wrap(err, "shipping cost")
	}
	if p.FreeShippingThreshold, err = decimal.NewFromString(c.Pricing.FreeShippingThreshold); err != nil {
		return p, errors.Wrap(err, "free shipping threshold")
	}
	return p, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
