package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete session configuration, loadable from
// environment variables (CARTSYNC_ prefix), flags, or YAML config files.
type Config struct {
	PortalURL      string        `default:"http://localhost:8000" usage:"Ordering portal API base URL" flag:"portal-url"`
	RiskURL        string        `default:"" usage:"Shortage risk service base URL (empty disables risk assessment)" flag:"risk-url"`
	APIToken       string        `usage:"Portal bearer token (CARTSYNC_API_TOKEN)" flag:"api-token"`
	CustomerNumber string        `usage:"Customer number used in risk prediction requests" flag:"customer-number"`
	HTTPTimeout    time.Duration `default:"30s" usage:"Timeout for portal and risk service calls" flag:"http-timeout"`
	ProbeInterval  time.Duration `default:"30s" usage:"Interval between service connectivity probes" flag:"probe-interval"`
	Risk           RiskConfig
}

// RiskConfig controls risk assessment batching and location codes.
type RiskConfig struct {
	BatchSize       int    `default:"25" usage:"Max products per risk service request" flag:"risk-batch-size"`
	Plant           string `default:"P01" usage:"Plant code for risk prediction"`
	StorageLocation string `default:"WH01" usage:"Storage location code for risk prediction" flag:"storage-location"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CARTSYNC",
		Files:     []string{"config.yaml", "/etc/cartsync/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.APIToken == "" {
		return nil, errors.New("API token is required: set CARTSYNC_API_TOKEN")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps unprefixed environment variables commonly set
// by deployment platforms to the CARTSYNC_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if v := os.Getenv("PORTAL_URL"); v != "" && c.PortalURL == "http://localhost:8000" {
		c.PortalURL = v
	}
	if v := os.Getenv("RISK_API_BASE_URL"); v != "" && c.RiskURL == "" {
		c.RiskURL = v
	}
}
