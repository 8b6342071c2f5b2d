// Package config loads server configuration from defaults, an optional YAML
// file and SAMBATAN_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable holding the YAML config path.
const FileEnv = "SAMBATAN_CONFIG"

const (
	CatalogStatic = "static"
	CatalogHTTP   = "http"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	JWTSecret  string `yaml:"jwt_secret"`

	Ledger   LedgerConfig   `yaml:"ledger"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Shipping ShippingConfig `yaml:"shipping"`
	Events   EventsConfig   `yaml:"events"`
}

type LedgerConfig struct {
	LockTimeout time.Duration `yaml:"lock_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

type SweeperConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

type ShippingConfig struct {
	MaxEstimatedDays  int           `yaml:"max_estimated_days"`
	CurrencyPrecision int32         `yaml:"currency_precision"`
	QuoteConcurrency  int           `yaml:"quote_concurrency"`
	Catalog           CatalogConfig `yaml:"catalog"`
}

type EventsConfig struct {
	Buffer  int `yaml:"buffer"`
	Workers int `yaml:"workers"`
}

// CatalogConfig selects the rate catalog. The rate table fields are only
// used in static mode.
type CatalogConfig struct {
	Mode    string        `yaml:"mode"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	Origin            LocationConfig            `yaml:"origin"`
	Origins           map[string]LocationConfig `yaml:"origins"`
	Default           []RateConfig              `yaml:"default_rates"`
	Destinations      map[string][]RateConfig   `yaml:"destination_rates"`
	Consolidated      RateConfig                `yaml:"consolidated_rate"`
	PerDestinationFee string                    `yaml:"per_destination_fee"`
}

type LocationConfig struct {
	City       string `yaml:"city"`
	Province   string `yaml:"province"`
	PostalCode string `yaml:"postal_code"`
}

type RateConfig struct {
	Provider      string `yaml:"provider"`
	ServiceTier   string `yaml:"service_tier"`
	Price         string `yaml:"price"`
	EstimatedDays int    `yaml:"estimated_days"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		DBPath:     "./data/sambatan.db",
		Ledger: LedgerConfig{
			LockTimeout: 2 * time.Second,
			MaxRetries:  5,
		},
		Sweeper: SweeperConfig{
			Interval:  time.Minute,
			BatchSize: 100,
		},
		Shipping: ShippingConfig{
			CurrencyPrecision: 2,
			QuoteConcurrency:  4,
			Catalog: CatalogConfig{
				Mode:    CatalogStatic,
				Timeout: 3 * time.Second,
			},
		},
		Events: EventsConfig{
			Buffer:  256,
			Workers: 8,
		},
	}
}

// Load reads the file named by SAMBATAN_CONFIG, if set, and applies
// environment overrides from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv(FileEnv), os.LookupEnv)
}

// LoadFrom reads path (may be empty) and applies overrides read through lookup.
func LoadFrom(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := cast.ToIntE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := cast.ToDurationE(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("SAMBATAN_LISTEN_ADDR", &cfg.ListenAddr)
	str("SAMBATAN_DB_PATH", &cfg.DBPath)
	str("SAMBATAN_JWT_SECRET", &cfg.JWTSecret)
	duration("SAMBATAN_LOCK_TIMEOUT", &cfg.Ledger.LockTimeout)
	integer("SAMBATAN_MAX_RETRIES", &cfg.Ledger.MaxRetries)
	duration("SAMBATAN_SWEEP_INTERVAL", &cfg.Sweeper.Interval)
	integer("SAMBATAN_SWEEP_BATCH_SIZE", &cfg.Sweeper.BatchSize)
	integer("SAMBATAN_MAX_ESTIMATED_DAYS", &cfg.Shipping.MaxEstimatedDays)
	integer("SAMBATAN_QUOTE_CONCURRENCY", &cfg.Shipping.QuoteConcurrency)
	integer("SAMBATAN_EVENT_BUFFER", &cfg.Events.Buffer)
	integer("SAMBATAN_EVENT_WORKERS", &cfg.Events.Workers)
	str("SAMBATAN_CATALOG_MODE", &cfg.Shipping.Catalog.Mode)
	str("SAMBATAN_CATALOG_URL", &cfg.Shipping.Catalog.BaseURL)
	duration("SAMBATAN_CATALOG_TIMEOUT", &cfg.Shipping.Catalog.Timeout)

	if v, ok := lookup("SAMBATAN_CURRENCY_PRECISION"); ok {
		n, err := cast.ToInt32E(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("SAMBATAN_CURRENCY_PRECISION: %w", err))
		} else {
			cfg.Shipping.CurrencyPrecision = n
		}
	}

	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.Ledger.LockTimeout <= 0 {
		errs = append(errs, errors.New("ledger.lock_timeout must be positive"))
	}
	if c.Sweeper.Interval < time.Second {
		errs = append(errs, errors.New("sweeper.interval must be at least 1s"))
	}
	if c.Sweeper.BatchSize < 1 {
		errs = append(errs, errors.New("sweeper.batch_size must be at least 1"))
	}
	if c.Shipping.MaxEstimatedDays < 0 {
		errs = append(errs, errors.New("shipping.max_estimated_days cannot be negative"))
	}
	if c.Shipping.CurrencyPrecision < 0 || c.Shipping.CurrencyPrecision > 8 {
		errs = append(errs, errors.New("shipping.currency_precision must be between 0 and 8"))
	}
	if c.Events.Buffer < 1 || c.Events.Workers < 1 {
		errs = append(errs, errors.New("events.buffer and events.workers must be at least 1"))
	}

	switch c.Shipping.Catalog.Mode {
	case CatalogStatic:
	case CatalogHTTP:
		if c.Shipping.Catalog.BaseURL == "" {
			errs = append(errs, errors.New("shipping.catalog.base_url is required in http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown shipping.catalog.mode %q", c.Shipping.Catalog.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
