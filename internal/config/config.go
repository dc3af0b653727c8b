package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chenyuyou/shifting-work-hours/internal/region"
)

// Config holds all pipeline configuration.
// Values come from environment variables with sensible defaults; an
// optional YAML file overrides the environment.
//
// Environment Variables:
// Catalog Configuration:
// - CATALOG_PATH: CSV catalog listing every downloadable file (default: catalog.csv)
// - SIZE_TOLERANCE_PERCENT: completeness tolerance vs catalog size (default: 1)
//
// Path Configuration:
// - DATA_DIR: root for raw downloads (default: ./data)
// - OUTPUT_DIR: root for derived artifacts (default: ./output)
// - REGION_FILE: GeoJSON region geometry for masking (optional)
// - REGION_SUNRISE_HOUR: local sunrise hour for the shifted work schedule (default: 6)
//
// Pool Configuration:
// - POOL_CONCURRENCY: parallel workers per stage (default: 4)
// - POOL_BATCH_SIZE: units claimed per batch (default: 8)
//
// Transfer Configuration:
// - TRANSFER_TIMEOUT: per-request timeout in seconds (default: 300)
// - TRANSFER_RETRIES: attempts per request (default: 3)
//
// Store Configuration:
// - STORE_BACKEND: "file" or "sqlite" (default: file)
// - STORE_DIR: directory for status ledgers (default: ./status)
//
// Schedule Configuration:
// - CRON_EXPR: cron expression for scheduled runs (optional)

type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog"`
	Paths    PathsConfig    `yaml:"paths"`
	Region   RegionConfig   `yaml:"region"`
	Pool     PoolConfig     `yaml:"pool"`
	Transfer TransferConfig `yaml:"transfer"`
	Store    StoreConfig    `yaml:"store"`
	Schedule ScheduleConfig `yaml:"schedule"`

	// loadErr defers file loading failures until validate, so Options
	// stay side effect only.
	loadErr error
}

type CatalogConfig struct {
	Path             string  `yaml:"path"`
	TolerancePercent float64 `yaml:"tolerance_percent"`
}

type PathsConfig struct {
	DataDir   string `yaml:"data_dir"`
	OutputDir string `yaml:"output_dir"`
}

type RegionConfig struct {
	// File is a GeoJSON FeatureCollection; empty disables the mask stage.
	File   string        `yaml:"file"`
	Bounds region.Bounds `yaml:"bounds"`

	// SunriseHour picks the shifted work-hour split in the report stage.
	// Hours outside 4 through 7 keep the baseline split.
	SunriseHour int `yaml:"sunrise_hour"`
}

type PoolConfig struct {
	Concurrency int `yaml:"concurrency"`
	BatchSize   int `yaml:"batch_size"`
}

type TransferConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	Retries        int `yaml:"retries"`
}

// StoreConfig selects the status store backend. "file" keeps one JSON
// ledger per stage; "sqlite" keeps all stages in one database.
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

type ScheduleConfig struct {
	CronExpr string `yaml:"cron_expr"`
}

// Option is a function type for adjusting Config after loading.
type Option func(*Config)

// NewFromEnv creates a Config from environment variables and options.
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Catalog: CatalogConfig{
			Path:             getEnvString("CATALOG_PATH", "catalog.csv"),
			TolerancePercent: getEnvFloat("SIZE_TOLERANCE_PERCENT", 1),
		},
		Paths: PathsConfig{
			DataDir:   getEnvString("DATA_DIR", "./data"),
			OutputDir: getEnvString("OUTPUT_DIR", "./output"),
		},
		Region: RegionConfig{
			File: getEnvString("REGION_FILE", ""),
			Bounds: region.Bounds{
				LatMin: getEnvFloat("REGION_LAT_MIN", 15),
				LatMax: getEnvFloat("REGION_LAT_MAX", 55),
				LonMin: getEnvFloat("REGION_LON_MIN", 70),
				LonMax: getEnvFloat("REGION_LON_MAX", 140),
			},
			SunriseHour: getEnvInt("REGION_SUNRISE_HOUR", 6),
		},
		Pool: PoolConfig{
			Concurrency: getEnvInt("POOL_CONCURRENCY", 4),
			BatchSize:   getEnvInt("POOL_BATCH_SIZE", 8),
		},
		Transfer: TransferConfig{
			TimeoutSeconds: getEnvInt("TRANSFER_TIMEOUT", 300),
			Retries:        getEnvInt("TRANSFER_RETRIES", 3),
		},
		Store: StoreConfig{
			Backend: getEnvString("STORE_BACKEND", "file"),
			Dir:     getEnvString("STORE_DIR", "./status"),
		},
		Schedule: ScheduleConfig{
			CronExpr: getEnvString("CRON_EXPR", ""),
		},
	}

	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// WithFile returns an Option that overlays values from a YAML file on top
// of the environment-derived config.
func WithFile(path string) Option {
	return func(c *Config) {
		raw, err := os.ReadFile(path)
		if err != nil {
			c.loadErr = fmt.Errorf("read config file: %w", err)
			return
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			c.loadErr = fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
}

func (c *Config) validate() error {
	if c.loadErr != nil {
		return c.loadErr
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("CATALOG_PATH is required")
	}
	if c.Pool.Concurrency < 1 {
		return fmt.Errorf("POOL_CONCURRENCY must be at least 1, got %d", c.Pool.Concurrency)
	}
	if c.Pool.BatchSize < 1 {
		return fmt.Errorf("POOL_BATCH_SIZE must be at least 1, got %d", c.Pool.BatchSize)
	}
	switch c.Store.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("STORE_BACKEND must be \"file\" or \"sqlite\", got %q", c.Store.Backend)
	}
	if c.Catalog.TolerancePercent <= 0 || c.Catalog.TolerancePercent > 50 {
		return fmt.Errorf("SIZE_TOLERANCE_PERCENT must be in (0, 50], got %g", c.Catalog.TolerancePercent)
	}
	if err := c.Region.Bounds.Validate(); err != nil {
		return err
	}
	if c.Region.SunriseHour < 0 || c.Region.SunriseHour > 23 {
		return fmt.Errorf("REGION_SUNRISE_HOUR must be in [0, 23], got %d", c.Region.SunriseHour)
	}
	return nil
}

// TransferTimeout returns the per-request timeout as a duration.
func (c *Config) TransferTimeout() time.Duration {
	return time.Duration(c.Transfer.TimeoutSeconds) * time.Second
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
