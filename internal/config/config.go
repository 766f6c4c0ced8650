// Package config handles TOML configuration for leima.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig     `toml:"aws"`
	Scan    ScanConfig    `toml:"scan"`
	Buckets BucketsConfig `toml:"buckets"`
	Export  ExportConfig  `toml:"export"`
	OTEL    OTELConfig    `toml:"otel"`
	Log     LogConfig     `toml:"log"`
}

// AWSConfig holds credential and endpoint settings for the client factory.
// Empty regions means discover every enabled region at run start.
type AWSConfig struct {
	Regions         []string `toml:"regions"`
	Profile         string   `toml:"profile"`
	AccessKeyID     string   `toml:"access_key_id"`
	SecretAccessKey string   `toml:"secret_access_key"`
	SessionToken    string   `toml:"session_token"`
	BaseEndpoint    string   `toml:"base_endpoint"`
}

// ScanConfig bounds the regional scan.
type ScanConfig struct {
	Scanners             []string `toml:"scanners"`
	MaxRegionConcurrency int      `toml:"max_region_concurrency"`
	UnitTimeoutStr       string   `toml:"unit_timeout"`
	UnitTimeout          time.Duration
	PageTimeoutStr       string   `toml:"page_timeout"`
	PageTimeout          time.Duration
	MaxPages             int   `toml:"max_pages"`
	PageSize             int32 `toml:"page_size"`
}

// BucketsConfig controls the account-global bucket scan. A dedicated
// profile lets the bucket listing run under narrower credentials than
// the regional scan.
type BucketsConfig struct {
	Disabled    bool   `toml:"disabled"`
	Profile     string `toml:"profile"`
	Concurrency int    `toml:"concurrency"`
}

// ExportConfig names the report destinations. An empty bucket disables
// the S3 exporter; an empty file disables the local one.
type ExportConfig struct {
	Bucket string `toml:"bucket"`
	Region string `toml:"region"`
	Prefix string `toml:"prefix"`
	File   string `toml:"file"`
}

// OTELConfig holds OpenTelemetry settings. An empty endpoint disables
// OTLP push; the Prometheus endpoint is always served.
type OTELConfig struct {
	Endpoint    string `toml:"endpoint"`
	Insecure    bool   `toml:"insecure"`
	ServiceName string `toml:"service_name"`
	Environment string `toml:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	// Default duration strings are static and always parse.
	_ = parseDurations(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Scan.MaxRegionConcurrency == 0 {
		cfg.Scan.MaxRegionConcurrency = 4
	}
	if cfg.Scan.UnitTimeoutStr == "" {
		cfg.Scan.UnitTimeoutStr = "2m"
	}
	if cfg.Scan.PageTimeoutStr == "" {
		cfg.Scan.PageTimeoutStr = "30s"
	}
	if cfg.Scan.MaxPages == 0 {
		cfg.Scan.MaxPages = 20
	}
	if cfg.Scan.PageSize == 0 {
		cfg.Scan.PageSize = 100
	}
	if cfg.Buckets.Concurrency == 0 {
		cfg.Buckets.Concurrency = 8
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "leima"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseDurations(cfg *Config) error {
	unitTimeout, err := time.ParseDuration(cfg.Scan.UnitTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse unit_timeout %q: %w", cfg.Scan.UnitTimeoutStr, err)
	}
	cfg.Scan.UnitTimeout = unitTimeout

	pageTimeout, err := time.ParseDuration(cfg.Scan.PageTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse page_timeout %q: %w", cfg.Scan.PageTimeoutStr, err)
	}
	cfg.Scan.PageTimeout = pageTimeout

	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.Scan.MaxRegionConcurrency < 1 {
		return fmt.Errorf("scan: max_region_concurrency must be at least 1 (got %d)", c.Scan.MaxRegionConcurrency)
	}
	if c.Scan.PageSize < 1 {
		return fmt.Errorf("scan: page_size must be at least 1 (got %d)", c.Scan.PageSize)
	}
	if c.Scan.MaxPages < 1 {
		return fmt.Errorf("scan: max_pages must be at least 1 (got %d)", c.Scan.MaxPages)
	}
	if c.Scan.UnitTimeout <= 0 {
		return fmt.Errorf("scan: unit_timeout must be positive (got %v)", c.Scan.UnitTimeout)
	}
	if c.Scan.PageTimeout <= 0 {
		return fmt.Errorf("scan: page_timeout must be positive (got %v)", c.Scan.PageTimeout)
	}
	if c.Buckets.Concurrency < 1 {
		return fmt.Errorf("buckets: concurrency must be at least 1 (got %d)", c.Buckets.Concurrency)
	}
	if c.Export.Bucket != "" && c.Export.Region == "" {
		return fmt.Errorf("export: region required when bucket is set")
	}
	return nil
}
