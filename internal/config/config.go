package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName              string        `mapstructure:"app_name"`
	Env                  string        `mapstructure:"app_env"`
	LogLevel             string        `mapstructure:"log_level"`
	LogFile              string        `mapstructure:"log_file"`
	LogMaxSizeMB         int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups        int           `mapstructure:"log_max_backups"`
	LogMaxAgeDays        int           `mapstructure:"log_max_age_days"`
	MetricsAddr          string        `mapstructure:"metrics_addr"`
	SourcesFile          string        `mapstructure:"sources_file"`
	PublishersFile       string        `mapstructure:"publishers_file"`
	CrawlIntervalSeconds int64         `mapstructure:"crawl_interval"`
	CrawlInterval        time.Duration `mapstructure:"-"`
	MaxConcurrentSources int           `mapstructure:"max_concurrent_sources"`

	FetchTimeoutSeconds int64         `mapstructure:"fetch_timeout_seconds"`
	FetchRetries        int           `mapstructure:"fetch_retries"`
	FetchTimeout        time.Duration `mapstructure:"-"`

	StorageType string `mapstructure:"storage_type"`
	BBoltPath   string `mapstructure:"bbolt_path"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	StorageMissTTLSeconds         int64         `mapstructure:"storage_miss_ttl_seconds"`
	StorageMissTTL                time.Duration `mapstructure:"-"`
	StorageCleanupIntervalSeconds int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageCleanupInterval        time.Duration `mapstructure:"-"`
}

// LoadFrom reads configuration from the given dotenv file (if present) and
// environment variables. Environment variables win over the file.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()

	v.SetDefault("app_name", "samvad-quote-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 50)
	v.SetDefault("log_max_backups", 5)
	v.SetDefault("log_max_age_days", 14)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("sources_file", "./configs/sources.yaml")
	v.SetDefault("publishers_file", "./configs/publishers.yaml")
	v.SetDefault("crawl_interval", 3600) // seconds
	v.SetDefault("max_concurrent_sources", 2)
	v.SetDefault("fetch_timeout_seconds", 15)
	v.SetDefault("fetch_retries", 2)
	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/quotes.db")
	v.SetDefault("sqlite_path", "./data/quotes.sqlite")
	v.SetDefault("storage_miss_ttl_seconds", 24*60*60)
	v.SetDefault("storage_cleanup_interval_seconds", 12*60*60)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CrawlIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid crawl_interval (must be positive seconds)")
	}
	cfg.CrawlInterval = time.Duration(cfg.CrawlIntervalSeconds) * time.Second

	if cfg.FetchTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid fetch_timeout_seconds (must be positive seconds)")
	}
	cfg.FetchTimeout = time.Duration(cfg.FetchTimeoutSeconds) * time.Second

	if cfg.FetchRetries < 0 {
		return nil, fmt.Errorf("invalid fetch_retries (must not be negative)")
	}
	if cfg.MaxConcurrentSources <= 0 {
		return nil, fmt.Errorf("invalid max_concurrent_sources (must be positive)")
	}

	if cfg.StorageMissTTLSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_miss_ttl_seconds (must be positive seconds)")
	}
	cfg.StorageMissTTL = time.Duration(cfg.StorageMissTTLSeconds) * time.Second

	if cfg.StorageCleanupIntervalSeconds <= 0 {
		return nil, fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupIntervalSeconds) * time.Second

	return &cfg, nil
}

// StoragePath returns the database path for the configured storage type.
func (c *Config) StoragePath() string {
	if strings.EqualFold(strings.TrimSpace(c.StorageType), "sqlite") {
		return c.SQLitePath
	}
	return c.BBoltPath
}
