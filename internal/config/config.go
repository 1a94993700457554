package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	WorkDir     string            `mapstructure:"workdir"`
	Cache       CacheConfig       `mapstructure:"cache"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	History     HistoryConfig     `mapstructure:"history"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// CacheConfig contains download cache settings
type CacheConfig struct {
	DirName     string `mapstructure:"dir_name"`
	Timeout     string `mapstructure:"timeout"`
	ChunkSizeKB int    `mapstructure:"chunk_size_kb"`
}

// HTTPConfig contains download client settings
type HTTPConfig struct {
	ResponseHeaderTimeout string `mapstructure:"response_header_timeout"`
	InactivityTimeout     string `mapstructure:"inactivity_timeout"` // 0 disables the read watchdog
	UserAgent             string `mapstructure:"user_agent"`
}

// ProgressConfig contains progress display settings
type ProgressConfig struct {
	UpdateInterval string `mapstructure:"update_interval"`
}

// HistoryConfig contains download history settings
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	MaxAge  string `mapstructure:"max_age"`
}

// MetricsConfig contains metrics export settings
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// MaintenanceConfig contains periodic purge settings
type MaintenanceConfig struct {
	Interval string `mapstructure:"interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Load loads configuration from the specified file path.
// An empty path or a missing file leaves the defaults in place.
// Keys can be overridden with FFDL_ prefixed environment variables (FFDL_CACHE_TIMEOUT).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("FFDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("workdir", ".")
	v.SetDefault("cache.dir_name", "download_cache")
	v.SetDefault("cache.timeout", "4h")
	v.SetDefault("cache.chunk_size_kb", 32)
	v.SetDefault("http.response_header_timeout", "30s")
	v.SetDefault("http.inactivity_timeout", "0s")
	v.SetDefault("http.user_agent", "firefox-downloader")
	v.SetDefault("progress.update_interval", "100ms")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", "")
	v.SetDefault("history.max_age", "720h")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("maintenance.interval", "10m")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("workdir is required")
	}
	if c.Cache.DirName == "" || strings.ContainsAny(c.Cache.DirName, `/\`) {
		return fmt.Errorf("cache.dir_name must be a plain directory name")
	}
	if c.Cache.ChunkSizeKB <= 0 {
		return fmt.Errorf("cache.chunk_size_kb must be positive")
	}

	durations := map[string]string{
		"cache.timeout":                c.Cache.Timeout,
		"http.response_header_timeout": c.HTTP.ResponseHeaderTimeout,
		"http.inactivity_timeout":      c.HTTP.InactivityTimeout,
		"progress.update_interval":     c.Progress.UpdateInterval,
		"history.max_age":              c.History.MaxAge,
		"maintenance.interval":         c.Maintenance.Interval,
	}
	for key, value := range durations {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	if c.GetCacheTimeout() <= 0 {
		return fmt.Errorf("cache.timeout must be positive")
	}

	if c.History.Enabled && c.HistoryPath() != "" {
		rel, err := filepath.Rel(c.CacheDir(), c.HistoryPath())
		if err == nil && !strings.HasPrefix(rel, "..") {
			return fmt.Errorf("history.path must be outside the cache directory")
		}
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// CacheDir returns the cache directory under the working directory
func (c *Config) CacheDir() string {
	return filepath.Join(c.WorkDir, c.Cache.DirName)
}

// HistoryPath returns the history database path, defaulting to <workdir>/history.db
func (c *Config) HistoryPath() string {
	if c.History.Path != "" {
		return c.History.Path
	}
	return filepath.Join(c.WorkDir, "history.db")
}

// GetCacheTimeout returns the cache timeout as time.Duration
func (c *Config) GetCacheTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Cache.Timeout)
	return d
}

// GetChunkSize returns the transfer chunk size in bytes
func (c *CacheConfig) GetChunkSize() int {
	if c.ChunkSizeKB <= 0 {
		return 32 * 1024
	}
	return c.ChunkSizeKB * 1024
}

// GetResponseHeaderTimeout returns the response header timeout as time.Duration
func (c *HTTPConfig) GetResponseHeaderTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ResponseHeaderTimeout)
	return d
}

// GetInactivityTimeout returns the body read inactivity timeout; zero disables it
func (c *HTTPConfig) GetInactivityTimeout() time.Duration {
	d, _ := time.ParseDuration(c.InactivityTimeout)
	return d
}

// GetUpdateInterval returns the progress redraw interval as time.Duration
func (c *ProgressConfig) GetUpdateInterval() time.Duration {
	d, _ := time.ParseDuration(c.UpdateInterval)
	if d == 0 {
		return 100 * time.Millisecond
	}
	return d
}

// GetMaxAge returns the history retention as time.Duration
func (c *HistoryConfig) GetMaxAge() time.Duration {
	d, _ := time.ParseDuration(c.MaxAge)
	return d
}

// GetInterval returns the maintenance interval as time.Duration
func (c *MaintenanceConfig) GetInterval() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	if d == 0 {
		return 10 * time.Minute
	}
	return d
}
