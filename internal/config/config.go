// Package config loads the settings shared by the dpe-* commands.
package config

import (
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dpe-analyse/dpe-client/pkg/cache"
	"github.com/dpe-analyse/dpe-client/pkg/client"
	"github.com/dpe-analyse/dpe-client/pkg/logging"
	"github.com/dpe-analyse/dpe-client/pkg/model"
	"github.com/dpe-analyse/dpe-client/pkg/pagination"
)

// Config is the main application configuration struct.
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Model   ModelConfig   `mapstructure:"model"`
}

type APIConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	UserAgent string        `mapstructure:"user_agent"`
	PageSize  int           `mapstructure:"page_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// FetchConfig selects the filter a dpe-fetch run caches.
type FetchConfig struct {
	Field         string `mapstructure:"field"`
	Value         string `mapstructure:"value"`
	ProgressEvery int    `mapstructure:"progress_every"`
}

// CacheConfig places the dpe-fetch cache files. Leave Dir unset to write
// where dpe-train reads: model.data_root, plus a per-department
// subdirectory when fetching by department (see Config.CacheDir).
type CacheConfig struct {
	Dir string `mapstructure:"dir"`
	// Policy is "legacy" or "strict"
	Policy string `mapstructure:"policy"`
}

// RedisConfig enables the rate limit gate and cache manifests when Address
// is set.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis server is configured.
func (r RedisConfig) Enabled() bool {
	return r.Address != ""
}

// Options returns the go-redis options.
func (r RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     r.Address,
		Password: r.Password,
		DB:       r.DB,
	}
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig enables the /metrics and /health listener when Address is set.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// ModelConfig locates the department datasets and tunes the analysis.
type ModelConfig struct {
	DataRoot     string   `mapstructure:"data_root"`
	Departments  []string `mapstructure:"departments"`
	Pattern      string   `mapstructure:"pattern"`
	TestFraction float64  `mapstructure:"test_fraction"`
	Seed         int64    `mapstructure:"seed"`
	RidgeAlpha   float64  `mapstructure:"ridge_alpha"`
}

// ClientConfig returns the DPE client configuration. rdb may be nil.
func (c *Config) ClientConfig(rdb *redis.Client) client.Config {
	return client.Config{
		BaseURL:   c.API.BaseURL,
		UserAgent: c.API.UserAgent,
		PageSize:  c.API.PageSize,
		Timeout:   c.API.Timeout,
		Redis:     rdb,
	}
}

// PaginationConfig returns the driver configuration.
func (c *Config) PaginationConfig() pagination.Config {
	return pagination.Config{ProgressEvery: c.Fetch.ProgressEvery}
}

// CacheKey returns the key of the configured filter.
func (c *Config) CacheKey() cache.Key {
	return cache.Key{Field: c.Fetch.Field, Value: c.Fetch.Value}
}

// CacheDir returns the directory dpe-fetch writes to. An explicit cache.dir
// wins. Otherwise department fetches land in model.data_root/<department>,
// where model.FindDataset looks for them, and other filters in
// model.data_root itself.
func (c *Config) CacheDir() string {
	if c.Cache.Dir != "" {
		return c.Cache.Dir
	}
	if c.Model.DataRoot == "" {
		return ""
	}
	if c.Fetch.Field == cache.FieldDepartment {
		return filepath.Join(c.Model.DataRoot, c.Fetch.Value)
	}
	return c.Model.DataRoot
}

// CachePolicy returns the configured write policy.
func (c *Config) CachePolicy() (cache.Policy, error) {
	return cache.ParsePolicy(c.Cache.Policy)
}

// LoggingSetup returns the logging configuration.
func (c *Config) LoggingSetup() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	return cfg
}

// AnalyzerConfig returns the modeling configuration.
func (c *Config) AnalyzerConfig() model.Config {
	return model.Config{
		DataRoot:     c.Model.DataRoot,
		Pattern:      c.Model.Pattern,
		TestFraction: c.Model.TestFraction,
		Seed:         c.Model.Seed,
		RidgeAlpha:   c.Model.RidgeAlpha,
	}
}
