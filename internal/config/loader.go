package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dpe-analyse/dpe-client/pkg/cache"
	"github.com/dpe-analyse/dpe-client/pkg/client"
)

// EnvPrefix prefixes every environment override, e.g. DPE_API_USER_AGENT.
const EnvPrefix = "DPE"

// EnvFileVar names the variable pointing at an alternative .env file.
const EnvFileVar = "DPE_ENV_FILE"

// Load reads the configuration. Sources, lowest precedence first: defaults,
// the YAML file (path, or dpe.yaml in . or ./configs when path is empty),
// a .env file, then DPE_* environment variables.
func Load(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("dpe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// loadEnvFile loads DPE_ENV_FILE, or ./.env when present. Variables already
// set in the environment win.
func loadEnvFile() error {
	path := os.Getenv(EnvFileVar)
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if explicit {
			return fmt.Errorf("env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", client.DefaultBaseURL)
	v.SetDefault("api.user_agent", "dpe-client/0.1.0")
	v.SetDefault("api.page_size", 1000)
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("fetch.field", cache.FieldZone)
	v.SetDefault("fetch.value", "H1a")
	v.SetDefault("fetch.progress_every", 500000)

	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.policy", "legacy")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("metrics.address", "")

	v.SetDefault("model.data_root", ".")
	v.SetDefault("model.departments", []string{"02", "13", "26", "76", "92"})
	v.SetDefault("model.pattern", "")
	v.SetDefault("model.test_fraction", 0.2)
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.ridge_alpha", 1.0)
}

// normalize trims list entries that came from comma-separated env values.
func normalize(cfg *Config) {
	deps := cfg.Model.Departments[:0]
	for _, d := range cfg.Model.Departments {
		if d = strings.TrimSpace(d); d != "" {
			deps = append(deps, d)
		}
	}
	cfg.Model.Departments = deps
	cfg.Cache.Policy = strings.ToLower(strings.TrimSpace(cfg.Cache.Policy))
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	var errs []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("api.base_url %q is not an absolute URL", c.API.BaseURL))
	}
	if strings.TrimSpace(c.API.UserAgent) == "" {
		errs = append(errs, fmt.Errorf("api.user_agent is required"))
	}
	if c.API.PageSize < 1 || c.API.PageSize > client.MaxPageSize {
		errs = append(errs, fmt.Errorf("api.page_size must be between 1 and %d (got %d)", client.MaxPageSize, c.API.PageSize))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive (got %s)", c.API.Timeout))
	}
	if err := c.CacheKey().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("fetch: %w", err))
	}
	if c.Fetch.ProgressEvery < 0 {
		errs = append(errs, fmt.Errorf("fetch.progress_every must not be negative"))
	}
	if c.CacheDir() == "" {
		errs = append(errs, fmt.Errorf("cache.dir or model.data_root is required"))
	}
	if _, err := c.CachePolicy(); err != nil {
		errs = append(errs, fmt.Errorf("cache.policy: %w", err))
	}
	if c.Model.TestFraction <= 0 || c.Model.TestFraction >= 1 {
		errs = append(errs, fmt.Errorf("model.test_fraction must be in (0, 1) (got %g)", c.Model.TestFraction))
	}
	if c.Model.RidgeAlpha < 0 {
		errs = append(errs, fmt.Errorf("model.ridge_alpha must not be negative"))
	}

	return errors.Join(errs...)
}
