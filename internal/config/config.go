// Package config loads tramites settings from an optional YAML file and
// TRAMITES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TRAMITES_API_PAGE_SIZE.
const EnvPrefix = "TRAMITES"

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "tramites.yaml"

type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Data    DataConfig    `mapstructure:"data"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type APIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PageSize          int           `mapstructure:"page_size"`
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	MaxRecords        int           `mapstructure:"max_records"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
	Retry             RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
}

type DataConfig struct {
	Dir      string `mapstructure:"dir"`
	Schema   string `mapstructure:"schema"`
	Resource string `mapstructure:"resource"`
	// Composite names fields treated as composite on top of the schema.
	Composite []string `mapstructure:"composite"`
	// Structural reports added/removed composite elements as changes.
	Structural bool `mapstructure:"structural"`
}

type LedgerConfig struct {
	// Path of the SQLite ledger; relative paths resolve against Data.Dir.
	// "-" disables the ledger.
	Path string `mapstructure:"path"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Subject       string        `mapstructure:"subject"`
	MaxReconnect  int           `mapstructure:"max_reconnect"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://www.gob.bo/ws/api/portal")
	v.SetDefault("api.page_size", 30)
	v.SetDefault("api.max_concurrent", 10)
	v.SetDefault("api.max_records", 0)
	v.SetDefault("api.requests_per_second", 0)
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.user_agent", "Mozilla/5.0")
	v.SetDefault("api.retry.max_retries", 5)
	v.SetDefault("api.retry.base_delay", 500*time.Millisecond)

	v.SetDefault("data.dir", ".")
	v.SetDefault("data.schema", "datapackage.json")
	v.SetDefault("data.resource", "")
	v.SetDefault("data.composite", []string{})
	v.SetDefault("data.structural", false)

	v.SetDefault("ledger.path", "tramites.db")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "tramites.changes")
	v.SetDefault("nats.max_reconnect", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("logging.level", "info")
}

// Default returns the configuration with no file and no environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads the configuration. An empty path looks for DefaultFile in the
// working directory and tolerates its absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, filepath.Ext(DefaultFile)))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the harvester cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("api.page_size must be positive, got %d", c.API.PageSize))
	}
	if c.API.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("api.max_concurrent must be positive, got %d", c.API.MaxConcurrent))
	}
	if c.API.MaxRecords < 0 {
		errs = append(errs, fmt.Errorf("api.max_records must not be negative, got %d", c.API.MaxRecords))
	}
	if c.API.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("api.retry.max_retries must not be negative, got %d", c.API.Retry.MaxRetries))
	}
	if c.Data.Dir == "" {
		errs = append(errs, errors.New("data.dir is required"))
	}
	if errs != nil {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// SchemaPath resolves Data.Schema against Data.Dir.
func (c *Config) SchemaPath() string {
	return c.resolve(c.Data.Schema)
}

// LedgerPath resolves Ledger.Path against Data.Dir, or returns "" when the
// ledger is disabled.
func (c *Config) LedgerPath() string {
	if c.Ledger.Path == "" || c.Ledger.Path == "-" {
		return ""
	}
	return c.resolve(c.Ledger.Path)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Data.Dir, p)
}
