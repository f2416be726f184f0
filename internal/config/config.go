// Package config handles configuration loading for the OpeNSE risk engine.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	Provider  ProviderConfig  `mapstructure:"provider"  yaml:"provider"`
	Risk      RiskConfig      `mapstructure:"risk"      yaml:"risk"`
	Optimizer OptimizerConfig `mapstructure:"optimizer" yaml:"optimizer"`
	Portfolio PortfolioConfig `mapstructure:"portfolio" yaml:"portfolio"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// DatabaseConfig selects the position store backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"    yaml:"dsn"`
}

// ProviderConfig holds market-data provider settings.
type ProviderConfig struct {
	Name              string        `mapstructure:"name"               yaml:"name"` // "yfinance" or "static"
	Timeout           time.Duration `mapstructure:"timeout"            yaml:"timeout"`
	ConcurrentFetches int           `mapstructure:"concurrent_fetches" yaml:"concurrent_fetches"`
	CacheTTL          int           `mapstructure:"cache_ttl"          yaml:"cache_ttl"` // seconds
	RequestsPerSec    float64       `mapstructure:"requests_per_sec"   yaml:"requests_per_sec"`
	Benchmark         string        `mapstructure:"benchmark"          yaml:"benchmark"`
	Screener          bool          `mapstructure:"screener"           yaml:"screener"`
}

// RiskConfig holds risk engine settings.
type RiskConfig struct {
	RiskFreeRate        float64 `mapstructure:"risk_free_rate"        yaml:"risk_free_rate"` // annual
	LookbackDays        int     `mapstructure:"lookback_days"         yaml:"lookback_days"`  // trading days
	MinBetaObservations int     `mapstructure:"min_beta_observations" yaml:"min_beta_observations"`
}

// OptimizerConfig holds mean-variance optimizer settings.
type OptimizerConfig struct {
	MaxWeight          float64 `mapstructure:"max_weight"          yaml:"max_weight"`
	RebalanceThreshold float64 `mapstructure:"rebalance_threshold" yaml:"rebalance_threshold"`
	MaxIterations      int     `mapstructure:"max_iterations"      yaml:"max_iterations"`
	Restarts           int     `mapstructure:"restarts"            yaml:"restarts"`
}

// PortfolioConfig holds defaults for new portfolios.
type PortfolioConfig struct {
	DefaultInitialCash float64 `mapstructure:"default_initial_cash" yaml:"default_initial_cash"`
	DefaultRiskProfile string  `mapstructure:"default_risk_profile" yaml:"default_risk_profile"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host        string   `mapstructure:"host"         yaml:"host"`
	Port        int      `mapstructure:"port"         yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.openseai/config.yaml (home directory)
//  3. /etc/openseai/config.yaml (system)
//
// Environment variables override config file values.
// Format: OPENSEAI_<SECTION>_<KEY>, e.g., OPENSEAI_DATABASE_DSN
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".openseai"))
	v.AddConfigPath("/etc/openseai")

	v.SetEnvPrefix("OPENSEAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional: defaults + env vars are enough.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("OPENSEAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return decode(v)
}

// Defaults returns the built-in configuration, ignoring config files and
// the environment.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", filepath.Join(homeDir(), ".openseai", "portfolio.db"))

	v.SetDefault("provider.name", "yfinance")
	v.SetDefault("provider.timeout", 10*time.Second)
	v.SetDefault("provider.concurrent_fetches", 5)
	v.SetDefault("provider.cache_ttl", 300) // 5 minutes
	v.SetDefault("provider.requests_per_sec", 5.0)
	v.SetDefault("provider.benchmark", "^NSEI")
	v.SetDefault("provider.screener", true)

	v.SetDefault("risk.risk_free_rate", 0.07) // Indian 10y G-sec
	v.SetDefault("risk.lookback_days", 252)
	v.SetDefault("risk.min_beta_observations", 30)

	v.SetDefault("optimizer.max_weight", 0.4)
	v.SetDefault("optimizer.rebalance_threshold", 0.05)
	v.SetDefault("optimizer.max_iterations", 2000)
	v.SetDefault("optimizer.restarts", 2)

	v.SetDefault("portfolio.default_initial_cash", 100000) // ₹1 lakh
	v.SetDefault("portfolio.default_risk_profile", "Moderate")

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv explicitly reads credentials from the environment. The DSN
// may carry a database password and is never expected in a committed file.
func overrideFromEnv(cfg *Config) {
	if dsn := os.Getenv("OPENSEAI_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Provider.Name {
	case "yfinance", "static":
	default:
		return fmt.Errorf("config: unsupported provider %q", c.Provider.Name)
	}
	if c.Provider.ConcurrentFetches < 1 {
		return fmt.Errorf("config: provider.concurrent_fetches must be >= 1")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("config: provider.timeout must be positive")
	}
	if c.Risk.LookbackDays < 2 {
		return fmt.Errorf("config: risk.lookback_days must be >= 2")
	}
	if c.Optimizer.MaxWeight <= 0 || c.Optimizer.MaxWeight > 1 {
		return fmt.Errorf("config: optimizer.max_weight must be in (0, 1]")
	}
	if c.Optimizer.RebalanceThreshold < 0 {
		return fmt.Errorf("config: optimizer.rebalance_threshold must be >= 0")
	}
	if c.Portfolio.DefaultInitialCash < 0 {
		return fmt.Errorf("config: portfolio.default_initial_cash must be >= 0")
	}
	return nil
}

// RedactedDSN returns the DSN with any password masked, for logging.
func (d DatabaseConfig) RedactedDSN() string {
	u, err := url.Parse(d.DSN)
	if err != nil || u.Scheme == "" {
		return d.DSN
	}
	return u.Redacted()
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
