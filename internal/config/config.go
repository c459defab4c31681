// Package config loads hedge-engine configuration from an optional YAML file
// overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: server.port → HEDGE_SERVER_PORT.
const EnvPrefix = "HEDGE"

// Config holds all configuration for the hedge engine and its CLI.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Client  ClientConfig  `mapstructure:"client"`
}

// ServerConfig defines HTTP server settings.
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig defines logger settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug | info | warn | error
	Format     string `mapstructure:"format"`      // json | console
	OutputFile string `mapstructure:"output_file"` // empty → stderr
}

// CacheConfig controls result memoization.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"` // in-memory backend only
}

// RedisConfig selects the shared cache backend. An empty URL selects the
// in-memory backend.
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// LimitsConfig caps solved hedges. Zero disables a limit.
type LimitsConfig struct {
	MaxContracts     float64 `mapstructure:"max_contracts"`
	MaxNotionalRatio float64 `mapstructure:"max_notional_ratio"`
}

// ClientConfig configures hedgectl's connection to the calculation service.
type ClientConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BreakerFailures   uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_file", "")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_entries", 10000)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.key_prefix", "hedge-engine")

	v.SetDefault("limits.max_contracts", 0.0)
	v.SetDefault("limits.max_notional_ratio", 0.0)

	v.SetDefault("client.base_url", "http://127.0.0.1:8000")
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.requests_per_second", 10.0)
	v.SetDefault("client.burst", 5)
	v.SetDefault("client.breaker_failures", 3)
	v.SetDefault("client.breaker_cooldown", 30*time.Second)
}

// Load reads configuration. An empty path uses defaults and environment
// variables only; a non-empty path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Honor the plain variables the deployment already sets.
	_ = v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("redis.url", EnvPrefix+"_REDIS_URL", "REDIS_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must not be negative"))
	}
	if c.Limits.MaxContracts < 0 {
		errs = append(errs, errors.New("limits.max_contracts must not be negative"))
	}
	if c.Limits.MaxNotionalRatio < 0 {
		errs = append(errs, errors.New("limits.max_notional_ratio must not be negative"))
	}
	if c.Client.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("client.requests_per_second must be positive"))
	}
	if c.Client.Burst < 1 {
		errs = append(errs, errors.New("client.burst must be at least 1"))
	}

	return errors.Join(errs...)
}
