package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/warp/console-buyback/core"
	"github.com/warp/console-buyback/pricing"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Pricing  PricingConfig
	Buyback  BuybackConfig
	HTTP     HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds the SQLite location. ":memory:" keeps nothing on disk.
type DatabaseConfig struct {
	Path string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// PricingConfig holds pricing engine settings
type PricingConfig struct {
	NegativePolicy pricing.NegativePolicy
}

// BuybackConfig holds buyback workflow settings
type BuybackConfig struct {
	SelfShipBonus core.Money

	// Auto-approved applications are committed to inventory every
	// AutoCommitInterval when AutoCommit is on.
	AutoCommit         bool
	AutoCommitInterval time.Duration
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxBodySize      int64
	CORSAllowOrigins []string
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with BUYBACK_ prefix (e.g., BUYBACK_DATABASE_PATH)
// 2. the file at path, or config.toml in the working directory when path is empty
// 3. Built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()

	// Zero is a valid bonus, so this default goes through viper rather than
	// applyDefaults.
	v.SetDefault("buyback.self_ship_bonus", int64(500))
	v.SetDefault("buyback.auto_commit", true)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("BUYBACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	policy, err := pricing.ParseNegativePolicy(v.GetString("pricing.negative_policy"))
	if err != nil {
		return nil, fmt.Errorf("pricing.negative_policy: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Pricing: PricingConfig{
			NegativePolicy: policy,
		},
		Buyback: BuybackConfig{
			SelfShipBonus:      core.Money(v.GetInt64("buyback.self_ship_bonus")),
			AutoCommit:         v.GetBool("buyback.auto_commit"),
			AutoCommitInterval: v.GetDuration("buyback.auto_commit_interval"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "console-buyback"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/buyback.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Buyback.AutoCommitInterval == 0 {
		cfg.Buyback.AutoCommitInterval = 5 * time.Minute
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 10 << 20 // 10MB
	}
	// No CORS default: an empty list allows no cross-origin requests.
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Buyback.SelfShipBonus < 0 {
		return fmt.Errorf("buyback.self_ship_bonus cannot be negative")
	}
	if c.Buyback.AutoCommitInterval < 0 {
		return fmt.Errorf("buyback.auto_commit_interval cannot be negative")
	}
	if c.HTTP.MaxBodySize < 0 {
		return fmt.Errorf("http.max_body_size cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Path == ":memory:" {
			return fmt.Errorf("database.path cannot be :memory: in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (a AppConfig) Addr() string {
	return ":" + a.Port
}

// IsDevelopment reports whether the app runs in development mode.
func (a AppConfig) IsDevelopment() bool {
	return a.Env == "development"
}
