package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"ENV"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string `mapstructure:"DEFAULT_TENANT"`

	// Exchange endpoint settings.
	ExchangeBaseURL        string `mapstructure:"EXCHANGE_BASE_URL"`
	ExchangeTimeoutSeconds int    `mapstructure:"EXCHANGE_TIMEOUT_SECONDS"`
	ExchangeLicense        string `mapstructure:"EXCHANGE_LICENSE"`

	// Poll scheduler settings.
	PollEnabled             bool `mapstructure:"POLL_ENABLED"`
	PollIntervalSeconds     int  `mapstructure:"POLL_INTERVAL_SECONDS"`
	PollPageSize            int  `mapstructure:"POLL_PAGE_SIZE"`
	PollAbandonAfterMinutes int  `mapstructure:"POLL_ABANDON_AFTER_MINUTES"`

	AdminJWTSecret string `mapstructure:"ADMIN_JWT_SECRET"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("EXCHANGE_TIMEOUT_SECONDS", 60)
	v.SetDefault("POLL_ENABLED", true)
	v.SetDefault("POLL_INTERVAL_SECONDS", 300)
	v.SetDefault("POLL_PAGE_SIZE", 50)
	v.SetDefault("POLL_ABANDON_AFTER_MINUTES", 30)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("EXCHANGE_BASE_URL")
	v.BindEnv("EXCHANGE_TIMEOUT_SECONDS")
	v.BindEnv("EXCHANGE_LICENSE")
	v.BindEnv("POLL_ENABLED")
	v.BindEnv("POLL_INTERVAL_SECONDS")
	v.BindEnv("POLL_PAGE_SIZE")
	v.BindEnv("POLL_ABANDON_AFTER_MINUTES")
	v.BindEnv("ADMIN_JWT_SECRET")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// ExchangeTimeout returns the gateway call timeout as a duration.
func (c *Config) ExchangeTimeout() time.Duration {
	return time.Duration(c.ExchangeTimeoutSeconds) * time.Second
}

// PollInterval returns the scheduled poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollAbandonAfter returns the watchdog interval after which an
// in-progress poll run is considered abandoned.
func (c *Config) PollAbandonAfter() time.Duration {
	return time.Duration(c.PollAbandonAfterMinutes) * time.Minute
}

// Validate checks that the configuration is safe to run. The exchange
// endpoint must be configured, the poll page size must stay within the
// bounds the exchange accepts, and non-development modes must carry a
// signing secret for the admin API.
func (c *Config) Validate() error {
	if c.ExchangeBaseURL == "" {
		return fmt.Errorf("EXCHANGE_BASE_URL is required")
	}
	if !strings.HasPrefix(c.ExchangeBaseURL, "http://") && !strings.HasPrefix(c.ExchangeBaseURL, "https://") {
		return fmt.Errorf("EXCHANGE_BASE_URL must be an http(s) URL, got %q", c.ExchangeBaseURL)
	}
	if c.PollPageSize < 1 || c.PollPageSize > 100 {
		return fmt.Errorf("POLL_PAGE_SIZE must be between 1 and 100, got %d", c.PollPageSize)
	}
	if c.PollIntervalSeconds < 10 {
		return fmt.Errorf("POLL_INTERVAL_SECONDS must be at least 10, got %d", c.PollIntervalSeconds)
	}
	if !c.IsDev() && c.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required outside development (current ENV=%q)", c.Env)
	}
	return nil
}
