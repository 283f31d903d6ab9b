// Package config loads and validates the guardian service configuration.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the guardian service
type Config struct {
	Spool struct {
		// Dir is the event spool directory watched for records
		Dir string `mapstructure:"dir"`
		// Backend selects the adapter trigger: "watch" or "poll"
		Backend string `mapstructure:"backend"`
		// SeenCacheSize bounds the recently-seen event ID cache
		SeenCacheSize int `mapstructure:"seen_cache_size"`
		// NotifyRateLimit caps notification-triggered scans per second
		NotifyRateLimit int `mapstructure:"notify_rate_limit"`
	} `mapstructure:"spool"`

	Store struct {
		MaxEvents int `mapstructure:"max_events"`
	} `mapstructure:"store"`

	Hub struct {
		DebounceWindow time.Duration `mapstructure:"debounce_window"`
		ReconcileEvery time.Duration `mapstructure:"reconcile_every"`
	} `mapstructure:"hub"`

	Rate struct {
		MinInterval       time.Duration `mapstructure:"min_interval"`
		MaxInterval       time.Duration `mapstructure:"max_interval"`
		ThrottledInterval time.Duration `mapstructure:"throttled_interval"`
		LowThreshold      float64       `mapstructure:"low_threshold"`
		HighThreshold     float64       `mapstructure:"high_threshold"`
		BurstThreshold    int           `mapstructure:"burst_threshold"`
		BurstWindow       time.Duration `mapstructure:"burst_window"`
		Cooldown          time.Duration `mapstructure:"cooldown"`
		ActivityWindow    time.Duration `mapstructure:"activity_window"`
	} `mapstructure:"rate"`

	API struct {
		Enabled bool   `mapstructure:"enabled"`
		Host    string `mapstructure:"host"`
		Port    int    `mapstructure:"port"`
	} `mapstructure:"api"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "json" or "console"
	} `mapstructure:"logging"`
}

// LoadConfig loads configuration from config.yaml, environment variables
// (GUARDIAN_ prefix) and built-in defaults, in that order of precedence.
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("GUARDIAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, will use defaults and env vars
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	config.Spool.Dir = filepath.Clean(config.Spool.Dir)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("spool.dir", "./data/spool")
	viper.SetDefault("spool.backend", "watch")
	viper.SetDefault("spool.seen_cache_size", 4096)
	viper.SetDefault("spool.notify_rate_limit", 10)

	viper.SetDefault("store.max_events", 1000)

	viper.SetDefault("hub.debounce_window", 150*time.Millisecond)
	viper.SetDefault("hub.reconcile_every", 750*time.Millisecond)

	viper.SetDefault("rate.min_interval", 1*time.Second)
	viper.SetDefault("rate.max_interval", 20*time.Second)
	viper.SetDefault("rate.throttled_interval", 30*time.Second)
	viper.SetDefault("rate.low_threshold", 5.0)
	viper.SetDefault("rate.high_threshold", 50.0)
	viper.SetDefault("rate.burst_threshold", 200)
	viper.SetDefault("rate.burst_window", 3*time.Second)
	viper.SetDefault("rate.cooldown", 60*time.Second)
	viper.SetDefault("rate.activity_window", 60*time.Second)

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.host", "127.0.0.1")
	viper.SetDefault("api.port", 8787)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// Validate checks the configuration for values the service cannot run with
func (c *Config) Validate() error {
	if c.Spool.Dir == "" {
		return fmt.Errorf("spool.dir must not be empty")
	}
	if c.Spool.Backend != "watch" && c.Spool.Backend != "poll" {
		return fmt.Errorf("spool.backend must be \"watch\" or \"poll\", got %q", c.Spool.Backend)
	}
	if c.Store.MaxEvents <= 0 {
		return fmt.Errorf("store.max_events must be positive, got %d", c.Store.MaxEvents)
	}
	if c.Hub.DebounceWindow <= 0 {
		return fmt.Errorf("hub.debounce_window must be positive")
	}
	if c.Hub.ReconcileEvery <= 0 {
		return fmt.Errorf("hub.reconcile_every must be positive")
	}
	if c.Rate.MinInterval <= 0 || c.Rate.MaxInterval < c.Rate.MinInterval {
		return fmt.Errorf("rate intervals invalid: min=%s max=%s", c.Rate.MinInterval, c.Rate.MaxInterval)
	}
	if c.Rate.HighThreshold <= c.Rate.LowThreshold {
		return fmt.Errorf("rate.high_threshold must exceed rate.low_threshold")
	}
	if c.Rate.BurstThreshold <= 0 {
		return fmt.Errorf("rate.burst_threshold must be positive")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", c.API.Port)
	}
	return nil
}
