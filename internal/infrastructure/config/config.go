package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Widget    WidgetConfig
	Bridge    BridgeConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port      string `envconfig:"PORT" default:"8000"`
	Host      string `envconfig:"HOST" default:"0.0.0.0"`
	PublicURL string `envconfig:"PUBLIC_URL" default:"http://localhost:8000"`
	DemoDir   string `envconfig:"DEMO_DIR" default:"demo"`
}

// StoreConfig holds experiment store configuration. An empty DSN keeps
// everything in memory.
type StoreConfig struct {
	DSN         string `envconfig:"STORE_DSN" default:""`
	WidgetsFile string `envconfig:"WIDGETS_FILE" default:""`
}

// WidgetConfig holds embed settings.
type WidgetConfig struct {
	DefaultToken   string   `envconfig:"WIDGET_DEFAULT_TOKEN" default:"demo"`
	AllowedOrigins []string `envconfig:"WIDGET_ALLOWED_ORIGINS" default:"*"`
}

// BridgeConfig holds frame bridge configuration.
type BridgeConfig struct {
	Enabled         bool          `envconfig:"BRIDGE_ENABLED" default:"true"`
	MaxMessageBytes int64         `envconfig:"BRIDGE_MAX_MESSAGE_BYTES" default:"65536"`
	PingInterval    time.Duration `envconfig:"BRIDGE_PING_INTERVAL" default:"30s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "8000",
			Host:      "0.0.0.0",
			PublicURL: "http://localhost:8000",
			DemoDir:   "demo",
		},
		Widget: WidgetConfig{
			DefaultToken:   "demo",
			AllowedOrigins: []string{"*"},
		},
		Bridge: BridgeConfig{
			Enabled:         true,
			MaxMessageBytes: 65536,
			PingInterval:    30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
