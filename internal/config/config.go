package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Feed    FeedConfig
	Storage StorageConfig
	Sync    SyncConfig
	Network NetworkConfig
	Logging LoggingConfig
}

// ServerConfig holds the local API server configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// BackendConfig holds the remote collaborator configuration
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

// FeedConfig holds the live risk feed configuration
type FeedConfig struct {
	URL            string
	ReconnectDelay time.Duration
	Enabled        bool
}

// StorageConfig holds the local durable storage configuration
type StorageConfig struct {
	Path string
}

// SyncConfig holds sync manager tuning
type SyncConfig struct {
	BatchSize int
}

// NetworkConfig holds connectivity monitoring configuration
type NetworkConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Backend defaults
	v.SetDefault("backend.timeout", 30*time.Second)

	// Feed defaults
	v.SetDefault("feed.reconnectdelay", 5*time.Second)
	v.SetDefault("feed.enabled", true)

	// Storage defaults
	v.SetDefault("storage.path", "matricare.db")

	// Sync defaults
	v.SetDefault("sync.batchsize", 25)

	// Network defaults
	v.SetDefault("network.probeinterval", 15*time.Second)
	v.SetDefault("network.probetimeout", 5*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Backend
	v.BindEnv("backend.baseurl", "BACKEND_BASE_URL")

	// Feed
	v.BindEnv("feed.url", "RISK_FEED_URL")
	v.BindEnv("feed.enabled", "RISK_FEED_ENABLED")

	// Storage
	v.BindEnv("storage.path", "STORAGE_PATH")

	// Sync
	v.BindEnv("sync.batchsize", "SYNC_BATCH_SIZE")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.baseurl is required")
	}

	if c.Feed.Enabled && c.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when the risk feed is enabled")
	}

	if c.Sync.BatchSize < 1 {
		return fmt.Errorf("sync.batchsize must be at least 1")
	}

	return nil
}
