package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"poolbet/database"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL  string `mapstructure:"database_url"`
	DatabaseName string `mapstructure:"database_name"`

	// NATS configuration
	NATSServers string `mapstructure:"nats_servers"` // comma-separated; empty runs on the in-process bus

	// HTTP API
	HTTPAddr           string   `mapstructure:"http_addr"`
	JWTSecret          string   `mapstructure:"jwt_secret"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`

	// Money
	StartingBalance int64   `mapstructure:"starting_balance"`
	TaxRate         float64 `mapstructure:"tax_rate"`
	LeaveRefundRate float64 `mapstructure:"leave_refund_rate"`

	// Settlement and payouts
	SettlementInterval time.Duration `mapstructure:"settlement_interval"`
	PayoutMaxAttempts  int           `mapstructure:"payout_max_attempts"`

	// Offline queue
	SyncInterval         time.Duration `mapstructure:"sync_interval"`
	SyncMaxAttempts      int           `mapstructure:"sync_max_attempts"`
	SyncInitialBackoff   time.Duration `mapstructure:"sync_initial_backoff"`
	SyncMaxBackoff       time.Duration `mapstructure:"sync_max_backoff"`
	OfflineDBPath        string        `mapstructure:"offline_db_path"`
	ConnectivityInterval time.Duration `mapstructure:"connectivity_interval"`

	// Discord announcements, both optional
	DiscordToken     string `mapstructure:"discord_token"`
	ResultsChannelID string `mapstructure:"results_channel_id"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Environment
	Environment string `mapstructure:"environment"` // "development", "production" or "test"
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// NATSServerList splits NATSServers into individual addresses
func (c *Config) NATSServerList() []string {
	var servers []string
	for _, server := range strings.Split(c.NATSServers, ",") {
		if server = strings.TrimSpace(server); server != "" {
			servers = append(servers, server)
		}
	}
	return servers
}

// DiscordEnabled reports whether settlement announcements should be posted
func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != "" && c.ResultsChannelID != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database_url", "")
	v.SetDefault("database_name", "")
	v.SetDefault("nats_servers", "nats://nats:4222")

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("allowed_origins", []string{})
	v.SetDefault("rate_limit_per_minute", 120)

	v.SetDefault("starting_balance", 1000)
	v.SetDefault("tax_rate", 0.28)
	v.SetDefault("leave_refund_rate", 0.90)

	v.SetDefault("settlement_interval", "10s")
	v.SetDefault("payout_max_attempts", 5)

	v.SetDefault("sync_interval", "30s")
	v.SetDefault("sync_max_attempts", 5)
	v.SetDefault("sync_initial_backoff", "2s")
	v.SetDefault("sync_max_backoff", "5m")
	v.SetDefault("offline_db_path", "poolbet-offline.db")
	v.SetDefault("connectivity_interval", "5s")

	v.SetDefault("discord_token", "")
	v.SetDefault("results_channel_id", "")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("environment", "development")
}

// load reads .env when present, then poolbet.yaml when present, then the environment
func load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("poolbet")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Environment == "test" {
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
		return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("TAX_RATE must be in [0, 1), got %v", c.TaxRate)
	}
	if c.LeaveRefundRate < 0 || c.LeaveRefundRate > 1 {
		return fmt.Errorf("LEAVE_REFUND_RATE must be in [0, 1], got %v", c.LeaveRefundRate)
	}
	if (c.DiscordToken == "") != (c.ResultsChannelID == "") {
		return fmt.Errorf("DISCORD_TOKEN and RESULTS_CHANNEL_ID must be set together")
	}
	return nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	return &Config{
		Environment:          "test",
		HTTPAddr:             ":0",
		JWTSecret:            "test-secret",
		StartingBalance:      1000,
		TaxRate:              0.28,
		LeaveRefundRate:      0.90,
		SettlementInterval:   time.Second,
		PayoutMaxAttempts:    3,
		SyncInterval:         time.Second,
		SyncMaxAttempts:      5,
		SyncInitialBackoff:   10 * time.Millisecond,
		SyncMaxBackoff:       100 * time.Millisecond,
		ConnectivityInterval: time.Second,
		LogLevel:             "debug",
		LogFormat:            "text",
	}
}
