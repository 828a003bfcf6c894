// Package config provides configuration loading for the dispatch service.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the dispatch service
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration. When disabled, endpoint
// registrations live in memory only.
type DatabaseConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns a connection string usable by both the pool and migrations.
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration for delivery state. When disabled,
// delivery records live in memory only.
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	Enabled    bool          `mapstructure:"enabled"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// NATSConfig holds NATS message broker configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// AuthConfig holds operator API authentication settings. An empty secret
// disables bearer auth.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// StreamConfig holds routing and aggregation settings
type StreamConfig struct {
	MaxWindowBuffer    int     `mapstructure:"max_window_buffer"`
	SeverityWeight     float64 `mapstructure:"severity_weight"`
	TypeMatchWeight    float64 `mapstructure:"type_match_weight"`
	TypeMismatchWeight float64 `mapstructure:"type_mismatch_weight"`
	BaseWeight         float64 `mapstructure:"base_weight"`
	ThresholdCritical  float64 `mapstructure:"threshold_critical"`
	ThresholdHigh      float64 `mapstructure:"threshold_high"`
	ThresholdNormal    float64 `mapstructure:"threshold_normal"`
	ThresholdLow       float64 `mapstructure:"threshold_low"`

	ThrottleDefaultRate        float64 `mapstructure:"throttle_default_rate"`
	ThrottleHeavyLatencyMs     float64 `mapstructure:"throttle_heavy_latency_ms"`
	ThrottleModerateLatencyMs  float64 `mapstructure:"throttle_moderate_latency_ms"`
	ThrottleLightThroughputEps float64 `mapstructure:"throttle_light_throughput_eps"`
}

// WebhookConfig holds delivery engine settings
type WebhookConfig struct {
	DrainInterval     time.Duration `mapstructure:"drain_interval"`
	RetryScanInterval time.Duration `mapstructure:"retry_scan_interval"`
	DrainBatchSize    int           `mapstructure:"drain_batch_size"`
	QueueCapacity     int           `mapstructure:"queue_capacity"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "telhawk")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "telhawk_dispatch")
	v.SetDefault("database.postgres.sslmode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("nats.url", "nats://nats:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("stream.max_window_buffer", 10000)
	v.SetDefault("stream.severity_weight", 0.4)
	v.SetDefault("stream.type_match_weight", 0.3)
	v.SetDefault("stream.type_mismatch_weight", 0.1)
	v.SetDefault("stream.base_weight", 0.3)
	v.SetDefault("stream.threshold_critical", 0.9)
	v.SetDefault("stream.threshold_high", 0.7)
	v.SetDefault("stream.threshold_normal", 0.5)
	v.SetDefault("stream.threshold_low", 0.3)
	v.SetDefault("stream.throttle_default_rate", 1000)
	v.SetDefault("stream.throttle_heavy_latency_ms", 1000)
	v.SetDefault("stream.throttle_moderate_latency_ms", 500)
	v.SetDefault("stream.throttle_light_throughput_eps", 1000)

	v.SetDefault("webhook.drain_interval", "1s")
	v.SetDefault("webhook.retry_scan_interval", "1s")
	v.SetDefault("webhook.drain_batch_size", 50)
	v.SetDefault("webhook.queue_capacity", 10000)
	v.SetDefault("webhook.http_timeout", "30s")
	v.SetDefault("webhook.user_agent", "TelHawk-Dispatch/1.0")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/dispatch")
	}

	// Environment variables override (DISPATCH_SERVER_PORT, etc.)
	v.SetEnvPrefix("DISPATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config - ignore file not found for defaults
	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Otherwise use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
