// Package config provides configuration management for the TAO wallet dashboard.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Wallet    WalletConfig
	Taostats  TaostatsConfig
	Ingest    IngestConfig
	Analytics AnalyticsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// RateLimitConfig holds per-client API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// WalletConfig identifies the tracked coldkey
type WalletConfig struct {
	Address string
}

// TaostatsConfig holds upstream API configuration
type TaostatsConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	QuotaPerWindow    int // shared across processes through Redis
	QuotaReserved     int // part of the quota kept for wallet calls
	QuotaWindow       time.Duration
}

// IngestConfig holds scheduled ingestion configuration
type IngestConfig struct {
	Concurrency    int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ScheduleHour   int // UTC hour of the daily run
}

// AnalyticsConfig holds analytics thresholds
type AnalyticsConfig struct {
	FlowAlphaPct      float64
	FlowValuePct      float64
	FlowSpikeInfo     float64
	FlowSpikeWarn     float64
	FlowSpikeCritical float64
	DefaultWindowDays int
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "tao_dashboard"),
				User:           getEnv("POSTGRES_USER", "tao"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "tao_dashboard"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 10),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Wallet: WalletConfig{
			Address: getEnv("WALLET_ADDRESS", ""),
		},
		Taostats: TaostatsConfig{
			BaseURL:           getEnv("TAOSTATS_BASE_URL", "https://api.taostats.io"),
			APIKey:            getEnv("TAOSTATS_API_KEY", ""),
			Timeout:           getEnvAsDuration("TAOSTATS_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("TAOSTATS_RPS", 2),
			QuotaPerWindow:    getEnvAsInt("TAOSTATS_QUOTA", 60),
			QuotaReserved:     getEnvAsInt("TAOSTATS_QUOTA_RESERVED", 20),
			QuotaWindow:       getEnvAsDuration("TAOSTATS_QUOTA_WINDOW", time.Minute),
		},
		Ingest: IngestConfig{
			Concurrency:    getEnvAsInt("INGEST_CONCURRENCY", 4),
			MaxAttempts:    getEnvAsInt("INGEST_MAX_ATTEMPTS", 4),
			InitialBackoff: getEnvAsDuration("INGEST_INITIAL_BACKOFF", 500*time.Millisecond),
			MaxBackoff:     getEnvAsDuration("INGEST_MAX_BACKOFF", 10*time.Second),
			ScheduleHour:   getEnvAsInt("INGEST_SCHEDULE_HOUR", 0),
		},
		Analytics: AnalyticsConfig{
			FlowAlphaPct:      getEnvAsFloat("FLOW_ALPHA_PCT", 0.05),
			FlowValuePct:      getEnvAsFloat("FLOW_VALUE_PCT", 0.10),
			FlowSpikeInfo:     getEnvAsFloat("FLOW_SPIKE_ABS_INFO", 2e12),
			FlowSpikeWarn:     getEnvAsFloat("FLOW_SPIKE_ABS_WARN", 5e12),
			FlowSpikeCritical: getEnvAsFloat("FLOW_SPIKE_ABS_CRITICAL", 1e13),
			DefaultWindowDays: getEnvAsInt("ANALYTICS_DEFAULT_DAYS", 30),
		},
	}

	return config, nil
}

// Validate checks values that would make analytics or ingestion misbehave
func (c *Config) Validate() error {
	a := c.Analytics
	if a.FlowAlphaPct <= 0 || a.FlowValuePct <= 0 {
		return fmt.Errorf("flow thresholds must be positive")
	}
	if a.FlowSpikeInfo <= 0 || a.FlowSpikeWarn < a.FlowSpikeInfo || a.FlowSpikeCritical < a.FlowSpikeWarn {
		return fmt.Errorf("flow spike thresholds must be positive and ascending: %g/%g/%g",
			a.FlowSpikeInfo, a.FlowSpikeWarn, a.FlowSpikeCritical)
	}
	if a.DefaultWindowDays < 1 || a.DefaultWindowDays > 365 {
		return fmt.Errorf("default window days must be between 1 and 365, got %d", a.DefaultWindowDays)
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest concurrency must be at least 1")
	}
	if c.Ingest.ScheduleHour < 0 || c.Ingest.ScheduleHour > 23 {
		return fmt.Errorf("ingest schedule hour must be 0-23, got %d", c.Ingest.ScheduleHour)
	}
	if c.Taostats.QuotaReserved > c.Taostats.QuotaPerWindow {
		return fmt.Errorf("taostats reserved quota %d exceeds quota %d", c.Taostats.QuotaReserved, c.Taostats.QuotaPerWindow)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
