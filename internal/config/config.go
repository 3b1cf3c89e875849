// Package config provides configuration management for the portfolio
// rebalancer. It loads configuration from environment variables and .env files.
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
	Solana    SolanaConfig
	Pyth      PythConfig
	Jupiter   JupiterConfig
	Rebalance RebalanceConfig
	Sweep     SweepConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigin   string
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

// SolanaConfig holds Solana RPC configuration
type SolanaConfig struct {
	RPCURL         string
	RequestTimeout time.Duration
}

// PythConfig holds Pyth price service configuration
type PythConfig struct {
	APIURL         string
	CacheTTL       time.Duration
	RequestTimeout time.Duration
}

// JupiterConfig holds Jupiter quote service configuration
type JupiterConfig struct {
	APIURL          string
	SlippageBps     int
	RequestTimeout  time.Duration
	QuotesPerSecond int
}

// RebalanceConfig holds planner and execution configuration
type RebalanceConfig struct {
	QuoteValidity       time.Duration // Plan expiry window after creation
	PlanLockTTL         time.Duration // Per-wallet plan creation lock lifetime
	ConfirmMaxAttempts  int
	ConfirmInitialDelay time.Duration
}

// SweepConfig holds the periodic deviation sweep configuration
type SweepConfig struct {
	Interval time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
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
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigin:   getEnv("CORS_ALLOWED_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "rebalancer"),
				User:           getEnv("POSTGRES_USER", "rebalancer"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "rebalancer"),
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
		Solana: SolanaConfig{
			RPCURL:         getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
			RequestTimeout: getEnvAsDuration("SOLANA_REQUEST_TIMEOUT", 15*time.Second),
		},
		Pyth: PythConfig{
			APIURL:         getEnv("PYTH_API_URL", "https://hermes.pyth.network/v2"),
			CacheTTL:       getEnvAsDuration("PYTH_CACHE_TTL", 30*time.Second),
			RequestTimeout: getEnvAsDuration("PYTH_REQUEST_TIMEOUT", 10*time.Second),
		},
		Jupiter: JupiterConfig{
			APIURL:          getEnv("JUPITER_API_URL", "https://quote-api.jup.ag/v6"),
			SlippageBps:     getEnvAsInt("JUPITER_SLIPPAGE_BPS", 50),
			RequestTimeout:  getEnvAsDuration("JUPITER_REQUEST_TIMEOUT", 10*time.Second),
			QuotesPerSecond: getEnvAsInt("JUPITER_QUOTES_PER_SECOND", 5),
		},
		Rebalance: RebalanceConfig{
			QuoteValidity:       getEnvAsDuration("REBALANCE_QUOTE_VALIDITY", 2*time.Minute),
			PlanLockTTL:         getEnvAsDuration("REBALANCE_PLAN_LOCK_TTL", 30*time.Second),
			ConfirmMaxAttempts:  getEnvAsInt("REBALANCE_CONFIRM_MAX_ATTEMPTS", 5),
			ConfirmInitialDelay: getEnvAsDuration("REBALANCE_CONFIRM_INITIAL_DELAY", time.Second),
		},
		Sweep: SweepConfig{
			Interval: getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration values that have no sensible fallback
func (c *Config) Validate() error {
	if c.Database.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive")
	}
	if c.Jupiter.QuotesPerSecond <= 0 {
		return fmt.Errorf("JUPITER_QUOTES_PER_SECOND must be positive")
	}
	if c.Sweep.Interval < time.Second {
		return fmt.Errorf("SWEEP_INTERVAL must be at least one second")
	}
	if c.Rebalance.QuoteValidity <= 0 {
		return fmt.Errorf("REBALANCE_QUOTE_VALIDITY must be positive")
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
