// Package config provides configuration management for the user profile service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Worker    WorkerConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres       PostgresConfig
	ClickHouse     ClickHouseConfig
	Redis          RedisConfig
	MigrationsPath string

	// ClickHouseMigrationsPath holds plain .sql files applied in name order
	ClickHouseMigrationsPath string
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

// URL returns the connection URL used by the migration runner.
func (c PostgresConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database,
	)
}

// ClickHouseConfig holds ClickHouse configuration.
// Profile views are only recorded when Enabled is set.
type ClickHouseConfig struct {
	Enabled  bool
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

// CacheConfig holds per-resource cache TTLs
type CacheConfig struct {
	Enabled      bool
	ProfileTTL   time.Duration
	SettingsTTL  time.Duration
	InterestsTTL time.Duration
}

// AuthConfig holds token and service key configuration
type AuthConfig struct {
	JWTSecret    string
	JWTAlgorithm string
	ServiceKeys  ServiceKeys
}

// ServiceKeys are the shared secrets trusted service callers present in X-API-Key.
type ServiceKeys struct {
	Activities    string
	Participation string
	Moderation    string
	Payment       string
}

// Counters returns the keys allowed to call the counter endpoints.
func (k ServiceKeys) Counters() []string {
	return nonEmpty(k.Activities, k.Participation, k.Moderation)
}

// Subscriptions returns the keys allowed to change subscription state.
func (k ServiceKeys) Subscriptions() []string {
	return nonEmpty(k.Payment)
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled bool
	RPS     int
	Burst   int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// WorkerConfig holds expiry sweeper configuration
type WorkerConfig struct {
	Interval  time.Duration
	BatchSize int
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
			Port: getEnv("SERVER_PORT", "8008"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "activitydb"),
				User:           getEnv("POSTGRES_USER", "postgres"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "userprofile"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
			MigrationsPath:           getEnv("MIGRATIONS_PATH", "migrations/postgres"),
			ClickHouseMigrationsPath: getEnv("CLICKHOUSE_MIGRATIONS_PATH", "migrations/clickhouse"),
		},
		Cache: CacheConfig{
			Enabled:      getEnvAsBool("CACHE_ENABLED", true),
			ProfileTTL:   getEnvAsDuration("CACHE_TTL_PROFILE", 5*time.Minute),
			SettingsTTL:  getEnvAsDuration("CACHE_TTL_SETTINGS", 30*time.Minute),
			InterestsTTL: getEnvAsDuration("CACHE_TTL_INTERESTS", time.Hour),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			JWTAlgorithm: getEnv("JWT_ALGORITHM", "HS256"),
			ServiceKeys: ServiceKeys{
				Activities:    getEnv("ACTIVITIES_API_KEY", ""),
				Participation: getEnv("PARTICIPATION_API_KEY", ""),
				Moderation:    getEnv("MODERATION_API_KEY", ""),
				Payment:       getEnv("PAYMENT_API_KEY", ""),
			},
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RPS:     getEnvAsInt("RATE_LIMIT_RPS", 10),
			Burst:   getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Worker: WorkerConfig{
			Interval:  getEnvAsDuration("WORKER_INTERVAL", time.Minute),
			BatchSize: getEnvAsInt("WORKER_BATCH_SIZE", 100),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would otherwise fail much later at runtime
func (c *Config) Validate() error {
	if c.Database.Postgres.MaxConnections <= 0 {
		return fmt.Errorf("POSTGRES_MAX_CONNECTIONS must be positive, got %d", c.Database.Postgres.MaxConnections)
	}
	if !strings.EqualFold(c.Auth.JWTAlgorithm, "HS256") {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q (only HS256)", c.Auth.JWTAlgorithm)
	}
	if c.Worker.Interval <= 0 {
		return fmt.Errorf("WORKER_INTERVAL must be positive, got %v", c.Worker.Interval)
	}
	return nil
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
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

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value.
// Bare integers are read as seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
