package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Redis configuration (distributed sweep lock)
	Redis RedisConfig

	// NATS Streaming configuration (notifications)
	NATS NATSConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	// Capacity configuration
	Capacity CapacityConfig

	// Voucher lookup configuration
	Voucher VoucherConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	Timezone    string // IANA zone used to decide what "today" is
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver             string // "postgres" or "memory"
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	AutoMigrate        bool
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SweepJobTimeout bounds a single scheduled sweep. A sweep lock must not
// expire before the sweep holding it is cancelled.
const SweepJobTimeout = 10 * time.Minute

// RedisConfig holds the Redis connection used for sweep locks.
// An empty Addr disables distributed locking (single replica).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// NATSConfig holds NATS Streaming configuration.
// An empty URL makes the notifier log events instead of publishing them.
type NATSConfig struct {
	URL           string
	ClusterID     string
	ClientID      string
	SubjectPrefix string
}

// SchedulerConfig holds the cron specs of the lifecycle sweeps
type SchedulerConfig struct {
	Enabled             bool
	ExpireWindowsSpec   string
	ExpireDaysSpec      string
	ExpireBookingsSpec  string
	ExpireReferralsSpec string
	ReconcileSpec       string
}

// CapacityConfig holds capacity ledger tuning
type CapacityConfig struct {
	ReconcileDriftTolerance int
}

// VoucherConfig holds the guest/voucher lookup service configuration
type VoucherConfig struct {
	APIURL  string
	Timeout time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Timezone:    getEnv("TIMEZONE", "UTC"),
		},
		Database: DatabaseConfig{
			Driver:             getEnv("STORAGE_DRIVER", "postgres"),
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			AutoMigrate:        getEnvAsBool("AUTO_MIGRATE", false),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			LockTTL:  getEnvAsDuration("SWEEP_LOCK_TTL", SweepJobTimeout),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			ClusterID:     getEnv("NATS_CLUSTER_ID", "test-cluster"),
			ClientID:      getEnv("NATS_CLIENT_ID", "excursion-backend"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "excursions"),
		},
		Scheduler: SchedulerConfig{
			Enabled:             getEnvAsBool("SCHEDULER_ENABLED", true),
			ExpireWindowsSpec:   getEnv("CRON_EXPIRE_WINDOWS", "0 5 0 * * *"),
			ExpireDaysSpec:      getEnv("CRON_EXPIRE_DAYS", "0 10 0 * * *"),
			ExpireBookingsSpec:  getEnv("CRON_EXPIRE_BOOKINGS", "0 */15 * * * *"),
			ExpireReferralsSpec: getEnv("CRON_EXPIRE_REFERRALS", "0 0 * * * *"),
			ReconcileSpec:       getEnv("CRON_RECONCILE_CAPACITY", "0 30 3 * * *"),
		},
		Capacity: CapacityConfig{
			ReconcileDriftTolerance: getEnvAsInt("RECONCILE_DRIFT_TOLERANCE", 0),
		},
		Voucher: VoucherConfig{
			APIURL:  getEnv("VOUCHER_API_URL", ""),
			Timeout: getEnvAsDuration("VOUCHER_API_TIMEOUT", 10*time.Second),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
		if c.Server.Environment == "production" {
			return fmt.Errorf("STORAGE_DRIVER=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER: %s (must be 'postgres' or 'memory')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if _, err := time.LoadLocation(c.Server.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Server.Timezone, err)
	}

	if c.Capacity.ReconcileDriftTolerance < 0 {
		return fmt.Errorf("RECONCILE_DRIFT_TOLERANCE must not be negative")
	}

	if c.Redis.Addr != "" && c.Redis.LockTTL < SweepJobTimeout {
		return fmt.Errorf("SWEEP_LOCK_TTL must be at least %s", SweepJobTimeout)
	}

	if c.NATS.URL != "" && c.NATS.ClusterID == "" {
		return fmt.Errorf("NATS_CLUSTER_ID is required when NATS_URL is set")
	}

	return nil
}

// Location returns the configured business timezone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Server.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
