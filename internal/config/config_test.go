package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Environment: "development", Timezone: "UTC"},
		Database: DatabaseConfig{Driver: "postgres", URL: "postgres://localhost/excursions"},
		JWT:      JWTConfig{Secret: "secret"},
		NATS:     NATSConfig{ClusterID: "test-cluster"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("MissingDatabaseURL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.URL = ""
		assert.EqualError(t, cfg.Validate(), "DATABASE_URL is required")
	})

	t.Run("MemoryDriverNeedsNoURL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = "memory"
		cfg.Database.URL = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("MemoryDriverRejectedInProduction", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = "memory"
		cfg.Server.Environment = "production"
		assert.Error(t, cfg.Validate())
	})

	t.Run("UnknownDriver", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Driver = "mysql"
		assert.Error(t, cfg.Validate())
	})

	t.Run("MissingJWTSecret", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWT.Secret = ""
		assert.EqualError(t, cfg.Validate(), "JWT_SECRET is required")
	})

	t.Run("BadTimezone", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Timezone = "Mars/Olympus"
		assert.Error(t, cfg.Validate())
	})

	t.Run("SweepLockShorterThanJob", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis = RedisConfig{Addr: "localhost:6379", LockTTL: 5 * time.Minute}
		assert.EqualError(t, cfg.Validate(), "SWEEP_LOCK_TTL must be at least 10m0s")

		cfg.Redis.LockTTL = SweepJobTimeout
		assert.NoError(t, cfg.Validate())
	})

	t.Run("SweepLockIgnoredWithoutRedis", func(t *testing.T) {
		cfg := validConfig()
		cfg.Redis.LockTTL = time.Minute
		assert.NoError(t, cfg.Validate())
	})

	t.Run("NegativeDriftTolerance", func(t *testing.T) {
		cfg := validConfig()
		cfg.Capacity.ReconcileDriftTolerance = -1
		assert.Error(t, cfg.Validate())
	})
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, b ,,c ")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsSlice("TEST_SLICE", nil))

	t.Setenv("TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvAsDuration("TEST_DURATION", time.Second))

	t.Setenv("TEST_DURATION_BAD", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DURATION_BAD", time.Second))

	t.Setenv("TEST_INT_BAD", "ten")
	assert.Equal(t, 10, getEnvAsInt("TEST_INT_BAD", 10))
}
