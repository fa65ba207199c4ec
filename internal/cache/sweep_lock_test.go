package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/excursion-backend/internal/config"
)

func TestNewSweepLockDefaultsToJobTimeout(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	lock := NewSweepLock(client, 0, logrus.New())
	assert.Equal(t, config.SweepJobTimeout, lock.ttl)
}

func TestFailedReleaseIsLogged(t *testing.T) {
	// nothing listens on port 1, so the release script cannot reach Redis
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	logger, hook := test.NewNullLogger()
	lock := NewSweepLock(client, time.Minute, logger)

	lock.release(lockKeyPrefix+"expire_bookings", "token-1")

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "Failed to release sweep lock", entry.Message)
	assert.Equal(t, lockKeyPrefix+"expire_bookings", entry.Data["key"])
	assert.NotNil(t, entry.Data[logrus.ErrorKey])
}
