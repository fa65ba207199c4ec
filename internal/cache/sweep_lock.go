package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/config"
)

const lockKeyPrefix = "excursions:sweep-lock:"

// releaseScript deletes the lock only if this holder still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SweepLock makes sure a scheduled sweep runs on one replica per tick
type SweepLock struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewRedisClient opens and pings a Redis connection
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}

// NewSweepLock creates a lock whose entries expire after ttl
func NewSweepLock(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *SweepLock {
	if ttl <= 0 {
		ttl = config.SweepJobTimeout
	}
	return &SweepLock{client: client, ttl: ttl, logger: logger}
}

// TryAcquire takes the named lock. It returns ok=false when another replica
// holds it. The returned release func is safe to call once.
func (l *SweepLock) TryAcquire(ctx context.Context, name string) (release func(), ok bool, err error) {
	key := lockKeyPrefix + name
	token := uuid.New().String()

	acquired, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire sweep lock %s: %w", name, err)
	}
	if !acquired {
		return nil, false, nil
	}

	release = func() { l.release(key, token) }
	return release, true, nil
}

// release drops the lock if token still owns it. A failed release leaves the
// key to expire with its TTL.
func (l *SweepLock) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.WithError(err).WithFields(logrus.Fields{
			"key": key,
			"ttl": l.ttl,
		}).Warn("Failed to release sweep lock")
	}
}

// Close closes the Redis connection
func (l *SweepLock) Close() error {
	return l.client.Close()
}
