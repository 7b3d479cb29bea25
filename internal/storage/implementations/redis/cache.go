package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// RedisCache caches computed payloads under prefixed keys
type RedisCache struct {
	storage *RedisStorage
}

// NewRedisCache creates a cache backed by the given Redis configuration
func NewRedisCache(config *RedisConfig, logger *logrus.Logger) (*RedisCache, error) {
	storage, err := NewRedisStorage(config, logger)
	if err != nil {
		return nil, err
	}
	return &RedisCache{storage: storage}, nil
}

// Get returns the cached value, reporting false on a miss
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	client, err := c.storage.conn()
	if err != nil {
		return nil, false, err
	}

	data, err := client.Get(ctx, c.storage.generateKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to read cache")
	}
	return data, true, nil
}

// Set stores value for ttl; zero ttl means no expiry
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	client, err := c.storage.conn()
	if err != nil {
		return err
	}

	if err := client.Set(ctx, c.storage.generateKey(key), value, ttl).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeCacheFailed, "Failed to write cache")
	}
	return nil
}

// Close closes the underlying connection
func (c *RedisCache) Close() error {
	return c.storage.Close()
}
