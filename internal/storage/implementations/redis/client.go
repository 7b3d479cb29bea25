package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// RedisConfig holds configuration for Redis storage
type RedisConfig struct {
	Addr         string        `json:"addr" mapstructure:"addr"`
	Password     string        `json:"password" mapstructure:"password"`
	DB           int           `json:"db" mapstructure:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	PoolSize     int           `json:"pool_size" mapstructure:"pool_size"`
	MaxRetries   int           `json:"max_retries" mapstructure:"max_retries"`
	TTL          time.Duration `json:"ttl" mapstructure:"ttl"`
	KeyPrefix    string        `json:"key_prefix" mapstructure:"key_prefix"`
}

// RedisStorage stores blobs as Redis string values
type RedisStorage struct {
	config *RedisConfig
	client *redis.Client
	logger *logrus.Logger
	mu     sync.Mutex
	closed bool
}

// NewRedisStorage creates a new Redis storage instance. The connection is
// opened lazily on first use.
func NewRedisStorage(config *RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis config cannot be nil")
	}

	if config.Addr == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "Redis address is required")
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &RedisStorage{
		config: config,
		logger: logger,
	}, nil
}

func (r *RedisStorage) conn() (*redis.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.NewStorageError(errors.CodeConnectFailed, "Redis storage is closed")
	}
	if r.client == nil {
		r.client = redis.NewClient(&redis.Options{
			Addr:         r.config.Addr,
			Password:     r.config.Password,
			DB:           r.config.DB,
			DialTimeout:  r.config.DialTimeout,
			ReadTimeout:  r.config.ReadTimeout,
			WriteTimeout: r.config.WriteTimeout,
			PoolSize:     r.config.PoolSize,
			MaxRetries:   r.config.MaxRetries,
		})

		r.logger.WithFields(logrus.Fields{
			"addr": r.config.Addr,
			"db":   r.config.DB,
		}).Debug("Created Redis client")
	}
	return r.client, nil
}

// Get reads the value stored at key
func (r *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := r.conn()
	if err != nil {
		return nil, err
	}

	data, err := client.Get(ctx, r.generateKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.WrapError(errors.ErrDataNotFound, errors.ErrorTypeStorage, errors.CodeNotFound,
				fmt.Sprintf("Key '%s' not found", key))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to read from Redis")
	}
	return data, nil
}

// Put writes data at key with the configured TTL
func (r *RedisStorage) Put(ctx context.Context, key string, data []byte) error {
	client, err := r.conn()
	if err != nil {
		return err
	}

	if err := client.Set(ctx, r.generateKey(key), data, r.config.TTL).Err(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to write to Redis")
	}

	r.logger.WithFields(logrus.Fields{
		"key":   key,
		"bytes": len(data),
		"ttl":   r.config.TTL,
	}).Debug("Wrote Redis key")

	return nil
}

// Exists reports whether key is set
func (r *RedisStorage) Exists(ctx context.Context, key string) (bool, error) {
	client, err := r.conn()
	if err != nil {
		return false, err
	}

	n, err := client.Exists(ctx, r.generateKey(key)).Result()
	if err != nil {
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to query Redis")
	}
	return n > 0, nil
}

// Close closes the Redis connection
func (r *RedisStorage) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.client != nil {
		err := r.client.Close()
		r.client = nil
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectFailed, "Failed to close Redis connection")
		}
	}
	return nil
}

func (r *RedisStorage) generateKey(key string) string {
	if r.config.KeyPrefix != "" {
		return fmt.Sprintf("%s:%s", r.config.KeyPrefix, key)
	}
	return key
}
