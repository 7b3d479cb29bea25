package redis

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisStorage(t *testing.T) {
	config := &RedisConfig{
		Addr:     "localhost:6379",
		Password: "",
		DB:       0,
	}

	logger := logrus.New()
	storage, err := NewRedisStorage(config, logger)

	require.NoError(t, err)
	require.NotNil(t, storage)
	assert.Equal(t, config, storage.config)
	assert.Equal(t, logger, storage.logger)
	assert.Nil(t, storage.client)
}

func TestNewRedisStorageInvalidConfig(t *testing.T) {
	_, err := NewRedisStorage(nil, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config cannot be nil")

	_, err = NewRedisStorage(&RedisConfig{}, logrus.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address is required")
}

func TestRedisStorageGenerateKey(t *testing.T) {
	storage, err := NewRedisStorage(&RedisConfig{Addr: "localhost:6379", KeyPrefix: "tabsynth"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tabsynth:models/run.pkl", storage.generateKey("models/run.pkl"))

	storage, err = NewRedisStorage(&RedisConfig{Addr: "localhost:6379"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "models/run.pkl", storage.generateKey("models/run.pkl"))
}

func TestRedisStorageClosed(t *testing.T) {
	storage, err := NewRedisStorage(&RedisConfig{Addr: "localhost:6379"}, nil)
	require.NoError(t, err)

	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close())

	ctx := context.Background()
	_, err = storage.Get(ctx, "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")

	err = storage.Put(ctx, "k", []byte("v"))
	require.Error(t, err)

	_, err = storage.Exists(ctx, "k")
	require.Error(t, err)
}

func TestRedisCacheRequiresAddress(t *testing.T) {
	_, err := NewRedisCache(&RedisConfig{}, nil)
	require.Error(t, err)

	cache, err := NewRedisCache(&RedisConfig{Addr: "localhost:6379", TTL: time.Minute}, nil)
	require.NoError(t, err)
	require.NoError(t, cache.Close())

	_, _, err = cache.Get(context.Background(), "k")
	require.Error(t, err)
}
