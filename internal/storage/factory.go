package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/storage/implementations/file"
	"github.com/inferloop/tabsynth/internal/storage/implementations/redis"
	"github.com/inferloop/tabsynth/internal/storage/implementations/s3"
	"github.com/inferloop/tabsynth/internal/storage/interfaces"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Config carries the per-backend settings used when a location is resolved
type Config struct {
	File  file.FileStorageConfig `mapstructure:"file"`
	S3    s3.S3Config            `mapstructure:"s3"`
	Redis redis.RedisConfig      `mapstructure:"redis"`
}

// Factory maps location schemes to store constructors
type Factory struct {
	creators map[string]interfaces.StoreCreateFunc
	config   Config
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a new storage factory with the file, s3 and redis schemes registered
func NewFactory(config Config, logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]interfaces.StoreCreateFunc),
		config:   config,
		logger:   logger,
	}

	factory.registerDefaults()

	return factory
}

// Resolve returns a store able to serve location and the key within it.
// Callers close the store when done.
func (f *Factory) Resolve(ctx context.Context, location string) (interfaces.BlobStore, string, error) {
	info, err := ParseLocation(location)
	if err != nil {
		return nil, "", err
	}

	f.mu.RLock()
	createFunc, exists := f.creators[info.Scheme]
	f.mu.RUnlock()

	if !exists {
		return nil, "", errors.NewStorageError(errors.CodeInvalidURI,
			fmt.Sprintf("Storage scheme '%s' is not supported", info.Scheme))
	}

	store, err := createFunc(info)
	if err != nil {
		return nil, "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectFailed,
			fmt.Sprintf("Failed to create %s storage", info.Scheme))
	}

	f.logger.WithFields(logrus.Fields{
		"scheme": info.Scheme,
		"key":    info.Key,
	}).Debug("Resolved storage location")

	return store, info.Key, nil
}

// RegisterStorage registers a constructor for a location scheme
func (f *Factory) RegisterStorage(scheme string, createFunc interfaces.StoreCreateFunc) error {
	if scheme == "" {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "Storage scheme cannot be empty")
	}

	if createFunc == nil {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "Storage create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[scheme] = createFunc
	return nil
}

// IsSupported checks if a scheme is registered
func (f *Factory) IsSupported(scheme string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[scheme]
	return exists
}

// Read fetches the blob at location
func (f *Factory) Read(ctx context.Context, location string) ([]byte, error) {
	store, key, err := f.Resolve(ctx, location)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return store.Get(ctx, key)
}

// Write stores data at location
func (f *Factory) Write(ctx context.Context, location string, data []byte) error {
	store, key, err := f.Resolve(ctx, location)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Put(ctx, key, data)
}

// Exists reports whether a blob is stored at location
func (f *Factory) Exists(ctx context.Context, location string) (bool, error) {
	store, key, err := f.Resolve(ctx, location)
	if err != nil {
		return false, err
	}
	defer store.Close()

	return store.Exists(ctx, key)
}

func (f *Factory) registerDefaults() {
	f.RegisterStorage(constants.SchemeFile, func(info interfaces.BlobInfo) (interfaces.BlobStore, error) {
		cfg := f.config.File
		cfg.CreateDirs = true
		return file.NewFileStorage(&cfg, f.logger)
	})

	f.RegisterStorage(constants.SchemeS3, func(info interfaces.BlobInfo) (interfaces.BlobStore, error) {
		cfg := f.config.S3
		cfg.Bucket = info.Bucket
		return s3.NewS3Storage(&cfg, f.logger)
	})

	f.RegisterStorage(constants.SchemeRedis, func(info interfaces.BlobInfo) (interfaces.BlobStore, error) {
		cfg := f.config.Redis
		cfg.Addr = info.Bucket
		if info.Password != "" {
			cfg.Password = info.Password
		}
		return redis.NewRedisStorage(&cfg, f.logger)
	})
}

// ParseLocation splits a location into scheme, bucket and key. Plain paths
// are file locations.
func ParseLocation(location string) (interfaces.BlobInfo, error) {
	if location == "" {
		return interfaces.BlobInfo{}, errors.NewStorageError(errors.CodeInvalidURI, "location cannot be empty")
	}

	if !strings.Contains(location, "://") {
		return interfaces.BlobInfo{Scheme: constants.SchemeFile, Key: location}, nil
	}

	u, err := url.Parse(location)
	if err != nil {
		return interfaces.BlobInfo{}, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeInvalidURI,
			fmt.Sprintf("invalid location %q", location))
	}

	info := interfaces.BlobInfo{Scheme: strings.ToLower(u.Scheme)}
	switch info.Scheme {
	case constants.SchemeFile:
		info.Key = u.Path
		if u.Host != "" && u.Host != "localhost" {
			info.Key = u.Host + u.Path
		}
	case constants.SchemeS3:
		info.Bucket = u.Host
		info.Key = strings.TrimPrefix(u.Path, "/")
	case constants.SchemeRedis:
		info.Bucket = u.Host
		if u.User != nil {
			if pw, ok := u.User.Password(); ok {
				info.Password = pw
			}
		}
		info.Key = strings.TrimPrefix(u.Path, "/")
	default:
		info.Key = location
		return info, nil
	}

	if info.Key == "" {
		return interfaces.BlobInfo{}, errors.NewStorageError(errors.CodeInvalidURI,
			fmt.Sprintf("location %q has no key", location))
	}
	if info.Scheme != constants.SchemeFile && info.Bucket == "" {
		return interfaces.BlobInfo{}, errors.NewStorageError(errors.CodeInvalidURI,
			fmt.Sprintf("location %q has no bucket or host", location))
	}
	return info, nil
}
