package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// FileStorageConfig contains configuration for file-based storage
type FileStorageConfig struct {
	// BasePath is joined to relative keys; empty means the working directory
	BasePath   string      `json:"base_path" yaml:"base_path" mapstructure:"base_path"`
	CreateDirs bool        `json:"create_dirs" yaml:"create_dirs" mapstructure:"create_dirs"`
	FileMode   os.FileMode `json:"file_mode" yaml:"file_mode" mapstructure:"file_mode"`
	SyncWrites bool        `json:"sync_writes" yaml:"sync_writes" mapstructure:"sync_writes"`
}

// FileStorage stores blobs as files on the local filesystem
type FileStorage struct {
	config *FileStorageConfig
	logger *logrus.Logger
}

// NewFileStorage creates a new file storage instance
func NewFileStorage(config *FileStorageConfig, logger *logrus.Logger) (*FileStorage, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "FileStorageConfig cannot be nil")
	}

	if config.FileMode == 0 {
		config.FileMode = 0644
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &FileStorage{
		config: config,
		logger: logger,
	}, nil
}

// Get reads the file at key
func (fs *FileStorage) Get(ctx context.Context, key string) ([]byte, error) {
	path := fs.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapError(errors.ErrDataNotFound, errors.ErrorTypeStorage, errors.CodeNotFound,
				fmt.Sprintf("File not found: %s", path))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("Failed to read file: %s", path))
	}

	fs.logger.WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(data),
	}).Debug("Read file")

	return data, nil
}

// Put writes data to key, creating parent directories when configured
func (fs *FileStorage) Put(ctx context.Context, key string, data []byte) error {
	path := fs.path(key)

	if fs.config.CreateDirs {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
					fmt.Sprintf("Failed to create directory: %s", dir))
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.config.FileMode)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("Failed to open file: %s", path))
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("Failed to write file: %s", path))
	}

	if fs.config.SyncWrites {
		if err := f.Sync(); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				fmt.Sprintf("Failed to sync file: %s", path))
		}
	}

	fs.logger.WithFields(logrus.Fields{
		"path":  path,
		"bytes": len(data),
	}).Debug("Wrote file")

	return nil
}

// Exists reports whether a regular file exists at key
func (fs *FileStorage) Exists(ctx context.Context, key string) (bool, error) {
	info, err := os.Stat(fs.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to stat file")
	}
	return !info.IsDir(), nil
}

// Close is a no-op for file storage
func (fs *FileStorage) Close() error {
	return nil
}

func (fs *FileStorage) path(key string) string {
	if fs.config.BasePath == "" || filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(fs.config.BasePath, key)
}
