package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// S3Config holds configuration for S3 storage
type S3Config struct {
	Region          string        `json:"region" mapstructure:"region"`
	Bucket          string        `json:"bucket" mapstructure:"bucket"`
	AccessKeyID     string        `json:"access_key_id" mapstructure:"access_key_id"`
	SecretAccessKey string        `json:"secret_access_key" mapstructure:"secret_access_key"`
	SessionToken    string        `json:"session_token,omitempty" mapstructure:"session_token"`
	Endpoint        string        `json:"endpoint,omitempty" mapstructure:"endpoint"`
	ForcePathStyle  bool          `json:"force_path_style" mapstructure:"force_path_style"`
	DisableSSL      bool          `json:"disable_ssl" mapstructure:"disable_ssl"`
	Prefix          string        `json:"prefix" mapstructure:"prefix"`
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries      int           `json:"max_retries" mapstructure:"max_retries"`
	PartSize        int64         `json:"part_size" mapstructure:"part_size"`
	StorageClass    string        `json:"storage_class" mapstructure:"storage_class"`
}

// S3Storage stores blobs as objects in one S3 bucket
type S3Storage struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.Mutex
	closed     bool
}

// NewS3Storage creates a new S3 storage instance
func NewS3Storage(config *S3Config, logger *logrus.Logger) (*S3Storage, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 config cannot be nil")
	}

	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidConfig, "S3 bucket is required")
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	if logger == nil {
		logger = logrus.New()
	}

	return &S3Storage{
		config: config,
		logger: logger,
	}, nil
}

// connect creates the AWS session on first use
func (s *S3Storage) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.NewStorageError(errors.CodeConnectFailed, "S3 storage is closed")
	}
	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region:     aws.String(s.config.Region),
		MaxRetries: aws.Int(s.config.MaxRetries),
	}

	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}

	// S3-compatible services
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}

	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeSessionFailed, "Failed to create AWS session")
	}

	s.s3Client = s3.New(sess)
	s.uploader = s3manager.NewUploader(sess)
	s.downloader = s3manager.NewDownloader(sess)

	if s.config.PartSize > 0 {
		s.uploader.PartSize = s.config.PartSize
	}

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
	}).Debug("Created S3 session")

	return nil
}

// Get downloads the object at key
func (s *S3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.connect(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.WrapError(errors.ErrDataNotFound, errors.ErrorTypeStorage, errors.CodeNotFound,
				fmt.Sprintf("Object '%s' not found in bucket '%s'", key, s.config.Bucket))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to download from S3")
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.config.Bucket,
		"key":    key,
		"bytes":  len(buf.Bytes()),
	}).Debug("Downloaded object")

	return buf.Bytes(), nil
}

// Put uploads data to key
func (s *S3Storage) Put(ctx context.Context, key string, data []byte) error {
	if err := s.connect(); err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(s.generateKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
	}

	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "Failed to upload to S3")
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.config.Bucket,
		"key":    key,
		"bytes":  len(data),
	}).Debug("Uploaded object")

	return nil
}

// Exists reports whether the object at key exists
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.connect(); err != nil {
		return false, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.generateKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed, "Failed to head S3 object")
	}
	return true, nil
}

// Close closes the S3 connection
func (s *S3Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.s3Client = nil
	s.uploader = nil
	s.downloader = nil
	s.closed = true

	return nil
}

func (s *S3Storage) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout > 0 {
		return context.WithTimeout(ctx, s.config.Timeout)
	}
	return context.WithCancel(ctx)
}

func (s *S3Storage) generateKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if s.config.Prefix == "" {
		return key
	}
	return path.Join(s.config.Prefix, key)
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}

func contentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".toml":
		return "application/toml"
	default:
		return "application/octet-stream"
	}
}
