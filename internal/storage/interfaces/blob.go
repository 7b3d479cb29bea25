package interfaces

import (
	"context"
)

// BlobStore defines the operations every dataset and artifact location supports
type BlobStore interface {
	// Get retrieves a blob by key
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores a blob with the given key, replacing any existing value
	Put(ctx context.Context, key string, data []byte) error

	// Exists checks if a blob exists
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases any connection held by the store
	Close() error
}

// BlobInfo is a parsed blob location. Bucket holds the S3 bucket or the
// Redis address; Password is only set for Redis locations.
type BlobInfo struct {
	Scheme   string `json:"scheme"`
	Bucket   string `json:"bucket,omitempty"`
	Key      string `json:"key"`
	Password string `json:"-"`
}

// StoreCreateFunc builds a store able to serve the given location
type StoreCreateFunc func(info BlobInfo) (BlobStore, error)
