package interfaces

import (
	"context"
	"time"
)

// Cache defines the interface for caching computed payloads
type Cache interface {
	// Get retrieves a value by key; the boolean is false on a miss
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with optional TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}
