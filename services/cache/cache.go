package cache

import (
	"time"
)

// CacheService is a generic TTL cache. The scrapers use it to cool down a
// source after rate limiting, and the cart service uses it to guard against
// duplicate concurrent scrapes of one item.
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}
