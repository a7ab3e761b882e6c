// Package cache provides in-memory caching for oracle responses. Entries
// live for the configured TTL; there is no disk tier because completions
// are only worth reusing within a run.
package cache

import (
	"time"
)

// Cache defines the interface for caching.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Responses binds a Cache to a fixed TTL, giving callers the two-method
// surface the oracle layer expects.
type Responses struct {
	cache Cache
	ttl   time.Duration
}

// NewResponses wraps a cache with a default TTL.
func NewResponses(c Cache, ttl time.Duration) *Responses {
	return &Responses{cache: c, ttl: ttl}
}

// Get retrieves a cached response.
func (r *Responses) Get(key string) ([]byte, bool) {
	return r.cache.Get(key)
}

// Set stores a response under the default TTL.
func (r *Responses) Set(key string, value []byte) error {
	return r.cache.Set(key, value, r.ttl)
}
