// Package cache is a cache-aside accelerator for single record reads.
//
// Entries are never invalidated on write: a read that follows a mutation may
// be stale for up to the configured TTL.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"
)

// Backend is any key/value store with per-entry TTL.
type Backend interface {
	// Get reports found=false on a miss; err is reserved for backend failures.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key identifies a cached record within a tenant.
type Key struct {
	RecordID string
	TenantID string
}

func (k Key) String() string {
	return k.RecordID + ":" + k.TenantID
}

// Cache wraps a Backend with a namespace and the configured TTL.
type Cache struct {
	backend   Backend
	namespace string
	ttl       time.Duration
}

// New returns a cache writing entries under namespace with the given TTL.
func New(backend Backend, namespace string, ttl time.Duration) *Cache {
	return &Cache{backend: backend, namespace: namespace, ttl: ttl}
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

func (c *Cache) key(k Key) string {
	if c.namespace == "" {
		return k.String()
	}
	return c.namespace + ":" + k.String()
}

// GetOrLoad returns the cached value for key, or calls loader on a miss and
// stores its result for ttl. A nil cache, a zero ttl or a failing backend all
// degrade to calling loader directly. Loader errors are returned and never
// cached.
func GetOrLoad[T any](ctx context.Context, c *Cache, key Key, ttl time.Duration, loader func(context.Context) (T, error)) (T, error) {
	if c == nil || c.backend == nil || ttl <= 0 {
		return loader(ctx)
	}

	k := c.key(key)
	raw, found, err := c.backend.Get(ctx, k)
	if err != nil {
		log.Printf("[cache] get %s failed, loading directly: %v", k, err)
	} else if found {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		log.Printf("[cache] entry %s is unreadable, reloading", k)
	}

	value, err := loader(ctx)
	if err != nil {
		return value, err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		log.Printf("[cache] encode %s failed: %v", k, err)
		return value, nil
	}
	if err := c.backend.Set(ctx, k, encoded, ttl); err != nil {
		log.Printf("[cache] set %s failed: %v", k, err)
	}
	return value, nil
}
