// Package apikeycache provides the ≤30s-TTL static-API-key cache used by
// the REST boundary's second authentication method. An in-process LRU is
// always present; when a Redis address is configured, a second tier is
// consulted/populated so multiple replicas share validation results
// instead of each re-reading the secret record.
package apikeycache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the cache's default time-to-live.
const DefaultTTL = 30 * time.Second

type entry struct {
	identity string
	at       time.Time
}

// Cache is the two-tier (in-process LRU, optional Redis) lookup cache for
// validated API-key -> identity pairs.
type Cache struct {
	ttl   time.Duration
	local *lru.Cache[string, entry]
	redis *redis.Client
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithRedis backs the cache with a shared Redis tier, for multi-replica
// deployments where every replica would otherwise validate independently.
func WithRedis(client *redis.Client) Option {
	return func(c *Cache) { c.redis = client }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.ttl = ttl }
}

// New builds a Cache with an in-process LRU of the given size (entries
// beyond size are evicted least-recently-used first, bounding memory
// under key-enumeration abuse).
func New(size int, opts ...Option) (*Cache, error) {
	if size <= 0 {
		size = 4096
	}
	local, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	c := &Cache{ttl: DefaultTTL, local: local}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached identity for key, if present and not expired in
// either tier.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if e, ok := c.local.Get(key); ok {
		if time.Since(e.at) < c.ttl {
			return e.identity, true
		}
		c.local.Remove(key)
	}

	if c.redis == nil {
		return "", false
	}
	identity, err := c.redis.Get(ctx, redisKey(key)).Result()
	if err != nil {
		return "", false
	}
	c.local.Add(key, entry{identity: identity, at: time.Now()})
	return identity, true
}

// Put stores key -> identity in both tiers with the configured TTL.
func (c *Cache) Put(ctx context.Context, key, identity string) {
	c.local.Add(key, entry{identity: identity, at: time.Now()})
	if c.redis != nil {
		_ = c.redis.Set(ctx, redisKey(key), identity, c.ttl).Err()
	}
}

func redisKey(key string) string {
	return "freezegate:apikey:" + key
}
