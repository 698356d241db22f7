package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/itsneelabh/querysynth/core"
)

// Cache stores schema metadata between tasks. A cache failure must never
// fail a lookup; implementations degrade to a miss.
type Cache interface {
	// GetTables retrieves a cached table list. Returns the list and true if found.
	GetTables(ctx context.Context, dataSource string) ([]string, bool)

	// SetTables stores a table list.
	SetTables(ctx context.Context, dataSource string, tables []string) error

	// GetColumns retrieves cached columns for one table.
	GetColumns(ctx context.Context, dataSource, table string) ([]Column, bool)

	// SetColumns stores the columns of one table.
	SetColumns(ctx context.Context, dataSource, table string, columns []Column) error

	// Stats returns cache statistics for monitoring.
	Stats() map[string]interface{}
}

// RedisCache provides Redis-backed schema caching shared across processes.
// Entries are stored as JSON with a configurable TTL and key prefix.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	// Stats (atomic for thread-safety)
	hits   int64
	misses int64
}

// CacheOption allows customization of the schema cache behavior.
type CacheOption func(*RedisCache)

// WithTTL sets the TTL for cached entries.
// Default is core.DefaultSchemaCacheTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *RedisCache) {
		c.ttl = ttl
	}
}

// WithPrefix sets the Redis key prefix for cache entries.
// Default is core.DefaultRedisPrefix ("querysynth:schema:").
func WithPrefix(prefix string) CacheOption {
	return func(c *RedisCache) {
		c.prefix = prefix
	}
}

// NewRedisCache creates a new Redis-backed schema cache.
//
// Example usage:
//
//	cache := schema.NewRedisCache(redisClient,
//	    schema.WithTTL(10*time.Minute),
//	    schema.WithPrefix("reports:schema:"),
//	)
func NewRedisCache(client *redis.Client, opts ...CacheOption) *RedisCache {
	cache := &RedisCache{
		client: client,
		ttl:    core.DefaultSchemaCacheTTL,
		prefix: core.DefaultRedisPrefix,
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

// NewRedisCacheFromURL parses a redis:// URL and creates a cache using it.
func NewRedisCacheFromURL(redisURL string, opts ...CacheOption) (*RedisCache, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return NewRedisCache(redis.NewClient(options), opts...), nil
}

// Close releases the underlying Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) tablesKey(dataSource string) string {
	return fmt.Sprintf("%s%s:tables", c.prefix, dataSource)
}

func (c *RedisCache) columnsKey(dataSource, table string) string {
	return fmt.Sprintf("%s%s:columns:%s", c.prefix, dataSource, table)
}

// GetTables retrieves a table list from Redis.
func (c *RedisCache) GetTables(ctx context.Context, dataSource string) ([]string, bool) {
	var tables []string
	if !c.get(ctx, c.tablesKey(dataSource), &tables) {
		return nil, false
	}
	return tables, true
}

// SetTables stores a table list in Redis.
func (c *RedisCache) SetTables(ctx context.Context, dataSource string, tables []string) error {
	return c.set(ctx, c.tablesKey(dataSource), tables)
}

// GetColumns retrieves one table's columns from Redis.
func (c *RedisCache) GetColumns(ctx context.Context, dataSource, table string) ([]Column, bool) {
	var columns []Column
	if !c.get(ctx, c.columnsKey(dataSource, table), &columns) {
		return nil, false
	}
	return columns, true
}

// SetColumns stores one table's columns in Redis.
func (c *RedisCache) SetColumns(ctx context.Context, dataSource, table string, columns []Column) error {
	return c.set(ctx, c.columnsKey(dataSource, table), columns)
}

func (c *RedisCache) get(ctx context.Context, key string, target interface{}) bool {
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		// redis.Nil is a plain miss; anything else degrades to one
		atomic.AddInt64(&c.misses, 1)
		return false
	}

	if err := json.Unmarshal([]byte(val), target); err != nil {
		// Corrupt data in Redis - treat as miss
		atomic.AddInt64(&c.misses, 1)
		return false
	}

	atomic.AddInt64(&c.hits, 1)
	return true
}

func (c *RedisCache) set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal schema entry: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set schema entry in Redis: %w", err)
	}

	return nil
}

// Stats returns cache performance statistics for monitoring.
func (c *RedisCache) Stats() map[string]interface{} {
	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses

	stats := map[string]interface{}{
		"hits":          hits,
		"misses":        misses,
		"total_lookups": total,
	}

	if total > 0 {
		stats["hit_rate"] = float64(hits) / float64(total)
	}

	return stats
}
