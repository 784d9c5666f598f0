package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how long a cached read may be served.
const DefaultTTL = 30 * time.Second

// Cache stores query results. Values are JSON encoded so every
// implementation returns copies the caller may mutate.
//
// Reads and writes carry the generation the caller observed before loading.
// A Set for a generation that has since been invalidated is dropped, so a
// result computed before a command never outlives the invalidation.
type Cache interface {
	// Generation returns the current generation.
	Generation(ctx context.Context) (uint64, error)
	// Get decodes the value stored under key in generation gen into dst and
	// reports whether it was found.
	Get(ctx context.Context, gen uint64, key string, dst any) (bool, error)
	// Set stores v under key unless gen is no longer current.
	Set(ctx context.Context, gen uint64, key string, v any) error
	// Invalidate drops every cached value and starts a new generation.
	Invalidate(ctx context.Context) error
}

// MemoryCache is an in-process Cache with a per-entry TTL.
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	generation uint64
	now        func() time.Time
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache. A non-positive ttl uses DefaultTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{entries: make(map[string]cacheEntry), ttl: ttl, now: time.Now}
}

// Generation implements Cache.
func (c *MemoryCache) Generation(context.Context) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation, nil
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, gen uint64, key string, dst any) (bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	current := c.generation
	c.mu.RUnlock()

	if !ok || gen != current || c.now().After(entry.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, gen uint64, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil
	}
	c.entries[key] = cacheEntry{data: data, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.generation++
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// RedisCache shares cached reads between processes through Redis. Keys are
// namespaced by a generation counter; Invalidate bumps the counter and the
// old keys age out through their TTL.
type RedisCache struct {
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "notebase"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

func (c *RedisCache) generationKey() string {
	return c.prefix + ":generation"
}

// Generation implements Cache.
func (c *RedisCache) Generation(ctx context.Context) (uint64, error) {
	gen, err := c.rdb.Get(ctx, c.generationKey()).Uint64()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return 0, fmt.Errorf("redis generation: %w", err)
	}
	return gen, nil
}

func (c *RedisCache) key(gen uint64, key string) string {
	return fmt.Sprintf("%s:%d:%s", c.prefix, gen, key)
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, gen uint64, key string, dst any) (bool, error) {
	data, err := c.rdb.Get(ctx, c.key(gen, key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set implements Cache. Keys of a stale generation are never read again and
// expire through their TTL.
func (c *RedisCache) Set(ctx context.Context, gen uint64, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, c.key(gen, key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Invalidate implements Cache.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	if err := c.rdb.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
