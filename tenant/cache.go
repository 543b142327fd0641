package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of go-redis client methods used by Cache.
type RedisClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// CacheConfig holds connection and keying settings for Cache.
type CacheConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Cache maps subdomains to tenant ids in Redis. Only the id is cached; the
// tenant row, including its active flag, is always read from the store.
type Cache struct {
	cfg    CacheConfig
	client RedisClient
}

// NewCache connects to Redis and verifies the connection with PING.
func NewCache(ctx context.Context, cfg CacheConfig) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("tenant cache: ping %s: %w", cfg.Address, err)
	}
	return NewCacheWithClient(cfg, client), nil
}

// NewCacheWithClient creates a Cache backed by a pre-built client.
func NewCacheWithClient(cfg CacheConfig, client RedisClient) *Cache {
	if cfg.Prefix == "" {
		cfg.Prefix = "projecthub:tenant:"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &Cache{cfg: cfg, client: client}
}

// Get returns the cached tenant id for subdomain. ok is false on a miss.
func (c *Cache) Get(ctx context.Context, subdomain string) (uuid.UUID, bool, error) {
	val, err := c.client.Get(ctx, c.key(subdomain)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("tenant cache: bad entry for %q: %w", subdomain, err)
	}
	return id, true, nil
}

// Set caches the tenant id for subdomain with the configured TTL.
func (c *Cache) Set(ctx context.Context, subdomain string, id uuid.UUID) error {
	return c.client.Set(ctx, c.key(subdomain), id.String(), c.cfg.TTL).Err()
}

// Invalidate drops the entry for subdomain.
func (c *Cache) Invalidate(ctx context.Context, subdomain string) error {
	return c.client.Del(ctx, c.key(subdomain)).Err()
}

// Close releases the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(subdomain string) string {
	return c.cfg.Prefix + subdomain
}
