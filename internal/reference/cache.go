package reference

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is a byte cache keyed by string.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// CacheKey derives the cache key for an (indicator, date) lookup.
func CacheKey(indicatorCode, date string) string {
	hash := sha256.Sum256([]byte(indicatorCode + "\x00" + date))
	return "partnergate:ref:v1:" + hex.EncodeToString(hash[:])
}

type MemoryCache struct {
	cache *gocache.Cache
}

func NewMemoryCache(defaultTTL time.Duration, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{
		cache: gocache.New(defaultTTL, cleanupInterval),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	if val, found := c.cache.Get(key); found {
		return val.([]byte), true
	}
	return nil, false
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

// RedisCache shares lookups across gateway replicas.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

type cachedLookup struct {
	Found       bool        `json:"found"`
	Observation Observation `json:"observation"`
}

// Cached memoizes lookups, including misses, for ttl. Errors are never cached.
type Cached struct {
	next  Store
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewCached(next Store, cache Cache, ttl time.Duration, log *zap.Logger) *Cached {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{next: next, cache: cache, ttl: ttl, log: log}
}

func (c *Cached) Lookup(ctx context.Context, indicatorCode, date string) (Observation, bool, error) {
	key := CacheKey(indicatorCode, date)
	if raw, ok := c.cache.Get(ctx, key); ok {
		var hit cachedLookup
		if err := json.Unmarshal(raw, &hit); err == nil {
			return hit.Observation, hit.Found, nil
		}
	}

	obs, found, err := c.next.Lookup(ctx, indicatorCode, date)
	if err != nil {
		return Observation{}, false, err
	}
	raw, err := json.Marshal(cachedLookup{Found: found, Observation: obs})
	if err == nil {
		err = c.cache.Set(ctx, key, raw, c.ttl)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn("reference cache write failed", zap.String("indicator_code", indicatorCode), zap.Error(err))
	}
	return obs, found, nil
}
