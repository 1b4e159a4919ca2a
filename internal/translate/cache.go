package translate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCacheTTL  = 24 * time.Hour
	defaultCacheSize = 1024
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{redis: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.redis.Get(ctx, "translate:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string) error {
	return c.redis.Set(ctx, "translate:"+key, value, c.ttl).Err()
}

type LRUCache struct {
	cache *lru.Cache[string, string]
}

func NewLRUCache(size int) (*LRUCache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &LRUCache{cache: c}, nil
}

func (c *LRUCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

func (c *LRUCache) Set(_ context.Context, key, value string) error {
	c.cache.Add(key, value)
	return nil
}

func (c *LRUCache) Len() int {
	return c.cache.Len()
}

// Cached serves repeated translations from a cache. Cache failures are
// logged and never fail the translation.
type Cached struct {
	next  Translator
	cache Cache
	log   *slog.Logger
}

func NewCached(next Translator, cache Cache, log *slog.Logger) *Cached {
	if log == nil {
		log = slog.Default()
	}
	return &Cached{next: next, cache: cache, log: log.With("component", "translate_cache")}
}

func (c *Cached) Translate(ctx context.Context, text, source, target string) (string, error) {
	if Same(source, target) {
		return text, nil
	}

	key := CacheKey(text, source, target)
	if val, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("cache get failed", "error", err)
	} else if ok {
		return val, nil
	}

	out, err := c.next.Translate(ctx, text, source, target)
	if err != nil {
		return "", err
	}
	if err := c.cache.Set(ctx, key, out); err != nil {
		c.log.Warn("cache set failed", "error", err)
	}
	return out, nil
}

func CacheKey(text, source, target string) string {
	sum := sha256.Sum256([]byte(text))
	return source + ":" + target + ":" + hex.EncodeToString(sum[:16])
}
