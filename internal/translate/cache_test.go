package translate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingTranslator struct {
	calls int
	err   error
}

func (c *countingTranslator) Translate(_ context.Context, text, _, target string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return target + ":" + text, nil
}

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, time.Hour), mr
}

func TestRedisCache_GetSet(t *testing.T) {
	cache, mr := newTestRedisCache(t)
	ctx := context.Background()

	if _, ok, err := cache.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := cache.Get(ctx, "k")
	if err != nil || !ok || val != "v" {
		t.Fatalf("got %q ok=%v err=%v", val, ok, err)
	}
	if ttl := mr.TTL("translate:k"); ttl != time.Hour {
		t.Errorf("expected 1h ttl, got %v", ttl)
	}
}

func TestLRUCache_Evicts(t *testing.T) {
	cache, err := NewLRUCache(2)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	cache.Set(ctx, "a", "1")
	cache.Set(ctx, "b", "2")
	cache.Set(ctx, "c", "3")

	if _, ok, _ := cache.Get(ctx, "a"); ok {
		t.Error("oldest entry should be evicted")
	}
	if v, ok, _ := cache.Get(ctx, "c"); !ok || v != "3" {
		t.Errorf("expected c=3, got %q", v)
	}
	if cache.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cache.Len())
	}
}

func TestCached_ServesRepeats(t *testing.T) {
	caches := map[string]func(t *testing.T) Cache{
		"redis": func(t *testing.T) Cache {
			c, _ := newTestRedisCache(t)
			return c
		},
		"lru": func(t *testing.T) Cache {
			c, err := NewLRUCache(16)
			if err != nil {
				t.Fatal(err)
			}
			return c
		},
	}

	for name, build := range caches {
		t.Run(name, func(t *testing.T) {
			next := &countingTranslator{}
			tr := NewCached(next, build(t), nil)
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				got, err := tr.Translate(ctx, "merhaba", "tr", "en")
				if err != nil || got != "en:merhaba" {
					t.Fatalf("got %q, %v", got, err)
				}
			}
			if next.calls != 1 {
				t.Errorf("expected 1 upstream call, got %d", next.calls)
			}

			tr.Translate(ctx, "merhaba", "tr", "de")
			if next.calls != 2 {
				t.Errorf("target language must be part of the key, calls=%d", next.calls)
			}
		})
	}
}

func TestCached_ErrorsNotCached(t *testing.T) {
	cache, _ := NewLRUCache(4)
	next := &countingTranslator{err: errors.New("boom")}
	tr := NewCached(next, cache, nil)

	if _, err := tr.Translate(context.Background(), "merhaba", "tr", "en"); err == nil {
		t.Fatal("expected error")
	}
	if cache.Len() != 0 {
		t.Error("failed translations must not be cached")
	}
}

func TestCached_RedisDownFallsThrough(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute)
	mr.Close()

	next := &countingTranslator{}
	tr := NewCached(next, cache, nil)

	got, err := tr.Translate(context.Background(), "merhaba", "tr", "en")
	if err != nil || got != "en:merhaba" {
		t.Fatalf("got %q, %v", got, err)
	}
}
