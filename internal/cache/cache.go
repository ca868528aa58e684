// internal/cache/cache.go
package cache

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a fire-and-forget key-value accelerator. Implementations swallow
// their own failures: a broken cache degrades to always-miss and must never
// fail a request.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Del(ctx context.Context, keys ...string)
}

// New returns a Redis-backed cache, or a no-op one when addr is empty.
func New(addr string) Cache {
	if addr == "" {
		log.Println("No redis address configured, caching disabled.")
		return Noop{}
	}
	return &Redis{client: redis.NewClient(&redis.Options{Addr: addr})}
}

type Redis struct {
	client *redis.Client
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache get %s: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		log.Printf("cache set %s: %v", key, err)
	}
}

func (r *Redis) Del(ctx context.Context, keys ...string) {
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache del %v: %v", keys, err)
	}
}

// Noop is used when no cache is configured; every read misses.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }

func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {}

func (Noop) Del(ctx context.Context, keys ...string) {}
