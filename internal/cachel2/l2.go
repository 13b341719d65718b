// Package cachel2 implements the out-of-process, TTL-bounded shared cache.
// It is the L2 layer of the cascade: every operation is best-effort — a
// down or slow Redis degrades to cache misses, it never surfaces a
// transport error to a caller.
package cachel2

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	mnemoerrors "github.com/giak/mnemolite/internal/errors"
)

// Stats reports the L2 layer's observed counters.
type Stats struct {
	Type    string `json:"type"`
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Failures int64 `json:"failures"`
}

// Cache wraps a redis client behind the §4.3 contract. Nil values and
// connection errors are both reported as a plain miss; the circuit breaker
// keeps a persistently unreachable Redis from adding dial-timeout latency
// to every single call.
type Cache struct {
	client  *redis.Client
	breaker *mnemoerrors.CircuitBreaker

	hits, misses, failures int64
}

// Config configures the Redis connection backing L2.
type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int // connection pool cap, §6.6 l2.max_connections
}

// New connects to Redis per cfg. The connection itself is not verified
// here — the first call through Get/Set discovers reachability and trips
// the breaker if necessary.
func New(cfg Config) *Cache {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})
	return &Cache{
		client:  client,
		breaker: mnemoerrors.NewCircuitBreaker("cachel2.redis", mnemoerrors.WithMaxFailures(5), mnemoerrors.WithResetTimeout(30*time.Second)),
	}
}

// NewWithClient wraps an already-constructed redis client, mainly so tests
// can point at miniredis or a fake.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{
		client:  client,
		breaker: mnemoerrors.NewCircuitBreaker("cachel2.redis", mnemoerrors.WithMaxFailures(5), mnemoerrors.WithResetTimeout(30*time.Second)),
	}
}

// Get returns (value, true) on hit, (nil, false) on miss or any failure.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := mnemoerrors.CircuitExecuteWithResult(c.breaker,
		func() ([]byte, error) {
			return c.client.Get(ctx, key).Bytes()
		},
		func() ([]byte, error) {
			return nil, mnemoerrors.ErrCircuitOpen
		},
	)
	if err != nil {
		if err == redis.Nil {
			c.misses++
			return nil, false
		}
		c.failures++
		c.misses++
		return nil, false
	}
	c.hits++
	return val, true
}

// Set writes value under key with the given TTL. Returns false on any
// failure; never returns an error.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	err := c.breaker.Execute(func() error {
		return c.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		c.failures++
		return false
	}
	return true
}

// Delete removes a single key. Returns false on any failure.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	err := c.breaker.Execute(func() error {
		return c.client.Del(ctx, key).Err()
	})
	if err != nil {
		c.failures++
		return false
	}
	return true
}

// DeletePattern deletes every key matching a glob pattern (e.g.
// "chunks:foo/bar.go:*"), using SCAN to avoid blocking Redis with KEYS.
// Returns false if the scan or the delete failed; a pattern matching zero
// keys is still success.
func (c *Cache) DeletePattern(ctx context.Context, pattern string) bool {
	ok := true
	err := c.breaker.Execute(func() error {
		iter := c.client.Scan(ctx, 0, pattern, 1000).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(keys) == 0 {
			return nil
		}
		return c.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		c.failures++
		ok = false
	}
	return ok
}

// Stats returns the observed hit/miss/failure counters since boot.
func (c *Cache) Stats() Stats {
	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Type:     "L2",
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  rate,
		Failures: c.failures,
	}
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the underlying redis client for components (e.g. the
// distributed lock, §4.10) that need the same connection.
func (c *Cache) Client() *redis.Client {
	return c.client
}
