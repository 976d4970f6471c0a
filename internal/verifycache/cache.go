// Package verifycache remembers recently verified access tokens so a
// burst of navigations does not hit the backend's verify endpoint on
// every page. Only positive results are stored; a denied token is
// re-checked every time.
package verifycache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// New connects to Redis. With an empty addr it returns nil; a nil
// Cache misses on every lookup, so the gatekeeper falls back to a
// remote verify per navigation.
func New(addr, password string, db int, ttl time.Duration, log *slog.Logger) *Cache {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn("unable to reach redis, verify caching degraded", "error", err)
	}
	return &Cache{client: client, ttl: ttl, log: log}
}

// Seen reports whether the token was verified within the TTL.
func (c *Cache) Seen(ctx context.Context, token string) bool {
	if c == nil {
		return false
	}
	n, err := c.client.Exists(ctx, key(token)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Store records a positive verification.
func (c *Cache) Store(ctx context.Context, token string) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, key(token), "1", c.ttl).Err(); err != nil {
		c.log.Warn("verify cache store failed", "error", err)
	}
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Tokens are credentials; only their hash is usable as a cache key.
func key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "verify:" + hex.EncodeToString(sum[:])
}
