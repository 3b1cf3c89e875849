package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache provides short-TTL caching of USD token prices in Redis.
// Keys: price:<mint>. A cache miss is not an error condition; callers fall
// through to the oracle.
type PriceCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewPriceCache creates a new price cache
func NewPriceCache(redis *RedisCache, ttl time.Duration) *PriceCache {
	return &PriceCache{
		redis: redis,
		ttl:   ttl,
	}
}

// Key builds the cache key for a token mint
func (c *PriceCache) Key(mint string) string {
	return "price:" + strings.ToLower(mint)
}

// Get returns the cached price for a mint and whether it was present
func (c *PriceCache) Get(ctx context.Context, mint string) (float64, bool) {
	value, err := c.redis.Get(ctx, c.Key(mint))
	if err != nil {
		// redis.Nil means miss; anything else degrades to a miss too
		if err != redis.Nil {
			return 0, false
		}
		return 0, false
	}

	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}

	return price, true
}

// Set stores a price with the configured TTL
func (c *PriceCache) Set(ctx context.Context, mint string, price float64) error {
	value := strconv.FormatFloat(price, 'f', -1, 64)
	if err := c.redis.Set(ctx, c.Key(mint), value, c.ttl); err != nil {
		return fmt.Errorf("failed to cache price for %s: %w", mint, err)
	}
	return nil
}

// PlanLockKey builds the per-wallet plan creation lock key
func PlanLockKey(publicKey string) string {
	return "planlock:" + publicKey
}
