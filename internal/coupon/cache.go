package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "coupon:code:"

// Cache keeps coupon records as JSON in Redis keyed by normalised code.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// Get loads a cached coupon. It reports whether the key existed.
func (c *Cache) Get(ctx context.Context, code string) (Coupon, bool, error) {
	if c == nil || c.client == nil || code == "" {
		return Coupon{}, false, nil
	}
	data, err := c.client.Get(ctx, cacheKeyPrefix+code).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Coupon{}, false, nil
		}
		return Coupon{}, false, err
	}
	var out Coupon
	if err := json.Unmarshal(data, &out); err != nil {
		return Coupon{}, false, err
	}
	return out, true, nil
}

// Set stores the coupon with the configured TTL.
func (c *Cache) Set(ctx context.Context, cp Coupon) error {
	if c == nil || c.client == nil || cp.Code == "" {
		return nil
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+cp.Code, data, c.ttl).Err()
}

// Evict removes cached entries for the given codes.
func (c *Cache) Evict(ctx context.Context, codes ...string) error {
	if c == nil || c.client == nil || len(codes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		if code != "" {
			keys = append(keys, cacheKeyPrefix+code)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
