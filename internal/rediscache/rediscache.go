// Package rediscache provides a namespaced JSON cache over go-redis,
// grounded on the teacher's internal/queue/redisclient client. The only
// instance built is the analytics cache (AnalyticsTTL, 5m). SettingsTTL
// (1h) is defined, but no settings cache is constructed; settings are
// read from Postgres on every call.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	SettingsTTL  = time.Hour
	AnalyticsTTL = 5 * time.Minute
)

type Cache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) Set(ctx context.Context, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), raw, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, c.key(key)).Err()
}

// InvalidatePrefix removes every key in this cache's namespace; used by
// the ingestor's "invalidate analytics cache" step (§4.6 step 11) when a
// single lead's key isn't known up front.
func (c *Cache) InvalidatePrefix(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, c.prefix+":*", 0).Iterator()
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
	return c.rdb.Del(ctx, keys...).Err()
}
