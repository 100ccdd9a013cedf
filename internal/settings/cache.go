package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nvoloshin/callmeter/internal/logger"
	"github.com/nvoloshin/callmeter/internal/pricing"
	"github.com/nvoloshin/callmeter/internal/repository"
)

const (
	KeyCoinsPerMinute = "coins_per_minute"

	cachePrefix = "callmeter:settings:"
	defaultTTL  = 5 * time.Minute
)

// redisClient is the slice of go-redis the cache needs. Satisfied by
// *redis.Client, fakeable in tests.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache is a read-through cache over the platform settings store. Redis
// failures degrade to direct reads, they never fail a settlement pass.
// Invalidate is the explicit hook the settings collaborator calls after a
// rate change.
type Cache struct {
	rdb    redisClient
	repo   repository.SettingsRepo
	ttl    time.Duration
	logger logger.Logger
}

func NewCache(rdb redisClient, repo repository.SettingsRepo, l logger.Logger) *Cache {
	return &Cache{
		rdb:    rdb,
		repo:   repo,
		ttl:    defaultTTL,
		logger: l,
	}
}

// CoinsPerMinute returns the platform-wide base coin rate. A missing setting
// falls back to the pricing default; a storage error is returned so the
// caller can defer billing to the next tick.
func (c *Cache) CoinsPerMinute(ctx context.Context) (int64, error) {
	value, err := c.get(ctx, KeyCoinsPerMinute)
	if err != nil {
		return 0, err
	}
	if value == "" {
		return pricing.DefaultCoinsPerMinute, nil
	}

	coins, err := strconv.ParseInt(value, 10, 64)
	if err != nil || coins <= 0 {
		c.logger.Warn("Unusable coins_per_minute setting, using default", "value", value)
		return pricing.DefaultCoinsPerMinute, nil
	}

	return coins, nil
}

// Invalidate drops every cached setting so the next read hits the store.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}

	if err := c.rdb.Del(ctx, cachePrefix+KeyCoinsPerMinute).Err(); err != nil {
		return fmt.Errorf("settings cache invalidation failed: %w", err)
	}

	return nil
}

func (c *Cache) get(ctx context.Context, key string) (string, error) {
	if c.rdb != nil {
		value, err := c.rdb.Get(ctx, cachePrefix+key).Result()
		switch {
		case err == nil:
			return value, nil
		case errors.Is(err, redis.Nil):
			// cache miss, read through
		default:
			c.logger.Warn("Settings cache read failed, reading through", "key", key, "error", err)
		}
	}

	value, ok, err := c.repo.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("settings read failed: %w", err)
	}
	if !ok {
		return "", nil
	}

	if c.rdb != nil {
		if err := c.rdb.Set(ctx, cachePrefix+key, value, c.ttl).Err(); err != nil {
			c.logger.Warn("Settings cache write failed", "key", key, "error", err)
		}
	}

	return value, nil
}
