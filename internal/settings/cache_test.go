package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/nvoloshin/callmeter/internal/logger"
)

type fakeRedis struct {
	values map[string]string
	broken bool

	gets int
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.gets++
	if f.broken {
		return redis.NewStringResult("", errors.New("redis is down"))
	}

	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.broken {
		return redis.NewStatusResult("", errors.New("redis is down"))
	}

	f.values[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.broken {
		return redis.NewIntResult(0, errors.New("redis is down"))
	}

	for _, key := range keys {
		delete(f.values, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

type fakeRepo struct {
	values map[string]string
	err    error

	reads int
}

func (f *fakeRepo) Get(ctx context.Context, key string) (string, bool, error) {
	f.reads++
	if f.err != nil {
		return "", false, f.err
	}

	value, ok := f.values[key]
	return value, ok, nil
}

func (f *fakeRepo) Set(ctx context.Context, key string, value string) error {
	f.values[key] = value
	return nil
}

func TestCoinsPerMinute(t *testing.T) {
	t.Run("reads through and caches", func(t *testing.T) {
		rdb := &fakeRedis{values: map[string]string{}}
		repo := &fakeRepo{values: map[string]string{KeyCoinsPerMinute: "15"}}
		cache := NewCache(rdb, repo, logger.NewNoOpLogger())

		coins, err := cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(15), coins)
		require.Equal(t, 1, repo.reads)

		// second read comes from the cache
		coins, err = cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(15), coins)
		require.Equal(t, 1, repo.reads, "second read must hit the cache")
	})

	t.Run("missing setting uses default", func(t *testing.T) {
		cache := NewCache(&fakeRedis{values: map[string]string{}}, &fakeRepo{values: map[string]string{}}, logger.NewNoOpLogger())

		coins, err := cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(10), coins)
	})

	t.Run("garbage setting uses default", func(t *testing.T) {
		repo := &fakeRepo{values: map[string]string{KeyCoinsPerMinute: "banana"}}
		cache := NewCache(&fakeRedis{values: map[string]string{}}, repo, logger.NewNoOpLogger())

		coins, err := cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(10), coins)
	})

	t.Run("redis failure degrades to direct reads", func(t *testing.T) {
		repo := &fakeRepo{values: map[string]string{KeyCoinsPerMinute: "12"}}
		cache := NewCache(&fakeRedis{broken: true}, repo, logger.NewNoOpLogger())

		coins, err := cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(12), coins)
	})

	t.Run("storage failure is an error", func(t *testing.T) {
		repo := &fakeRepo{err: errors.New("db gone")}
		cache := NewCache(&fakeRedis{values: map[string]string{}}, repo, logger.NewNoOpLogger())

		_, err := cache.CoinsPerMinute(t.Context())
		require.Error(t, err)
	})

	t.Run("nil redis works without caching", func(t *testing.T) {
		repo := &fakeRepo{values: map[string]string{KeyCoinsPerMinute: "11"}}
		cache := NewCache(nil, repo, logger.NewNoOpLogger())

		coins, err := cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(11), coins)

		require.NoError(t, cache.Invalidate(t.Context()))
	})

	t.Run("invalidate forces a fresh read", func(t *testing.T) {
		rdb := &fakeRedis{values: map[string]string{}}
		repo := &fakeRepo{values: map[string]string{KeyCoinsPerMinute: "10"}}
		cache := NewCache(rdb, repo, logger.NewNoOpLogger())

		_, err := cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)

		repo.values[KeyCoinsPerMinute] = "20"
		require.NoError(t, cache.Invalidate(t.Context()))

		coins, err := cache.CoinsPerMinute(t.Context())
		require.NoError(t, err)
		require.Equal(t, int64(20), coins)
	})
}
