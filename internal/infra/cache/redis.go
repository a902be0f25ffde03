package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"tg-collector-bot/internal/domain"
	"tg-collector-bot/internal/infra/metrics"
)

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client redis.UniversalClient
}

// NewRedis создаёт кэш.
func NewRedis(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Once выполняет функцию, если ключ ещё не задан.
func (c *RedisCache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "cache", start, err)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(context.WithoutCancel(ctx), key).Err()
		return true, err
	}
	return true, nil
}

// Set задаёт значение.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "set", "cache", start, err)
	return err
}

// Get возвращает значение или domain.ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := c.client.Get(ctx, key).Bytes()
	metrics.ObserveNetworkRequest("redis", "get", "cache", start, ignoreNil(err))
	return value, mapMiss(err)
}

// Take атомарно читает и удаляет значение.
func (c *RedisCache) Take(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, err := c.client.GetDel(ctx, key).Bytes()
	metrics.ObserveNetworkRequest("redis", "getdel", "cache", start, ignoreNil(err))
	return value, mapMiss(err)
}

// Del удаляет ключ.
func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// Incr увеличивает счётчик; окно отсчитывается от первого инкремента.
func (c *RedisCache) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	start := time.Now()
	n, err := c.client.Incr(ctx, key).Result()
	metrics.ObserveNetworkRequest("redis", "incr", "cache", start, err)
	if err != nil {
		return 0, err
	}
	if n == 1 && window > 0 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Exists сообщает, задан ли ключ.
func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func mapMiss(err error) error {
	if errors.Is(err, redis.Nil) {
		return domain.ErrCacheMiss
	}
	return err
}

func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

var _ domain.Cache = (*RedisCache)(nil)
