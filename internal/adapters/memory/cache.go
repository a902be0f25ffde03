package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"tg-collector-bot/internal/domain"
)

// Cache реализует domain.Cache в памяти процесса.
type Cache struct {
	mu    sync.Mutex
	items map[string]cacheItem
	now   func() time.Time
}

type cacheItem struct {
	value   []byte
	expires time.Time
}

// NewCache создаёт кэш.
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheItem), now: time.Now}
}

func (c *Cache) live(key string) (cacheItem, bool) {
	item, ok := c.items[key]
	if !ok {
		return cacheItem{}, false
	}
	if !item.expires.IsZero() && !c.now().Before(item.expires) {
		delete(c.items, key)
		return cacheItem{}, false
	}
	return item, true
}

func (c *Cache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// Once реализует domain.Cache.
func (c *Cache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	c.mu.Lock()
	if _, ok := c.live(key); ok {
		c.mu.Unlock()
		return false, nil
	}
	c.items[key] = cacheItem{value: []byte("1"), expires: c.expiry(ttl)}
	c.mu.Unlock()

	if err := fn(); err != nil {
		_ = c.Del(ctx, key)
		return true, err
	}
	return true, nil
}

// Set реализует domain.Cache.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{value: append([]byte(nil), value...), expires: c.expiry(ttl)}
	return nil
}

// Get реализует domain.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.live(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), item.value...), nil
}

// Take реализует domain.Cache.
func (c *Cache) Take(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.live(key)
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	delete(c.items, key)
	return item.value, nil
}

// Del реализует domain.Cache.
func (c *Cache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Incr реализует domain.Cache.
func (c *Cache) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.live(key)
	if !ok {
		c.items[key] = cacheItem{value: []byte("1"), expires: c.expiry(window)}
		return 1, nil
	}
	n, err := strconv.ParseInt(string(item.value), 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	item.value = []byte(strconv.FormatInt(n, 10))
	c.items[key] = item
	return n, nil
}

// Exists реализует domain.Cache.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.live(key)
	return ok, nil
}

var _ domain.Cache = (*Cache)(nil)
