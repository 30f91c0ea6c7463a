// Package mock provides an in-memory test double for [cache.Cache].
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/lumenforge/tutorcore/pkg/cache"
)

// Cache is an in-memory, non-expiring stand-in for [cache.Cache]. TTLs are
// recorded but not enforced; tests that need expiry should assert against
// [Cache.TTLOf] instead of waiting on a clock.
type Cache struct {
	mu    sync.Mutex
	kv    map[string][]byte
	lists map[string][][]byte
	ttl   map[string]time.Duration

	GetErr      error
	SetErr      error
	DelErr      error
	PushTrimErr error
	RangeErr    error
}

var _ cache.Cache = (*Cache)(nil)

// New constructs an empty [Cache].
func New() *Cache {
	return &Cache{kv: make(map[string][]byte), lists: make(map[string][][]byte), ttl: make(map[string]time.Duration)}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.GetErr != nil {
		return nil, c.GetErr
	}
	v, ok := c.kv[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return v, nil
}

func (c *Cache) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SetErr != nil {
		return c.SetErr
	}
	c.kv[key] = value
	c.ttl[key] = ttl
	return nil
}

func (c *Cache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DelErr != nil {
		return c.DelErr
	}
	delete(c.kv, key)
	delete(c.lists, key)
	delete(c.ttl, key)
	return nil
}

func (c *Cache) PushTrim(ctx context.Context, key string, value []byte, maxLen int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PushTrimErr != nil {
		return c.PushTrimErr
	}
	list := append(c.lists[key], value)
	if len(list) > maxLen {
		list = list[len(list)-maxLen:]
	}
	c.lists[key] = list
	c.ttl[key] = ttl
	return nil
}

func (c *Cache) Range(ctx context.Context, key string, limit int) ([][]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RangeErr != nil {
		return nil, c.RangeErr
	}
	list, ok := c.lists[key]
	if !ok || len(list) == 0 {
		return nil, cache.ErrMiss
	}
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([][]byte, len(list))
	copy(out, list)
	return out, nil
}

// TTLOf returns the TTL most recently recorded for key, for test assertions.
func (c *Cache) TTLOf(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl[key]
}
