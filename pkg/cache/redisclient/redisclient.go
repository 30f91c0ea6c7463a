// Package redisclient implements [cache.Cache] on top of go-redis, used both
// as the hot message cache and (via a distinct key namespace) for
// orchestrator checkpoint storage.
package redisclient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenforge/tutorcore/pkg/cache"
)

// Client adapts a *redis.Client to [cache.Cache].
type Client struct {
	rdb *redis.Client
}

var _ cache.Cache = (*Client)(nil)

// New connects to addr (a redis:// URL or bare host:port) and pings it to
// verify connectivity before returning.
func New(ctx context.Context, addr string) (*Client, error) {
	var opts *redis.Options
	var err error
	if strings.Contains(addr, "://") {
		opts, err = redis.ParseURL(addr)
		if err != nil {
			return nil, err
		}
	} else {
		opts = &redis.Options{Addr: addr}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &Client{rdb: rdb}, nil
}

// NewFromRedisClient wraps an already-constructed *redis.Client, e.g. one
// pointed at a miniredis instance in tests.
func NewFromRedisClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cache.ErrMiss
	}
	return b, err
}

func (c *Client) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, key).Err()
}

func (c *Client) PushTrim(ctx context.Context, key string, value []byte, maxLen int, ttl time.Duration) error {
	pipe := c.rdb.TxPipeline()
	pipe.RPush(ctx, key, value)
	pipe.LTrim(ctx, key, int64(-maxLen), -1)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Client) Range(ctx context.Context, key string, limit int) ([][]byte, error) {
	n, err := c.rdb.LLen(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, cache.ErrMiss
	}
	start := int64(0)
	if limit > 0 && n > int64(limit) {
		start = n - int64(limit)
	}
	vals, err := c.rdb.LRange(ctx, key, start, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() error { return c.rdb.Close() }
