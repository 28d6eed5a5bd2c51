// Package redis wraps go-redis/v9 for the result cache: string get/set with
// TTL and pattern-scoped invalidation.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/resilience"
	"github.com/redis/go-redis/v9"
)

// scanBatch is both the SCAN COUNT hint and the UNLINK batch size.
const scanBatch = 256

type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings, retrying so a Redis container started
// alongside polyd has time to come up.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	c := &Client{rdb: redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})}
	err := resilience.Retry(ctx, "redis-ping", resilience.RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		AttemptTimeout: 2 * time.Second,
	}, c.Ping)
	if err != nil {
		c.rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return c, nil
}

// Get returns redis.Nil (see IsNilError) when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// FlushByPattern removes every key matching the glob pattern and returns how
// many were removed. SCAN keeps Redis responsive on large keyspaces and
// UNLINK frees memory off the main thread.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var removed int64
	keys := make([]string, 0, scanBatch)
	unlink := func() error {
		if len(keys) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, keys...).Result()
		removed += n
		keys = keys[:0]
		return err
	}

	it := c.rdb.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for it.Next(ctx) {
		if keys = append(keys, it.Val()); len(keys) == scanBatch {
			if err := unlink(); err != nil {
				return removed, fmt.Errorf("unlinking %s: %w", pattern, err)
			}
		}
	}
	if err := it.Err(); err != nil {
		return removed, fmt.Errorf("scanning %s: %w", pattern, err)
	}
	if err := unlink(); err != nil {
		return removed, fmt.Errorf("unlinking %s: %w", pattern, err)
	}
	return removed, nil
}

// IsNilError reports whether err means "no such key".
func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
