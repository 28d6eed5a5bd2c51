// Package cache memoises computation results in Redis. Keys are derived from
// the canonical text of the operands, so a named operand and the same
// polynomial sent inline share an entry. Redis failures never fail a
// computation: they count as misses, and a circuit breaker stops calling
// Redis while it is unhealthy.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/polynomial-engine/pkg/resilience"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "poly:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Stats reports cache effectiveness since start-up.
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
	Breaker string  `json:"breaker"`

	BreakerRejections int64 `json:"breaker_rejections"`
}

// Cache is a Redis-backed result cache with request coalescing.
type Cache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.CircuitBreaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a Cache. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *Cache {
	c := &Cache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
	c.breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     10 * time.Second,
		IsFailure: func(err error) bool {
			return err != nil && !pkgredis.IsNilError(err) && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Key builds the cache key for an operation over the given canonical parts.
func Key(op string, parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%d:%s;", len(part), part)
	}
	return fmt.Sprintf("%s%s:%x", keyPrefix, op, h.Sum(nil)[:16])
}

// GetOrCompute returns the cached value for key, or runs compute, caches its
// result and returns it. Concurrent misses on one key share a single compute
// call. The boolean reports a cache hit. A nil cache always computes.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute(ctx)
		return v, false, err
	}
	var out T
	if c.get(ctx, key, &out) {
		c.recordHit()
		return out, true, nil
	}
	c.recordMiss()

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		var cached T
		if c.get(ctx, key, &cached) {
			return cached, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	data, err := resilience.Do(c.breaker, func() (string, error) {
		return c.backend.Get(ctx, key)
	})
	if pkgredis.IsNilError(err) {
		return false
	}
	if err != nil {
		c.logFailure("cache get failed", key, err)
		return false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *Cache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logFailure("cache set failed", key, err)
	}
}

func (c *Cache) logFailure(msg, key string, err error) {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Debug(msg, "key", key, "error", err)
		return
	}
	c.logger.Warn(msg, "key", key, "error", err)
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *Cache) recordMiss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// Invalidate deletes every result entry and returns how many were removed.
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	// Redis answered, so stop bypassing it.
	if c.breaker.State() != resilience.StateClosed {
		c.breaker.Reset()
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats returns hit and miss counts and the breaker state.
func (c *Cache) Stats() Stats {
	counts := c.breaker.Counts()
	s := Stats{
		Hits:              c.hits.Load(),
		Misses:            c.misses.Load(),
		Breaker:           counts.State.String(),
		BreakerRejections: counts.Rejected,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
