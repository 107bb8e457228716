// Package redis wraps go-redis/v9 for the search result cache. Calls go
// through a circuit breaker so an unreachable Redis costs one failed call
// per reset period instead of one per search.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

const unlinkBatch = 100

type Client struct {
	rdb     *redis.Client
	breaker *resilience.CircuitBreaker
}

// NewClient connects and verifies the connection with a PING.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{
		rdb: rdb,
		breaker: resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     10 * time.Second,
		}),
	}, nil
}

// Get returns redis.Nil, detectable with IsNilError, when key is absent. A
// miss does not count against the breaker.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	var val string
	var miss error
	err := c.breaker.Execute(func() error {
		v, err := c.rdb.Get(ctx, key).Result()
		if IsNilError(err) {
			miss = err
			return nil
		}
		val = v
		return err
	})
	if err != nil {
		return "", err
	}
	return val, miss
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.breaker.Execute(func() error {
		return c.rdb.Set(ctx, key, value, ttl).Err()
	})
}

// FlushByPattern unlinks every key matching the glob pattern and returns
// how many were removed.
func (c *Client) FlushByPattern(ctx context.Context, pattern string) (int64, error) {
	var deleted int64
	batch := make([]string, 0, unlinkBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := c.rdb.Unlink(ctx, batch...).Result()
		deleted += n
		batch = batch[:0]
		return err
	}

	iter := c.rdb.Scan(ctx, 0, pattern, unlinkBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == unlinkBatch {
			if err := flush(); err != nil {
				return deleted, fmt.Errorf("unlinking keys for %s: %w", pattern, err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scanning pattern %s: %w", pattern, err)
	}
	if err := flush(); err != nil {
		return deleted, fmt.Errorf("unlinking keys for %s: %w", pattern, err)
	}
	return deleted, nil
}

func IsNilError(err error) bool {
	return errors.Is(err, redis.Nil)
}

func (c *Client) Breaker() *resilience.CircuitBreaker {
	return c.breaker
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
