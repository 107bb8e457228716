// Package cache stores final search results in Redis, keyed by the
// compiled query. Concurrent misses for one key are computed once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

// keyPrefix is bumped whenever the cached SearchResult shape changes.
const keyPrefix = "search:v3:"

type QueryCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(client *pkgredis.Client, cfg config.RedisConfig) *QueryCache {
	return &QueryCache{
		client: client,
		ttl:    cfg.CacheTTL,
		logger: slog.Default().With("component", "query-cache"),
	}
}

// Get looks up a result. Every failure, including a Redis outage, is a miss.
func (c *QueryCache) Get(ctx context.Context, q string, params query.Params) (*executor.SearchResult, bool) {
	key := buildKey(q, params)
	result, err := c.load(ctx, key)
	if err != nil {
		c.misses.Add(1)
		switch {
		case pkgredis.IsNilError(err):
		case errors.Is(err, resilience.ErrCircuitOpen):
			c.logger.Debug("cache bypassed", "error", err)
		default:
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	c.hits.Add(1)
	return result, true
}

func (c *QueryCache) load(ctx context.Context, key string) (*executor.SearchResult, error) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("decoding cached result: %w", err)
	}
	return &result, nil
}

// Set stores result for the configured TTL. Failures are logged only.
func (c *QueryCache) Set(ctx context.Context, q string, params query.Params, result *executor.SearchResult) {
	key := buildKey(q, params)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for q run with params, or runs
// compute once for all concurrent callers sharing the key and caches its
// result. The boolean reports a cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	q string,
	params query.Params,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, q, params); ok {
		return result, true, nil
	}
	shared := context.WithoutCancel(ctx)
	val, err, _ := c.group.Do(buildKey(q, params), func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(shared, q, params, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*executor.SearchResult), false, nil
}

// Invalidate drops every cached result, typically after an index update.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// buildKey hashes the compiled query text and the request parameters in
// key order, so equivalent inputs that transform to the same tree share an
// entry and a different mu or limit never does.
func buildKey(q string, params query.Params) string {
	h := sha256.New()
	h.Write([]byte(q))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(strconv.FormatFloat(params[k], 'g', -1, 64)))
	}
	return keyPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}
