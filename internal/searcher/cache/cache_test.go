package cache

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/redis"
)

func TestBuildKey(t *testing.T) {
	q := "#combine(#term(apple))"
	limit10 := query.Params{query.ParamRequested: 10}
	a := buildKey(q, limit10)
	if a != buildKey(q, query.Params{query.ParamRequested: 10}) {
		t.Error("key is not deterministic")
	}
	if a == buildKey(q, query.Params{query.ParamRequested: 20}) {
		t.Error("limit is not part of the key")
	}
	if a == buildKey("#combine(#term(apple)", query.Params{query.ParamRequested: 110}) {
		t.Error("query and params are not separated in the key")
	}
	if a[:len(keyPrefix)] != keyPrefix {
		t.Errorf("key %q lacks prefix", a)
	}
}

func TestBuildKeyIncludesScoringParams(t *testing.T) {
	q := "#combine(#term(apple))"
	base := query.Params{query.ParamRequested: 10}
	withMu := base.With(query.ParamMu, 500)
	if buildKey(q, base) == buildKey(q, withMu) {
		t.Error("mu is not part of the key")
	}
	if buildKey(q, withMu) == buildKey(q, base.With(query.ParamMu, 2500)) {
		t.Error("different mu values share a key")
	}
	// Map iteration order must not matter.
	x := query.Params{query.ParamMu: 500, query.ParamFbDocs: 5, query.ParamRequested: 10}
	y := query.Params{query.ParamRequested: 10, query.ParamFbDocs: 5, query.ParamMu: 500}
	for i := 0; i < 20; i++ {
		if buildKey(q, x) != buildKey(q, y) {
			t.Fatal("key depends on parameter order")
		}
	}
}

func newRedisCache(t *testing.T) *QueryCache {
	t.Helper()
	addr := os.Getenv("PRF_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	cfg := config.RedisConfig{Addr: addr, PoolSize: 2, CacheTTL: time.Minute}
	client, err := pkgredis.NewClient(cfg)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	c := New(client, cfg)
	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c := newRedisCache(t)
	ctx := context.Background()
	var calls atomic.Int32
	compute := func() (*executor.SearchResult, error) {
		calls.Add(1)
		return &executor.SearchResult{
			Query:   "#combine(#term(apple))",
			Results: []ranker.ScoredDoc{{DocID: "d1", Score: -1.5}},
		}, nil
	}
	if _, hit, err := c.GetOrCompute(ctx, "#combine(#term(apple))", query.Params{query.ParamRequested: 10}, compute); err != nil || hit {
		t.Fatalf("first call hit=%v err=%v", hit, err)
	}
	res, hit, err := c.GetOrCompute(ctx, "#combine(#term(apple))", query.Params{query.ParamRequested: 10}, compute)
	if err != nil || !hit {
		t.Fatalf("second call hit=%v err=%v", hit, err)
	}
	if calls.Load() != 1 || res.Results[0].DocID != "d1" {
		t.Errorf("calls=%d result=%+v", calls.Load(), res)
	}
	hits, misses := c.Stats()
	if hits == 0 || misses == 0 {
		t.Errorf("Stats() = %d, %d", hits, misses)
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := newRedisCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "q", nil, func() (*executor.SearchResult, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, ok := c.Get(context.Background(), "q", nil); ok {
		t.Error("failed computation was cached")
	}
}
