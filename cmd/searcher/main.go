// Command searcher serves ranked retrieval over HTTP with optional
// pseudo-relevance feedback expansion per request.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service", "port", cfg.Server.Port, "scorer", cfg.Search.Scorer)

	exec, engine, err := executor.Open(cfg)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("index opened",
		"data_dir", cfg.Indexer.DataDir,
		"documents", engine.DocumentCount(),
		"segments", engine.SegmentCount(),
	)

	model, err := feedback.NewFromConfig(exec, cfg.Feedback, engine.Analyzer().Stemmer, cfg.Tracing.Enabled)
	if err != nil {
		slog.Error("failed to build expansion model", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis)
			m.TrackBreaker(redisClient.Breaker())
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExpansionEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.ExpansionEvents)
	}

	if cfg.Metrics.Enabled {
		metricsSrv, err := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		if err != nil {
			slog.Error("metrics server disabled", "error", err)
		} else {
			defer metricsSrv.Shutdown(context.Background())
		}
	}

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		if engine.Closed() {
			return health.ComponentHealth{Status: health.StatusDown, Message: "engine closed"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents in %d segments", engine.DocumentCount(), engine.SegmentCount()),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
	}

	h := handler.New(exec, model, queryCache, collector, m, handler.Config{
		DefaultLimit:    cfg.Search.DefaultLimit,
		MaxResults:      cfg.Search.MaxResults,
		ExpandByDefault: cfg.Batch.Expand,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limiter := ratelimit.New(rl.Burst, rl.Window)
		defer limiter.Close()
		chain = middleware.RateLimit(limiter, expansionCost(cfg.Batch.Expand, rl.ExpandCost))(chain)
		slog.Info("rate limiting enabled", "burst", rl.Burst, "window", rl.Window)
	}
	chain = middleware.CORS(cfg.Server.CORSOrigins)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

// expansionCost charges expanded searches more than plain ones.
func expansionCost(expandByDefault bool, cost int) middleware.CostFunc {
	return func(r *http.Request) int {
		expand := expandByDefault
		if v, err := strconv.ParseBool(r.URL.Query().Get("expand")); err == nil {
			expand = v
		}
		if expand && cost > 1 {
			return cost
		}
		return 1
	}
}
