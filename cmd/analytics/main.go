// Command analytics aggregates query expansion events from Kafka and serves
// the totals over HTTP at /api/v1/analytics and /api/v1/analytics/expansions.
// With runlog enabled the aggregate is snapshotted to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator(nil)
	agg.Attach(kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.ExpansionEvents,
		analytics.HandleEvent(agg),
		kafka.WithGroup(cfg.Kafka.ConsumerGroup+"-analytics"),
	))

	m := metrics.New(prometheus.DefaultRegisterer)
	checker := health.NewChecker()
	checker.Register("kafka", agg.ConsumerCheck(cfg.Analytics.MaxConsumerLag))

	if cfg.RunLog.Enabled {
		db, err := postgres.Connect(ctx, cfg.Postgres, resilience.RetryConfig{MaxAttempts: 5})
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := aggregator.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare snapshot table", "error", err)
			os.Exit(1)
		}
		if last, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not load last snapshot", "error", err)
		} else if last != nil {
			slog.Info("previous snapshot found",
				"total_expansions", last.TotalExpansions,
				"fell_back", last.FellBack,
			)
		}
		m.TrackBreaker(store.Breaker())
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.Ping, false))
	}

	go func() {
		if err := agg.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.ExpansionEvents)

	analyticsHandler := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/expansions", analyticsHandler.Expansions)
	mux.HandleFunc("GET /api/v1/analytics/terms", analyticsHandler.Terms)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
