// Command indexer builds the index used for retrieval and feedback. With
// -corpus it bulk loads a JSON lines file and exits; otherwise it consumes
// the document ingest topic until stopped.
//
// Usage:
//
//	go run ./cmd/indexer -corpus docs.jsonl [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	corpus := flag.String("corpus", "", "JSON lines corpus to bulk load")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	analyzer, err := indexer.NewAnalyzer(cfg.Indexer)
	if err != nil {
		slog.Error("failed to build analyzer", "error", err)
		os.Exit(1)
	}
	engine, err := indexer.NewEngine(cfg.Indexer, analyzer)
	if err != nil {
		slog.Error("failed to open index", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("starting indexer",
		"data_dir", cfg.Indexer.DataDir,
		"stemmer", cfg.Indexer.Stemmer,
		"documents", engine.DocumentCount(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		metricsSrv, err := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		if err != nil {
			slog.Error("metrics server disabled", "error", err)
		} else {
			defer metricsSrv.Shutdown(context.Background())
		}
	}

	if *corpus != "" {
		if err := bulkLoad(ctx, engine, *corpus, m); err != nil {
			slog.Error("bulk load failed", "error", err)
			os.Exit(1)
		}
		return
	}

	engine.StartFlushLoop(ctx)
	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		consumer.HandleMessage(engine, m),
		kafka.FromFirstOffset(),
		kafka.WithHandlerRetry(resilience.RetryConfig{MaxAttempts: 3}),
	)
	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)
	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing index before shutdown")
	if err := engine.Flush(); err != nil {
		slog.Error("final flush failed", "error", err)
	}
	slog.Info("indexer stopped")
}

func bulkLoad(ctx context.Context, engine *indexer.Engine, path string, m *metrics.Metrics) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	start := time.Now()
	stats, err := consumer.LoadJSONL(ctx, f, engine, m)
	if err != nil {
		return err
	}
	if err := engine.Flush(); err != nil {
		return fmt.Errorf("flushing index: %w", err)
	}
	slog.Info("bulk load complete",
		"indexed", stats.Indexed,
		"duplicates", stats.Duplicates,
		"documents", engine.DocumentCount(),
		"collection_length", engine.CollectionLength(),
		"segments", engine.SegmentCount(),
		"elapsed", time.Since(start),
	)
	return nil
}
