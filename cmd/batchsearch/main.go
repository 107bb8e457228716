// Command batchsearch expands and runs every query of a TSV query file and
// writes a TREC run file.
//
// Usage:
//
//	go run ./cmd/batchsearch -queries topics.tsv -out run.trec [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/batch"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	queryFile := flag.String("queries", "", "TSV query file (overrides batch.queryFile)")
	outFile := flag.String("out", "", "TREC output file (overrides batch.outputFile)")
	appendOut := flag.Bool("append", false, "append to the output file instead of truncating it")
	noExpand := flag.Bool("no-expand", false, "run the queries without expansion")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *queryFile != "" {
		cfg.Batch.QueryFile = *queryFile
	}
	if *outFile != "" {
		cfg.Batch.OutputFile = *outFile
	}
	if *appendOut {
		cfg.Batch.Append = true
	}
	if *noExpand {
		cfg.Batch.Expand = false
	}

	logger.SetupWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("batch search failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if cfg.Batch.QueryFile == "" || cfg.Batch.OutputFile == "" {
		return fmt.Errorf("both a query file and an output file are required")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queries, err := batch.ReadQueryFile(cfg.Batch.QueryFile)
	if err != nil {
		return err
	}

	exec, engine, err := executor.Open(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()
	slog.Info("index opened",
		"data_dir", cfg.Indexer.DataDir,
		"documents", engine.DocumentCount(),
		"segments", engine.SegmentCount(),
	)

	model, err := feedback.NewFromConfig(exec, cfg.Feedback, engine.Analyzer().Stemmer, cfg.Tracing.Enabled)
	if err != nil {
		return err
	}

	out, err := batch.OpenResultWriter(cfg.Batch.OutputFile, cfg.Batch.Append, cfg.Batch.RunTag)
	if err != nil {
		return err
	}
	defer out.Close()

	runner := batch.NewRunner(exec, model, batch.OptionsFromConfig(cfg.Batch))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		runner.WithMetrics(m)
		metricsSrv, err := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		if err != nil {
			return err
		}
		defer metricsSrv.Shutdown(context.Background())
	}

	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ExpansionEvents)
		defer producer.Close()
		analyticsCtx, cancel := context.WithCancel(context.Background())
		events := collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		events.Start(analyticsCtx)
		defer func() {
			cancel()
			events.Close()
		}()
		runner.WithEvents(events)
	}

	if cfg.RunLog.Enabled {
		db, err := postgres.Connect(ctx, cfg.Postgres, resilience.RetryConfig{MaxAttempts: 5})
		if err != nil {
			return fmt.Errorf("connecting run log database: %w", err)
		}
		defer db.Close()
		store := runlog.NewStore(db, cfg.RunLog.WriteTimeout)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		m.TrackBreaker(store.Breaker())
		runner.WithRecorder(store)
	}

	sum, err := runner.Run(ctx, queries, out)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	slog.Info("batch search complete",
		"run_id", sum.RunID,
		"queries", sum.Queries,
		"expanded", sum.Expanded,
		"fell_back", sum.FellBack,
		"skipped", sum.Skipped,
		"results", sum.Results,
		"output", cfg.Batch.OutputFile,
		"elapsed", sum.Elapsed,
	)
	return nil
}
