package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
)

// Retrieval is the part of the engine the runner executes against.
type Retrieval interface {
	TransformQuery(ctx context.Context, root *query.Node, params query.Params) (*query.Node, error)
	ExecuteQuery(ctx context.Context, root *query.Node, params query.Params) ([]ranker.ScoredDoc, error)
}

// EventSink receives one expansion event per query.
// *collector.BatchCollector implements it.
type EventSink interface {
	TrackExpansion(ctx context.Context, event analytics.ExpansionEvent)
}

// RunRecorder persists one query of a run. *runlog.Store implements it.
type RunRecorder interface {
	Record(ctx context.Context, rec runlog.Record) error
}

type Options struct {
	// Expand runs the expansion model before execution.
	Expand    bool
	Requested int
	// QueryParams are applied to every query.
	QueryParams map[string]float64
	RunID       string
}

func OptionsFromConfig(cfg config.BatchConfig) Options {
	return Options{
		Expand:      cfg.Expand,
		Requested:   cfg.Requested,
		QueryParams: cfg.QueryParams,
	}
}

// Summary counts what happened to the queries of one run.
type Summary struct {
	RunID    string
	Queries  int
	Expanded int
	FellBack int
	Skipped  int
	Results  int
	Elapsed  time.Duration
}

// Runner executes queries one at a time, in input order. The retrieval
// handle is borrowed; closing it is the caller's job.
type Runner struct {
	retrieval Retrieval
	expansion feedback.ExpansionModel
	opts      Options
	metrics   *metrics.Metrics
	events    EventSink
	recorder  RunRecorder
	logger    *slog.Logger
}

func NewRunner(retrieval Retrieval, expansion feedback.ExpansionModel, opts Options) *Runner {
	if opts.Requested <= 0 {
		opts.Requested = 1000
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	return &Runner{
		retrieval: retrieval,
		expansion: expansion,
		opts:      opts,
		logger:    slog.Default().With("component", "batch-runner", "run_id", opts.RunID),
	}
}

func (r *Runner) WithMetrics(m *metrics.Metrics) *Runner {
	r.metrics = m
	return r
}

func (r *Runner) WithEvents(sink EventSink) *Runner {
	r.events = sink
	return r
}

func (r *Runner) WithRecorder(rec RunRecorder) *Runner {
	r.recorder = rec
	return r
}

func (r *Runner) RunID() string {
	return r.opts.RunID
}

// Run processes queries and writes their rankings to w. A recoverable
// expansion failure falls back to the unexpanded query. Any other error
// stops the run and is returned.
func (r *Runner) Run(ctx context.Context, queries []Query, w *ResultWriter) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: r.opts.RunID}
	r.logger.Info("batch run started", "queries", len(queries), "expand", r.opts.Expand)

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("batch run cancelled: %w", err)
		}
		n, err := r.runQuery(ctx, q, w, &sum)
		if err != nil {
			return sum, fmt.Errorf("query %s (line %d): %w", q.ID, q.Line, err)
		}
		sum.Results += n
		sum.Queries++
	}
	if err := w.Flush(); err != nil {
		return sum, fmt.Errorf("flushing results: %w", err)
	}

	sum.Elapsed = time.Since(start)
	r.logger.Info("batch run finished",
		"queries", sum.Queries,
		"expanded", sum.Expanded,
		"fell_back", sum.FellBack,
		"skipped", sum.Skipped,
		"results", sum.Results,
		"elapsed", sum.Elapsed,
	)
	return sum, nil
}

func (r *Runner) params() query.Params {
	params := make(query.Params, len(r.opts.QueryParams)+1)
	for k, v := range r.opts.QueryParams {
		params[k] = v
	}
	params[query.ParamRequested] = float64(r.opts.Requested)
	return params
}

func (r *Runner) runQuery(ctx context.Context, q Query, w *ResultWriter, sum *Summary) (int, error) {
	ctx = logger.WithQueryID(ctx, q.ID)
	log := logger.FromContext(ctx)

	root, err := query.Parse(q.Text)
	if err != nil {
		log.Warn("skipping unparsable query", "text", q.Text, "error", err)
		sum.Skipped++
		return 0, nil
	}
	params := r.params()

	final, err := r.retrieval.TransformQuery(ctx, root, params)
	if err != nil {
		return 0, fmt.Errorf("transforming query: %w", err)
	}

	var res *feedback.Result
	var expansionLatency time.Duration
	if r.opts.Expand && r.expansion != nil {
		expStart := time.Now()
		res = r.expansion.Expand(ctx, root, params)
		expansionLatency = time.Since(expStart)
		switch {
		case res.OK():
			expanded, err := r.retrieval.TransformQuery(ctx, res.Query, params)
			if err != nil {
				return 0, fmt.Errorf("transforming expanded query: %w", err)
			}
			final = expanded
			sum.Expanded++
		case res.Recoverable():
			log.Warn("expansion failed, using original query",
				"state", res.FailedAt.String(),
				"error", res.Err,
			)
			sum.FellBack++
		default:
			return 0, fmt.Errorf("expanding query: %w", res.Err)
		}
	}

	docs, err := r.retrieval.ExecuteQuery(ctx, final, params)
	if err != nil {
		return 0, fmt.Errorf("executing query: %w", err)
	}
	if err := w.Write(q.ID, docs); err != nil {
		return 0, err
	}
	log.Debug("query finished", "query", final.String(), "results", len(docs))

	r.observe(ctx, q, res, expansionLatency, final, len(docs))
	return len(docs), nil
}

// observe feeds metrics, analytics and the run log. Failures here are
// logged and never fail the query.
func (r *Runner) observe(ctx context.Context, q Query, res *feedback.Result, latency time.Duration, final *query.Node, results int) {
	event := analytics.NewExpansionEvent(r.opts.RunID, q.ID, q.Text, res, latency)
	if r.metrics != nil {
		reason := ""
		if event.Outcome == analytics.OutcomeFellBack {
			reason = event.FailedAt
		}
		r.metrics.ObserveExpansion(event.Outcome, reason, event.Iterations, latency.Seconds())
		r.metrics.SearchResultsCount.Observe(float64(results))
	}
	if r.events != nil {
		r.events.TrackExpansion(ctx, event)
	}
	if r.recorder != nil {
		rec := runlog.Record{Event: event, FinalQuery: final.String(), Results: results}
		if err := r.recorder.Record(ctx, rec); err != nil {
			logger.FromContext(ctx).Error("run log write failed", "error", err)
		}
	}
}
