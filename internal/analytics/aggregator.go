package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
)

type AggregatedStats struct {
	TotalSearches     int64            `json:"total_searches"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	TotalExpansions   int64            `json:"total_expansions"`
	Expanded          int64            `json:"expanded"`
	FellBack          int64            `json:"fell_back"`
	NonConverged      int64            `json:"non_converged"`
	FailuresByState   map[string]int64 `json:"failures_by_state"`
	AvgIterations     float64          `json:"avg_iterations"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	TopExpansionTerms []QueryCount     `json:"top_expansion_terms"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of search and expansion events.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	zeroResults       atomic.Int64
	totalExpansions   atomic.Int64
	expanded          atomic.Int64
	fellBack          atomic.Int64
	nonConverged      atomic.Int64
	totalIterations   atomic.Int64
	latencies         []int64
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	termCounts        map[string]int64
	failuresByState   map[string]int64
	startTime         time.Time

	consumer *kafka.Consumer
	logger   *slog.Logger
}

// NewAggregator returns an empty aggregator. consumer may be nil when events
// are fed through Record directly.
func NewAggregator(consumer *kafka.Consumer) *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 10000),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		termCounts:        make(map[string]int64),
		failuresByState:   make(map[string]int64),
		startTime:         time.Now(),
		consumer:          consumer,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Attach sets the consumer that Start reads from.
func (a *Aggregator) Attach(consumer *kafka.Consumer) {
	a.consumer = consumer
}

func (a *Aggregator) Start(ctx context.Context) error {
	a.logger.Info("analytics aggregator starting")
	return a.consumer.Start(ctx)
}

// ConsumerCheck reports whether the attached consumer is fetching and how far
// it trails the topic. A lag above maxLag degrades the component; maxLag <= 0
// disables the bound.
func (a *Aggregator) ConsumerCheck(maxLag int64) health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		if a.consumer == nil {
			return consumerHealth(errors.New("no consumer attached"), 0, maxLag)
		}
		return consumerHealth(a.consumer.Ping(ctx), a.consumer.Lag(), maxLag)
	}
}

func consumerHealth(fetchErr error, lag, maxLag int64) health.ComponentHealth {
	switch {
	case fetchErr != nil:
		return health.ComponentHealth{Status: health.StatusDegraded, Message: fetchErr.Error()}
	case maxLag > 0 && lag > maxLag:
		return health.ComponentHealth{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("consumer lag %d exceeds %d", lag, maxLag),
		}
	}
	return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("lag %d", lag)}
}

type envelope struct {
	Type EventType `json:"type"`
}

// HandleEvent dispatches raw Kafka messages on their "type" field.
// Undecodable messages are logged and skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "error", err)
			return nil
		}
		switch env.Type {
		case EventExpansion:
			event, err := kafka.DecodeJSON[ExpansionEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode expansion event", "error", err)
				return nil
			}
			agg.RecordExpansion(event)
		case EventSearch, EventZeroResult:
			event, err := kafka.DecodeJSON[SearchEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode search event", "error", err)
				return nil
			}
			agg.RecordSearch(event)
		default:
			agg.logger.Warn("unknown analytics event type", "type", env.Type)
		}
		return nil
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.totalSearches.Add(1)
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	a.latencies = append(a.latencies, event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResultQueries[event.Query]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) RecordExpansion(event ExpansionEvent) {
	if event.Outcome == OutcomeSkipped {
		return
	}
	a.totalExpansions.Add(1)
	a.totalIterations.Add(int64(event.Iterations))
	if event.Iterations > 0 && !event.Converged {
		a.nonConverged.Add(1)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.latencies = append(a.latencies, event.LatencyMs)
	switch event.Outcome {
	case OutcomeExpanded:
		a.expanded.Add(1)
		for _, t := range event.Terms {
			a.termCounts[t.Term]++
		}
	case OutcomeFellBack:
		a.fellBack.Add(1)
		a.failuresByState[event.FailedAt]++
	}
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		ZeroResultCount: a.zeroResults.Load(),
		TotalExpansions: a.totalExpansions.Load(),
		Expanded:        a.expanded.Load(),
		FellBack:        a.fellBack.Load(),
		NonConverged:    a.nonConverged.Load(),
		FailuresByState: make(map[string]int64, len(a.failuresByState)),
	}
	for state, n := range a.failuresByState {
		stats.FailuresByState[state] = n
	}
	if stats.TotalExpansions > 0 {
		stats.AvgIterations = float64(a.totalIterations.Load()) / float64(stats.TotalExpansions)
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, 10)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, 10)
	stats.TopExpansionTerms = topN(a.termCounts, 20)
	elapsed := time.Since(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches+stats.TotalExpansions) / elapsed
	}

	return stats
}

// TopTerms returns the n feedback terms added most often.
func (a *Aggregator) TopTerms(n int) []QueryCount {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return topN(a.termCounts, n)
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
