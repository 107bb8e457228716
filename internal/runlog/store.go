// Package runlog records every expansion of a batch run in PostgreSQL: one
// expansion_runs row per query and one expansion_terms row per expansion
// term.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS expansion_runs (
    id          BIGSERIAL PRIMARY KEY,
    run_id      TEXT NOT NULL,
    query_id    TEXT NOT NULL,
    query       TEXT NOT NULL,
    final_query TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    failed_at   TEXT,
    error       TEXT,
    fb_docs     INTEGER NOT NULL,
    fb_term     INTEGER NOT NULL,
    iterations  INTEGER NOT NULL,
    converged   BOOLEAN NOT NULL,
    results     INTEGER NOT NULL,
    latency_ms  BIGINT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (run_id, query_id)
);
CREATE TABLE IF NOT EXISTS expansion_terms (
    run_id   TEXT NOT NULL,
    query_id TEXT NOT NULL,
    rank     INTEGER NOT NULL,
    term     TEXT NOT NULL,
    weight   DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (run_id, query_id, rank)
);`

// Record is one query of a run.
type Record struct {
	Event      analytics.ExpansionEvent
	FinalQuery string
	Results    int
}

type Store struct {
	db      *postgres.Client
	breaker *resilience.CircuitBreaker
	timeout time.Duration
	logger  *slog.Logger
}

// NewStore wraps db. Writes taking longer than timeout fail; zero disables
// the limit.
func NewStore(db *postgres.Client, timeout time.Duration) *Store {
	return &Store{
		db: db,
		breaker: resilience.NewCircuitBreaker("runlog", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		}),
		timeout: timeout,
		logger:  slog.Default().With("component", "runlog"),
	}
}

// Breaker exposes the write circuit breaker for metrics.
func (s *Store) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating run log tables: %w", err)
	}
	return nil
}

// Record writes rec in one transaction. Re-recording a query of the same
// run replaces its terms.
func (s *Store) Record(ctx context.Context, rec Record) error {
	err := s.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, s.timeout, "runlog-record", func(ctx context.Context) error {
			return s.db.InTx(ctx, func(tx *sql.Tx) error {
				return insertRecord(ctx, tx, rec)
			})
		})
	})
	if err != nil {
		return fmt.Errorf("recording query %s: %w", rec.Event.QueryID, err)
	}
	s.logger.Debug("run log recorded",
		"run_id", rec.Event.RunID,
		"query_id", rec.Event.QueryID,
		"terms", len(rec.Event.Terms),
	)
	return nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec Record) error {
	ev := rec.Event
	_, err := tx.ExecContext(ctx,
		`INSERT INTO expansion_runs
		     (run_id, query_id, query, final_query, outcome, failed_at, error,
		      fb_docs, fb_term, iterations, converged, results, latency_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (run_id, query_id) DO UPDATE SET
		     final_query = EXCLUDED.final_query,
		     outcome     = EXCLUDED.outcome,
		     failed_at   = EXCLUDED.failed_at,
		     error       = EXCLUDED.error,
		     iterations  = EXCLUDED.iterations,
		     converged   = EXCLUDED.converged,
		     results     = EXCLUDED.results,
		     latency_ms  = EXCLUDED.latency_ms`,
		ev.RunID, ev.QueryID, ev.Query, rec.FinalQuery, ev.Outcome, ev.FailedAt, ev.Error,
		ev.FbDocs, ev.FbTerm, ev.Iterations, ev.Converged, rec.Results, ev.LatencyMs, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting expansion run: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM expansion_terms WHERE run_id = $1 AND query_id = $2`,
		ev.RunID, ev.QueryID,
	); err != nil {
		return fmt.Errorf("clearing expansion terms: %w", err)
	}
	for i, t := range ev.Terms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO expansion_terms (run_id, query_id, rank, term, weight) VALUES ($1, $2, $3, $4, $5)`,
			ev.RunID, ev.QueryID, i+1, t.Term, t.Weight,
		); err != nil {
			return fmt.Errorf("inserting expansion term %q: %w", t.Term, err)
		}
	}
	return nil
}

// RunSummary counts the outcomes of one run.
type RunSummary struct {
	RunID    string
	Queries  int
	Expanded int
	FellBack int
}

func (s *Store) Summary(ctx context.Context, runID string) (RunSummary, error) {
	sum := RunSummary{RunID: runID}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE outcome = $2),
		        COUNT(*) FILTER (WHERE outcome = $3)
		   FROM expansion_runs WHERE run_id = $1`,
		runID, analytics.OutcomeExpanded, analytics.OutcomeFellBack,
	).Scan(&sum.Queries, &sum.Expanded, &sum.FellBack)
	if err != nil {
		return sum, fmt.Errorf("summarizing run %s: %w", runID, err)
	}
	return sum, nil
}

// Terms returns the recorded expansion terms of one query in rank order.
func (s *Store) Terms(ctx context.Context, runID, queryID string) ([]string, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT term FROM expansion_terms WHERE run_id = $1 AND query_id = $2 ORDER BY rank`,
		runID, queryID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing expansion terms: %w", err)
	}
	defer rows.Close()

	var terms []string
	for rows.Next() {
		var term string
		if err := rows.Scan(&term); err != nil {
			return nil, fmt.Errorf("scanning expansion term: %w", err)
		}
		terms = append(terms, term)
	}
	return terms, rows.Err()
}
