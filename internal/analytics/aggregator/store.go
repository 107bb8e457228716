// Package aggregator snapshots the expansion analytics aggregate to
// PostgreSQL so fallback rates survive restarts of the analytics service.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

const schema = `
CREATE TABLE IF NOT EXISTS expansion_snapshots (
    id               BIGSERIAL PRIMARY KEY,
    total_expansions BIGINT NOT NULL,
    fell_back        BIGINT NOT NULL,
    non_converged    BIGINT NOT NULL,
    data             JSONB NOT NULL,
    captured_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Store persists aggregate snapshots. Writes go through a circuit breaker
// so a database outage does not stall the snapshot loop.
type Store struct {
	db      *postgres.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db: db,
		breaker: resilience.NewCircuitBreaker("expansion-snapshots", resilience.CircuitBreakerConfig{
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
		}),
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// Breaker exposes the write circuit breaker for metrics.
func (s *Store) Breaker() *resilience.CircuitBreaker {
	return s.breaker
}

// EnsureSchema creates the snapshot table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating expansion_snapshots: %w", err)
	}
	return nil
}

func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}

	err = s.breaker.Execute(func() error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO expansion_snapshots (total_expansions, fell_back, non_converged, data, captured_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			stats.TotalExpansions, stats.FellBack, stats.NonConverged, data, time.Now().UTC(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("saving expansion snapshot: %w", err)
	}

	s.logger.Info("expansion snapshot saved",
		"total_expansions", stats.TotalExpansions,
		"fell_back", stats.FellBack,
		"non_converged", stats.NonConverged,
	)
	return nil
}

// LatestSnapshot returns nil, nil if no snapshot exists yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM expansion_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}

	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that fail
// to decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM expansion_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.AggregatedStats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.AggregatedStats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// StartPeriodicSave snapshots agg every interval and once more when ctx is
// cancelled.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval)
}
