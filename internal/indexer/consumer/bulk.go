package consumer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
)

// LoadStats summarizes a bulk load.
type LoadStats struct {
	Indexed    int
	Duplicates int
}

// LoadJSONL indexes one {"id","title","body"} object per line. Blank lines
// are skipped; a malformed line stops the load.
func LoadJSONL(ctx context.Context, r io.Reader, engine Indexer, m *metrics.Metrics) (LoadStats, error) {
	logger := slog.Default().With("component", "bulk-loader")
	var stats LoadStats
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		var event IngestEvent
		if err := json.Unmarshal([]byte(text), &event); err != nil {
			return stats, fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidInput, line, err)
		}
		indexed, err := index(ctx, engine, event)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		if !indexed {
			stats.Duplicates++
			continue
		}
		stats.Indexed++
		if m != nil {
			m.DocsIndexedTotal.Inc()
		}
		if stats.Indexed%10000 == 0 {
			logger.Info("bulk load progress", "indexed", stats.Indexed)
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading corpus: %w", err)
	}
	return stats, nil
}
