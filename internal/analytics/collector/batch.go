// Package collector buffers expansion events in memory and publishes them
// to Kafka in bulk, so a batch run of thousands of queries costs a handful
// of broker round trips.
package collector

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	finalFlushTimeout    = 5 * time.Second
	// backlogBatches bounds how many unpublished batches are retained
	// while the broker is unreachable.
	backlogBatches = 3
)

// BatchPublisher writes several events at once. *kafka.Producer implements
// it.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// BatchCollector publishes when batchSize events are pending or every
// flushInterval, whichever comes first.
type BatchCollector struct {
	publisher BatchPublisher
	size      int
	interval  time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	pending []kafka.Event
	// flushing serialises publishes so batches leave in arrival order.
	flushing sync.Mutex
	dropped  atomic.Int64
	done     chan struct{}
}

func NewBatchCollector(publisher BatchPublisher, batchSize int, flushInterval time.Duration) *BatchCollector {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	return &BatchCollector{
		publisher: publisher,
		size:      batchSize,
		interval:  flushInterval,
		pending:   make([]kafka.Event, 0, batchSize),
		logger:    slog.Default().With("component", "batch-collector"),
		done:      make(chan struct{}),
	}
}

// Start runs the periodic flush until ctx is cancelled, then flushes once
// more on a fresh deadline.
func (bc *BatchCollector) Start(ctx context.Context) {
	bc.logger.Info("batch collector started", "batch_size", bc.size, "flush_interval", bc.interval)
	go bc.loop(ctx)
}

func (bc *BatchCollector) loop(ctx context.Context) {
	defer close(bc.done)
	ticker := time.NewTicker(bc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			bc.Flush(ctx)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
			bc.Flush(final)
			cancel()
			if n := bc.dropped.Load(); n > 0 {
				bc.logger.Warn("batch collector stopped with dropped events", "dropped", n)
			}
			return
		}
	}
}

// TrackExpansion queues event under its query id and publishes inline
// once a full batch is pending.
func (bc *BatchCollector) TrackExpansion(ctx context.Context, event analytics.ExpansionEvent) {
	bc.mu.Lock()
	bc.pending = append(bc.pending, kafka.Event{Key: event.QueryID, Value: event})
	full := len(bc.pending) >= bc.size
	bc.mu.Unlock()
	if full {
		bc.Flush(ctx)
	}
}

// Close blocks until the flush loop started by Start has exited.
func (bc *BatchCollector) Close() {
	<-bc.done
}

func (bc *BatchCollector) BufferLen() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.pending)
}

// Dropped counts events discarded because the backlog was full.
func (bc *BatchCollector) Dropped() int64 {
	return bc.dropped.Load()
}

// Flush publishes everything pending. On failure the events go back to the
// front of the queue, which keeps at most backlogBatches batches.
func (bc *BatchCollector) Flush(ctx context.Context) {
	bc.flushing.Lock()
	defer bc.flushing.Unlock()

	batch := bc.take()
	if len(batch) == 0 {
		return
	}
	if err := bc.publisher.PublishBatch(ctx, batch); err != nil {
		dropped := bc.requeue(batch)
		bc.logger.Error("batch flush failed", "events", len(batch), "dropped", dropped, "error", err)
		return
	}
	bc.logger.Debug("batch flushed", "events", len(batch))
}

func (bc *BatchCollector) take() []kafka.Event {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	batch := bc.pending
	bc.pending = make([]kafka.Event, 0, bc.size)
	return batch
}

func (bc *BatchCollector) requeue(batch []kafka.Event) int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.pending = append(batch, bc.pending...)
	limit := bc.size * backlogBatches
	if len(bc.pending) <= limit {
		return 0
	}
	n := len(bc.pending) - limit
	bc.pending = bc.pending[:limit]
	bc.dropped.Add(int64(n))
	return n
}
