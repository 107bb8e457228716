package analytics

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
)

const defaultQueueSize = 10000

// Publisher sends one event. *kafka.Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Collector publishes events from a bounded queue on a background
// goroutine. Tracking never blocks the request path: when the queue is
// full the event is dropped and counted.
type Collector struct {
	publisher Publisher
	queue     chan kafka.Event
	dropped   atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
	logger    *slog.Logger
}

func NewCollector(publisher Publisher, bufferSize int) *Collector {
	if bufferSize <= 0 {
		bufferSize = defaultQueueSize
	}
	return &Collector{
		publisher: publisher,
		queue:     make(chan kafka.Event, bufferSize),
		done:      make(chan struct{}),
		logger:    slog.Default().With("component", "analytics-collector"),
	}
}

// Start publishes queued events until Close is called or ctx ends. After
// ctx ends, whatever is still queued is published without a deadline.
func (c *Collector) Start(ctx context.Context) {
	c.logger.Info("analytics collector started", "buffer_size", cap(c.queue))
	go func() {
		defer close(c.done)
		for {
			select {
			case event, ok := <-c.queue:
				if !ok {
					return
				}
				c.publish(ctx, event)
			case <-ctx.Done():
				c.drain(context.WithoutCancel(ctx))
				return
			}
		}
	}()
}

// Track queues a search event keyed by its type.
func (c *Collector) Track(event SearchEvent) {
	c.enqueue(kafka.Event{Key: string(event.Type), Value: event})
}

// TrackExpansion queues an expansion event keyed by query id, so events of
// one query land on one partition.
func (c *Collector) TrackExpansion(event ExpansionEvent) {
	c.enqueue(kafka.Event{Key: event.QueryID, Value: event})
}

// Dropped counts events discarded because the queue was full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting events and waits for the queue to be published.
// It is safe to call more than once.
func (c *Collector) Close() {
	c.closeOnce.Do(func() { close(c.queue) })
	<-c.done
}

func (c *Collector) enqueue(event kafka.Event) {
	select {
	case c.queue <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics queue full, dropping events", "dropped_total", n)
		}
	}
}

func (c *Collector) drain(ctx context.Context) {
	for {
		select {
		case event, ok := <-c.queue:
			if !ok {
				return
			}
			c.publish(ctx, event)
		default:
			return
		}
	}
}

func (c *Collector) publish(ctx context.Context, event kafka.Event) {
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Error("analytics publish failed", "key", event.Key, "error", err)
	}
}
