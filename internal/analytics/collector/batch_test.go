package collector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

func TestFlushOnBatchSize(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 2, time.Hour)
	ctx := context.Background()
	bc.TrackExpansion(ctx, analytics.ExpansionEvent{QueryID: "q1"})
	if len(pub.batches) != 0 {
		t.Fatal("flushed before the batch was full")
	}
	bc.TrackExpansion(ctx, analytics.ExpansionEvent{QueryID: "q2"})
	if len(pub.batches) != 1 || len(pub.batches[0]) != 2 || pub.batches[0][1].Key != "q2" {
		t.Errorf("batches = %v", pub.batches)
	}
	if bc.BufferLen() != 0 {
		t.Errorf("BufferLen() = %d after flush", bc.BufferLen())
	}
}

func TestFinalFlushOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	bc := NewBatchCollector(pub, 100, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	bc.Start(ctx)
	bc.TrackExpansion(ctx, analytics.ExpansionEvent{QueryID: "q1"})
	cancel()
	bc.Close()
	if len(pub.batches) != 1 {
		t.Errorf("expected a final flush, got %d batches", len(pub.batches))
	}
}

func TestFailedFlushRequeues(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	bc := NewBatchCollector(pub, 1, time.Hour)
	for i := 0; i < 5; i++ {
		bc.TrackExpansion(context.Background(), analytics.ExpansionEvent{QueryID: "q"})
	}
	if got := bc.BufferLen(); got != 3 {
		t.Errorf("BufferLen() = %d, want the 3-batch cap", got)
	}
	if got := bc.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}
}
