package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
)

// Event is one record for a topic. Key picks the partition; Value is
// encoded as JSON.
type Event struct {
	Key   string
	Value any
}

// Producer writes events to a single topic and waits for every in-sync
// replica to acknowledge them.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

// Publish writes one event.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	return p.PublishBatch(ctx, []Event{event})
}

// PublishBatch writes events in one call. An event whose value cannot be
// encoded is logged and dropped; the rest are still written.
func (p *Producer) PublishBatch(ctx context.Context, events []Event) error {
	msgs := encode(events, p.logger)
	if len(msgs) == 0 {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("writing %d messages to %s: %w", len(msgs), p.writer.Topic, err)
	}
	p.logger.Debug("messages published", "count", len(msgs))
	return nil
}

func encode(events []Event, log *slog.Logger) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e.Value)
		if err != nil {
			log.Error("dropping unencodable event", "key", e.Key, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.Key), Value: value})
	}
	return msgs
}

// Close flushes buffered messages and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
