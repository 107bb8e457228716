// Package kafka provides Kafka producer and consumer clients backed by
// segmentio/kafka-go. Events travel as JSON; consumers decode them in a
// MessageHandler callback.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/resilience"
)

// MessageHandler is a callback invoked for each Kafka message.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer reads messages from a Kafka topic and dispatches them to a
// MessageHandler.
type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	retry   resilience.RetryConfig

	mu       sync.Mutex
	fetchErr error
}

type consumerOptions struct {
	group       string
	startOffset int64
	retry       resilience.RetryConfig
}

type ConsumerOption func(*consumerOptions)

// WithGroup overrides the configured consumer group. Services reading the
// same topic for different purposes need their own group.
func WithGroup(group string) ConsumerOption {
	return func(o *consumerOptions) { o.group = group }
}

// FromFirstOffset makes a new group start at the beginning of the topic
// instead of only seeing new messages.
func FromFirstOffset() ConsumerOption {
	return func(o *consumerOptions) { o.startOffset = kafka.FirstOffset }
}

// WithHandlerRetry sets how often a failing handler is retried before the
// message is skipped.
func WithHandlerRetry(cfg resilience.RetryConfig) ConsumerOption {
	return func(o *consumerOptions) { o.retry = cfg }
}

func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	o := consumerOptions{
		group:       cfg.ConsumerGroup,
		startOffset: kafka.LastOffset,
		retry:       resilience.RetryConfig{MaxAttempts: 1},
	}
	for _, opt := range opts {
		opt(&o)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     o.group,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: o.startOffset,
	})

	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic, "group", o.group),
		handler: handler,
		retry:   o.retry,
	}
}

// Start fetches and processes messages until ctx is cancelled. A message
// whose handler still fails after the retries is logged and committed so
// one bad message cannot stall the partition.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", "reason", ctx.Err())
			return c.reader.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			c.setFetchErr(err)
			continue
		}
		c.setFetchErr(nil)
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		err = resilience.Retry(ctx, "kafka-handler", c.retry, func() error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("message skipped after handler failure",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}

func (c *Consumer) setFetchErr(err error) {
	c.mu.Lock()
	c.fetchErr = err
	c.mu.Unlock()
}

// Ping reports the error of the last failed fetch, or nil once a fetch has
// succeeded since.
func (c *Consumer) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return fmt.Errorf("kafka fetch failing: %w", c.fetchErr)
	}
	return nil
}

// Lag is the reader's last reported consumer lag.
func (c *Consumer) Lag() int64 {
	return c.reader.Stats().Lag
}
