// Package consumer feeds documents into the index engine, either from the
// Kafka ingest topic or from a JSON lines corpus file.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/metrics"
)

// IngestEvent is one document on the ingest topic or one line of a corpus
// file.
type IngestEvent struct {
	DocumentID string `json:"id"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// Indexer is the engine side of ingestion. *indexer.Engine implements it.
type Indexer interface {
	IndexDocument(ctx context.Context, docID, title, body string) error
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage indexes every ingest event into engine. Undecodable events
// and documents already indexed are logged and skipped; any other indexing
// error is returned so the message is not committed.
func HandleMessage(engine Indexer, m *metrics.Metrics) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		indexed, err := index(ctx, engine, event)
		if err != nil {
			return err
		}
		if indexed {
			if m != nil {
				m.DocsIndexedTotal.Inc()
			}
			logger.Debug("document indexed", "doc_id", event.DocumentID)
		} else {
			logger.Warn("duplicate document skipped", "doc_id", event.DocumentID)
		}
		return nil
	}
}

// index reports false for a document that already exists.
func index(ctx context.Context, engine Indexer, event IngestEvent) (bool, error) {
	if event.DocumentID == "" {
		return false, fmt.Errorf("%w: document without id", apperrors.ErrInvalidInput)
	}
	err := engine.IndexDocument(ctx, event.DocumentID, event.Title, event.Body)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrDocumentExists):
		return false, nil
	default:
		return false, fmt.Errorf("indexing document %s: %w", event.DocumentID, err)
	}
}
