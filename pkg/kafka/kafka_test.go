package kafka

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/feedback-search/pkg/config"
)

type sample struct {
	QueryID string  `json:"query_id"`
	Weight  float64 `json:"weight"`
}

func TestEncodeAndDecode(t *testing.T) {
	msgs := encode([]Event{{Key: "q1", Value: sample{QueryID: "q1", Weight: 0.25}}}, slog.Default())
	if len(msgs) != 1 || string(msgs[0].Key) != "q1" {
		t.Fatalf("encoded %+v", msgs)
	}
	got, err := DecodeJSON[sample](msgs[0].Value)
	if err != nil {
		t.Fatal(err)
	}
	if got != (sample{QueryID: "q1", Weight: 0.25}) {
		t.Errorf("decoded %+v", got)
	}
}

func TestEncodeDropsUnencodableEvents(t *testing.T) {
	msgs := encode([]Event{
		{Key: "bad", Value: sample{Weight: math.NaN()}},
		{Key: "good", Value: sample{QueryID: "q2"}},
	}, slog.Default())
	if len(msgs) != 1 || string(msgs[0].Key) != "good" {
		t.Errorf("encoded %d messages, want only the valid one", len(msgs))
	}
}

func TestDecodeJSONError(t *testing.T) {
	if _, err := DecodeJSON[sample]([]byte("{")); err == nil {
		t.Error("expected a decode error")
	}
}

func TestConsumerPingTracksFetchErrors(t *testing.T) {
	c := NewConsumer(config.KafkaConfig{Brokers: []string{"localhost:9092"}, ConsumerGroup: "g"}, "expansion-events",
		func(context.Context, []byte, []byte) error { return nil })
	defer c.reader.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("fresh consumer Ping = %v", err)
	}
	c.setFetchErr(errors.New("broker unreachable"))
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping should report the failed fetch")
	}
	c.setFetchErr(nil)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping after recovery = %v", err)
	}
}
