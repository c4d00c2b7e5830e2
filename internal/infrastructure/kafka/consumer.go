package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ec-storefront/internal/infrastructure/store"
)

// EventHandler processes one decoded event. A returned error is logged and
// the message is still committed.
type EventHandler func(ctx context.Context, event store.Event) error

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
}

func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: reader, logger: logger.With("component", "kafka-consumer", "topic", topic)}
}

// Consume reads until ctx is cancelled.
func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("read message", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}

		event, err := DecodeEvent(msg.Value)
		if err != nil {
			c.logger.Warn("skipping undecodable message", "offset", msg.Offset, "error", err)
			continue
		}
		if err := handler(ctx, event); err != nil {
			c.logger.Error("handle event", "event_id", event.ID, "event_type", event.EventType, "error", err)
		}
	}
}

// DecodeEvent parses a message value written by Producer.
func DecodeEvent(value []byte) (store.Event, error) {
	var e store.Event
	if err := json.Unmarshal(value, &e); err != nil {
		return store.Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.ID == "" || e.EventType == "" {
		return store.Event{}, fmt.Errorf("decode event: missing id or type")
	}
	return e, nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
