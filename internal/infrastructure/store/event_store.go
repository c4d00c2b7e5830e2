package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event is a domain event recorded in the outbox table inside the same
// transaction as the state change it describes. The relay publishes it
// afterwards and stamps SentAt.
type Event struct {
	ID            string          `json:"id"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
}

// NewEvent encodes data and wraps it in an envelope with a fresh id.
func NewEvent(aggregateID, aggregateType, eventType string, data any, at time.Time) (*Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     at,
	}, nil
}
