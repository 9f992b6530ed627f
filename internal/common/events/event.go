// Package events defines the domain event envelope published on NATS.
package events

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:         ulid.Make().String(),
		Type:       eventType,
		Version:    1,
		OccurredAt: time.Now().UTC(),
		Data:       dataBytes,
	}, nil
}

// WithCorrelation tags the event with the request correlation ID.
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Common event types
const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

// PaymentCompletedData is the data for payment.completed events
type PaymentCompletedData struct {
	OwnerID     string `json:"owner_id"`
	Reference   string `json:"reference"`
	AmountMinor int64  `json:"amount_minor"`
}

// PaymentFailedData is the data for payment.failed events
type PaymentFailedData struct {
	OwnerID   string `json:"owner_id"`
	Reference string `json:"reference"`
	Reason    string `json:"reason"`
}
