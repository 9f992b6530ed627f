package recon

import (
	"encoding/json"
	"fmt"
)

// Gateway event names.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// Payment types carried in event metadata.
const (
	PaymentTypeDeposit  = "deposit"
	PaymentTypePurchase = "purchase"
)

// Event is the gateway webhook envelope.
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData is the charge payload.
type EventData struct {
	ID          int64         `json:"id"`
	Reference   string        `json:"reference"`
	AmountMinor int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Customer    EventCustomer `json:"customer"`
	Metadata    EventMetadata `json:"metadata"`
}

// EventCustomer identifies the payer.
type EventCustomer struct {
	Email string `json:"email"`
}

// EventMetadata is the passthrough metadata attached at initialization.
type EventMetadata struct {
	PaymentType   string `json:"payment_type"`
	TransactionID string `json:"transaction_id,omitempty"`
	BaseAmount    int64  `json:"base_amount,omitempty"`
}

// parseEvent decodes a webhook body. Called only after the signature over
// the same raw bytes has been verified.
func parseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("decoding webhook event: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("webhook event missing event name")
	}
	return &evt, nil
}
