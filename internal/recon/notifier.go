package recon

import (
	"context"
	"encoding/json"
	"log/slog"

	"bundlemart/internal/common/events"
	"bundlemart/internal/common/middleware"
)

// SMS notification subjects.
const (
	SubjectPaymentCompleted = "notifications.payment.completed"
	SubjectPaymentFailed    = "notifications.payment.failed"
)

// FireAndForgetPublisher publishes over core NATS with no delivery
// guarantee.
type FireAndForgetPublisher interface {
	PublishFireAndForget(subject string, data []byte) error
}

// NATSNotifier pushes payment events onto core NATS subjects for the SMS
// sender to pick up. Delivery is best effort; a lost notification never
// affects the ledger.
type NATSNotifier struct {
	publisher FireAndForgetPublisher
	logger    *slog.Logger
}

// NewNATSNotifier creates a notifier.
func NewNATSNotifier(publisher FireAndForgetPublisher, logger *slog.Logger) *NATSNotifier {
	return &NATSNotifier{publisher: publisher, logger: logger}
}

// PaymentCompleted announces a reconciled payment.
func (n *NATSNotifier) PaymentCompleted(ctx context.Context, ownerID, reference string, amountMinor int64) {
	n.publish(ctx, SubjectPaymentCompleted, events.EventPaymentCompleted, events.PaymentCompletedData{
		OwnerID:     ownerID,
		Reference:   reference,
		AmountMinor: amountMinor,
	})
}

// PaymentFailed announces a failed payment.
func (n *NATSNotifier) PaymentFailed(ctx context.Context, ownerID, reference, reason string) {
	n.publish(ctx, SubjectPaymentFailed, events.EventPaymentFailed, events.PaymentFailedData{
		OwnerID:   ownerID,
		Reference: reference,
		Reason:    reason,
	})
}

func (n *NATSNotifier) publish(ctx context.Context, subject, eventType string, payload interface{}) {
	evt, err := events.NewEvent(eventType, payload)
	if err != nil {
		n.logger.Error("building notification event", "subject", subject, "error", err)
		return
	}
	evt.WithCorrelation(middleware.GetCorrelationID(ctx))

	data, err := json.Marshal(evt)
	if err != nil {
		n.logger.Error("marshaling notification event", "subject", subject, "error", err)
		return
	}
	if err := n.publisher.PublishFireAndForget(subject, data); err != nil {
		n.logger.Warn("notification dropped", "subject", subject, "error", err)
	}
}

var _ Notifier = (*NATSNotifier)(nil)
