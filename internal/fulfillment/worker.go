package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Deliverer pushes a bundle to the supplier.
type Deliverer interface {
	Deliver(ctx context.Context, job Job) error
}

// OrderUpdater records the fulfillment result on the order.
type OrderUpdater interface {
	MarkDelivered(ctx context.Context, id string) error
	MarkFulfillmentFailed(ctx context.Context, id string) error
}

// Worker handles fulfillment jobs from the durable consumer.
type Worker struct {
	deliverer Deliverer
	orders    OrderUpdater
	logger    *slog.Logger
}

// NewWorker creates a fulfillment worker.
func NewWorker(deliverer Deliverer, orders OrderUpdater, logger *slog.Logger) *Worker {
	return &Worker{
		deliverer: deliverer,
		orders:    orders,
		logger:    logger,
	}
}

// Handle processes one job. Returning an error NAKs the message so
// JetStream redelivers; the supplier's idempotency key makes that safe.
func (w *Worker) Handle(ctx context.Context, data []byte) error {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		// A malformed payload never becomes valid; log and drop rather
		// than redeliver forever.
		w.logger.Error("dropping malformed fulfillment job", "error", err)
		return nil
	}

	if err := w.deliverer.Deliver(ctx, job); err != nil {
		w.logger.Error("bundle delivery failed",
			"order_id", job.OrderID,
			"product_id", job.ProductID,
			"error", err,
		)
		if markErr := w.orders.MarkFulfillmentFailed(ctx, job.OrderID); markErr != nil {
			w.logger.Error("marking order failed", "order_id", job.OrderID, "error", markErr)
		}
		return fmt.Errorf("delivering order %s: %w", job.OrderID, err)
	}

	if err := w.orders.MarkDelivered(ctx, job.OrderID); err != nil {
		return fmt.Errorf("marking order %s delivered: %w", job.OrderID, err)
	}

	w.logger.Info("bundle delivered",
		"order_id", job.OrderID,
		"product_id", job.ProductID,
		"recipient", job.BuyerPhone,
	)
	return nil
}
