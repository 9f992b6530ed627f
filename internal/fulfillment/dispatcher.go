package fulfillment

import (
	"context"
	"log/slog"
	"time"
)

// Publisher publishes a payload to a JetStream subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Dispatcher drains the outbox into the JetStream work queue. Publishing
// is at-least-once: a crash between publish and markPublished republishes
// the job, and the worker tolerates the duplicate.
type Dispatcher struct {
	outbox    *Outbox
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(outbox *Outbox, publisher Publisher, logger *slog.Logger, interval time.Duration, batchSize int) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Dispatcher{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Run polls until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.drain(ctx); err != nil {
				d.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) error {
	entries, err := d.outbox.listUnpublished(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := d.publisher.Publish(ctx, Subject, entry.Payload); err != nil {
			d.logger.Error("publishing fulfillment job",
				"outbox_id", entry.ID,
				"order_id", entry.OrderID,
				"error", err,
			)
			if markErr := d.outbox.markFailed(ctx, entry.ID, err); markErr != nil {
				d.logger.Error("recording publish failure", "outbox_id", entry.ID, "error", markErr)
			}
			continue
		}

		if err := d.outbox.markPublished(ctx, entry.ID); err != nil {
			// The job is on the broker but the row stays unpublished; the
			// next drain republishes and the durable consumer dedupes by
			// order state.
			d.logger.Error("marking outbox entry published", "outbox_id", entry.ID, "error", err)
		}
	}

	return nil
}
