// Package fulfillment delivers paid bundle orders to the upstream
// supplier through a durable outbox and a JetStream work queue.
package fulfillment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"bundlemart/internal/common/database"
)

// Subject is the JetStream subject fulfillment jobs are published on.
const Subject = "orders.fulfill"

// Job is the payload dispatched for each paid order.
type Job struct {
	OrderID          string `json:"order_id"`
	StoreID          string `json:"store_id"`
	ProductID        string `json:"product_id"`
	BuyerPhone       string `json:"buyer_phone"`
	PaymentReference string `json:"payment_reference"`
}

// outboxEntry is one row awaiting publication.
type outboxEntry struct {
	ID      string
	OrderID string
	Payload []byte
}

// Outbox persists fulfillment jobs in the same database transaction that
// reconciles the payment, so a paid order can never lose its job to a
// broker outage.
type Outbox struct {
	db *database.DB
}

// NewOutbox creates an outbox.
func NewOutbox(db *database.DB) *Outbox {
	return &Outbox{db: db}
}

// InsertTx enqueues a job inside a caller-owned transaction.
func (o *Outbox) InsertTx(ctx context.Context, tx pgx.Tx, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling fulfillment job: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO fulfillment_outbox (id, order_id, payload)
		VALUES ($1, $2, $3)
	`, ulid.Make().String(), job.OrderID, payload)
	if err != nil {
		return fmt.Errorf("inserting outbox entry: %w", err)
	}
	return nil
}

// listUnpublished returns the oldest unpublished entries.
func (o *Outbox) listUnpublished(ctx context.Context, limit int) ([]outboxEntry, error) {
	rows, err := o.db.Query(ctx, `
		SELECT id, order_id, payload
		FROM fulfillment_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing outbox entries: %w", err)
	}
	defer rows.Close()

	var entries []outboxEntry
	for rows.Next() {
		var e outboxEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Payload); err != nil {
			return nil, fmt.Errorf("scanning outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// markPublished stamps an entry as delivered to the broker.
func (o *Outbox) markPublished(ctx context.Context, id string) error {
	_, err := o.db.Exec(ctx, `
		UPDATE fulfillment_outbox
		SET published_at = now(), attempts = attempts + 1
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("marking outbox entry published: %w", err)
	}
	return nil
}

// markFailed records a publish failure for visibility.
func (o *Outbox) markFailed(ctx context.Context, id string, cause error) error {
	_, err := o.db.Exec(ctx, `
		UPDATE fulfillment_outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, cause.Error())
	if err != nil {
		return fmt.Errorf("marking outbox entry failed: %w", err)
	}
	return nil
}

// PurgePublished deletes published entries older than the retention
// window. Run periodically by operators.
func (o *Outbox) PurgePublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	interval := fmt.Sprintf("%d seconds", int64(olderThan.Seconds()))
	tag, err := o.db.Exec(ctx, `
		DELETE FROM fulfillment_outbox
		WHERE published_at IS NOT NULL AND published_at < now() - $1::interval
	`, interval)
	if err != nil {
		return 0, fmt.Errorf("purging outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
