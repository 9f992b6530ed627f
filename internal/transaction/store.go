package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bundlemart/internal/common/database"
)

// Store provides transaction data access.
type Store struct {
	db *database.DB
}

// NewStore creates a transaction store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

const txColumns = `
	id, owner_id, type, amount_minor, fee_minor, currency,
	balance_before, balance_after, reference, status, metadata,
	created_at, completed_at
`

// Create inserts a pending transaction. A unique violation on the
// reference surfaces as database.ErrAlreadyExists so the caller can retry
// with a freshly generated reference.
func (s *Store) Create(ctx context.Context, t *Transaction) error {
	return create(ctx, s.db, t)
}

// CreateTx is Create inside a caller-owned transaction.
func (s *Store) CreateTx(ctx context.Context, tx pgx.Tx, t *Transaction) error {
	return create(ctx, tx, t)
}

func create(ctx context.Context, q database.Querier, t *Transaction) error {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, owner_id, type, amount_minor, fee_minor, currency,
			balance_before, balance_after, reference, status, metadata,
			created_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = q.Exec(ctx, query,
		t.ID, t.OwnerID, t.Type, t.AmountMinor, t.FeeMinor, t.Currency,
		t.BalanceBefore, t.BalanceAfter, t.Reference, t.Status, metadata,
		t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("transaction reference %s: %w", t.Reference, database.ErrAlreadyExists)
		}
		return fmt.Errorf("inserting transaction: %w", err)
	}

	return nil
}

// GetByReference retrieves a transaction by its unique reference.
func (s *Store) GetByReference(ctx context.Context, reference string) (*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE reference = $1`
	row := s.db.QueryRow(ctx, query, reference)
	return scanTransaction(row)
}

// Get retrieves a transaction by ID.
func (s *Store) Get(ctx context.Context, id string) (*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`
	row := s.db.QueryRow(ctx, query, id)
	return scanTransaction(row)
}

// ListByOwner lists transactions for an owner, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		t, err := scanTransactionRows(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

// ListStalePending lists pending transactions older than the cutoff, for
// the operator sweep that eventually fails abandoned payments.
func (s *Store) ListStalePending(ctx context.Context, olderThan string, limit int) ([]*Transaction, error) {
	query := `
		SELECT ` + txColumns + `
		FROM transactions
		WHERE status = 'pending' AND created_at < now() - $1::interval
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("listing stale pending transactions: %w", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		t, err := scanTransactionRows(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, nil
}

// Claim atomically moves a pending transaction into a terminal state. The
// lookup and the status change are one conditional update, so two
// concurrent webhook deliveries for the same reference can never both
// observe OutcomeApplied.
func (s *Store) Claim(ctx context.Context, reference string, target Status) (Outcome, error) {
	return claim(ctx, s.db, reference, target)
}

// ClaimTx is Claim inside a caller-owned transaction, so the paired ledger
// write commits or rolls back together with the claim.
func (s *Store) ClaimTx(ctx context.Context, tx pgx.Tx, reference string, target Status) (Outcome, error) {
	return claim(ctx, tx, reference, target)
}

func claim(ctx context.Context, q database.Querier, reference string, target Status) (Outcome, error) {
	if !target.IsTerminal() {
		return OutcomeInvalidTransition, fmt.Errorf("cannot claim transition to non-terminal status %s", target)
	}

	tag, err := q.Exec(ctx, `
		UPDATE transactions
		SET status = $2, completed_at = now()
		WHERE reference = $1 AND status = 'pending'
	`, reference, target)
	if err != nil {
		return OutcomeNotFound, fmt.Errorf("claiming transaction %s: %w", reference, err)
	}

	if tag.RowsAffected() == 1 {
		return OutcomeApplied, nil
	}

	// Nothing was claimed: distinguish replay, conflict, and absence.
	var current Status
	err = q.QueryRow(ctx, `SELECT status FROM transactions WHERE reference = $1`, reference).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OutcomeNotFound, nil
		}
		return OutcomeNotFound, fmt.Errorf("reading transaction status: %w", err)
	}

	if current == target {
		return OutcomeAlreadyApplied, nil
	}
	return OutcomeInvalidTransition, nil
}

// SetAuditTx records the before/after values returned by the ledger write
// and merges extra metadata, inside the same transaction as the claim.
func (s *Store) SetAuditTx(ctx context.Context, tx pgx.Tx, reference string, balanceBefore, balanceAfter int64, meta map[string]string) error {
	extra, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE transactions
		SET balance_before = $2, balance_after = $3, metadata = metadata || $4::jsonb
		WHERE reference = $1
	`, reference, balanceBefore, balanceAfter, extra)
	if err != nil {
		return fmt.Errorf("recording transaction audit: %w", err)
	}
	return nil
}

// MergeMetadataTx merges metadata without touching the audit bracket.
func (s *Store) MergeMetadataTx(ctx context.Context, tx pgx.Tx, reference string, meta map[string]string) error {
	extra, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE transactions SET metadata = metadata || $2::jsonb WHERE reference = $1
	`, reference, extra)
	if err != nil {
		return fmt.Errorf("merging transaction metadata: %w", err)
	}
	return nil
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var t Transaction
	var metadata []byte
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Type, &t.AmountMinor, &t.FeeMinor, &t.Currency,
		&t.BalanceBefore, &t.BalanceAfter, &t.Reference, &t.Status, &metadata,
		&t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}

	if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &t, nil
}

func scanTransactionRows(rows pgx.Rows) (*Transaction, error) {
	var t Transaction
	var metadata []byte
	err := rows.Scan(
		&t.ID, &t.OwnerID, &t.Type, &t.AmountMinor, &t.FeeMinor, &t.Currency,
		&t.BalanceBefore, &t.BalanceAfter, &t.Reference, &t.Status, &metadata,
		&t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning transaction: %w", err)
	}

	if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return &t, nil
}
