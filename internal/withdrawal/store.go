package withdrawal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"bundlemart/internal/common/database"
	"bundlemart/internal/common/money"
	"bundlemart/internal/refgen"
	"bundlemart/internal/transaction"
	"bundlemart/internal/wallet"
)

// ErrNotPending is returned when a settlement targets a request that is
// no longer in a settleable state.
var ErrNotPending = errors.New("withdrawal already settled")

// Store persists withdrawal requests and runs their ledger moves. Every
// status change shares a database transaction with its bucket moves, so a
// request can never be settled twice or settled without its money moving.
type Store struct {
	db           *database.DB
	wallets      *wallet.Store
	transactions *transaction.Store
	refs         *refgen.Generator
}

// NewStore creates a withdrawal store.
func NewStore(db *database.DB, wallets *wallet.Store, transactions *transaction.Store, refs *refgen.Generator) *Store {
	return &Store{
		db:           db,
		wallets:      wallets,
		transactions: transactions,
		refs:         refs,
	}
}

const withdrawalColumns = `
	id, agent_id, amount_minor, method, account_details, status,
	payment_reference, processed_by, processed_at, created_at, updated_at
`

// Create persists a pending request, escrows the amount out of the
// agent's spendable balance and writes the audit row, atomically. An
// agent without sufficient balance gets wallet.ErrInsufficientFunds and
// no request.
func (s *Store) Create(ctx context.Context, w *Withdrawal, currency money.Currency) error {
	details, err := json.Marshal(w.AccountDetails)
	if err != nil {
		return fmt.Errorf("marshaling account details: %w", err)
	}

	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		var firstDelta *wallet.Delta
		for _, move := range EscrowMoves(w.AmountMinor) {
			delta, err := s.wallets.ApplyDeltaTx(ctx, tx, w.AgentID, wallet.KindStore, move.Bucket, move.Delta)
			if err != nil {
				return err
			}
			if firstDelta == nil {
				d := delta
				firstDelta = &d
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO withdrawals (
				id, agent_id, amount_minor, method, account_details, status,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, w.ID, w.AgentID, w.AmountMinor, w.Method, details, w.Status, w.CreatedAt, w.UpdatedAt)
		if err != nil {
			return fmt.Errorf("inserting withdrawal: %w", err)
		}

		txn, err := transaction.New(ulid.Make().String(), w.AgentID, transaction.TypeWithdrawal, w.AmountMinor, currency, s.refs.Generate(refgen.PrefixWithdrawal))
		if err != nil {
			return err
		}
		txn.Metadata[transaction.MetaWithdrawalID] = w.ID
		txn.BalanceBefore = &firstDelta.BalanceBefore
		txn.BalanceAfter = &firstDelta.BalanceAfter
		return s.transactions.CreateTx(ctx, tx, txn)
	})
}

// Get retrieves a withdrawal by ID.
func (s *Store) Get(ctx context.Context, id string) (*Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE id = $1`
	return scanWithdrawal(s.db.QueryRow(ctx, query, id))
}

// ListByAgent lists an agent's requests, newest first.
func (s *Store) ListByAgent(ctx context.Context, agentID string, limit, offset int) ([]*Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, agentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*Withdrawal
	for rows.Next() {
		w, err := scanWithdrawalRows(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, nil
}

// ListPending lists requests awaiting operator action, oldest first.
func (s *Store) ListPending(ctx context.Context, limit int) ([]*Withdrawal, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE status IN ('pending', 'processing')
		ORDER BY created_at ASC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending withdrawals: %w", err)
	}
	defer rows.Close()

	var withdrawals []*Withdrawal
	for rows.Next() {
		w, err := scanWithdrawalRows(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, nil
}

// Settle applies an operator decision. The status claim is a conditional
// update keyed on the current status, in the same transaction as the
// bucket moves, so a request can never be approved or rejected twice.
func (s *Store) Settle(ctx context.Context, id string, target Status, processedBy string, paymentReference *string) (*Withdrawal, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, target) {
		return nil, fmt.Errorf("withdrawal %s is %s: %w", id, current.Status, ErrNotPending)
	}

	moves, err := SettlementMoves(target, current.AmountMinor)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE withdrawals
			SET status = $2, processed_by = $3, payment_reference = COALESCE($4, payment_reference),
			    processed_at = now(), updated_at = now()
			WHERE id = $1 AND status = $5
		`, id, target, processedBy, paymentReference, current.Status)
		if err != nil {
			return fmt.Errorf("claiming withdrawal: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Another operator got there first.
			return fmt.Errorf("withdrawal %s: %w", id, ErrNotPending)
		}

		for _, move := range moves {
			if _, err := s.wallets.ApplyDeltaTx(ctx, tx, current.AgentID, wallet.KindStore, move.Bucket, move.Delta); err != nil {
				return err
			}
		}

		return s.settleAuditTx(ctx, tx, current, target, processedBy)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// settleAuditTx moves the paired audit transaction into its terminal
// state when the withdrawal reaches one.
func (s *Store) settleAuditTx(ctx context.Context, tx pgx.Tx, w *Withdrawal, target Status, processedBy string) error {
	var txnStatus transaction.Status
	switch target {
	case StatusCompleted:
		txnStatus = transaction.StatusCompleted
	case StatusRejected:
		txnStatus = transaction.StatusRejected
	default:
		return nil
	}

	_, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $2, completed_at = now(),
		    metadata = metadata || jsonb_build_object('processed_by', $3::text)
		WHERE metadata->>'withdrawal_id' = $1 AND status = 'pending'
	`, w.ID, txnStatus, processedBy)
	if err != nil {
		return fmt.Errorf("settling withdrawal audit row: %w", err)
	}
	return nil
}

func scanWithdrawal(row pgx.Row) (*Withdrawal, error) {
	var w Withdrawal
	var details []byte
	err := row.Scan(
		&w.ID, &w.AgentID, &w.AmountMinor, &w.Method, &details, &w.Status,
		&w.PaymentReference, &w.ProcessedBy, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning withdrawal: %w", err)
	}

	if err := json.Unmarshal(details, &w.AccountDetails); err != nil {
		return nil, fmt.Errorf("unmarshaling account details: %w", err)
	}
	return &w, nil
}

func scanWithdrawalRows(rows pgx.Rows) (*Withdrawal, error) {
	var w Withdrawal
	var details []byte
	err := rows.Scan(
		&w.ID, &w.AgentID, &w.AmountMinor, &w.Method, &details, &w.Status,
		&w.PaymentReference, &w.ProcessedBy, &w.ProcessedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning withdrawal: %w", err)
	}

	if err := json.Unmarshal(details, &w.AccountDetails); err != nil {
		return nil, fmt.Errorf("unmarshaling account details: %w", err)
	}
	return &w, nil
}
