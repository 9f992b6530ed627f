package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"bundlemart/internal/common/database"
	"bundlemart/internal/common/money"
)

// Store provides wallet data access. All balance mutations go through
// ApplyDelta; no caller ever reads a balance, computes in memory, and
// writes it back.
type Store struct {
	db *database.DB
}

// NewStore creates a wallet store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Ensure returns the wallet for an owner, creating it lazily on first use.
func (s *Store) Ensure(ctx context.Context, ownerID string, kind Kind, currency money.Currency) (*Wallet, error) {
	query := `
		INSERT INTO wallets (id, owner_id, kind, currency)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, kind) DO UPDATE SET updated_at = wallets.updated_at
		RETURNING id, owner_id, kind, currency, balance, pending_balance,
				  total_deposits, total_earnings, total_spent, total_withdrawn,
				  created_at, updated_at
	`

	row := s.db.QueryRow(ctx, query, ulid.Make().String(), ownerID, kind, currency)
	return scanWallet(row)
}

// Get retrieves a wallet by owner.
func (s *Store) Get(ctx context.Context, ownerID string, kind Kind) (*Wallet, error) {
	query := `
		SELECT id, owner_id, kind, currency, balance, pending_balance,
			   total_deposits, total_earnings, total_spent, total_withdrawn,
			   created_at, updated_at
		FROM wallets
		WHERE owner_id = $1 AND kind = $2
	`

	row := s.db.QueryRow(ctx, query, ownerID, kind)
	return scanWallet(row)
}

// ApplyDelta atomically adjusts one ledger bucket and returns the bracketing
// before/after values. The conditional single-statement update serializes
// concurrent deltas on the same row and rejects any delta that would drive
// a guarded bucket negative.
func (s *Store) ApplyDelta(ctx context.Context, ownerID string, kind Kind, bucket Bucket, delta int64) (Delta, error) {
	return applyDelta(ctx, s.db, ownerID, kind, bucket, delta)
}

// ApplyDeltaTx is ApplyDelta inside a caller-owned transaction, so a ledger
// write can share its commit with a state-machine claim.
func (s *Store) ApplyDeltaTx(ctx context.Context, tx pgx.Tx, ownerID string, kind Kind, bucket Bucket, delta int64) (Delta, error) {
	return applyDelta(ctx, tx, ownerID, kind, bucket, delta)
}

func applyDelta(ctx context.Context, q database.Querier, ownerID string, kind Kind, bucket Bucket, delta int64) (Delta, error) {
	col, ok := bucket.Column()
	if !ok {
		return Delta{}, ErrUnknownBucket
	}

	query := fmt.Sprintf(`
		UPDATE wallets
		SET %[1]s = %[1]s + $3, updated_at = now()
		WHERE owner_id = $1 AND kind = $2
	`, col)
	if bucket.DebitGuarded() {
		query += fmt.Sprintf(` AND %[1]s + $3 >= 0`, col)
	}
	query += fmt.Sprintf(` RETURNING %[1]s - $3, %[1]s`, col)

	var d Delta
	err := q.QueryRow(ctx, query, ownerID, kind, delta).Scan(&d.BalanceBefore, &d.BalanceAfter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the wallet does not exist or the guard rejected the
			// debit; disambiguate so callers can report correctly.
			exists, exErr := walletExists(ctx, q, ownerID, kind)
			if exErr != nil {
				return Delta{}, exErr
			}
			if !exists {
				return Delta{}, database.ErrNotFound
			}
			return Delta{}, ErrInsufficientFunds
		}
		return Delta{}, fmt.Errorf("applying %s delta: %w", bucket, err)
	}

	return d, nil
}

func walletExists(ctx context.Context, q database.Querier, ownerID string, kind Kind) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM wallets WHERE owner_id = $1 AND kind = $2)`,
		ownerID, kind,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking wallet existence: %w", err)
	}
	return exists, nil
}

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	err := row.Scan(
		&w.ID, &w.OwnerID, &w.Kind, &w.Currency, &w.Balance, &w.PendingBalance,
		&w.TotalDeposits, &w.TotalEarnings, &w.TotalSpent, &w.TotalWithdrawn,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning wallet: %w", err)
	}
	return &w, nil
}
