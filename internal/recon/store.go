package recon

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bundlemart/internal/common/database"
	"bundlemart/internal/fulfillment"
	"bundlemart/internal/order"
	"bundlemart/internal/transaction"
	"bundlemart/internal/wallet"
)

// PostgresStore composes the wallet, transaction, order and outbox stores
// into the single-transaction completion operations the service needs.
type PostgresStore struct {
	db           *database.DB
	wallets      *wallet.Store
	transactions *transaction.Store
	orders       *order.Store
	outbox       *fulfillment.Outbox
}

// NewPostgresStore creates the composed store.
func NewPostgresStore(db *database.DB, wallets *wallet.Store, transactions *transaction.Store, orders *order.Store, outbox *fulfillment.Outbox) *PostgresStore {
	return &PostgresStore{
		db:           db,
		wallets:      wallets,
		transactions: transactions,
		orders:       orders,
		outbox:       outbox,
	}
}

// GetTransaction looks up a transaction by reference.
func (p *PostgresStore) GetTransaction(ctx context.Context, reference string) (*transaction.Transaction, error) {
	return p.transactions.GetByReference(ctx, reference)
}

// CompleteDeposit claims the transaction and credits the customer wallet
// in one database transaction. The full deposited amount (base + fee was
// charged by the gateway; only the base is credited) lands in balance and
// the lifetime deposit counter.
func (p *PostgresStore) CompleteDeposit(ctx context.Context, txn *transaction.Transaction, meta map[string]string) (transaction.Outcome, error) {
	outcome := transaction.OutcomeNotFound

	err := p.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		outcome, err = p.transactions.ClaimTx(ctx, tx, txn.Reference, transaction.StatusCompleted)
		if err != nil {
			return err
		}
		if outcome != transaction.OutcomeApplied {
			return nil
		}

		delta, err := p.wallets.ApplyDeltaTx(ctx, tx, txn.OwnerID, wallet.KindCustomer, wallet.BucketBalance, txn.AmountMinor)
		if err != nil {
			return fmt.Errorf("crediting balance: %w", err)
		}
		if _, err := p.wallets.ApplyDeltaTx(ctx, tx, txn.OwnerID, wallet.KindCustomer, wallet.BucketTotalDeposits, txn.AmountMinor); err != nil {
			return fmt.Errorf("crediting total deposits: %w", err)
		}

		return p.transactions.SetAuditTx(ctx, tx, txn.Reference, delta.BalanceBefore, delta.BalanceAfter, meta)
	})
	if err != nil {
		return transaction.OutcomeNotFound, err
	}
	return outcome, nil
}

// CompletePurchase claims the transaction, marks the order paid, credits
// the store's profit and enqueues the fulfillment job, all in one database
// transaction. The customer wallet is untouched on this path: the gateway
// collected the money directly.
func (p *PostgresStore) CompletePurchase(ctx context.Context, txn *transaction.Transaction, meta map[string]string) (transaction.Outcome, error) {
	ord, err := p.orders.GetByReference(ctx, txn.Reference)
	if err != nil {
		return transaction.OutcomeNotFound, fmt.Errorf("looking up order for %s: %w", txn.Reference, err)
	}

	// Lazy wallet creation is idempotent; doing it outside the completion
	// transaction keeps that transaction short.
	if _, err := p.wallets.Ensure(ctx, ord.StoreID, wallet.KindStore, txn.Currency); err != nil {
		return transaction.OutcomeNotFound, fmt.Errorf("ensuring store wallet: %w", err)
	}

	outcome := transaction.OutcomeNotFound

	err = p.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		outcome, err = p.transactions.ClaimTx(ctx, tx, txn.Reference, transaction.StatusCompleted)
		if err != nil {
			return err
		}
		if outcome != transaction.OutcomeApplied {
			return nil
		}

		if err := p.orders.MarkPaidTx(ctx, tx, txn.Reference); err != nil {
			return err
		}

		delta, err := p.wallets.ApplyDeltaTx(ctx, tx, ord.StoreID, wallet.KindStore, wallet.BucketBalance, ord.Profit)
		if err != nil {
			return fmt.Errorf("crediting store profit: %w", err)
		}
		if _, err := p.wallets.ApplyDeltaTx(ctx, tx, ord.StoreID, wallet.KindStore, wallet.BucketTotalEarnings, ord.Profit); err != nil {
			return fmt.Errorf("crediting store earnings: %w", err)
		}

		meta[transaction.MetaOrderID] = ord.ID
		if err := p.transactions.SetAuditTx(ctx, tx, txn.Reference, delta.BalanceBefore, delta.BalanceAfter, meta); err != nil {
			return err
		}

		return p.outbox.InsertTx(ctx, tx, fulfillment.Job{
			OrderID:          ord.ID,
			StoreID:          ord.StoreID,
			ProductID:        ord.ProductID,
			BuyerPhone:       ord.BuyerPhone,
			PaymentReference: ord.PaymentReference,
		})
	})
	if err != nil {
		return transaction.OutcomeNotFound, err
	}
	return outcome, nil
}

// FailTransaction claims the transaction into failed and records the
// failure metadata. Purchase failures also fail the order's payment leg.
func (p *PostgresStore) FailTransaction(ctx context.Context, txn *transaction.Transaction, meta map[string]string) (transaction.Outcome, error) {
	outcome := transaction.OutcomeNotFound

	err := p.db.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		outcome, err = p.transactions.ClaimTx(ctx, tx, txn.Reference, transaction.StatusFailed)
		if err != nil {
			return err
		}
		if outcome != transaction.OutcomeApplied {
			return nil
		}

		if txn.Type == transaction.TypePurchase {
			if err := p.orders.MarkPaymentFailedTx(ctx, tx, txn.Reference); err != nil {
				return err
			}
		}

		return p.transactions.MergeMetadataTx(ctx, tx, txn.Reference, meta)
	})
	if err != nil {
		return transaction.OutcomeNotFound, err
	}
	return outcome, nil
}

var _ Store = (*PostgresStore)(nil)
