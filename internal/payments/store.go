package payments

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"bundlemart/internal/common/database"
	"bundlemart/internal/common/money"
	"bundlemart/internal/fulfillment"
	"bundlemart/internal/order"
	"bundlemart/internal/transaction"
	"bundlemart/internal/wallet"
)

// PostgresStore composes the wallet, transaction, order and outbox stores
// into the initiation operations the service needs.
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

// EnsureWallet lazily creates a wallet on first use.
func (p *PostgresStore) EnsureWallet(ctx context.Context, ownerID string, kind wallet.Kind, currency money.Currency) (*wallet.Wallet, error) {
	return p.wallets.Ensure(ctx, ownerID, kind, currency)
}

// GetWallet returns an owner's wallet.
func (p *PostgresStore) GetWallet(ctx context.Context, ownerID string, kind wallet.Kind) (*wallet.Wallet, error) {
	return p.wallets.Get(ctx, ownerID, kind)
}

// CreateDeposit records a pending deposit transaction.
func (p *PostgresStore) CreateDeposit(ctx context.Context, txn *transaction.Transaction) error {
	return p.transactions.Create(ctx, txn)
}

// CreateGatewayPurchase records the pending transaction and order that a
// later webhook will reconcile.
func (p *PostgresStore) CreateGatewayPurchase(ctx context.Context, txn *transaction.Transaction, ord *order.Order) error {
	return p.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := p.transactions.CreateTx(ctx, tx, txn); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO orders (
				id, store_id, product_id, buyer_phone, selling_price, base_price, profit,
				order_status, payment_status, payment_reference, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, ord.ID, ord.StoreID, ord.ProductID, ord.BuyerPhone, ord.SellingPrice, ord.BasePrice, ord.Profit,
			ord.OrderStatus, ord.PaymentStatus, ord.PaymentReference, ord.CreatedAt, ord.UpdatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("order reference %s: %w", ord.PaymentReference, database.ErrAlreadyExists)
			}
			return fmt.Errorf("inserting order: %w", err)
		}
		return nil
	})
}

// WalletPurchase settles a purchase from an existing balance: the buyer's
// debit, the store's profit credit, the completed audit row, the
// processing order and the fulfillment job commit together or not at all.
// A debit that would go negative rolls the whole operation back with
// wallet.ErrInsufficientFunds.
func (p *PostgresStore) WalletPurchase(ctx context.Context, txn *transaction.Transaction, ord *order.Order) error {
	if _, err := p.wallets.Ensure(ctx, ord.StoreID, wallet.KindStore, txn.Currency); err != nil {
		return fmt.Errorf("ensuring store wallet: %w", err)
	}

	return p.db.WithTx(ctx, func(tx pgx.Tx) error {
		delta, err := p.wallets.ApplyDeltaTx(ctx, tx, txn.OwnerID, wallet.KindCustomer, wallet.BucketBalance, -ord.SellingPrice)
		if err != nil {
			return err
		}
		if _, err := p.wallets.ApplyDeltaTx(ctx, tx, txn.OwnerID, wallet.KindCustomer, wallet.BucketTotalSpent, ord.SellingPrice); err != nil {
			return err
		}

		if _, err := p.wallets.ApplyDeltaTx(ctx, tx, ord.StoreID, wallet.KindStore, wallet.BucketBalance, ord.Profit); err != nil {
			return err
		}
		if _, err := p.wallets.ApplyDeltaTx(ctx, tx, ord.StoreID, wallet.KindStore, wallet.BucketTotalEarnings, ord.Profit); err != nil {
			return err
		}

		now := txn.CreatedAt
		txn.Status = transaction.StatusCompleted
		txn.CompletedAt = &now
		txn.BalanceBefore = &delta.BalanceBefore
		txn.BalanceAfter = &delta.BalanceAfter
		txn.Metadata[transaction.MetaOrderID] = ord.ID
		if err := p.transactions.CreateTx(ctx, tx, txn); err != nil {
			return err
		}

		ord.PaymentStatus = order.PaymentCompleted
		ord.OrderStatus = order.StatusProcessing
		_, err = tx.Exec(ctx, `
			INSERT INTO orders (
				id, store_id, product_id, buyer_phone, selling_price, base_price, profit,
				order_status, payment_status, payment_reference, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, ord.ID, ord.StoreID, ord.ProductID, ord.BuyerPhone, ord.SellingPrice, ord.BasePrice, ord.Profit,
			ord.OrderStatus, ord.PaymentStatus, ord.PaymentReference, ord.CreatedAt, ord.UpdatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("order reference %s: %w", ord.PaymentReference, database.ErrAlreadyExists)
			}
			return fmt.Errorf("inserting order: %w", err)
		}

		return p.outbox.InsertTx(ctx, tx, fulfillment.Job{
			OrderID:          ord.ID,
			StoreID:          ord.StoreID,
			ProductID:        ord.ProductID,
			BuyerPhone:       ord.BuyerPhone,
			PaymentReference: ord.PaymentReference,
		})
	})
}

// AdminAdjustment applies a manual delta with its audit row.
func (p *PostgresStore) AdminAdjustment(ctx context.Context, txn *transaction.Transaction, kind wallet.Kind, delta int64) error {
	return p.db.WithTx(ctx, func(tx pgx.Tx) error {
		d, err := p.wallets.ApplyDeltaTx(ctx, tx, txn.OwnerID, kind, wallet.BucketBalance, delta)
		if err != nil {
			return err
		}

		now := txn.CreatedAt
		txn.Status = transaction.StatusCompleted
		txn.CompletedAt = &now
		txn.BalanceBefore = &d.BalanceBefore
		txn.BalanceAfter = &d.BalanceAfter
		return p.transactions.CreateTx(ctx, tx, txn)
	})
}

var _ Store = (*PostgresStore)(nil)
