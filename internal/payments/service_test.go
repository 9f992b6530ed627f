package payments

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlemart/internal/common/database"
	"bundlemart/internal/common/money"
	"bundlemart/internal/fees"
	"bundlemart/internal/gateway"
	"bundlemart/internal/order"
	"bundlemart/internal/refgen"
	"bundlemart/internal/transaction"
	"bundlemart/internal/wallet"
)

type memStore struct {
	balances map[string]int64

	deposits    []*transaction.Transaction
	gatewayTxns []*transaction.Transaction
	walletTxns  []*transaction.Transaction
	adjustments []*transaction.Transaction
	orders      []*order.Order

	createErrs []error
}

func newMemStore() *memStore {
	return &memStore{balances: make(map[string]int64)}
}

func (m *memStore) popCreateErr() error {
	if len(m.createErrs) == 0 {
		return nil
	}
	err := m.createErrs[0]
	m.createErrs = m.createErrs[1:]
	return err
}

func (m *memStore) EnsureWallet(_ context.Context, ownerID string, _ wallet.Kind, currency money.Currency) (*wallet.Wallet, error) {
	if _, ok := m.balances[ownerID]; !ok {
		m.balances[ownerID] = 0
	}
	return &wallet.Wallet{OwnerID: ownerID, Currency: currency, Balance: m.balances[ownerID]}, nil
}

func (m *memStore) GetWallet(_ context.Context, ownerID string, _ wallet.Kind) (*wallet.Wallet, error) {
	bal, ok := m.balances[ownerID]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &wallet.Wallet{OwnerID: ownerID, Balance: bal}, nil
}

func (m *memStore) CreateDeposit(_ context.Context, txn *transaction.Transaction) error {
	if err := m.popCreateErr(); err != nil {
		return err
	}
	m.deposits = append(m.deposits, txn)
	return nil
}

func (m *memStore) CreateGatewayPurchase(_ context.Context, txn *transaction.Transaction, ord *order.Order) error {
	if err := m.popCreateErr(); err != nil {
		return err
	}
	m.gatewayTxns = append(m.gatewayTxns, txn)
	m.orders = append(m.orders, ord)
	return nil
}

func (m *memStore) WalletPurchase(_ context.Context, txn *transaction.Transaction, ord *order.Order) error {
	if err := m.popCreateErr(); err != nil {
		return err
	}
	if _, ok := m.balances[txn.OwnerID]; !ok {
		return fmt.Errorf("wallet %s/%s: %w", txn.OwnerID, wallet.KindCustomer, database.ErrNotFound)
	}
	if m.balances[txn.OwnerID] < ord.SellingPrice {
		return wallet.ErrInsufficientFunds
	}
	m.balances[txn.OwnerID] -= ord.SellingPrice
	m.balances[ord.StoreID] += ord.Profit
	m.walletTxns = append(m.walletTxns, txn)
	m.orders = append(m.orders, ord)
	return nil
}

func (m *memStore) AdminAdjustment(_ context.Context, txn *transaction.Transaction, _ wallet.Kind, delta int64) error {
	if err := m.popCreateErr(); err != nil {
		return err
	}
	if m.balances[txn.OwnerID]+delta < 0 {
		return wallet.ErrInsufficientFunds
	}
	m.balances[txn.OwnerID] += delta
	m.adjustments = append(m.adjustments, txn)
	return nil
}

func (m *memStore) mutations() int {
	return len(m.deposits) + len(m.gatewayTxns) + len(m.walletTxns) + len(m.adjustments)
}

type memCatalog struct {
	products map[string]*Product
}

func (c *memCatalog) Product(_ context.Context, id string) (*Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return p, nil
}

type fakeGateway struct {
	calls []gateway.InitializeRequest
}

func (g *fakeGateway) Initialize(_ context.Context, req gateway.InitializeRequest) (*gateway.Checkout, error) {
	g.calls = append(g.calls, req)
	return &gateway.Checkout{
		AuthorizationURL: "https://checkout.example/" + req.Reference,
		AccessCode:       "AC123",
		Reference:        req.Reference,
	}, nil
}

func bundleProduct() *Product {
	return &Product{
		ID:                "bundle-5gb",
		StoreID:           "store-1",
		Name:              "5GB Bundle",
		SellingPriceMinor: 2500,
		BasePriceMinor:    2000,
		Active:            true,
	}
}

func newTestService(store *memStore, gw *fakeGateway) *Service {
	schedule := fees.NewSchedule(fees.Config{
		MinAmountMinor: 100, MaxAmountMinor: 1_000_000,
		Tier1UpTo: 1000, Tier1Fee: 50,
		Tier2UpTo: 5000, Tier2Fee: 100,
		Tier3UpTo: 50000, Tier3Fee: 250,
		OverflowFee: 500,
	})
	catalog := &memCatalog{products: map[string]*Product{"bundle-5gb": bundleProduct()}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(schedule, refgen.New(), store, catalog, gw, logger)
}

func TestInitiateDeposit(t *testing.T) {
	t.Run("snapshots fee and charges total at the gateway", func(t *testing.T) {
		store := newMemStore()
		gw := &fakeGateway{}
		svc := newTestService(store, gw)

		resp, err := svc.InitiateDeposit(context.Background(), DepositRequest{
			UserID: "user-1", AmountMinor: 10000, Email: "user@example.com",
		})
		require.NoError(t, err)

		require.Len(t, store.deposits, 1)
		txn := store.deposits[0]
		assert.Equal(t, int64(250), txn.FeeMinor)
		assert.Equal(t, "250", txn.Metadata[transaction.MetaFeeMinor])
		assert.Equal(t, "10000", txn.Metadata[transaction.MetaBaseAmount])
		assert.Equal(t, transaction.StatusPending, txn.Status)

		require.Len(t, gw.calls, 1)
		assert.Equal(t, int64(10250), gw.calls[0].AmountMinor)
		assert.Equal(t, txn.Reference, resp.Reference)
		assert.Contains(t, resp.AuthorizationURL, txn.Reference)
	})

	t.Run("rejects dust amounts before anything persists", func(t *testing.T) {
		store := newMemStore()
		gw := &fakeGateway{}
		svc := newTestService(store, gw)

		_, err := svc.InitiateDeposit(context.Background(), DepositRequest{
			UserID: "user-1", AmountMinor: 10, Email: "user@example.com",
		})

		var verr *fees.ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Zero(t, store.mutations())
		assert.Empty(t, gw.calls)
	})

	t.Run("retries on reference collision", func(t *testing.T) {
		store := newMemStore()
		store.createErrs = []error{database.ErrAlreadyExists}
		svc := newTestService(store, &fakeGateway{})

		_, err := svc.InitiateDeposit(context.Background(), DepositRequest{
			UserID: "user-1", AmountMinor: 5000, Email: "user@example.com",
		})
		require.NoError(t, err)
		assert.Len(t, store.deposits, 1)
	})
}

func TestInitiatePurchase(t *testing.T) {
	t.Run("rejects invalid phone before any persistence", func(t *testing.T) {
		store := newMemStore()
		gw := &fakeGateway{}
		svc := newTestService(store, gw)

		_, err := svc.InitiatePurchase(context.Background(), PurchaseRequest{
			ProductID: "bundle-5gb", PhoneNumber: "12345", Method: "gateway", Email: "a@b.com",
		})

		assert.ErrorIs(t, err, ErrInvalidPhone)
		assert.Zero(t, store.mutations())
		assert.Empty(t, gw.calls)
	})

	t.Run("gateway path opens checkout for the selling price", func(t *testing.T) {
		store := newMemStore()
		gw := &fakeGateway{}
		svc := newTestService(store, gw)

		resp, err := svc.InitiatePurchase(context.Background(), PurchaseRequest{
			ProductID: "bundle-5gb", PhoneNumber: "0241234567", Method: "gateway", Email: "a@b.com",
		})
		require.NoError(t, err)

		require.Len(t, store.gatewayTxns, 1)
		assert.Equal(t, transaction.StatusPending, store.gatewayTxns[0].Status)
		require.Len(t, store.orders, 1)
		assert.Equal(t, int64(500), store.orders[0].Profit)
		require.Len(t, gw.calls, 1)
		assert.Equal(t, int64(2500), gw.calls[0].AmountMinor)
		assert.NotEmpty(t, resp.AuthorizationURL)
	})

	t.Run("wallet path debits buyer and credits store profit", func(t *testing.T) {
		store := newMemStore()
		store.balances["user-1"] = 3000
		svc := newTestService(store, &fakeGateway{})

		resp, err := svc.InitiatePurchase(context.Background(), PurchaseRequest{
			ProductID: "bundle-5gb", PhoneNumber: "0241234567", Method: "wallet", UserID: "user-1",
		})
		require.NoError(t, err)

		assert.Empty(t, resp.AuthorizationURL)
		assert.Equal(t, int64(500), store.balances["user-1"])
		assert.Equal(t, int64(500), store.balances["store-1"])
	})

	t.Run("wallet path surfaces insufficient funds", func(t *testing.T) {
		store := newMemStore()
		store.balances["user-1"] = 1000
		svc := newTestService(store, &fakeGateway{})

		_, err := svc.InitiatePurchase(context.Background(), PurchaseRequest{
			ProductID: "bundle-5gb", PhoneNumber: "0241234567", Method: "wallet", UserID: "user-1",
		})

		assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)
		assert.Equal(t, int64(1000), store.balances["user-1"], "failed debit leaves balance untouched")
	})

	t.Run("unknown product is not found", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, &fakeGateway{})

		_, err := svc.InitiatePurchase(context.Background(), PurchaseRequest{
			ProductID: "nope", PhoneNumber: "0241234567", Method: "gateway", Email: "a@b.com",
		})
		assert.ErrorIs(t, err, ErrProductNotFound)
	})

	t.Run("missing buyer wallet is not reported as a product error", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, &fakeGateway{})

		_, err := svc.InitiatePurchase(context.Background(), PurchaseRequest{
			ProductID: "bundle-5gb", PhoneNumber: "0241234567", Method: "wallet", UserID: "no-wallet",
		})

		assert.True(t, database.IsNotFound(err))
		assert.NotErrorIs(t, err, ErrProductNotFound)
	})
}

func TestAdjust(t *testing.T) {
	t.Run("credit and debit round-trip", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, &fakeGateway{})

		_, err := svc.Adjust(context.Background(), AdjustmentRequest{
			OwnerID: "user-1", Kind: wallet.KindCustomer, AmountMinor: 500, Direction: "credit", Note: "goodwill",
		}, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, int64(500), store.balances["user-1"])

		txn, err := svc.Adjust(context.Background(), AdjustmentRequest{
			OwnerID: "user-1", Kind: wallet.KindCustomer, AmountMinor: 200, Direction: "debit", Note: "correction",
		}, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, int64(300), store.balances["user-1"])
		assert.Equal(t, transaction.TypeAdminDebit, txn.Type)
		assert.Equal(t, "admin-1", txn.Metadata[transaction.MetaAdminActor])
	})

	t.Run("debit below zero is rejected", func(t *testing.T) {
		store := newMemStore()
		store.balances["user-1"] = 100
		svc := newTestService(store, &fakeGateway{})

		_, err := svc.Adjust(context.Background(), AdjustmentRequest{
			OwnerID: "user-1", Kind: wallet.KindCustomer, AmountMinor: 150, Direction: "debit", Note: "oops",
		}, "admin-1")

		assert.ErrorIs(t, err, wallet.ErrInsufficientFunds)
		assert.Equal(t, int64(100), store.balances["user-1"])
	})
}

func TestReferencePrefixes(t *testing.T) {
	store := newMemStore()
	store.balances["user-1"] = 10000
	svc := newTestService(store, &fakeGateway{})

	_, err := svc.InitiateDeposit(context.Background(), DepositRequest{
		UserID: "user-1", AmountMinor: 5000, Email: "a@b.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "DEP", store.deposits[0].Reference[:3])

	_, err = svc.InitiatePurchase(context.Background(), PurchaseRequest{
		ProductID: "bundle-5gb", PhoneNumber: "0241234567", Method: "wallet", UserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "PUR", store.walletTxns[0].Reference[:3])

	_, err = svc.Adjust(context.Background(), AdjustmentRequest{
		OwnerID: "user-1", Kind: wallet.KindCustomer, AmountMinor: 100, Direction: "credit", Note: "n",
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", store.adjustments[0].Reference[:5])
}
