// Package payments implements deposit, purchase and admin-adjustment
// initiation on top of the ledger and the payment gateway.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/oklog/ulid/v2"

	"bundlemart/internal/common/database"
	"bundlemart/internal/common/money"
	"bundlemart/internal/fees"
	"bundlemart/internal/gateway"
	"bundlemart/internal/order"
	"bundlemart/internal/refgen"
	"bundlemart/internal/transaction"
	"bundlemart/internal/wallet"
)

// Purchase preconditions rejected before any transaction is created.
var (
	ErrInvalidPhone    = errors.New("invalid recipient phone number")
	ErrProductNotFound = errors.New("product not found")
)

// referenceRetries bounds how often a colliding reference is regenerated.
const referenceRetries = 3

// Initializer starts a hosted checkout session at the gateway.
type Initializer interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Checkout, error)
}

// Catalog resolves products. The catalog itself is owned elsewhere; this
// engine only reads prices.
type Catalog interface {
	Product(ctx context.Context, id string) (*Product, error)
}

// Product is the priced catalog entry a purchase is made against.
type Product struct {
	ID                string `json:"id"`
	StoreID           string `json:"store_id"`
	Name              string `json:"name"`
	SellingPriceMinor int64  `json:"selling_price_minor"`
	BasePriceMinor    int64  `json:"base_price_minor"`
	Active            bool   `json:"active"`
}

// Store is the persistence surface for payment initiation. Composite
// operations are atomic: the wallet purchase path commits its debit,
// credit, audit row, order and fulfillment job together or not at all.
type Store interface {
	EnsureWallet(ctx context.Context, ownerID string, kind wallet.Kind, currency money.Currency) (*wallet.Wallet, error)
	GetWallet(ctx context.Context, ownerID string, kind wallet.Kind) (*wallet.Wallet, error)
	CreateDeposit(ctx context.Context, txn *transaction.Transaction) error
	CreateGatewayPurchase(ctx context.Context, txn *transaction.Transaction, ord *order.Order) error
	WalletPurchase(ctx context.Context, txn *transaction.Transaction, ord *order.Order) error
	AdminAdjustment(ctx context.Context, txn *transaction.Transaction, kind wallet.Kind, delta int64) error
}

// Service orchestrates payment initiation.
type Service struct {
	schedule *fees.Schedule
	refs     *refgen.Generator
	store    Store
	catalog  Catalog
	gateway  Initializer
	logger   *slog.Logger
}

// NewService creates a payments service.
func NewService(schedule *fees.Schedule, refs *refgen.Generator, store Store, catalog Catalog, gw Initializer, logger *slog.Logger) *Service {
	return &Service{
		schedule: schedule,
		refs:     refs,
		store:    store,
		catalog:  catalog,
		gateway:  gw,
		logger:   logger,
	}
}

// DepositRequest initiates a wallet top-up.
type DepositRequest struct {
	UserID      string `json:"user_id" validate:"required"`
	AmountMinor int64  `json:"amount_minor" validate:"required,gt=0"`
	Email       string `json:"email" validate:"required,email"`
}

// DepositResponse hands the hosted checkout back to the client.
type DepositResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	Reference        string `json:"reference"`
	TransactionID    string `json:"transaction_id"`
}

// InitiateDeposit validates the amount, snapshots the fee, records a
// pending transaction and opens a checkout session for amount plus fee.
func (s *Service) InitiateDeposit(ctx context.Context, req DepositRequest) (*DepositResponse, error) {
	if err := s.schedule.ValidateAmount(req.AmountMinor); err != nil {
		return nil, err
	}
	fee := s.schedule.Fee(req.AmountMinor)

	if _, err := s.store.EnsureWallet(ctx, req.UserID, wallet.KindCustomer, money.GHS); err != nil {
		return nil, fmt.Errorf("ensuring wallet: %w", err)
	}

	var txn *transaction.Transaction
	err := s.withReferenceRetry(func() error {
		t, err := transaction.New(ulid.Make().String(), req.UserID, transaction.TypeDeposit, req.AmountMinor, money.GHS, s.refs.Generate(refgen.PrefixDeposit))
		if err != nil {
			return err
		}
		t.FeeMinor = fee
		t.Metadata[transaction.MetaPaymentType] = "deposit"
		t.Metadata[transaction.MetaFeeMinor] = strconv.FormatInt(fee, 10)
		t.Metadata[transaction.MetaBaseAmount] = strconv.FormatInt(req.AmountMinor, 10)

		if err := s.store.CreateDeposit(ctx, t); err != nil {
			return err
		}
		txn = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	checkout, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       req.Email,
		AmountMinor: txn.ExpectedTotal(),
		Currency:    money.GHS,
		Reference:   txn.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing checkout: %w", err)
	}

	s.logger.Info("deposit initiated",
		"user_id", req.UserID,
		"reference", txn.Reference,
		"amount_minor", req.AmountMinor,
		"fee_minor", fee,
	)

	return &DepositResponse{
		AuthorizationURL: checkout.AuthorizationURL,
		Reference:        txn.Reference,
		TransactionID:    txn.ID,
	}, nil
}

// PurchaseRequest initiates a bundle purchase. Method selects how the
// buyer pays: "gateway" opens a hosted checkout, "wallet" debits the
// customer's balance immediately.
type PurchaseRequest struct {
	ProductID   string `json:"product_id" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	Method      string `json:"method" validate:"required,oneof=gateway wallet"`
	UserID      string `json:"user_id,omitempty"`
}

// PurchaseResponse reports how the purchase proceeds.
type PurchaseResponse struct {
	AuthorizationURL string `json:"authorization_url,omitempty"`
	Reference        string `json:"reference"`
	OrderID          string `json:"order_id"`
}

// InitiatePurchase rejects bad recipients before anything persists, then
// branches on the payment method.
func (s *Service) InitiatePurchase(ctx context.Context, req PurchaseRequest) (*PurchaseResponse, error) {
	if !order.ValidPhone(req.PhoneNumber) {
		return nil, ErrInvalidPhone
	}

	product, err := s.catalog.Product(ctx, req.ProductID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, fmt.Errorf("product %s: %w", req.ProductID, ErrProductNotFound)
		}
		return nil, fmt.Errorf("looking up product %s: %w", req.ProductID, err)
	}
	if !product.Active {
		// Inactive products are indistinguishable from absent ones to buyers.
		return nil, fmt.Errorf("product %s: %w", req.ProductID, ErrProductNotFound)
	}

	switch req.Method {
	case "wallet":
		return s.walletPurchase(ctx, req, product)
	default:
		return s.gatewayPurchase(ctx, req, product)
	}
}

func (s *Service) gatewayPurchase(ctx context.Context, req PurchaseRequest, product *Product) (*PurchaseResponse, error) {
	if req.Email == "" {
		return nil, errors.New("email is required for gateway checkout")
	}

	var txn *transaction.Transaction
	var ord *order.Order
	err := s.withReferenceRetry(func() error {
		reference := s.refs.Generate(refgen.PrefixPurchase)

		t, err := transaction.New(ulid.Make().String(), product.StoreID, transaction.TypePurchase, product.SellingPriceMinor, money.GHS, reference)
		if err != nil {
			return err
		}
		t.Metadata[transaction.MetaPaymentType] = "purchase"

		o, err := order.New(ulid.Make().String(), product.StoreID, product.ID, req.PhoneNumber, product.SellingPriceMinor, product.BasePriceMinor, reference)
		if err != nil {
			return err
		}

		if err := s.store.CreateGatewayPurchase(ctx, t, o); err != nil {
			return err
		}
		txn, ord = t, o
		return nil
	})
	if err != nil {
		return nil, err
	}

	checkout, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       req.Email,
		AmountMinor: product.SellingPriceMinor,
		Currency:    money.GHS,
		Reference:   txn.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing checkout: %w", err)
	}

	s.logger.Info("gateway purchase initiated",
		"order_id", ord.ID,
		"reference", txn.Reference,
		"product_id", product.ID,
	)

	return &PurchaseResponse{
		AuthorizationURL: checkout.AuthorizationURL,
		Reference:        txn.Reference,
		OrderID:          ord.ID,
	}, nil
}

// walletPurchase debits the buyer's balance and settles the order in one
// atomic operation; there is no gateway leg and no pending state.
func (s *Service) walletPurchase(ctx context.Context, req PurchaseRequest, product *Product) (*PurchaseResponse, error) {
	if req.UserID == "" {
		return nil, errors.New("user_id is required for wallet purchases")
	}

	var txn *transaction.Transaction
	var ord *order.Order
	err := s.withReferenceRetry(func() error {
		reference := s.refs.Generate(refgen.PrefixPurchase)

		t, err := transaction.New(ulid.Make().String(), req.UserID, transaction.TypePurchase, product.SellingPriceMinor, money.GHS, reference)
		if err != nil {
			return err
		}
		t.Metadata[transaction.MetaPaymentType] = "purchase"

		o, err := order.New(ulid.Make().String(), product.StoreID, product.ID, req.PhoneNumber, product.SellingPriceMinor, product.BasePriceMinor, reference)
		if err != nil {
			return err
		}

		if err := s.store.WalletPurchase(ctx, t, o); err != nil {
			return err
		}
		txn, ord = t, o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet purchase completed",
		"order_id", ord.ID,
		"reference", txn.Reference,
		"user_id", req.UserID,
	)

	return &PurchaseResponse{
		Reference: txn.Reference,
		OrderID:   ord.ID,
	}, nil
}

// AdjustmentRequest is a manual admin credit or debit.
type AdjustmentRequest struct {
	OwnerID     string      `json:"owner_id" validate:"required"`
	Kind        wallet.Kind `json:"kind" validate:"required,oneof=customer store"`
	AmountMinor int64       `json:"amount_minor" validate:"required,gt=0"`
	Direction   string      `json:"direction" validate:"required,oneof=credit debit"`
	Note        string      `json:"note" validate:"required"`
}

// Adjust applies an admin credit or debit with a full audit trail.
func (s *Service) Adjust(ctx context.Context, req AdjustmentRequest, actor string) (*transaction.Transaction, error) {
	txType := transaction.TypeAdminCredit
	delta := req.AmountMinor
	if req.Direction == "debit" {
		txType = transaction.TypeAdminDebit
		delta = -req.AmountMinor
	}

	var txn *transaction.Transaction
	err := s.withReferenceRetry(func() error {
		t, err := transaction.New(ulid.Make().String(), req.OwnerID, txType, req.AmountMinor, money.GHS, s.refs.Generate(refgen.PrefixAdmin))
		if err != nil {
			return err
		}
		t.Metadata[transaction.MetaAdminActor] = actor
		t.Metadata[transaction.MetaNote] = req.Note

		if err := s.store.AdminAdjustment(ctx, t, req.Kind, delta); err != nil {
			return err
		}
		txn = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("admin adjustment applied",
		"owner_id", req.OwnerID,
		"direction", req.Direction,
		"amount_minor", req.AmountMinor,
		"actor", actor,
	)
	return txn, nil
}

// Wallet returns an owner's wallet.
func (s *Service) Wallet(ctx context.Context, ownerID string, kind wallet.Kind) (*wallet.Wallet, error) {
	return s.store.GetWallet(ctx, ownerID, kind)
}

// withReferenceRetry retries the operation with a fresh reference when
// the unique constraint on reference fires.
func (s *Service) withReferenceRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < referenceRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, database.ErrAlreadyExists) {
			return err
		}
		s.logger.Warn("reference collision, regenerating", "attempt", attempt+1)
	}
	return fmt.Errorf("reference collisions exhausted retries: %w", err)
}
