// Package recon reconciles gateway webhook events against pending
// transactions and applies their ledger effect exactly once.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"bundlemart/internal/transaction"
)

// Reconciliation errors, mapped to the API error taxonomy by the webhook
// handler.
var (
	ErrSignature = errors.New("invalid webhook signature")
	ErrFraud     = errors.New("paid amount outside tolerance")
)

// Config holds reconciliation settings.
type Config struct {
	WebhookSecret       string `envconfig:"GATEWAY_WEBHOOK_SECRET" required:"true"`
	ToleranceFloorMinor int64  `envconfig:"FRAUD_TOLERANCE_FLOOR_MINOR" default:"50"`
	ToleranceBPS        int64  `envconfig:"FRAUD_TOLERANCE_BPS" default:"100"`
}

// Store is the persistence surface the service drives. Each Complete
// method runs its claim, ledger deltas, audit write and outbox insert in
// one database transaction, so a successful claim can never be stranded
// without its ledger effect.
type Store interface {
	GetTransaction(ctx context.Context, reference string) (*transaction.Transaction, error)
	CompleteDeposit(ctx context.Context, txn *transaction.Transaction, meta map[string]string) (transaction.Outcome, error)
	CompletePurchase(ctx context.Context, txn *transaction.Transaction, meta map[string]string) (transaction.Outcome, error)
	FailTransaction(ctx context.Context, txn *transaction.Transaction, meta map[string]string) (transaction.Outcome, error)
}

// Notifier dispatches best-effort payment notifications. Implementations
// must never block reconciliation on delivery.
type Notifier interface {
	PaymentCompleted(ctx context.Context, ownerID, reference string, amountMinor int64)
	PaymentFailed(ctx context.Context, ownerID, reference, reason string)
}

// Verifier authenticates a webhook body against its signature header.
type Verifier func(body []byte, signature, secret string) bool

// Result is the outcome reported back to the gateway.
type Result struct {
	Handled   bool   `json:"handled"`
	Replay    bool   `json:"replay,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// Service is the reconciliation orchestrator.
type Service struct {
	cfg      Config
	store    Store
	notifier Notifier
	verify   Verifier
	logger   *slog.Logger
}

// NewService creates a reconciliation service.
func NewService(cfg Config, store Store, notifier Notifier, verify Verifier, logger *slog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		verify:   verify,
		logger:   logger,
	}
}

// Tolerance returns the acceptable absolute difference between the
// expected and gateway-reported amounts: the larger of the configured
// floor and the configured fraction of the expected amount.
func (s *Service) Tolerance(expectedMinor int64) int64 {
	relative := expectedMinor * s.cfg.ToleranceBPS / 10_000
	if relative > s.cfg.ToleranceFloorMinor {
		return relative
	}
	return s.cfg.ToleranceFloorMinor
}

// ProcessWebhook handles one webhook delivery. The signature is checked
// over the exact body bytes before anything is parsed or touched.
func (s *Service) ProcessWebhook(ctx context.Context, body []byte, signature string) (*Result, error) {
	if !s.verify(body, signature, s.cfg.WebhookSecret) {
		s.logger.Warn("webhook signature rejected", "body_len", len(body))
		return nil, ErrSignature
	}

	evt, err := parseEvent(body)
	if err != nil {
		return nil, err
	}

	if evt.Event != EventChargeSuccess {
		// Acknowledged but not handled, so the gateway does not retry.
		s.logger.Info("ignoring webhook event", "event", evt.Event)
		return &Result{Handled: false}, nil
	}

	txn, err := s.store.GetTransaction(ctx, evt.Data.Reference)
	if err != nil {
		return nil, fmt.Errorf("looking up transaction %s: %w", evt.Data.Reference, err)
	}

	return s.reconcile(ctx, txn, evt.Data.AmountMinor, strconv.FormatInt(evt.Data.ID, 10))
}

// reconcile runs the fraud gate and the exactly-once completion for one
// gateway-reported payment. Shared by the webhook path and the
// stale-pending sweep.
func (s *Service) reconcile(ctx context.Context, txn *transaction.Transaction, paidMinor int64, gatewayID string) (*Result, error) {
	meta := map[string]string{
		transaction.MetaGatewayID:     gatewayID,
		transaction.MetaGatewayAmount: strconv.FormatInt(paidMinor, 10),
	}

	if err := s.fraudGate(ctx, txn, paidMinor, meta); err != nil {
		return nil, err
	}

	var outcome transaction.Outcome
	var err error
	switch txn.Type {
	case transaction.TypeDeposit:
		outcome, err = s.store.CompleteDeposit(ctx, txn, meta)
	case transaction.TypePurchase:
		outcome, err = s.store.CompletePurchase(ctx, txn, meta)
	default:
		// Withdrawals and admin adjustments never go through the gateway;
		// a paid reference of such a type is a wiring bug, not a credit.
		return nil, fmt.Errorf("transaction %s: type %s is not gateway-reconcilable", txn.Reference, txn.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("completing %s %s: %w", txn.Type, txn.Reference, err)
	}

	switch outcome {
	case transaction.OutcomeApplied:
		s.logger.Info("payment reconciled",
			"reference", txn.Reference,
			"type", txn.Type,
			"amount_minor", txn.AmountMinor,
		)
		s.notifier.PaymentCompleted(ctx, txn.OwnerID, txn.Reference, txn.AmountMinor)
		return &Result{Handled: true, Reference: txn.Reference}, nil

	case transaction.OutcomeAlreadyApplied:
		// Duplicate delivery; the first one did the work.
		s.logger.Info("webhook replay ignored", "reference", txn.Reference)
		return &Result{Handled: true, Replay: true, Reference: txn.Reference}, nil

	default:
		return nil, fmt.Errorf("transaction %s: claim outcome %s", txn.Reference, outcome)
	}
}

// fraudGate fails the transaction when the gateway-reported amount falls
// outside tolerance of the snapshotted expectation. No ledger credit is
// ever issued for a mismatched amount.
func (s *Service) fraudGate(ctx context.Context, txn *transaction.Transaction, paidMinor int64, meta map[string]string) error {
	expected := txn.ExpectedTotal()
	diff := paidMinor - expected
	if diff < 0 {
		diff = -diff
	}
	if diff <= s.Tolerance(expected) {
		return nil
	}

	reason := fmt.Sprintf("paid %d, expected %d", paidMinor, expected)
	fraudMeta := map[string]string{
		transaction.MetaFraudFlag:   "amount_mismatch",
		transaction.MetaFraudReason: reason,
	}
	for k, v := range meta {
		fraudMeta[k] = v
	}

	outcome, err := s.store.FailTransaction(ctx, txn, fraudMeta)
	if err != nil {
		return fmt.Errorf("failing transaction %s: %w", txn.Reference, err)
	}

	s.logger.Warn("fraud gate rejected payment",
		"reference", txn.Reference,
		"expected_minor", expected,
		"paid_minor", paidMinor,
		"outcome", outcome.String(),
	)
	s.notifier.PaymentFailed(ctx, txn.OwnerID, txn.Reference, reason)

	return fmt.Errorf("transaction %s: %w: %s", txn.Reference, ErrFraud, reason)
}
