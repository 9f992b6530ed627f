// Package transaction holds the append-only money-movement audit log and
// its status state machine.
package transaction

import (
	"errors"
	"time"

	"bundlemart/internal/common/money"
)

// Type classifies a money-moving event.
type Type string

const (
	TypeDeposit     Type = "deposit"
	TypePurchase    Type = "purchase"
	TypeWithdrawal  Type = "withdrawal"
	TypeRefund      Type = "refund"
	TypeAdminCredit Type = "admin_credit"
	TypeAdminDebit  Type = "admin_debit"
)

// Status is the lifecycle state of a transaction. pending is the only
// non-terminal state; transitions move forward only.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRejected  Status = "rejected"
)

// IsTerminal reports whether a status accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRejected
}

// Outcome is the result of a claim attempt against the state machine.
type Outcome int

const (
	// OutcomeApplied means the state actually changed; the caller should
	// proceed with the paired ledger mutation.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyApplied means the transaction was already in the target
	// state; the caller must skip the ledger mutation.
	OutcomeAlreadyApplied
	// OutcomeNotFound means no transaction carries the reference.
	OutcomeNotFound
	// OutcomeInvalidTransition means the transaction is in a different
	// terminal state than the target.
	OutcomeInvalidTransition
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeInvalidTransition:
		return "invalid_transition"
	default:
		return "unknown"
	}
}

// Well-known metadata keys.
const (
	MetaPaymentType   = "payment_type"
	MetaFeeMinor      = "fee_minor"
	MetaBaseAmount    = "base_amount"
	MetaGatewayID     = "gateway_id"
	MetaGatewayAmount = "gateway_amount"
	MetaFraudFlag     = "fraud_flag"
	MetaFraudReason   = "fraud_reason"
	MetaOrderID       = "order_id"
	MetaWithdrawalID  = "withdrawal_id"
	MetaAdminActor    = "admin_actor"
	MetaNote          = "note"
)

// Transaction is one audit row. Rows are created pending, mutated only by
// the reconciliation service or the withdrawal workflow, never deleted.
type Transaction struct {
	ID            string            `json:"id"`
	OwnerID       string            `json:"owner_id"`
	Type          Type              `json:"type"`
	AmountMinor   int64             `json:"amount_minor"`
	FeeMinor      int64             `json:"fee_minor"`
	Currency      money.Currency    `json:"currency"`
	BalanceBefore *int64            `json:"balance_before,omitempty"`
	BalanceAfter  *int64            `json:"balance_after,omitempty"`
	Reference     string            `json:"reference"`
	Status        Status            `json:"status"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// New creates a pending transaction.
func New(id, ownerID string, txType Type, amountMinor int64, currency money.Currency, reference string) (*Transaction, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if ownerID == "" {
		return nil, errors.New("owner_id is required")
	}
	if amountMinor <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if reference == "" {
		return nil, errors.New("reference is required")
	}

	return &Transaction{
		ID:          id,
		OwnerID:     ownerID,
		Type:        txType,
		AmountMinor: amountMinor,
		Currency:    currency,
		Reference:   reference,
		Status:      StatusPending,
		Metadata:    make(map[string]string),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// ExpectedTotal is the amount the gateway must report as paid: the
// snapshotted base amount plus the snapshotted fee.
func (t *Transaction) ExpectedTotal() int64 {
	return t.AmountMinor + t.FeeMinor
}
