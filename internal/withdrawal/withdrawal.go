// Package withdrawal implements the operator-driven payout workflow for
// agent store earnings.
package withdrawal

import (
	"errors"
	"fmt"
	"time"

	"bundlemart/internal/wallet"
)

// Status is the payout lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// CanTransition reports whether an operator action is a legal step.
// Completion is reachable from pending or processing; rejection only from
// pending. Terminal states accept nothing.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusProcessing:
		return from == StatusPending
	case StatusCompleted:
		return from == StatusPending || from == StatusProcessing
	case StatusRejected:
		return from == StatusPending
	default:
		return false
	}
}

// Withdrawal is one payout request. AmountMinor is fixed at creation;
// settlement never re-reads or recomputes it.
type Withdrawal struct {
	ID               string            `json:"id"`
	AgentID          string            `json:"agent_id"`
	AmountMinor      int64             `json:"amount_minor"`
	Method           string            `json:"method"`
	AccountDetails   map[string]string `json:"account_details"`
	Status           Status            `json:"status"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	ProcessedBy      *string           `json:"processed_by,omitempty"`
	ProcessedAt      *time.Time        `json:"processed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// New creates a pending withdrawal request.
func New(id, agentID string, amountMinor int64, method string, accountDetails map[string]string) (*Withdrawal, error) {
	if id == "" || agentID == "" {
		return nil, errors.New("id and agent_id are required")
	}
	if amountMinor <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if method == "" {
		return nil, errors.New("payout method is required")
	}
	if accountDetails == nil {
		accountDetails = make(map[string]string)
	}

	now := time.Now().UTC()
	return &Withdrawal{
		ID:             id,
		AgentID:        agentID,
		AmountMinor:    amountMinor,
		Method:         method,
		AccountDetails: accountDetails,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// BucketMove is one ledger delta in a settlement.
type BucketMove struct {
	Bucket wallet.Bucket
	Delta  int64
}

// EscrowMoves are the ledger deltas applied when a request is created:
// the amount leaves the spendable balance and is held in pending until an
// operator settles the request.
func EscrowMoves(amountMinor int64) []BucketMove {
	return []BucketMove{
		{Bucket: wallet.BucketBalance, Delta: -amountMinor},
		{Bucket: wallet.BucketPendingBalance, Delta: amountMinor},
	}
}

// SettlementMoves are the ledger deltas for an operator decision.
// Completing drains the escrow into the lifetime withdrawn counter;
// rejecting refunds it to the spendable balance; moving to processing
// touches nothing.
func SettlementMoves(target Status, amountMinor int64) ([]BucketMove, error) {
	switch target {
	case StatusProcessing:
		return nil, nil
	case StatusCompleted:
		return []BucketMove{
			{Bucket: wallet.BucketPendingBalance, Delta: -amountMinor},
			{Bucket: wallet.BucketTotalWithdrawn, Delta: amountMinor},
		}, nil
	case StatusRejected:
		return []BucketMove{
			{Bucket: wallet.BucketPendingBalance, Delta: -amountMinor},
			{Bucket: wallet.BucketBalance, Delta: amountMinor},
		}, nil
	default:
		return nil, fmt.Errorf("no settlement for status %s", target)
	}
}
