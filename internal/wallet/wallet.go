// Package wallet provides the persisted account ledger for customer
// wallets and agent store balances.
package wallet

import (
	"errors"
	"time"

	"bundlemart/internal/common/money"
)

// Kind distinguishes customer wallets from agent store ledgers.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindStore    Kind = "store"
)

// Bucket selects which ledger field a delta applies to.
type Bucket string

const (
	BucketBalance        Bucket = "balance"
	BucketPendingBalance Bucket = "pending_balance"
	BucketTotalDeposits  Bucket = "total_deposits"
	BucketTotalEarnings  Bucket = "total_earnings"
	BucketTotalSpent     Bucket = "total_spent"
	BucketTotalWithdrawn Bucket = "total_withdrawn"
)

// column maps a bucket to its table column. Serving as a whitelist, it
// keeps bucket names out of SQL string interpolation.
var columns = map[Bucket]string{
	BucketBalance:        "balance",
	BucketPendingBalance: "pending_balance",
	BucketTotalDeposits:  "total_deposits",
	BucketTotalEarnings:  "total_earnings",
	BucketTotalSpent:     "total_spent",
	BucketTotalWithdrawn: "total_withdrawn",
}

// Column returns the table column for a bucket, or false for an unknown
// bucket.
func (b Bucket) Column() (string, bool) {
	col, ok := columns[b]
	return col, ok
}

// DebitGuarded reports whether a bucket may never go negative. The
// lifetime counters are monotonic by construction, so only the spendable
// buckets carry the guard.
func (b Bucket) DebitGuarded() bool {
	return b == BucketBalance || b == BucketPendingBalance
}

// Wallet is one account ledger row.
type Wallet struct {
	ID             string         `json:"id"`
	OwnerID        string         `json:"owner_id"`
	Kind           Kind           `json:"kind"`
	Currency       money.Currency `json:"currency"`
	Balance        int64          `json:"balance"`
	PendingBalance int64          `json:"pending_balance"`
	TotalDeposits  int64          `json:"total_deposits"`
	TotalEarnings  int64          `json:"total_earnings"`
	TotalSpent     int64          `json:"total_spent"`
	TotalWithdrawn int64          `json:"total_withdrawn"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Errors returned by the store.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownBucket     = errors.New("unknown ledger bucket")
)

// Delta is the result of one applied ledger mutation. Callers pair every
// successful delta with exactly one transaction audit row recording these
// values.
type Delta struct {
	BalanceBefore int64
	BalanceAfter  int64
}
