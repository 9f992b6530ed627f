package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucket_Column(t *testing.T) {
	tests := []struct {
		bucket Bucket
		column string
	}{
		{BucketBalance, "balance"},
		{BucketPendingBalance, "pending_balance"},
		{BucketTotalDeposits, "total_deposits"},
		{BucketTotalEarnings, "total_earnings"},
		{BucketTotalSpent, "total_spent"},
		{BucketTotalWithdrawn, "total_withdrawn"},
	}

	for _, tt := range tests {
		t.Run(string(tt.bucket), func(t *testing.T) {
			col, ok := tt.bucket.Column()
			assert.True(t, ok)
			assert.Equal(t, tt.column, col)
		})
	}

	t.Run("unknown bucket is rejected", func(t *testing.T) {
		_, ok := Bucket("balance; DROP TABLE wallets").Column()
		assert.False(t, ok)
	})
}

func TestBucket_DebitGuarded(t *testing.T) {
	assert.True(t, BucketBalance.DebitGuarded())
	assert.True(t, BucketPendingBalance.DebitGuarded())

	// Lifetime counters only ever grow; no guard needed.
	assert.False(t, BucketTotalDeposits.DebitGuarded())
	assert.False(t, BucketTotalEarnings.DebitGuarded())
	assert.False(t, BucketTotalSpent.DebitGuarded())
	assert.False(t, BucketTotalWithdrawn.DebitGuarded())
}
