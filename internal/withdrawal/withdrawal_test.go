package withdrawal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlemart/internal/wallet"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusProcessing},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusRejected},
		{StatusProcessing, StatusCompleted},
	}
	for _, tt := range allowed {
		t.Run(string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			assert.True(t, CanTransition(tt.from, tt.to))
		})
	}

	denied := []struct{ from, to Status }{
		{StatusProcessing, StatusRejected},
		{StatusCompleted, StatusRejected},
		{StatusCompleted, StatusCompleted},
		{StatusRejected, StatusCompleted},
		{StatusRejected, StatusPending},
		{StatusCompleted, StatusPending},
	}
	for _, tt := range denied {
		t.Run("denies "+string(tt.from)+" to "+string(tt.to), func(t *testing.T) {
			assert.False(t, CanTransition(tt.from, tt.to))
		})
	}
}

// ledger is an in-memory bucket map for exercising the move sets.
type ledger map[wallet.Bucket]int64

func (l ledger) apply(t *testing.T, moves []BucketMove) {
	t.Helper()
	for _, m := range moves {
		l[m.Bucket] += m.Delta
	}
}

func TestWithdrawalRoundTrip(t *testing.T) {
	// Two outstanding requests, 30 and 20, escrowed from a balance of 50.
	l := ledger{wallet.BucketBalance: 50}
	l.apply(t, EscrowMoves(30))
	l.apply(t, EscrowMoves(20))

	require.Equal(t, int64(0), l[wallet.BucketBalance])
	require.Equal(t, int64(50), l[wallet.BucketPendingBalance])

	t.Run("rejection refunds the escrow to balance", func(t *testing.T) {
		moves, err := SettlementMoves(StatusRejected, 30)
		require.NoError(t, err)
		l.apply(t, moves)

		assert.Equal(t, int64(20), l[wallet.BucketPendingBalance])
		assert.Equal(t, int64(30), l[wallet.BucketBalance])
		assert.Equal(t, int64(0), l[wallet.BucketTotalWithdrawn])
	})

	t.Run("completion drains the escrow into total withdrawn", func(t *testing.T) {
		moves, err := SettlementMoves(StatusCompleted, 20)
		require.NoError(t, err)
		l.apply(t, moves)

		assert.Equal(t, int64(0), l[wallet.BucketPendingBalance])
		assert.Equal(t, int64(20), l[wallet.BucketTotalWithdrawn])
		assert.Equal(t, int64(30), l[wallet.BucketBalance], "completion never touches balance")
	})
}

func TestSettlementMoves(t *testing.T) {
	t.Run("processing moves nothing", func(t *testing.T) {
		moves, err := SettlementMoves(StatusProcessing, 100)
		require.NoError(t, err)
		assert.Empty(t, moves)
	})

	t.Run("no moves for pending", func(t *testing.T) {
		_, err := SettlementMoves(StatusPending, 100)
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	t.Run("creates pending request", func(t *testing.T) {
		w, err := New("01WTH", "agent-1", 5000, "mobile_money", map[string]string{"number": "0241234567"})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, w.Status)
		assert.Nil(t, w.ProcessedAt)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		_, err := New("01WTH", "agent-1", 0, "bank", nil)
		assert.Error(t, err)
	})

	t.Run("rejects missing method", func(t *testing.T) {
		_, err := New("01WTH", "agent-1", 5000, "", nil)
		assert.Error(t, err)
	})
}
