package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bundlemart/internal/common/money"
)

func TestNew(t *testing.T) {
	t.Run("creates pending transaction", func(t *testing.T) {
		txn, err := New("01ABC", "user-1", TypeDeposit, 5000, money.GHS, "DEP01XYZ")
		require.NoError(t, err)

		assert.Equal(t, StatusPending, txn.Status)
		assert.Equal(t, int64(5000), txn.AmountMinor)
		assert.Zero(t, txn.FeeMinor)
		assert.Nil(t, txn.BalanceBefore)
		assert.Nil(t, txn.BalanceAfter)
		assert.NotNil(t, txn.Metadata)
		assert.False(t, txn.CreatedAt.IsZero())
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		cases := []struct {
			name      string
			id        string
			owner     string
			amount    int64
			reference string
		}{
			{"missing id", "", "user-1", 5000, "DEP01"},
			{"missing owner", "01ABC", "", 5000, "DEP01"},
			{"zero amount", "01ABC", "user-1", 0, "DEP01"},
			{"negative amount", "01ABC", "user-1", -100, "DEP01"},
			{"missing reference", "01ABC", "user-1", 5000, ""},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := New(tc.id, tc.owner, TypeDeposit, tc.amount, money.GHS, tc.reference)
				assert.Error(t, err)
			})
		}
	})
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
}

func TestExpectedTotal(t *testing.T) {
	txn, err := New("01ABC", "user-1", TypeDeposit, 10000, money.GHS, "DEP01")
	require.NoError(t, err)
	txn.FeeMinor = 250

	assert.Equal(t, int64(10250), txn.ExpectedTotal())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "applied", OutcomeApplied.String())
	assert.Equal(t, "already_applied", OutcomeAlreadyApplied.String())
	assert.Equal(t, "not_found", OutcomeNotFound.String())
	assert.Equal(t, "invalid_transition", OutcomeInvalidTransition.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
