package fees

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig() Config {
	return Config{
		MinAmountMinor: 100,
		MaxAmountMinor: 1000000,
		Tier1UpTo:      1000,
		Tier1Fee:       50,
		Tier2UpTo:      5000,
		Tier2Fee:       100,
		Tier3UpTo:      50000,
		Tier3Fee:       250,
		OverflowFee:    500,
	}
}

func TestSchedule_Fee(t *testing.T) {
	s := NewSchedule(defaultConfig())

	tests := []struct {
		name   string
		amount int64
		want   int64
	}{
		{"bottom of first tier", 100, 50},
		{"top of first tier", 1000, 50},
		{"second tier", 1001, 100},
		{"top of second tier", 5000, 100},
		{"third tier", 20000, 250},
		{"top of third tier", 50000, 250},
		{"overflow", 50001, 500},
		{"well above tiers", 900000, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Fee(tt.amount))
		})
	}
}

func TestSchedule_ValidateAmount(t *testing.T) {
	s := NewSchedule(defaultConfig())

	t.Run("accepts in-range amount", func(t *testing.T) {
		assert.NoError(t, s.ValidateAmount(2500))
	})

	t.Run("accepts boundary amounts", func(t *testing.T) {
		assert.NoError(t, s.ValidateAmount(100))
		assert.NoError(t, s.ValidateAmount(1000000))
	})

	t.Run("rejects dust", func(t *testing.T) {
		err := s.ValidateAmount(99)
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Len(t, verr.Reasons, 1)
	})

	t.Run("rejects zero and negative", func(t *testing.T) {
		assert.Error(t, s.ValidateAmount(0))
		assert.Error(t, s.ValidateAmount(-500))
	})

	t.Run("rejects above ceiling", func(t *testing.T) {
		err := s.ValidateAmount(1000001)
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Contains(t, verr.Reasons[0], "maximum")
	})
}
