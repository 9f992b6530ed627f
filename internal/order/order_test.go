package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidPhone(t *testing.T) {
	valid := []string{
		"0241234567",
		"0551234567",
		"0301234567",
		"+233241234567",
		"233541234567",
	}
	for _, p := range valid {
		t.Run(p, func(t *testing.T) {
			assert.True(t, ValidPhone(p))
		})
	}

	invalid := []string{
		"",
		"024123456",      // too short
		"02412345678",    // too long
		"0141234567",     // bad network prefix
		"+234241234567",  // Nigeria prefix
		"abc1234567",     // non-numeric
		"024 123 4567",   // spaces
		"+2330241234567", // double leading zero
	}
	for _, p := range invalid {
		t.Run("rejects "+p, func(t *testing.T) {
			assert.False(t, ValidPhone(p))
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("computes profit", func(t *testing.T) {
		o, err := New("01ORD", "store-1", "bundle-5gb", "0241234567", 2500, 2000, "PUR01XYZ")
		require.NoError(t, err)

		assert.Equal(t, int64(500), o.Profit)
		assert.Equal(t, StatusPending, o.OrderStatus)
		assert.Equal(t, PaymentPending, o.PaymentStatus)
	})

	t.Run("rejects invalid phone before anything persists", func(t *testing.T) {
		_, err := New("01ORD", "store-1", "bundle-5gb", "12345", 2500, 2000, "PUR01XYZ")
		assert.Error(t, err)
	})

	t.Run("rejects selling below base", func(t *testing.T) {
		_, err := New("01ORD", "store-1", "bundle-5gb", "0241234567", 1500, 2000, "PUR01XYZ")
		assert.Error(t, err)
	})

	t.Run("rejects non-positive prices", func(t *testing.T) {
		_, err := New("01ORD", "store-1", "bundle-5gb", "0241234567", 0, 0, "PUR01XYZ")
		assert.Error(t, err)
	})
}
