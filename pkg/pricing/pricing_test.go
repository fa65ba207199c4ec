package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeReferralDiscount(t *testing.T) {
	tests := []struct {
		name string
		base string
		pct  string
		want string
	}{
		{"TenPercent", "100.00", "10", "10.00"},
		{"RoundsHalfUp", "10.05", "50", "5.03"},
		{"RoundsDown", "33.33", "10", "3.33"},
		{"Zero", "80.00", "0", "0"},
		{"Full", "80.00", "100", "80.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeReferralDiscount(d(tt.base), d(tt.pct))
			require.NoError(t, err)
			assert.True(t, d(tt.want).Equal(got), "want %s got %s", tt.want, got)
		})
	}

	_, err := ComputeReferralDiscount(d("10"), d("101"))
	assert.ErrorIs(t, err, ErrInvalidPercentage)

	_, err = ComputeReferralDiscount(d("-1"), d("10"))
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestComputeFinalPrice(t *testing.T) {
	t.Run("DiscountThenPartial", func(t *testing.T) {
		discount, err := ComputeReferralDiscount(d("100.00"), d("10"))
		require.NoError(t, err)
		assert.True(t, d("10.00").Equal(discount))

		res, err := ComputeFinalPrice(d("100.00"), discount, d("20.00"))
		require.NoError(t, err)
		assert.True(t, d("70.00").Equal(res.TotalPrice))
		require.True(t, res.PartialPaid.Valid)
		assert.True(t, d("20.00").Equal(res.PartialPaid.Decimal))
	})

	t.Run("ZeroPartialIsUnset", func(t *testing.T) {
		res, err := ComputeFinalPrice(d("100.00"), d("15.00"), decimal.Zero)
		require.NoError(t, err)
		assert.True(t, d("85.00").Equal(res.TotalPrice))
		assert.False(t, res.PartialPaid.Valid)
	})

	t.Run("PartialEqualToTotal", func(t *testing.T) {
		res, err := ComputeFinalPrice(d("50.00"), decimal.Zero, d("50.00"))
		require.NoError(t, err)
		assert.True(t, res.TotalPrice.IsZero())
	})

	t.Run("PartialExceedsDiscountedPrice", func(t *testing.T) {
		_, err := ComputeFinalPrice(d("100.00"), d("10.00"), d("95.00"))
		assert.ErrorIs(t, err, ErrPartialExceedsTotal)
	})

	t.Run("DiscountExceedsBase", func(t *testing.T) {
		_, err := ComputeFinalPrice(d("10.00"), d("10.01"), decimal.Zero)
		assert.ErrorIs(t, err, ErrDiscountExceedsBase)
	})

	t.Run("NegativePartial", func(t *testing.T) {
		_, err := ComputeFinalPrice(d("10.00"), decimal.Zero, d("-1"))
		assert.ErrorIs(t, err, ErrNegativeAmount)
	})
}

func TestBasePrice(t *testing.T) {
	q := Quote{
		AdultPrice:  d("40.00"),
		ChildPrice:  d("20.00"),
		InfantPrice: d("0"),
	}

	got, err := BasePrice(q, 2, 1, 1)
	require.NoError(t, err)
	assert.True(t, d("100.00").Equal(got))

	q.DiscountPercent = d("12.5")
	got, err = BasePrice(q, 2, 1, 1)
	require.NoError(t, err)
	assert.True(t, d("87.50").Equal(got))

	_, err = BasePrice(q, -1, 0, 0)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}
