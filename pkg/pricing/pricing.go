// Package pricing computes payable amounts for excursion bookings.
//
// All arithmetic is fixed-point. Amounts are rounded to two decimal places
// with halves rounded away from zero.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeAmount is returned when a price, discount or payment is negative
	ErrNegativeAmount = errors.New("amounts must not be negative")

	// ErrInvalidPercentage is returned for a percentage outside [0, 100]
	ErrInvalidPercentage = errors.New("percentage must be between 0 and 100")

	// ErrDiscountExceedsBase is returned when a discount is larger than the base price
	ErrDiscountExceedsBase = errors.New("discount exceeds base price")

	// ErrPartialExceedsTotal is returned when the amount already paid is larger
	// than the discounted price
	ErrPartialExceedsTotal = errors.New("partial payment exceeds discounted price")
)

const moneyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Result is the outcome of ComputeFinalPrice
type Result struct {
	TotalPrice  decimal.Decimal
	PartialPaid decimal.NullDecimal // Valid only when a positive partial payment was recorded
}

// Quote holds the per-category unit prices of a window
type Quote struct {
	AdultPrice      decimal.Decimal
	ChildPrice      decimal.Decimal
	InfantPrice     decimal.Decimal
	DiscountPercent decimal.Decimal
}

// Round rounds an amount to money precision
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(moneyPlaces)
}

// ComputeReferralDiscount returns pct percent of basePrice
func ComputeReferralDiscount(basePrice, pct decimal.Decimal) (decimal.Decimal, error) {
	if basePrice.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return decimal.Zero, ErrInvalidPercentage
	}
	return Round(basePrice.Mul(pct).Div(hundred)), nil
}

// ComputeFinalPrice subtracts the discount and then any partial payment from
// basePrice. A zero partial payment is not recorded.
func ComputeFinalPrice(basePrice, discount, partialPaid decimal.Decimal) (Result, error) {
	if basePrice.IsNegative() || discount.IsNegative() || partialPaid.IsNegative() {
		return Result{}, ErrNegativeAmount
	}
	if discount.GreaterThan(basePrice) {
		return Result{}, ErrDiscountExceedsBase
	}

	discounted := Round(basePrice.Sub(discount))

	if !partialPaid.IsPositive() {
		return Result{TotalPrice: discounted}, nil
	}

	paid := Round(partialPaid)
	if paid.GreaterThan(discounted) {
		return Result{}, ErrPartialExceedsTotal
	}

	return Result{
		TotalPrice:  discounted.Sub(paid),
		PartialPaid: decimal.NullDecimal{Decimal: paid, Valid: true},
	}, nil
}

// BasePrice prices a party against a window's unit prices, less the
// window's own discount percentage.
func BasePrice(q Quote, adults, children, infants int) (decimal.Decimal, error) {
	if adults < 0 || children < 0 || infants < 0 {
		return decimal.Zero, ErrNegativeAmount
	}
	if q.AdultPrice.IsNegative() || q.ChildPrice.IsNegative() || q.InfantPrice.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}

	gross := q.AdultPrice.Mul(decimal.NewFromInt(int64(adults))).
		Add(q.ChildPrice.Mul(decimal.NewFromInt(int64(children)))).
		Add(q.InfantPrice.Mul(decimal.NewFromInt(int64(infants))))

	if q.DiscountPercent.IsZero() {
		return Round(gross), nil
	}

	windowDiscount, err := ComputeReferralDiscount(gross, q.DiscountPercent)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(gross.Sub(windowDiscount)), nil
}
