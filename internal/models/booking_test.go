package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCreateBookingRequestValidate(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		req := CreateBookingRequest{WindowID: "w", TourDate: "2025-01-03", AdultCount: 2}
		assert.NoError(t, req.Validate())
	})

	t.Run("NoGuests", func(t *testing.T) {
		req := CreateBookingRequest{WindowID: "w", TourDate: "2025-01-03"}
		assert.Error(t, req.Validate())
	})

	t.Run("NegativeCount", func(t *testing.T) {
		req := CreateBookingRequest{WindowID: "w", TourDate: "2025-01-03", AdultCount: 3, ChildCount: -1}
		assert.Error(t, req.Validate())
	})

	t.Run("PartialPaymentNeedsMethod", func(t *testing.T) {
		paid := decimal.NewFromInt(20)
		req := CreateBookingRequest{WindowID: "w", TourDate: "2025-01-03", AdultCount: 1, PartialPaid: &paid}
		assert.Error(t, req.Validate())

		method := "cash"
		req.PartialPaymentMethod = &method
		assert.NoError(t, req.Validate())
	})
}

func TestBookingTransitions(t *testing.T) {
	b := &Booking{PaymentStatus: PaymentStatusPending}
	assert.True(t, b.HoldsCapacity())
	assert.True(t, b.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, b.CanTransitionTo(PaymentStatusExpired))

	b.PaymentStatus = PaymentStatusCompleted
	assert.True(t, b.HoldsCapacity())
	assert.True(t, b.CanTransitionTo(PaymentStatusCancelled))
	assert.False(t, b.CanTransitionTo(PaymentStatusExpired))

	b.PaymentStatus = PaymentStatusCancelled
	assert.False(t, b.HoldsCapacity())
	assert.False(t, b.CanTransitionTo(PaymentStatusCancelled))
}

func TestBookingHasStarted(t *testing.T) {
	loc := time.UTC
	tourDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	start := "09:30"

	b := &Booking{TourDate: tourDate, StartTime: &start}

	assert.False(t, b.HasStarted(time.Date(2025, 3, 9, 23, 0, 0, 0, loc), loc))
	assert.False(t, b.HasStarted(time.Date(2025, 3, 10, 9, 0, 0, 0, loc), loc))
	assert.True(t, b.HasStarted(time.Date(2025, 3, 10, 9, 30, 0, 0, loc), loc))
	assert.True(t, b.HasStarted(time.Date(2025, 3, 11, 0, 0, 0, 0, loc), loc))

	b.StartTime = nil
	assert.False(t, b.HasStarted(time.Date(2025, 3, 10, 23, 59, 0, 0, loc), loc))
	assert.True(t, b.HasStarted(time.Date(2025, 3, 11, 0, 0, 1, 0, loc), loc))
}

func TestReferralCodeRedeemable(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	code := &ReferralCode{Status: ReferralStatusActive, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, code.IsRedeemable(now))

	code.ExpiresAt = now
	assert.True(t, code.IsExpired(now))
	assert.False(t, code.IsRedeemable(now))

	assert.Equal(t, "SUMMER15", NormalizeReferralCode("  summer15 "))
}
