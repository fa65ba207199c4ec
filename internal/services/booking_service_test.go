package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/excursion-backend/internal/external"
	"github.com/tourdesk/excursion-backend/internal/models"
)

func TestTryBookCapacityScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	first, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 6), BookingCaller{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, first.PaymentStatus)
	assert.Equal(t, "exc-1", first.ExcursionID)
	assert.True(t, decimal.NewFromInt(240).Equal(first.TotalPrice))
	assert.Equal(t, 4, env.day(t, w.ID, "2025-01-03").Remaining())

	_, err = env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 5), BookingCaller{})
	var capErr *InsufficientCapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 5, capErr.Requested)
	assert.Equal(t, 4, capErr.Remaining)
	assert.Equal(t, 6, env.day(t, w.ID, "2025-01-03").BookedGuests)

	_, err = env.bookings.CancelBooking(ctx, first.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, 0, env.day(t, w.ID, "2025-01-03").BookedGuests)

	_, err = env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 5), BookingCaller{})
	require.NoError(t, err)

	assert.Equal(t, 5, env.day(t, w.ID, "2025-01-03").BookedGuests)
	got, err := env.availability.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.BookedGuests)

	assert.Equal(t, []string{
		models.SubjectBookingCreated,
		models.SubjectBookingCancelled,
		models.SubjectBookingCreated,
	}, env.notifier.subjects())
}

func TestTryBookRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	t.Run("date without a day", func(t *testing.T) {
		_, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-04", 1), BookingCaller{})
		assert.ErrorIs(t, err, ErrDayNotBookable)
	})

	t.Run("past date", func(t *testing.T) {
		_, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2024-12-30", 1), BookingCaller{})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("no guests", func(t *testing.T) {
		_, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 0), BookingCaller{})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})

	t.Run("pickup point not served", func(t *testing.T) {
		req := bookingRequest(w.ID, "2025-01-03", 1)
		req.PickupPointID = "p-station"
		_, err := env.bookings.TryBook(ctx, req, BookingCaller{})
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
		assert.Equal(t, 0, env.day(t, w.ID, "2025-01-03").BookedGuests)
	})

	t.Run("unknown window", func(t *testing.T) {
		_, err := env.bookings.TryBook(ctx, bookingRequest("missing", "2025-01-03", 1), BookingCaller{})
		assert.ErrorIs(t, err, ErrWindowNotFound)
	})
}

func TestTryBookPartialPayment(t *testing.T) {
	env := newTestEnv(t)
	w := env.saveWindow(t, windowRequest())

	paid := decimal.NewFromInt(50)
	method := "cash"
	req := bookingRequest(w.ID, "2025-01-03", 2)
	req.ChildCount = 1
	req.PartialPaid = &paid
	req.PartialPaymentMethod = &method

	b, err := env.bookings.TryBook(context.Background(), req, BookingCaller{UserAgent: "tourdesk/2.1 (iOS)"})
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(100).Equal(b.BasePrice))
	assert.True(t, decimal.NewFromInt(50).Equal(b.TotalPrice))
	assert.True(t, b.PartialPaid.Valid)
	assert.Equal(t, models.ChannelMobile, b.Channel)
}

type stubVouchers struct {
	vouchers map[string]*external.Voucher
}

func (s *stubVouchers) GetVoucher(ctx context.Context, id string) (*external.Voucher, error) {
	if v, ok := s.vouchers[id]; ok {
		return v, nil
	}
	return nil, external.ErrVoucherNotFound
}

func TestTryBookPrefillsFromVoucher(t *testing.T) {
	env := newTestEnv(t)
	w := env.saveWindow(t, windowRequest())
	env.bookings.vouchers = &stubVouchers{vouchers: map[string]*external.Voucher{
		"RES-1": {ReservationID: "RES-1", GuestName: "Ada", GuestEmail: "ada@example.com", PickupPointID: "p-harbour"},
	}}
	ctx := context.Background()

	reservation := "RES-1"
	req := bookingRequest(w.ID, "2025-01-03", 1)
	req.PickupPointID = ""
	req.ReservationID = &reservation

	b, err := env.bookings.TryBook(ctx, req, BookingCaller{})
	require.NoError(t, err)
	require.NotNil(t, b.GuestName)
	assert.Equal(t, "Ada", *b.GuestName)
	assert.Equal(t, "p-harbour", b.PickupPointID)

	missing := "RES-404"
	req = bookingRequest(w.ID, "2025-01-03", 1)
	req.ReservationID = &missing
	_, err = env.bookings.TryBook(ctx, req, BookingCaller{})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, env.day(t, w.ID, "2025-01-03").BookedGuests)
}

func TestCancelBookingIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 3), BookingCaller{})
	require.NoError(t, err)

	cancelled, err := env.bookings.CancelBooking(ctx, b.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, cancelled.PaymentStatus)
	assert.NotNil(t, cancelled.CancelledAt)

	_, err = env.bookings.CancelBooking(ctx, b.ID, adminActor)
	require.NoError(t, err)

	assert.Equal(t, 0, env.day(t, w.ID, "2025-01-03").BookedGuests)
	assert.Equal(t, []string{models.SubjectBookingCreated, models.SubjectBookingCancelled}, env.notifier.subjects())
}

func TestCancelBookingPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	owner := "customer-1"
	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{UserID: &owner})
	require.NoError(t, err)

	t.Run("another customer", func(t *testing.T) {
		_, err := env.bookings.CancelBooking(ctx, b.ID, BookingActor{UserID: "customer-2"})
		assert.ErrorIs(t, err, ErrBookingForbidden)
	})

	t.Run("anonymous booking", func(t *testing.T) {
		anon, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 1), BookingCaller{})
		require.NoError(t, err)
		_, err = env.bookings.CancelBooking(ctx, anon.ID, BookingActor{UserID: owner})
		assert.ErrorIs(t, err, ErrBookingForbidden)
	})

	_, err = env.bookings.ConfirmPayment(ctx, b.ID, &models.PaymentVerdictRequest{Success: true, PaymentReference: "PAY-1"})
	require.NoError(t, err)

	// refunding a paid booking needs an admin, even for its owner
	_, err = env.bookings.CancelBooking(ctx, b.ID, BookingActor{UserID: owner})
	assert.ErrorIs(t, err, ErrBookingForbidden)
	assert.Equal(t, 3, env.day(t, w.ID, "2025-01-03").BookedGuests)

	refunded, err := env.bookings.CancelBooking(ctx, b.ID, adminActor)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, refunded.PaymentStatus)
	assert.Equal(t, 1, env.day(t, w.ID, "2025-01-03").BookedGuests)
}

func TestConfirmPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{})
	require.NoError(t, err)

	failed, err := env.bookings.ConfirmPayment(ctx, b.ID, &models.PaymentVerdictRequest{Success: false, Reason: "card declined"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, failed.PaymentStatus)

	paid, err := env.bookings.ConfirmPayment(ctx, b.ID, &models.PaymentVerdictRequest{Success: true, PaymentReference: "PAY-1"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, paid.PaymentStatus)
	require.NotNil(t, paid.PaymentReference)
	assert.Equal(t, "PAY-1", *paid.PaymentReference)

	// a repeated verdict changes nothing
	_, err = env.bookings.ConfirmPayment(ctx, b.ID, &models.PaymentVerdictRequest{Success: true, PaymentReference: "PAY-1"})
	require.NoError(t, err)

	// paid bookings keep their seats
	assert.Equal(t, 2, env.day(t, w.ID, "2025-01-03").BookedGuests)

	assert.Equal(t, []string{
		models.SubjectBookingCreated,
		models.SubjectPaymentFailed,
		models.SubjectBookingPaid,
	}, env.notifier.subjects())
}

func TestConfirmPaymentOnCancelledBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{})
	require.NoError(t, err)
	_, err = env.bookings.CancelBooking(ctx, b.ID, adminActor)
	require.NoError(t, err)

	_, err = env.bookings.ConfirmPayment(ctx, b.ID, &models.PaymentVerdictRequest{Success: true})
	var cerr *ConflictError
	assert.ErrorAs(t, err, &cerr)
}

func TestExpireBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 4), BookingCaller{})
	require.NoError(t, err)

	_, err = env.bookings.ExpireBooking(ctx, b.ID)
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)

	// the window starts at 09:00
	env.clock.Set(time.Date(2025, 1, 3, 9, 30, 0, 0, time.UTC))
	expired, err := env.bookings.ExpireBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, expired.PaymentStatus)
	assert.NotNil(t, expired.ExpiredAt)
	assert.Equal(t, 0, env.day(t, w.ID, "2025-01-03").BookedGuests)

	_, err = env.bookings.CancelBooking(ctx, b.ID, adminActor)
	assert.ErrorAs(t, err, &cerr)
}

func TestApplyReferral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.SeedAgent(models.Agent{ID: "agent-1", Name: "Coastal Tours"})
	w := env.saveWindow(t, windowRequest())

	code, err := env.referrals.CreateReferralCode(ctx, &models.CreateReferralCodeRequest{
		Code:            "summer10",
		AgentID:         "agent-1",
		DiscountPercent: decimal.NewFromInt(10),
		ExpiresAt:       time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "SUMMER10", code.Code)

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{})
	require.NoError(t, err)

	discounted, err := env.bookings.ApplyReferral(ctx, b.ID, " summer10 ")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(8).Equal(discounted.DiscountAmount))
	assert.True(t, decimal.NewFromInt(72).Equal(discounted.TotalPrice))

	// applying again is computed from the base price, not the discounted one
	again, err := env.bookings.ApplyReferral(ctx, b.ID, "SUMMER10")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(72).Equal(again.TotalPrice))

	_, err = env.bookings.ApplyReferral(ctx, b.ID, "NOPE")
	var ierr *InvalidOrExpiredCodeError
	assert.ErrorAs(t, err, &ierr)
}

func TestApplyExpiredReferralDeactivatesCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.SeedAgent(models.Agent{ID: "agent-1", Name: "Coastal Tours"})
	w := env.saveWindow(t, windowRequest())

	rc := &models.ReferralCode{
		ID:              "rc-1",
		Code:            "OLDCODE",
		AgentID:         "agent-1",
		DiscountPercent: decimal.NewFromInt(15),
		ExpiresAt:       time.Date(2025, 1, 1, 7, 0, 0, 0, time.UTC),
		Status:          models.ReferralStatusActive,
	}
	require.NoError(t, env.store.CreateReferralCode(ctx, rc))

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{})
	require.NoError(t, err)

	_, err = env.bookings.ApplyReferral(ctx, b.ID, "OLDCODE")
	var ierr *InvalidOrExpiredCodeError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "expired", ierr.Reason)

	got, err := env.store.GetReferralCode(ctx, "rc-1")
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusInactive, got.Status)

	unchanged, err := env.bookings.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(80).Equal(unchanged.TotalPrice))
}

func TestConcurrentBookingsNeverOversell(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 1), BookingCaller{})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var capErr *InsufficientCapacityError
			if assert.ErrorAs(t, err, &capErr) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, 15, rejected)
	assert.Equal(t, 10, env.day(t, w.ID, "2025-01-03").BookedGuests)
}
