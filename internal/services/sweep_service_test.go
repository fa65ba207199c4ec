package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/excursion-backend/internal/models"
)

func resultsByName(results []SweepResult) map[string]SweepResult {
	out := make(map[string]SweepResult, len(results))
	for _, r := range results {
		out[r.Sweep] = r
	}
	return out
}

func TestSweepsAreIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.SeedAgent(models.Agent{ID: "agent-1", Name: "Coastal Tours"})
	w := env.saveWindow(t, windowRequest())

	started, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{})
	require.NoError(t, err)
	future, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-10", 3), BookingCaller{})
	require.NoError(t, err)

	require.NoError(t, env.store.CreateReferralCode(ctx, &models.ReferralCode{
		ID:              "rc-1",
		Code:            "WINTER",
		AgentID:         "agent-1",
		DiscountPercent: decimal.NewFromInt(5),
		ExpiresAt:       time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Status:          models.ReferralStatusActive,
	}))

	now := time.Date(2025, 1, 7, 10, 0, 0, 0, time.UTC)

	results, err := env.sweeps.RunAll(ctx, now)
	require.NoError(t, err)
	first := resultsByName(results)
	assert.Equal(t, 0, first[SweepExpireWindows].Affected)
	assert.Equal(t, 2, first[SweepExpireDays].Affected)
	assert.Equal(t, 1, first[SweepExpireBookings].Affected)
	assert.Equal(t, 1, first[SweepExpireReferrals].Affected)
	assert.Equal(t, 0, first[SweepReconcile].Affected)

	results, err = env.sweeps.RunAll(ctx, now)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 0, r.Affected, r.Sweep)
		assert.Equal(t, 0, r.Failed, r.Sweep)
	}

	got, err := env.bookings.GetBooking(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, got.PaymentStatus)
	got, err = env.bookings.GetBooking(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, got.PaymentStatus)

	assert.Equal(t, 0, env.day(t, w.ID, "2025-01-03").BookedGuests)
	assert.Equal(t, models.DayStatusInactive, env.day(t, w.ID, "2025-01-06").Status)
	assert.Equal(t, 3, env.day(t, w.ID, "2025-01-10").BookedGuests)
}

func TestSweepExpiredBookingsWaitsForStartTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{})
	require.NoError(t, err)

	res, err := env.sweeps.SweepExpiredBookings(ctx, time.Date(2025, 1, 3, 8, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Affected)
	assert.Equal(t, 1, res.Skipped)

	res, err = env.sweeps.SweepExpiredBookings(ctx, time.Date(2025, 1, 3, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	got, err := env.bookings.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusExpired, got.PaymentStatus)
}

func TestSweepExpiredWindows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	res, err := env.sweeps.SweepExpiredWindows(ctx, time.Date(2025, 1, 14, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Affected)

	res, err = env.sweeps.SweepExpiredWindows(ctx, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	got, err := env.availability.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WindowStatusInactive, got.Status)

	exc, err := env.store.GetExcursion(ctx, "exc-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExcursionStatusInactive, exc.Status)
}

func TestReconcileCapacityRepairsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	_, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 2), BookingCaller{})
	require.NoError(t, err)

	drifted := env.day(t, w.ID, "2025-01-03")
	require.NoError(t, env.store.SetDayBooked(ctx, drifted.ID, 9))
	require.NoError(t, env.store.SetWindowBooked(ctx, w.ID, 9))

	res, err := env.sweeps.Run(ctx, SweepReconcile, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	assert.Equal(t, 2, env.day(t, w.ID, "2025-01-03").BookedGuests)
	got, err := env.availability.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.BookedGuests)
}

func TestRunUnknownSweep(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.sweeps.Run(context.Background(), "vacuum", env.clock.Now())
	assert.ErrorIs(t, err, ErrUnknownSweep)
}
