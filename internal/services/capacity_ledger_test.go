package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
)

func TestReleaseUnderflowIsInconsistent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	err := env.store.InTx(ctx, func(q database.Queries) error {
		return env.ledger.Release(ctx, q, w.ID, date("2025-01-03"), 2, "cancelled")
	})

	var ierr *InconsistentStateError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "release", ierr.Op)
	assert.Equal(t, 0, env.day(t, w.ID, "2025-01-03").BookedGuests)
}

func TestReleaseOnRemovedDateAdjustsWindowOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	b, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 3), BookingCaller{})
	require.NoError(t, err)

	// Fridays are dropped from the window; the booking keeps its seats
	req := windowRequest()
	req.Weekdays = []string{"MON"}
	_, err = env.availability.SaveWindow(ctx, w.ID, req)
	require.NoError(t, err)

	got, err := env.availability.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.BookedGuests)

	_, err = env.bookings.CancelBooking(ctx, b.ID, adminActor)
	require.NoError(t, err)

	got, err = env.availability.GetWindow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedGuests)
}

func TestReserveOnInactiveDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	req := windowRequest()
	req.Status = models.WindowStatusInactive
	w := env.saveWindow(t, req)

	err := env.store.InTx(ctx, func(q database.Queries) error {
		_, err := env.ledger.Reserve(ctx, q, w.ID, date("2025-01-03"), 1)
		return err
	})
	assert.ErrorIs(t, err, ErrDayNotBookable)
}

func TestReserveOutsideWindowRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	err := env.store.InTx(ctx, func(q database.Queries) error {
		_, err := env.ledger.Reserve(ctx, q, w.ID, w.EndDate.AddDate(0, 0, 7), 1)
		return err
	})
	assert.ErrorIs(t, err, ErrDayNotBookable)
	assert.Zero(t, env.day(t, w.ID, "2025-01-03").BookedGuests)
}

func TestReconcileReportsOverbookedDays(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.saveWindow(t, windowRequest())

	_, err := env.bookings.TryBook(ctx, bookingRequest(w.ID, "2025-01-03", 8), BookingCaller{})
	require.NoError(t, err)

	req := windowRequest()
	req.MaxGuests = 5
	_, err = env.availability.SaveWindow(ctx, w.ID, req)
	require.NoError(t, err)

	var res *ReconcileResult
	err = env.store.InTx(ctx, func(q database.Queries) error {
		var err error
		res, err = env.ledger.Reconcile(ctx, q, w.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.DaysChecked)
	assert.Equal(t, 0, res.DaysCorrected)
	assert.Equal(t, 1, res.OverbookedDays)
	assert.False(t, res.WindowCorrected)
}
