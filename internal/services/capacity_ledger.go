package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/metrics"
	"github.com/tourdesk/excursion-backend/internal/models"
)

// CapacityLedger mutates booked seats on day capacities and keeps the
// window aggregate in step. Every method runs on the caller's transaction.
//
// Locks are taken window first, then day, so two bookings on one window
// queue behind each other and never deadlock with regeneration.
type CapacityLedger struct {
	logger         *logrus.Logger
	driftTolerance int
}

// ReconcileResult summarises one window's reconciliation
type ReconcileResult struct {
	WindowID        string
	DaysChecked     int
	DaysCorrected   int
	OverbookedDays  int
	OrphanedGuests  int
	WindowCorrected bool
}

// NewCapacityLedger creates a new CapacityLedger. Reconciliation drift
// larger than driftTolerance guests on a day is reported as an error.
func NewCapacityLedger(logger *logrus.Logger, driftTolerance int) *CapacityLedger {
	return &CapacityLedger{logger: logger, driftTolerance: driftTolerance}
}

// Reserve seats guests on the window's day for date. It fails without
// writing anything when the day is closed or has too few seats left.
func (l *CapacityLedger) Reserve(ctx context.Context, q database.Queries, windowID string, date time.Time, guests int) (*models.DayCapacity, error) {
	if guests <= 0 {
		return nil, newValidationError("guest count must be greater than 0")
	}

	w, err := q.GetWindowForBooking(ctx, windowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to lock window: %w", err)
	}
	if !w.IsActive() || !w.Covers(date) {
		metrics.Reservations.WithLabelValues("unavailable").Inc()
		return nil, ErrDayNotBookable
	}

	day, err := q.GetDayForUpdate(ctx, windowID, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			metrics.Reservations.WithLabelValues("unavailable").Inc()
			return nil, ErrDayNotBookable
		}
		return nil, fmt.Errorf("failed to lock day: %w", err)
	}

	if !day.IsActive() {
		metrics.Reservations.WithLabelValues("unavailable").Inc()
		return nil, ErrDayNotBookable
	}

	remaining := day.Remaining()
	if guests > remaining {
		metrics.Reservations.WithLabelValues("insufficient").Inc()
		if remaining < 0 {
			remaining = 0
		}
		return nil, &InsufficientCapacityError{
			WindowID:  windowID,
			Date:      models.DateOf(date),
			Requested: guests,
			Remaining: remaining,
		}
	}

	day.BookedGuests += guests
	if err := q.SetDayBooked(ctx, day.ID, day.BookedGuests); err != nil {
		return nil, err
	}
	if err := q.SetWindowBooked(ctx, w.ID, w.BookedGuests+guests); err != nil {
		return nil, err
	}

	metrics.Reservations.WithLabelValues("reserved").Inc()
	metrics.SeatsReserved.Add(float64(guests))

	l.logger.WithFields(logrus.Fields{
		"window_id": windowID,
		"day_id":    day.ID,
		"date":      day.Date.Format(models.DateLayout),
		"guests":    guests,
		"booked":    day.BookedGuests,
		"capacity":  day.Capacity,
	}).Debug("Seats reserved")

	return day, nil
}

// Release gives back seats held on the window's day for date. Callers
// guarantee it runs once per booking leaving a seat-holding status.
// An underflow aborts with InconsistentStateError instead of clamping.
func (l *CapacityLedger) Release(ctx context.Context, q database.Queries, windowID string, date time.Time, guests int, reason string) error {
	if guests <= 0 {
		return nil
	}

	w, err := q.GetWindowForBooking(ctx, windowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return l.inconsistent("release", logrus.Fields{"window_id": windowID, "reason": "window missing"})
		}
		return fmt.Errorf("failed to lock window: %w", err)
	}

	day, err := q.GetDayForUpdate(ctx, windowID, date)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// The window was edited and this date is no longer materialised
		l.logger.WithFields(logrus.Fields{
			"window_id": windowID,
			"date":      date.Format(models.DateLayout),
			"guests":    guests,
		}).Warn("Releasing seats for a date without a day capacity")
	case err != nil:
		return fmt.Errorf("failed to lock day: %w", err)
	default:
		if day.BookedGuests < guests {
			return l.inconsistent("release", logrus.Fields{
				"window_id": windowID,
				"day_id":    day.ID,
				"date":      day.Date.Format(models.DateLayout),
				"booked":    day.BookedGuests,
				"releasing": guests,
			})
		}
		if err := q.SetDayBooked(ctx, day.ID, day.BookedGuests-guests); err != nil {
			return err
		}
	}

	if w.BookedGuests < guests {
		return l.inconsistent("release", logrus.Fields{
			"window_id": windowID,
			"booked":    w.BookedGuests,
			"releasing": guests,
		})
	}
	if err := q.SetWindowBooked(ctx, w.ID, w.BookedGuests-guests); err != nil {
		return err
	}

	metrics.SeatsReleased.WithLabelValues(reason).Add(float64(guests))
	return nil
}

// Reconcile recomputes booked guests of every day of the window, and the
// window aggregate, from the bookings that hold seats
func (l *CapacityLedger) Reconcile(ctx context.Context, q database.Queries, windowID string) (*ReconcileResult, error) {
	w, err := q.GetWindowForUpdate(ctx, windowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to lock window: %w", err)
	}
	return l.reconcile(ctx, q, w, true)
}

// RestoreBookedGuests refills freshly materialised days from existing
// bookings. Drift is expected here and not reported.
func (l *CapacityLedger) RestoreBookedGuests(ctx context.Context, q database.Queries, w *models.AvailabilityWindow) (*ReconcileResult, error) {
	return l.reconcile(ctx, q, w, false)
}

func (l *CapacityLedger) reconcile(ctx context.Context, q database.Queries, w *models.AvailabilityWindow, reportDrift bool) (*ReconcileResult, error) {
	days, err := q.ListDaysByWindow(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	totals, err := q.SumHoldingGuests(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	byDate := make(map[time.Time]int, len(totals))
	windowTotal := 0
	for _, t := range totals {
		byDate[models.DateOf(t.TourDate)] += t.Guests
		windowTotal += t.Guests
	}

	result := &ReconcileResult{WindowID: w.ID, DaysChecked: len(days)}

	for _, d := range days {
		date := models.DateOf(d.Date)
		expected := byDate[date]
		delete(byDate, date)

		fields := logrus.Fields{
			"window_id": w.ID,
			"day_id":    d.ID,
			"date":      date.Format(models.DateLayout),
			"recorded":  d.BookedGuests,
			"expected":  expected,
			"capacity":  d.Capacity,
		}

		if d.BookedGuests != expected {
			result.DaysCorrected++
			if reportDrift {
				metrics.ReconcileDrift.Inc()
				drift := d.BookedGuests - expected
				if drift < 0 {
					drift = -drift
				}
				if drift > l.driftTolerance {
					// reported, then repaired below
					l.inconsistent("reconcile", fields)
				} else {
					l.logger.WithFields(fields).Info("Correcting booked guests drift")
				}
			}
			if err := q.SetDayBooked(ctx, d.ID, expected); err != nil {
				return nil, err
			}
		}

		if expected > d.Capacity {
			result.OverbookedDays++
			metrics.OverbookedDays.Inc()
			l.logger.WithFields(fields).Warn("Day capacity is overbooked")
		}
	}

	for date, guests := range byDate {
		result.OrphanedGuests += guests
		l.logger.WithFields(logrus.Fields{
			"window_id": w.ID,
			"date":      date.Format(models.DateLayout),
			"guests":    guests,
		}).Warn("Bookings hold seats on a date the window no longer offers")
	}

	if w.BookedGuests != windowTotal {
		result.WindowCorrected = true
		if err := q.SetWindowBooked(ctx, w.ID, windowTotal); err != nil {
			return nil, err
		}
		w.BookedGuests = windowTotal
	}

	return result, nil
}

// inconsistent logs and counts an invariant violation and returns it
func (l *CapacityLedger) inconsistent(op string, fields logrus.Fields) error {
	metrics.InconsistentStates.WithLabelValues(op).Inc()
	err := &InconsistentStateError{Op: op, Fields: fields}
	l.logger.WithFields(fields).WithField("op", op).Error("Capacity ledger inconsistency")
	return err
}
