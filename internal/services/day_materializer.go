package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
)

// DayMaterializer expands a window into one day capacity per matching weekday
type DayMaterializer struct {
	ledger *CapacityLedger
	logger *logrus.Logger
}

// NewDayMaterializer creates a new DayMaterializer
func NewDayMaterializer(ledger *CapacityLedger, logger *logrus.Logger) *DayMaterializer {
	return &DayMaterializer{ledger: ledger, logger: logger}
}

// MaterializeDates returns every date in the window's inclusive range that
// falls on one of its weekdays
func MaterializeDates(w *models.AvailabilityWindow) []time.Time {
	var dates []time.Time
	end := models.DateOf(w.EndDate)

	for current := models.DateOf(w.StartDate); !current.After(end); current = current.AddDate(0, 0, 1) {
		if w.MatchesDate(current) {
			dates = append(dates, current)
		}
	}
	return dates
}

// Materialize regenerates the window's day capacities. The caller holds the
// window's exclusive lock.
//
// A new day is active only when the window is active, the date is not in
// the past and no sent dispatch group claims it. Booked guests are then
// restored from the bookings that still hold seats on the window.
func (m *DayMaterializer) Materialize(ctx context.Context, q database.Queries, w *models.AvailabilityWindow, today time.Time) (int, error) {
	removed, err := q.DeleteDaysByWindow(ctx, w.ID)
	if err != nil {
		return 0, err
	}

	dispatched, err := q.ListSentDispatchDates(ctx, w.ExcursionID, w.StartDate, w.EndDate)
	if err != nil {
		return 0, err
	}
	blocked := make(map[time.Time]bool, len(dispatched))
	for _, d := range dispatched {
		blocked[models.DateOf(d)] = true
	}

	dates := MaterializeDates(w)
	days := make([]models.DayCapacity, 0, len(dates))
	for _, date := range dates {
		status := models.DayStatusInactive
		if w.IsActive() && !date.Before(today) && !blocked[date] {
			status = models.DayStatusActive
		}
		days = append(days, models.DayCapacity{
			ID:       uuid.New().String(),
			WindowID: w.ID,
			Date:     date,
			Capacity: w.MaxGuests,
			Status:   status,
		})
	}

	if err := q.CreateDays(ctx, days); err != nil {
		return 0, err
	}

	restored, err := m.ledger.RestoreBookedGuests(ctx, q, w)
	if err != nil {
		return 0, err
	}

	m.logger.WithFields(logrus.Fields{
		"window_id":       w.ID,
		"removed":         removed,
		"created":         len(days),
		"restored_days":   restored.DaysCorrected,
		"overbooked_days": restored.OverbookedDays,
		"orphaned_guests": restored.OrphanedGuests,
	}).Info("Day capacities regenerated")

	return len(days), nil
}
