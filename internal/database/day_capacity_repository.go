package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tourdesk/excursion-backend/internal/models"
)

const dayColumns = `id, window_id, date, capacity, booked_guests, status, created_at, updated_at`

// CreateDays bulk-inserts day rows for a window
func (q *sqlQueries) CreateDays(ctx context.Context, days []models.DayCapacity) error {
	if len(days) == 0 {
		return nil
	}

	query := `
		INSERT INTO day_capacities (id, window_id, date, capacity, booked_guests, status)
		VALUES (:id, :window_id, :date_arg, :capacity, :booked_guests, :status)`

	rows := make([]map[string]interface{}, 0, len(days))
	for _, d := range days {
		rows = append(rows, map[string]interface{}{
			"id":            d.ID,
			"window_id":     d.WindowID,
			"date_arg":      dateArg(d.Date),
			"capacity":      d.Capacity,
			"booked_guests": d.BookedGuests,
			"status":        d.Status,
		})
	}

	if _, err := sqlx.NamedExecContext(ctx, q.ext, query, rows); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create days: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to create days: %w", err)
	}
	return nil
}

// DeleteDaysByWindow removes every day row of a window
func (q *sqlQueries) DeleteDaysByWindow(ctx context.Context, windowID string) (int, error) {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM day_capacities WHERE window_id = $1`, windowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete days: %w", err)
	}
	return rowsAffected(res), nil
}

// ListDaysByWindow returns a window's days in date order
func (q *sqlQueries) ListDaysByWindow(ctx context.Context, windowID string) ([]models.DayCapacity, error) {
	var days []models.DayCapacity
	query := `SELECT ` + dayColumns + ` FROM day_capacities WHERE window_id = $1 ORDER BY date`
	if err := sqlx.SelectContext(ctx, q.ext, &days, query, windowID); err != nil {
		return nil, fmt.Errorf("failed to list days: %w", err)
	}
	return days, nil
}

// GetDayForUpdate locks one day row for a capacity mutation
func (q *sqlQueries) GetDayForUpdate(ctx context.Context, windowID string, date time.Time) (*models.DayCapacity, error) {
	var d models.DayCapacity
	query := `SELECT ` + dayColumns + `
		FROM day_capacities
		WHERE window_id = $1 AND date = $2::date
		FOR UPDATE`
	if err := sqlx.GetContext(ctx, q.ext, &d, query, windowID, dateArg(date)); err != nil {
		return nil, err
	}
	return &d, nil
}

// SetDayBooked overwrites a day's booked guests
func (q *sqlQueries) SetDayBooked(ctx context.Context, dayID string, booked int) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE day_capacities SET booked_guests = $2, updated_at = NOW()
		WHERE id = $1`, dayID, booked)
	if err != nil {
		return fmt.Errorf("failed to update day booked guests: %w", err)
	}
	return nil
}

// DeactivateWindowDays closes every active day of a window
func (q *sqlQueries) DeactivateWindowDays(ctx context.Context, windowID string) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE day_capacities SET status = 'inactive', updated_at = NOW()
		WHERE window_id = $1 AND status = 'active'`, windowID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate window days: %w", err)
	}
	return rowsAffected(res), nil
}

// ActivateWindowDays reopens a window's days from fromDate onwards, skipping
// dates claimed by a sent dispatch group for the window's excursion
func (q *sqlQueries) ActivateWindowDays(ctx context.Context, windowID string, fromDate time.Time) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE day_capacities d SET status = 'active', updated_at = NOW()
		FROM availability_windows w
		WHERE d.window_id = w.id
		  AND w.id = $1
		  AND d.status = 'inactive'
		  AND d.date >= $2::date
		  AND NOT EXISTS (
			SELECT 1 FROM transport_dispatch_groups g
			WHERE g.excursion_id = w.excursion_id
			  AND g.tour_date = d.date
			  AND g.status = 'sent'
		  )`, windowID, dateArg(fromDate))
	if err != nil {
		return 0, fmt.Errorf("failed to activate window days: %w", err)
	}
	return rowsAffected(res), nil
}

// DeactivateExcursionDays closes every active day of the excursion on date
func (q *sqlQueries) DeactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE day_capacities d SET status = 'inactive', updated_at = NOW()
		FROM availability_windows w
		WHERE d.window_id = w.id
		  AND w.excursion_id = $1
		  AND d.date = $2::date
		  AND d.status = 'active'`, excursionID, dateArg(date))
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate excursion days: %w", err)
	}
	return rowsAffected(res), nil
}

// ReactivateExcursionDays reopens the excursion's days on date, for active
// windows only
func (q *sqlQueries) ReactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE day_capacities d SET status = 'active', updated_at = NOW()
		FROM availability_windows w
		WHERE d.window_id = w.id
		  AND w.excursion_id = $1
		  AND w.status = 'active'
		  AND d.date = $2::date
		  AND d.status = 'inactive'`, excursionID, dateArg(date))
	if err != nil {
		return 0, fmt.Errorf("failed to reactivate excursion days: %w", err)
	}
	return rowsAffected(res), nil
}

// ExpireDaysBefore closes active days dated before date
func (q *sqlQueries) ExpireDaysBefore(ctx context.Context, date time.Time) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE day_capacities SET status = 'inactive', updated_at = NOW()
		WHERE status = 'active' AND date < $1::date`, dateArg(date))
	if err != nil {
		return 0, fmt.Errorf("failed to expire days: %w", err)
	}
	return rowsAffected(res), nil
}

// CountActiveDays counts a window's active days
func (q *sqlQueries) CountActiveDays(ctx context.Context, windowID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q.ext, &count, `
		SELECT COUNT(*) FROM day_capacities
		WHERE window_id = $1 AND status = 'active'`, windowID)
	if err != nil {
		return 0, fmt.Errorf("failed to count active days: %w", err)
	}
	return count, nil
}
