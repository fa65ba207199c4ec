package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/tourdesk/excursion-backend/internal/models"
)

const windowColumns = `id, excursion_id, start_date, end_date, weekdays, region_ids, pickup_point_ids,
	start_time, max_guests, adult_price, child_price, infant_price, discount_percent,
	status, booked_guests, created_at, updated_at`

// ============================================================================
// EXCURSIONS AND LOOKUPS
// ============================================================================

// GetExcursion retrieves an excursion by ID
func (q *sqlQueries) GetExcursion(ctx context.Context, id string) (*models.Excursion, error) {
	var e models.Excursion
	err := sqlx.GetContext(ctx, q.ext, &e, `
		SELECT id, name, status, created_at, updated_at
		FROM excursions WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetExcursionForUpdate locks the excursion row. Window saves take this lock
// first so conflict checks for one excursion run one at a time.
func (q *sqlQueries) GetExcursionForUpdate(ctx context.Context, id string) (*models.Excursion, error) {
	var e models.Excursion
	err := sqlx.GetContext(ctx, q.ext, &e, `
		SELECT id, name, status, created_at, updated_at
		FROM excursions WHERE id = $1
		FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SetExcursionStatus updates an excursion's status
func (q *sqlQueries) SetExcursionStatus(ctx context.Context, id string, status models.ExcursionStatus) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE excursions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $2`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update excursion status: %w", err)
	}
	return nil
}

// RegionNames resolves region IDs to display names
func (q *sqlQueries) RegionNames(ctx context.Context, ids []string) (map[string]string, error) {
	return q.names(ctx, "regions", ids)
}

// PickupPointNames resolves pickup point IDs to display names
func (q *sqlQueries) PickupPointNames(ctx context.Context, ids []string) (map[string]string, error) {
	return q.names(ctx, "pickup_points", ids)
}

func (q *sqlQueries) names(ctx context.Context, table string, ids []string) (map[string]string, error) {
	result := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var rows []struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}
	query := fmt.Sprintf(`SELECT id, name FROM %s WHERE id = ANY($1)`, table)
	if err := sqlx.SelectContext(ctx, q.ext, &rows, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to load %s names: %w", table, err)
	}
	for _, r := range rows {
		result[r.ID] = r.Name
	}
	return result, nil
}

// ============================================================================
// AVAILABILITY WINDOWS
// ============================================================================

// GetWindow retrieves a window by ID
func (q *sqlQueries) GetWindow(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	return q.getWindow(ctx, id, "")
}

// GetWindowForUpdate locks the window exclusively. Used for regeneration,
// status changes and deletion; it blocks bookings on the window.
func (q *sqlQueries) GetWindowForUpdate(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	return q.getWindow(ctx, id, "FOR UPDATE")
}

// GetWindowForBooking locks the window for a seat mutation. It conflicts
// with GetWindowForUpdate and with other bookings, but not with plain reads.
func (q *sqlQueries) GetWindowForBooking(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	return q.getWindow(ctx, id, "FOR NO KEY UPDATE")
}

func (q *sqlQueries) getWindow(ctx context.Context, id, lock string) (*models.AvailabilityWindow, error) {
	var w models.AvailabilityWindow
	query := `SELECT ` + windowColumns + ` FROM availability_windows WHERE id = $1 ` + lock
	if err := sqlx.GetContext(ctx, q.ext, &w, query, id); err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWindow inserts a new window
func (q *sqlQueries) CreateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	query := `
		INSERT INTO availability_windows (
			id, excursion_id, start_date, end_date, weekdays, region_ids, pickup_point_ids,
			start_time, max_guests, adult_price, child_price, infant_price, discount_percent,
			status, booked_guests
		) VALUES ($1, $2, $3::date, $4::date, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	row := q.ext.QueryRowxContext(ctx, query,
		w.ID, w.ExcursionID, dateArg(w.StartDate), dateArg(w.EndDate),
		w.Weekdays, w.RegionIDs, w.PickupPointIDs,
		w.StartTime, w.MaxGuests, w.AdultPrice, w.ChildPrice, w.InfantPrice, w.DiscountPercent,
		w.Status, w.BookedGuests,
	)
	if err := row.Scan(&w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}
	return nil
}

// UpdateWindow rewrites a window's editable fields
func (q *sqlQueries) UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	query := `
		UPDATE availability_windows SET
			start_date = $2::date, end_date = $3::date, weekdays = $4, region_ids = $5,
			pickup_point_ids = $6, start_time = $7, max_guests = $8, adult_price = $9,
			child_price = $10, infant_price = $11, discount_percent = $12, status = $13,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	row := q.ext.QueryRowxContext(ctx, query,
		w.ID, dateArg(w.StartDate), dateArg(w.EndDate), w.Weekdays, w.RegionIDs,
		w.PickupPointIDs, w.StartTime, w.MaxGuests, w.AdultPrice,
		w.ChildPrice, w.InfantPrice, w.DiscountPercent, w.Status,
	)
	if err := row.Scan(&w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("failed to update window: %w", err)
	}
	return nil
}

// DeleteWindow deletes a window; its days go with it (ON DELETE CASCADE)
func (q *sqlQueries) DeleteWindow(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("window %s has bookings: %w", id, ErrReferenced)
		}
		return fmt.Errorf("failed to delete window: %w", err)
	}
	if rowsAffected(res) == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetWindowStatus updates a window's status
func (q *sqlQueries) SetWindowStatus(ctx context.Context, id string, status models.WindowStatus) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE availability_windows SET status = $2, updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update window status: %w", err)
	}
	return nil
}

// SetWindowBooked overwrites the window's aggregate booked guests
func (q *sqlQueries) SetWindowBooked(ctx context.Context, id string, booked int) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE availability_windows SET booked_guests = $2, updated_at = NOW()
		WHERE id = $1`, id, booked)
	if err != nil {
		return fmt.Errorf("failed to update window booked guests: %w", err)
	}
	return nil
}

// FindOverlappingActiveWindows returns active windows of the excursion whose
// date span intersects [start, end], excluding excludeID
func (q *sqlQueries) FindOverlappingActiveWindows(ctx context.Context, excursionID string, start, end time.Time, excludeID string) ([]models.AvailabilityWindow, error) {
	query := `SELECT ` + windowColumns + `
		FROM availability_windows
		WHERE excursion_id = $1
		  AND status = 'active'
		  AND start_date <= $3::date
		  AND end_date >= $2::date
		  AND ($4 = '' OR id::text <> $4)
		ORDER BY start_date`

	var windows []models.AvailabilityWindow
	if err := sqlx.SelectContext(ctx, q.ext, &windows, query, excursionID, dateArg(start), dateArg(end), excludeID); err != nil {
		return nil, fmt.Errorf("failed to find overlapping windows: %w", err)
	}
	return windows, nil
}

// ListActiveWindowsEndedBefore returns active windows whose end date is before date
func (q *sqlQueries) ListActiveWindowsEndedBefore(ctx context.Context, date time.Time) ([]models.AvailabilityWindow, error) {
	query := `SELECT ` + windowColumns + `
		FROM availability_windows
		WHERE status = 'active' AND end_date < $1::date
		ORDER BY end_date`

	var windows []models.AvailabilityWindow
	if err := sqlx.SelectContext(ctx, q.ext, &windows, query, dateArg(date)); err != nil {
		return nil, fmt.Errorf("failed to list ended windows: %w", err)
	}
	return windows, nil
}

// ListWindowIDs returns the IDs of every window
func (q *sqlQueries) ListWindowIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, q.ext, &ids, `SELECT id FROM availability_windows ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	return ids, nil
}

// CountActiveWindows counts the excursion's active windows
func (q *sqlQueries) CountActiveWindows(ctx context.Context, excursionID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q.ext, &count, `
		SELECT COUNT(*) FROM availability_windows
		WHERE excursion_id = $1 AND status = 'active'`, excursionID)
	if err != nil {
		return 0, fmt.Errorf("failed to count active windows: %w", err)
	}
	return count, nil
}
