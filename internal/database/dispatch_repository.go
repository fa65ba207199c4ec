package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tourdesk/excursion-backend/internal/models"
)

const dispatchColumns = `id, excursion_id, tour_date, status, notes, sent_at, created_at, updated_at`

// CreateDispatchGroup inserts a draft dispatch group
func (q *sqlQueries) CreateDispatchGroup(ctx context.Context, g *models.TransportDispatchGroup) error {
	row := q.ext.QueryRowxContext(ctx, `
		INSERT INTO transport_dispatch_groups (id, excursion_id, tour_date, status, notes)
		VALUES ($1, $2, $3::date, $4, $5)
		RETURNING created_at, updated_at`,
		g.ID, g.ExcursionID, dateArg(g.TourDate), g.Status, g.Notes)
	if err := row.Scan(&g.CreatedAt, &g.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create dispatch group: %w", err)
	}
	return nil
}

// GetDispatchGroup retrieves a group and its member booking IDs
func (q *sqlQueries) GetDispatchGroup(ctx context.Context, id string) (*models.TransportDispatchGroup, error) {
	return q.getDispatchGroup(ctx, id, "")
}

// GetDispatchGroupForUpdate locks a group row
func (q *sqlQueries) GetDispatchGroupForUpdate(ctx context.Context, id string) (*models.TransportDispatchGroup, error) {
	return q.getDispatchGroup(ctx, id, "FOR UPDATE")
}

func (q *sqlQueries) getDispatchGroup(ctx context.Context, id, lock string) (*models.TransportDispatchGroup, error) {
	var g models.TransportDispatchGroup
	query := `SELECT ` + dispatchColumns + ` FROM transport_dispatch_groups WHERE id = $1 ` + lock
	if err := sqlx.GetContext(ctx, q.ext, &g, query, id); err != nil {
		return nil, err
	}

	ids, err := q.ListDispatchGroupBookingIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	g.BookingIDs = ids
	return &g, nil
}

// AddDispatchGroupBooking adds a booking to a group
func (q *sqlQueries) AddDispatchGroupBooking(ctx context.Context, groupID, bookingID string) error {
	_, err := q.ext.ExecContext(ctx, `
		INSERT INTO transport_dispatch_group_bookings (group_id, booking_id)
		VALUES ($1, $2)`, groupID, bookingID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("booking %s already grouped: %w", bookingID, ErrDuplicate)
		}
		return fmt.Errorf("failed to add booking to dispatch group: %w", err)
	}
	return nil
}

// ListDispatchGroupBookingIDs returns a group's member bookings
func (q *sqlQueries) ListDispatchGroupBookingIDs(ctx context.Context, groupID string) ([]string, error) {
	ids := []string{}
	err := sqlx.SelectContext(ctx, q.ext, &ids, `
		SELECT booking_id FROM transport_dispatch_group_bookings
		WHERE group_id = $1 ORDER BY created_at, booking_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatch group bookings: %w", err)
	}
	return ids, nil
}

// MarkDispatchGroupSent moves a draft group to sent
func (q *sqlQueries) MarkDispatchGroupSent(ctx context.Context, id string, at time.Time) error {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE transport_dispatch_groups SET status = 'sent', sent_at = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'draft'`, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark dispatch group sent: %w", err)
	}
	if rowsAffected(res) == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDispatchGroup deletes a group and its memberships
func (q *sqlQueries) DeleteDispatchGroup(ctx context.Context, id string) error {
	res, err := q.ext.ExecContext(ctx, `DELETE FROM transport_dispatch_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dispatch group: %w", err)
	}
	if rowsAffected(res) == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountSentDispatchGroups counts sent groups for (excursion, date), excluding excludeID
func (q *sqlQueries) CountSentDispatchGroups(ctx context.Context, excursionID string, date time.Time, excludeID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, q.ext, &count, `
		SELECT COUNT(*) FROM transport_dispatch_groups
		WHERE excursion_id = $1 AND tour_date = $2::date AND status = 'sent'
		  AND ($3 = '' OR id::text <> $3)`, excursionID, dateArg(date), excludeID)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent dispatch groups: %w", err)
	}
	return count, nil
}

// ListSentDispatchDates returns the dates in [from, to] claimed by a sent
// group of the excursion
func (q *sqlQueries) ListSentDispatchDates(ctx context.Context, excursionID string, from, to time.Time) ([]time.Time, error) {
	var dates []time.Time
	err := sqlx.SelectContext(ctx, q.ext, &dates, `
		SELECT DISTINCT tour_date FROM transport_dispatch_groups
		WHERE excursion_id = $1 AND status = 'sent'
		  AND tour_date BETWEEN $2::date AND $3::date
		ORDER BY tour_date`, excursionID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, fmt.Errorf("failed to list dispatched dates: %w", err)
	}
	return dates, nil
}
