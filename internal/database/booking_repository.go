package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tourdesk/excursion-backend/internal/models"
)

const bookingColumns = `id, window_id, excursion_id, tour_date, start_time, pickup_point_id,
	adult_count, child_count, infant_count, base_price, referral_code, discount_amount,
	partial_paid, partial_payment_method, total_price, payment_status, payment_reference,
	reservation_id, user_id, guest_name, guest_email, channel,
	paid_at, cancelled_at, expired_at, created_at, updated_at`

// CreateBooking inserts a new booking
func (q *sqlQueries) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, window_id, excursion_id, tour_date, start_time, pickup_point_id,
			adult_count, child_count, infant_count, base_price, referral_code, discount_amount,
			partial_paid, partial_payment_method, total_price, payment_status,
			reservation_id, user_id, guest_name, guest_email, channel
		) VALUES (
			$1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		RETURNING created_at, updated_at`

	row := q.ext.QueryRowxContext(ctx, query,
		b.ID, b.WindowID, b.ExcursionID, dateArg(b.TourDate), b.StartTime, b.PickupPointID,
		b.AdultCount, b.ChildCount, b.InfantCount, b.BasePrice, b.ReferralCode, b.DiscountAmount,
		b.PartialPaid, b.PartialPaymentMethod, b.TotalPrice, b.PaymentStatus,
		b.ReservationID, b.UserID, b.GuestName, b.GuestEmail, b.Channel,
	)
	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by ID
func (q *sqlQueries) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := sqlx.GetContext(ctx, q.ext, &b, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingForUpdate locks a booking row. Status transitions read the
// current status under this lock so each release happens once.
func (q *sqlQueries) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, q.ext, &b, query, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBookingStatus moves a booking to a new payment status and stamps
// the matching timestamp column
func (q *sqlQueries) UpdateBookingStatus(ctx context.Context, id string, status models.PaymentStatus, at time.Time) error {
	var stampColumn string
	switch status {
	case models.PaymentStatusCancelled:
		stampColumn = "cancelled_at"
	case models.PaymentStatusExpired:
		stampColumn = "expired_at"
	case models.PaymentStatusCompleted:
		stampColumn = "paid_at"
	default:
		stampColumn = "updated_at"
	}

	query := fmt.Sprintf(`
		UPDATE bookings SET payment_status = $2, %s = $3, updated_at = NOW()
		WHERE id = $1`, stampColumn)
	res, err := q.ext.ExecContext(ctx, query, id, status, at)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	if rowsAffected(res) == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateBookingPricing persists a re-priced booking
func (q *sqlQueries) UpdateBookingPricing(ctx context.Context, b *models.Booking) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE bookings SET
			referral_code = $2, discount_amount = $3, partial_paid = $4,
			total_price = $5, updated_at = NOW()
		WHERE id = $1`,
		b.ID, b.ReferralCode, b.DiscountAmount, b.PartialPaid, b.TotalPrice)
	if err != nil {
		return fmt.Errorf("failed to update booking pricing: %w", err)
	}
	return nil
}

// MarkBookingPaid records a successful payment verdict
func (q *sqlQueries) MarkBookingPaid(ctx context.Context, id string, reference *string, at time.Time) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE bookings SET
			payment_status = 'completed', payment_reference = $2, paid_at = $3, updated_at = NOW()
		WHERE id = $1 AND payment_status = 'pending'`, id, reference, at)
	if err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}
	return nil
}

// ListPendingBookingsThrough returns pending bookings dated on or before date
func (q *sqlQueries) ListPendingBookingsThrough(ctx context.Context, date time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE payment_status = 'pending' AND tour_date <= $1::date
		ORDER BY tour_date, created_at`
	if err := sqlx.SelectContext(ctx, q.ext, &bookings, query, dateArg(date)); err != nil {
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}
	return bookings, nil
}

// SumHoldingGuests totals seat-holding guests of a window per tour date
func (q *sqlQueries) SumHoldingGuests(ctx context.Context, windowID string) ([]GuestTotal, error) {
	var totals []GuestTotal
	err := sqlx.SelectContext(ctx, q.ext, &totals, `
		SELECT window_id, tour_date, SUM(adult_count + child_count + infant_count) AS guests
		FROM bookings
		WHERE window_id = $1 AND payment_status IN ('pending', 'completed')
		GROUP BY window_id, tour_date
		ORDER BY tour_date`, windowID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum booked guests: %w", err)
	}
	return totals, nil
}
