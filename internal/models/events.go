package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event subjects, relative to the configured subject prefix
const (
	SubjectBookingCreated   = "booking.created"
	SubjectBookingPaid      = "booking.paid"
	SubjectBookingCancelled = "booking.cancelled"
	SubjectBookingExpired   = "booking.expired"
	SubjectPaymentFailed    = "booking.payment_failed"
	SubjectGroupDispatched  = "dispatch.sent"
	SubjectGroupWithdrawn   = "dispatch.withdrawn"
)

// BookingEvent is published after a booking transition commits
type BookingEvent struct {
	BookingID     string          `json:"booking_id"`
	WindowID      string          `json:"window_id"`
	ExcursionID   string          `json:"excursion_id"`
	TourDate      string          `json:"tour_date"`
	Guests        int             `json:"guests"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	GuestEmail    *string         `json:"guest_email,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// DispatchEvent is published after a dispatch group changes state
type DispatchEvent struct {
	GroupID     string    `json:"group_id"`
	ExcursionID string    `json:"excursion_id"`
	TourDate    string    `json:"tour_date"`
	BookingIDs  []string  `json:"booking_ids"`
	DaysChanged int       `json:"days_changed"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewBookingEvent builds the event payload for a booking
func NewBookingEvent(b *Booking, reason string, at time.Time) BookingEvent {
	return BookingEvent{
		BookingID:     b.ID,
		WindowID:      b.WindowID,
		ExcursionID:   b.ExcursionID,
		TourDate:      b.TourDate.Format(DateLayout),
		Guests:        b.TotalGuests(),
		TotalPrice:    b.TotalPrice,
		PaymentStatus: b.PaymentStatus,
		GuestEmail:    b.GuestEmail,
		Reason:        reason,
		OccurredAt:    at,
	}
}
