package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus represents the payment status of a booking
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// Sales channels derived from the request's user agent
const (
	ChannelWeb     = "web"
	ChannelMobile  = "mobile"
	ChannelBot     = "bot"
	ChannelUnknown = "unknown"
)

// Booking represents a guest reservation on one window day
type Booking struct {
	ID                   string              `json:"id" db:"id"`
	WindowID             string              `json:"window_id" db:"window_id"`
	ExcursionID          string              `json:"excursion_id" db:"excursion_id"`
	TourDate             time.Time           `json:"tour_date" db:"tour_date"`
	StartTime            *string             `json:"start_time,omitempty" db:"start_time"`
	PickupPointID        string              `json:"pickup_point_id" db:"pickup_point_id"`
	AdultCount           int                 `json:"adult_count" db:"adult_count"`
	ChildCount           int                 `json:"child_count" db:"child_count"`
	InfantCount          int                 `json:"infant_count" db:"infant_count"`
	BasePrice            decimal.Decimal     `json:"base_price" db:"base_price"`
	ReferralCode         *string             `json:"referral_code,omitempty" db:"referral_code"`
	DiscountAmount       decimal.Decimal     `json:"discount_amount" db:"discount_amount"`
	PartialPaid          decimal.NullDecimal `json:"partial_paid" db:"partial_paid"`
	PartialPaymentMethod *string             `json:"partial_payment_method,omitempty" db:"partial_payment_method"`
	TotalPrice           decimal.Decimal     `json:"total_price" db:"total_price"`
	PaymentStatus        PaymentStatus       `json:"payment_status" db:"payment_status"`
	PaymentReference     *string             `json:"payment_reference,omitempty" db:"payment_reference"`
	ReservationID        *string             `json:"reservation_id,omitempty" db:"reservation_id"`
	UserID               *string             `json:"user_id,omitempty" db:"user_id"`
	GuestName            *string             `json:"guest_name,omitempty" db:"guest_name"`
	GuestEmail           *string             `json:"guest_email,omitempty" db:"guest_email"`
	Channel              string              `json:"channel" db:"channel"`
	PaidAt               *time.Time          `json:"paid_at,omitempty" db:"paid_at"`
	CancelledAt          *time.Time          `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ExpiredAt            *time.Time          `json:"expired_at,omitempty" db:"expired_at"`
	CreatedAt            time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at" db:"updated_at"`
}

// CreateBookingRequest represents the request to create a booking
type CreateBookingRequest struct {
	WindowID             string           `json:"window_id" binding:"required"`
	TourDate             string           `json:"tour_date" binding:"required"`
	PickupPointID        string           `json:"pickup_point_id"`
	AdultCount           int              `json:"adult_count"`
	ChildCount           int              `json:"child_count"`
	InfantCount          int              `json:"infant_count"`
	PartialPaid          *decimal.Decimal `json:"partial_paid,omitempty"`
	PartialPaymentMethod *string          `json:"partial_payment_method,omitempty"`
	ReservationID        *string          `json:"reservation_id,omitempty"`
	GuestName            *string          `json:"guest_name,omitempty"`
	GuestEmail           *string          `json:"guest_email,omitempty"`
}

// ApplyReferralRequest represents the request to apply a referral code
type ApplyReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// PaymentVerdictRequest carries the payment gateway's verdict
type PaymentVerdictRequest struct {
	Success          bool   `json:"success"`
	PaymentReference string `json:"payment_reference"`
	Reason           string `json:"reason,omitempty"`
}

// TotalGuests returns the number of seats the request needs
func (r *CreateBookingRequest) TotalGuests() int {
	return r.AdultCount + r.ChildCount + r.InfantCount
}

// Validate validates the create booking request
func (r *CreateBookingRequest) Validate() error {
	if r.AdultCount < 0 || r.ChildCount < 0 || r.InfantCount < 0 {
		return errors.New("guest counts must not be negative")
	}

	if r.TotalGuests() <= 0 {
		return errors.New("a booking needs at least one guest")
	}

	if _, err := ParseDate(r.TourDate); err != nil {
		return fmt.Errorf("tour_date: %w", err)
	}

	if r.PartialPaid != nil {
		if r.PartialPaid.IsNegative() {
			return errors.New("partial_paid must not be negative")
		}
		if r.PartialPaid.IsPositive() && (r.PartialPaymentMethod == nil || *r.PartialPaymentMethod == "") {
			return errors.New("partial_payment_method is required when partial_paid is set")
		}
	}

	return nil
}

// TotalGuests returns the number of seats the booking holds
func (b *Booking) TotalGuests() int {
	return b.AdultCount + b.ChildCount + b.InfantCount
}

// HoldsCapacity reports whether the booking occupies seats
func (b *Booking) HoldsCapacity() bool {
	return b.PaymentStatus == PaymentStatusPending || b.PaymentStatus == PaymentStatusCompleted
}

// CanTransitionTo reports whether the payment status may move to next
func (b *Booking) CanTransitionTo(next PaymentStatus) bool {
	switch b.PaymentStatus {
	case PaymentStatusPending:
		return next == PaymentStatusCompleted || next == PaymentStatusCancelled || next == PaymentStatusExpired
	case PaymentStatusCompleted:
		return next == PaymentStatusCancelled
	}
	return false
}

// HasStarted reports whether the tour has begun at now, in loc. A booking
// without a known start time starts at the end of its tour date.
func (b *Booking) HasStarted(now time.Time, loc *time.Location) bool {
	today := Today(now, loc)
	tourDate := DateOf(b.TourDate)
	if tourDate.Before(today) {
		return true
	}
	if tourDate.After(today) || b.StartTime == nil || *b.StartTime == "" {
		return false
	}
	hour, minute, err := ParseClock(*b.StartTime)
	if err != nil {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(tourDate.Year(), tourDate.Month(), tourDate.Day(), hour, minute, 0, 0, loc)
	return !now.Before(start)
}
