package models

import (
	"errors"
	"time"
)

// DispatchStatus represents the state of a transport dispatch group
type DispatchStatus string

const (
	DispatchStatusDraft DispatchStatus = "draft"
	DispatchStatusSent  DispatchStatus = "sent"
)

// TransportDispatchGroup batches bookings of one excursion and date for a
// transport provider. Once sent, the excursion's days for that date close.
type TransportDispatchGroup struct {
	ID          string         `json:"id" db:"id"`
	ExcursionID string         `json:"excursion_id" db:"excursion_id"`
	TourDate    time.Time      `json:"tour_date" db:"tour_date"`
	Status      DispatchStatus `json:"status" db:"status"`
	Notes       *string        `json:"notes,omitempty" db:"notes"`
	SentAt      *time.Time     `json:"sent_at,omitempty" db:"sent_at"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`

	BookingIDs []string `json:"booking_ids" db:"-"`
}

// CreateDispatchGroupRequest represents the request to open a draft group
type CreateDispatchGroupRequest struct {
	ExcursionID string  `json:"excursion_id" binding:"required"`
	TourDate    string  `json:"tour_date" binding:"required"`
	Notes       *string `json:"notes,omitempty"`
}

// AddGroupBookingRequest adds a booking to a draft group
type AddGroupBookingRequest struct {
	BookingID string `json:"booking_id" binding:"required"`
}

// Validate validates the create dispatch group request
func (r *CreateDispatchGroupRequest) Validate() error {
	if r.ExcursionID == "" {
		return errors.New("excursion_id is required")
	}
	if _, err := ParseDate(r.TourDate); err != nil {
		return err
	}
	return nil
}

// IsSent reports whether the group has been dispatched
func (g *TransportDispatchGroup) IsSent() bool {
	return g.Status == DispatchStatusSent
}
