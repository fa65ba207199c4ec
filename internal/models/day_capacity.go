package models

import "time"

// DayStatus represents whether a day can be booked
type DayStatus string

const (
	DayStatusActive   DayStatus = "active"
	DayStatusInactive DayStatus = "inactive"
)

// DayCapacity is the bookable capacity of one window on one calendar date
type DayCapacity struct {
	ID           string    `json:"id" db:"id"`
	WindowID     string    `json:"window_id" db:"window_id"`
	Date         time.Time `json:"date" db:"date"`
	Capacity     int       `json:"capacity" db:"capacity"`
	BookedGuests int       `json:"booked_guests" db:"booked_guests"`
	Status       DayStatus `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DayAvailability is a day row enriched for listing
type DayAvailability struct {
	DayCapacity
	Remaining int `json:"remaining"`
}

// Remaining returns the number of seats still free. It can be negative
// while a day is overbooked after regeneration.
func (d *DayCapacity) Remaining() int {
	return d.Capacity - d.BookedGuests
}

// IsActive reports whether the day accepts bookings
func (d *DayCapacity) IsActive() bool {
	return d.Status == DayStatusActive
}

// IsOverbooked reports whether booked guests exceed capacity
func (d *DayCapacity) IsOverbooked() bool {
	return d.BookedGuests > d.Capacity
}

// OccupancyPercentage returns the percentage of booked seats
func (d *DayCapacity) OccupancyPercentage() float64 {
	if d.Capacity == 0 {
		return 0
	}
	return float64(d.BookedGuests) / float64(d.Capacity) * 100
}
