package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// WindowStatus represents the commercial status of an availability window
type WindowStatus string

const (
	WindowStatusActive   WindowStatus = "active"
	WindowStatusInactive WindowStatus = "inactive"
)

// Weekday codes accepted in a window's recurrence set
const (
	WeekdayMonday    = "MON"
	WeekdayTuesday   = "TUE"
	WeekdayWednesday = "WED"
	WeekdayThursday  = "THU"
	WeekdayFriday    = "FRI"
	WeekdaySaturday  = "SAT"
	WeekdaySunday    = "SUN"
)

var weekdayOrdinals = map[string]time.Weekday{
	WeekdayMonday:    time.Monday,
	WeekdayTuesday:   time.Tuesday,
	WeekdayWednesday: time.Wednesday,
	WeekdayThursday:  time.Thursday,
	WeekdayFriday:    time.Friday,
	WeekdaySaturday:  time.Saturday,
	WeekdaySunday:    time.Sunday,
}

// WeekdayOrdinal maps a weekday code to its time.Weekday
func WeekdayOrdinal(code string) (time.Weekday, bool) {
	wd, ok := weekdayOrdinals[code]
	return wd, ok
}

// AvailabilityWindow is a date range during which an excursion is bookable on
// a recurring set of weekdays, for a set of regions and pickup points.
type AvailabilityWindow struct {
	ID              string          `json:"id" db:"id"`
	ExcursionID     string          `json:"excursion_id" db:"excursion_id"`
	StartDate       time.Time       `json:"start_date" db:"start_date"`
	EndDate         time.Time       `json:"end_date" db:"end_date"`
	Weekdays        StringArray     `json:"weekdays" db:"weekdays"`
	RegionIDs       UUIDArray       `json:"region_ids" db:"region_ids"`
	PickupPointIDs  UUIDArray       `json:"pickup_point_ids" db:"pickup_point_ids"`
	StartTime       *string         `json:"start_time,omitempty" db:"start_time"` // HH:MM
	MaxGuests       int             `json:"max_guests" db:"max_guests"`
	AdultPrice      decimal.Decimal `json:"adult_price" db:"adult_price"`
	ChildPrice      decimal.Decimal `json:"child_price" db:"child_price"`
	InfantPrice     decimal.Decimal `json:"infant_price" db:"infant_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	Status          WindowStatus    `json:"status" db:"status"`
	BookedGuests    int             `json:"booked_guests" db:"booked_guests"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// SaveWindowRequest is the payload for creating or updating a window
type SaveWindowRequest struct {
	ExcursionID     string          `json:"excursion_id" binding:"required"`
	StartDate       string          `json:"start_date" binding:"required"`
	EndDate         string          `json:"end_date" binding:"required"`
	Weekdays        []string        `json:"weekdays"`
	RegionIDs       []string        `json:"region_ids"`
	PickupPointIDs  []string        `json:"pickup_point_ids"`
	StartTime       *string         `json:"start_time,omitempty"`
	MaxGuests       int             `json:"max_guests" binding:"required"`
	AdultPrice      decimal.Decimal `json:"adult_price"`
	ChildPrice      decimal.Decimal `json:"child_price"`
	InfantPrice     decimal.Decimal `json:"infant_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	Status          WindowStatus    `json:"status"`
}

// ToWindow converts the request into a window, parsing its dates
func (r *SaveWindowRequest) ToWindow() (*AvailabilityWindow, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}
	status := r.Status
	if status == "" {
		status = WindowStatusActive
	}
	return &AvailabilityWindow{
		ExcursionID:     r.ExcursionID,
		StartDate:       start,
		EndDate:         end,
		Weekdays:        StringArray(r.Weekdays),
		RegionIDs:       UUIDArray(r.RegionIDs),
		PickupPointIDs:  UUIDArray(r.PickupPointIDs),
		StartTime:       r.StartTime,
		MaxGuests:       r.MaxGuests,
		AdultPrice:      r.AdultPrice,
		ChildPrice:      r.ChildPrice,
		InfantPrice:     r.InfantPrice,
		DiscountPercent: r.DiscountPercent,
		Status:          status,
	}, nil
}

// Validate checks the window's own invariants
func (w *AvailabilityWindow) Validate() error {
	if w.ExcursionID == "" {
		return errors.New("excursion_id is required")
	}

	if w.EndDate.Before(w.StartDate) {
		return errors.New("end_date must not be before start_date")
	}

	if w.MaxGuests <= 0 {
		return errors.New("max_guests must be greater than 0")
	}

	for _, code := range w.Weekdays {
		if _, ok := WeekdayOrdinal(code); !ok {
			return fmt.Errorf("invalid weekday code: %s", code)
		}
	}

	if w.StartTime != nil && *w.StartTime != "" {
		if _, _, err := ParseClock(*w.StartTime); err != nil {
			return fmt.Errorf("start_time: %w", err)
		}
	}

	if w.AdultPrice.IsNegative() || w.ChildPrice.IsNegative() || w.InfantPrice.IsNegative() {
		return errors.New("prices must not be negative")
	}

	if w.DiscountPercent.IsNegative() || w.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("discount_percent must be between 0 and 100")
	}

	switch w.Status {
	case WindowStatusActive:
		if len(w.RegionIDs) == 0 {
			return errors.New("an active window needs at least one region")
		}
		if len(w.PickupPointIDs) == 0 {
			return errors.New("an active window needs at least one pickup point")
		}
		if len(w.Weekdays) == 0 {
			return errors.New("an active window needs at least one weekday")
		}
	case WindowStatusInactive:
	default:
		return fmt.Errorf("invalid window status: %s", w.Status)
	}

	return nil
}

// IsActive reports whether the window is sellable
func (w *AvailabilityWindow) IsActive() bool {
	return w.Status == WindowStatusActive
}

// MatchesDate reports whether date falls on one of the window's weekdays
func (w *AvailabilityWindow) MatchesDate(date time.Time) bool {
	for _, code := range w.Weekdays {
		if wd, ok := WeekdayOrdinal(code); ok && wd == date.Weekday() {
			return true
		}
	}
	return false
}

// Covers reports whether date lies inside [StartDate, EndDate]
func (w *AvailabilityWindow) Covers(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(DateOf(w.StartDate)) && !d.After(DateOf(w.EndDate))
}

// Overlaps reports whether the window's date span intersects [start, end]
func (w *AvailabilityWindow) Overlaps(start, end time.Time) bool {
	return !DateOf(w.StartDate).After(DateOf(end)) && !DateOf(w.EndDate).Before(DateOf(start))
}
