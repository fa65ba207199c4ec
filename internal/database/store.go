package database

import (
	"context"
	"errors"
	"time"

	"github.com/tourdesk/excursion-backend/internal/models"
)

var (
	// ErrDuplicate is returned when an insert violates a unique constraint
	ErrDuplicate = errors.New("duplicate record")

	// ErrReferenced is returned when a delete is blocked by dependent rows
	ErrReferenced = errors.New("record is still referenced")
)

// Not-found lookups return sql.ErrNoRows; callers check it with errors.Is.

// GuestTotal is the number of seat-holding guests booked on one window date
type GuestTotal struct {
	WindowID string    `db:"window_id"`
	TourDate time.Time `db:"tour_date"`
	Guests   int       `db:"guests"`
}

// Queries is every storage operation the services need. Implementations are
// bound either to a connection or to an open transaction.
//
// Lock order inside a transaction is excursion, booking, window, day. Methods
// suffixed ForUpdate take an exclusive row lock; ForBooking takes a lock that
// serialises seat mutations on the window but not plain reads.
type Queries interface {
	// ========================================================================
	// EXCURSIONS AND LOOKUPS
	// ========================================================================
	GetExcursion(ctx context.Context, id string) (*models.Excursion, error)
	GetExcursionForUpdate(ctx context.Context, id string) (*models.Excursion, error)
	SetExcursionStatus(ctx context.Context, id string, status models.ExcursionStatus) error
	RegionNames(ctx context.Context, ids []string) (map[string]string, error)
	PickupPointNames(ctx context.Context, ids []string) (map[string]string, error)

	// ========================================================================
	// AVAILABILITY WINDOWS
	// ========================================================================
	GetWindow(ctx context.Context, id string) (*models.AvailabilityWindow, error)
	GetWindowForUpdate(ctx context.Context, id string) (*models.AvailabilityWindow, error)
	GetWindowForBooking(ctx context.Context, id string) (*models.AvailabilityWindow, error)
	CreateWindow(ctx context.Context, w *models.AvailabilityWindow) error
	UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error
	DeleteWindow(ctx context.Context, id string) error
	SetWindowStatus(ctx context.Context, id string, status models.WindowStatus) error
	SetWindowBooked(ctx context.Context, id string, booked int) error
	FindOverlappingActiveWindows(ctx context.Context, excursionID string, start, end time.Time, excludeID string) ([]models.AvailabilityWindow, error)
	ListActiveWindowsEndedBefore(ctx context.Context, date time.Time) ([]models.AvailabilityWindow, error)
	ListWindowIDs(ctx context.Context) ([]string, error)
	CountActiveWindows(ctx context.Context, excursionID string) (int, error)

	// ========================================================================
	// DAY CAPACITY
	// ========================================================================
	CreateDays(ctx context.Context, days []models.DayCapacity) error
	DeleteDaysByWindow(ctx context.Context, windowID string) (int, error)
	ListDaysByWindow(ctx context.Context, windowID string) ([]models.DayCapacity, error)
	GetDayForUpdate(ctx context.Context, windowID string, date time.Time) (*models.DayCapacity, error)
	SetDayBooked(ctx context.Context, dayID string, booked int) error
	DeactivateWindowDays(ctx context.Context, windowID string) (int, error)
	ActivateWindowDays(ctx context.Context, windowID string, fromDate time.Time) (int, error)
	DeactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error)
	ReactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error)
	ExpireDaysBefore(ctx context.Context, date time.Time) (int, error)
	CountActiveDays(ctx context.Context, windowID string) (int, error)

	// ========================================================================
	// BOOKINGS
	// ========================================================================
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status models.PaymentStatus, at time.Time) error
	UpdateBookingPricing(ctx context.Context, b *models.Booking) error
	MarkBookingPaid(ctx context.Context, id string, reference *string, at time.Time) error
	ListPendingBookingsThrough(ctx context.Context, date time.Time) ([]models.Booking, error)
	SumHoldingGuests(ctx context.Context, windowID string) ([]GuestTotal, error)

	// ========================================================================
	// REFERRAL CODES AND AGENTS
	// ========================================================================
	CreateReferralCode(ctx context.Context, c *models.ReferralCode) error
	GetReferralCode(ctx context.Context, id string) (*models.ReferralCode, error)
	GetReferralCodeByCode(ctx context.Context, code string) (*models.ReferralCode, error)
	GetReferralCodeForUpdate(ctx context.Context, id string) (*models.ReferralCode, error)
	SetReferralCodeStatus(ctx context.Context, id string, status models.ReferralStatus) error
	ExpireReferralCodes(ctx context.Context, now time.Time) (int, error)
	DeactivateAgentCodes(ctx context.Context, agentID string) (int, error)
	ReactivateAgentCodes(ctx context.Context, agentID string, now time.Time) (int, error)
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	GetAgentForUpdate(ctx context.Context, id string) (*models.Agent, error)
	SetAgentStatus(ctx context.Context, id string, status models.AgentStatus) error

	// ========================================================================
	// TRANSPORT DISPATCH GROUPS
	// ========================================================================
	CreateDispatchGroup(ctx context.Context, g *models.TransportDispatchGroup) error
	GetDispatchGroup(ctx context.Context, id string) (*models.TransportDispatchGroup, error)
	GetDispatchGroupForUpdate(ctx context.Context, id string) (*models.TransportDispatchGroup, error)
	AddDispatchGroupBooking(ctx context.Context, groupID, bookingID string) error
	ListDispatchGroupBookingIDs(ctx context.Context, groupID string) ([]string, error)
	MarkDispatchGroupSent(ctx context.Context, id string, at time.Time) error
	DeleteDispatchGroup(ctx context.Context, id string) error
	CountSentDispatchGroups(ctx context.Context, excursionID string, date time.Time, excludeID string) (int, error)
	ListSentDispatchDates(ctx context.Context, excursionID string, from, to time.Time) ([]time.Time, error)
}

// Store is the storage entry point. Calls made directly on a Store run
// outside any transaction.
type Store interface {
	Queries

	// InTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(q Queries) error) error
	Ping(ctx context.Context) error
	Close() error
}
