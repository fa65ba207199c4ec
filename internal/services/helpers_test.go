package services

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
)

type recordedEvent struct {
	Subject string
	Event   interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) Notify(subject string, event interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{Subject: subject, Event: event})
}

func (n *recordingNotifier) subjects() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Subject)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	store        *database.MemoryStore
	clock        *fakeClock
	notifier     *recordingNotifier
	ledger       *CapacityLedger
	lifecycle    *LifecycleCoordinator
	availability *AvailabilityService
	bookings     *BookingService
	referrals    *ReferralService
	dispatch     *DispatchService
	sweeps       *SweepService
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func date(s string) time.Time {
	d, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// newTestEnv wires every service onto a memory store. The clock starts at
// 2025-01-01 08:00 UTC and the excursion exc-1 is seeded.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := quietLogger()
	store := database.NewMemoryStore()
	store.SeedExcursion(models.Excursion{ID: "exc-1", Name: "Sunset cruise"})
	store.SeedRegion(models.Region{ID: "r-north", Name: "North coast"})
	store.SeedRegion(models.Region{ID: "r-south", Name: "South coast"})
	store.SeedPickupPoint(models.PickupPoint{ID: "p-harbour", RegionID: "r-north", Name: "Harbour"})
	store.SeedPickupPoint(models.PickupPoint{ID: "p-station", RegionID: "r-south", Name: "Station"})

	clock := &fakeClock{now: time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}

	ledger := NewCapacityLedger(logger, 0)
	lifecycle := NewLifecycleCoordinator(ledger, logger)
	materializer := NewDayMaterializer(ledger, logger)
	bookings := NewBookingService(store, ledger, lifecycle, notifier, nil, logger, clock.Now, time.UTC)

	return &testEnv{
		store:        store,
		clock:        clock,
		notifier:     notifier,
		ledger:       ledger,
		lifecycle:    lifecycle,
		availability: NewAvailabilityService(store, NewConflictDetector(), materializer, lifecycle, logger, clock.Now, time.UTC),
		bookings:     bookings,
		referrals:    NewReferralService(store, lifecycle, logger, clock.Now),
		dispatch:     NewDispatchService(store, lifecycle, notifier, logger, clock.Now, time.UTC),
		sweeps:       NewSweepService(store, bookings, ledger, lifecycle, logger, time.UTC),
	}
}

func windowRequest() *models.SaveWindowRequest {
	start := "09:00"
	return &models.SaveWindowRequest{
		ExcursionID:    "exc-1",
		StartDate:      "2025-01-01",
		EndDate:        "2025-01-14",
		Weekdays:       []string{"MON", "FRI"},
		RegionIDs:      []string{"r-north"},
		PickupPointIDs: []string{"p-harbour"},
		StartTime:      &start,
		MaxGuests:      10,
		AdultPrice:     decimal.NewFromInt(40),
		ChildPrice:     decimal.NewFromInt(20),
		InfantPrice:    decimal.Zero,
		Status:         models.WindowStatusActive,
	}
}

func (e *testEnv) saveWindow(t *testing.T, req *models.SaveWindowRequest) *models.AvailabilityWindow {
	t.Helper()
	w, err := e.availability.SaveWindow(context.Background(), "", req)
	require.NoError(t, err)
	return w
}

func bookingRequest(windowID, tourDate string, adults int) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		WindowID:      windowID,
		TourDate:      tourDate,
		PickupPointID: "p-harbour",
		AdultCount:    adults,
	}
}

func (e *testEnv) day(t *testing.T, windowID, tourDate string) *models.DayCapacity {
	t.Helper()
	days, err := e.store.ListDaysByWindow(context.Background(), windowID)
	require.NoError(t, err)
	for i := range days {
		if days[i].Date.Equal(date(tourDate)) {
			return &days[i]
		}
	}
	t.Fatalf("no day %s on window %s", tourDate, windowID)
	return nil
}

var adminActor = BookingActor{UserID: "admin-1", Admin: true}
