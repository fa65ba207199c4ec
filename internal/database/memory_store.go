package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tourdesk/excursion-backend/internal/models"
)

// MemoryStore is an in-process Store used by tests and by STORAGE_DRIVER=memory.
// Transactions are fully serialised: InTx holds the store mutex for its whole
// duration, works on a copy of the state and swaps it in on commit.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	excursions   map[string]models.Excursion
	regions      map[string]models.Region
	pickupPoints map[string]models.PickupPoint
	windows      map[string]models.AvailabilityWindow
	days         map[string]models.DayCapacity
	bookings     map[string]models.Booking
	agents       map[string]models.Agent
	referrals    map[string]models.ReferralCode
	groups       map[string]models.TransportDispatchGroup
	members      map[string][]string // group ID -> booking IDs
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		excursions:   map[string]models.Excursion{},
		regions:      map[string]models.Region{},
		pickupPoints: map[string]models.PickupPoint{},
		windows:      map[string]models.AvailabilityWindow{},
		days:         map[string]models.DayCapacity{},
		bookings:     map[string]models.Booking{},
		agents:       map[string]models.Agent{},
		referrals:    map[string]models.ReferralCode{},
		groups:       map[string]models.TransportDispatchGroup{},
		members:      map[string][]string{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.excursions {
		c.excursions[k] = v
	}
	for k, v := range s.regions {
		c.regions[k] = v
	}
	for k, v := range s.pickupPoints {
		c.pickupPoints[k] = v
	}
	for k, v := range s.windows {
		c.windows[k] = v
	}
	for k, v := range s.days {
		c.days[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.agents {
		c.agents[k] = v
	}
	for k, v := range s.referrals {
		c.referrals[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.members {
		c.members[k] = append([]string(nil), v...)
	}
	return c
}

// InTx runs fn against a private copy of the state and publishes it on success
func (m *MemoryStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	working := m.state.clone()
	if err := fn(&memQueries{s: working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (m *MemoryStore) Close() error {
	return nil
}

// autocommit runs a single query outside an explicit transaction
func (m *MemoryStore) autocommit(fn func(q *memQueries) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	working := m.state.clone()
	if err := fn(&memQueries{s: working}); err != nil {
		return err
	}
	m.state = working
	return nil
}

// ============================================================================
// SEEDING (lookup data managed outside this service)
// ============================================================================

// SeedExcursion inserts or replaces an excursion
func (m *MemoryStore) SeedExcursion(e models.Excursion) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.Status == "" {
		e.Status = models.ExcursionStatusInactive
	}
	m.state.excursions[e.ID] = e
}

// SeedRegion inserts or replaces a region
func (m *MemoryStore) SeedRegion(r models.Region) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.regions[r.ID] = r
}

// SeedPickupPoint inserts or replaces a pickup point
func (m *MemoryStore) SeedPickupPoint(p models.PickupPoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.pickupPoints[p.ID] = p
}

// SeedAgent inserts or replaces an agent
func (m *MemoryStore) SeedAgent(a models.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status == "" {
		a.Status = models.AgentStatusActive
	}
	m.state.agents[a.ID] = a
}

// ============================================================================
// QUERIES
// ============================================================================

// memQueries implements Queries over one memState
type memQueries struct {
	s *memState
}

func (q *memQueries) GetExcursion(ctx context.Context, id string) (*models.Excursion, error) {
	e, ok := q.s.excursions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &e, nil
}

func (q *memQueries) GetExcursionForUpdate(ctx context.Context, id string) (*models.Excursion, error) {
	return q.GetExcursion(ctx, id)
}

func (q *memQueries) SetExcursionStatus(ctx context.Context, id string, status models.ExcursionStatus) error {
	e, ok := q.s.excursions[id]
	if !ok {
		return nil
	}
	if e.Status != status {
		e.Status = status
		e.UpdatedAt = time.Now()
		q.s.excursions[id] = e
	}
	return nil
}

func (q *memQueries) RegionNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if r, ok := q.s.regions[id]; ok {
			out[id] = r.Name
		}
	}
	return out, nil
}

func (q *memQueries) PickupPointNames(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if p, ok := q.s.pickupPoints[id]; ok {
			out[id] = p.Name
		}
	}
	return out, nil
}

// ---- windows

func (q *memQueries) GetWindow(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	w, ok := q.s.windows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &w, nil
}

func (q *memQueries) GetWindowForUpdate(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	return q.GetWindow(ctx, id)
}

func (q *memQueries) GetWindowForBooking(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	return q.GetWindow(ctx, id)
}

func (q *memQueries) CreateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	if _, ok := q.s.windows[w.ID]; ok {
		return fmt.Errorf("window %s: %w", w.ID, ErrDuplicate)
	}
	if _, ok := q.s.excursions[w.ExcursionID]; !ok {
		return fmt.Errorf("failed to create window: unknown excursion %s", w.ExcursionID)
	}
	now := time.Now()
	w.CreatedAt, w.UpdatedAt = now, now
	w.StartDate, w.EndDate = models.DateOf(w.StartDate), models.DateOf(w.EndDate)
	q.s.windows[w.ID] = *w
	return nil
}

func (q *memQueries) UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	existing, ok := q.s.windows[w.ID]
	if !ok {
		return sql.ErrNoRows
	}
	w.CreatedAt = existing.CreatedAt
	w.BookedGuests = existing.BookedGuests
	w.UpdatedAt = time.Now()
	w.StartDate, w.EndDate = models.DateOf(w.StartDate), models.DateOf(w.EndDate)
	q.s.windows[w.ID] = *w
	return nil
}

func (q *memQueries) DeleteWindow(ctx context.Context, id string) error {
	if _, ok := q.s.windows[id]; !ok {
		return sql.ErrNoRows
	}
	for _, b := range q.s.bookings {
		if b.WindowID == id {
			return fmt.Errorf("window %s has bookings: %w", id, ErrReferenced)
		}
	}
	for dayID, d := range q.s.days {
		if d.WindowID == id {
			delete(q.s.days, dayID)
		}
	}
	delete(q.s.windows, id)
	return nil
}

func (q *memQueries) SetWindowStatus(ctx context.Context, id string, status models.WindowStatus) error {
	w, ok := q.s.windows[id]
	if !ok {
		return nil
	}
	w.Status = status
	w.UpdatedAt = time.Now()
	q.s.windows[id] = w
	return nil
}

func (q *memQueries) SetWindowBooked(ctx context.Context, id string, booked int) error {
	w, ok := q.s.windows[id]
	if !ok {
		return nil
	}
	w.BookedGuests = booked
	w.UpdatedAt = time.Now()
	q.s.windows[id] = w
	return nil
}

func (q *memQueries) FindOverlappingActiveWindows(ctx context.Context, excursionID string, start, end time.Time, excludeID string) ([]models.AvailabilityWindow, error) {
	var out []models.AvailabilityWindow
	for _, w := range q.s.windows {
		if w.ExcursionID != excursionID || w.ID == excludeID || !w.IsActive() {
			continue
		}
		if w.Overlaps(start, end) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (q *memQueries) ListActiveWindowsEndedBefore(ctx context.Context, date time.Time) ([]models.AvailabilityWindow, error) {
	var out []models.AvailabilityWindow
	for _, w := range q.s.windows {
		if w.IsActive() && w.EndDate.Before(models.DateOf(date)) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	return out, nil
}

func (q *memQueries) ListWindowIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(q.s.windows))
	for id := range q.s.windows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (q *memQueries) CountActiveWindows(ctx context.Context, excursionID string) (int, error) {
	count := 0
	for _, w := range q.s.windows {
		if w.ExcursionID == excursionID && w.IsActive() {
			count++
		}
	}
	return count, nil
}

// ---- days

func (q *memQueries) CreateDays(ctx context.Context, days []models.DayCapacity) error {
	for _, d := range days {
		d.Date = models.DateOf(d.Date)
		for _, existing := range q.s.days {
			if existing.WindowID == d.WindowID && existing.Date.Equal(d.Date) {
				return fmt.Errorf("failed to create days: %w", ErrDuplicate)
			}
		}
		now := time.Now()
		d.CreatedAt, d.UpdatedAt = now, now
		q.s.days[d.ID] = d
	}
	return nil
}

func (q *memQueries) DeleteDaysByWindow(ctx context.Context, windowID string) (int, error) {
	n := 0
	for id, d := range q.s.days {
		if d.WindowID == windowID {
			delete(q.s.days, id)
			n++
		}
	}
	return n, nil
}

func (q *memQueries) ListDaysByWindow(ctx context.Context, windowID string) ([]models.DayCapacity, error) {
	var out []models.DayCapacity
	for _, d := range q.s.days {
		if d.WindowID == windowID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (q *memQueries) GetDayForUpdate(ctx context.Context, windowID string, date time.Time) (*models.DayCapacity, error) {
	date = models.DateOf(date)
	for _, d := range q.s.days {
		if d.WindowID == windowID && d.Date.Equal(date) {
			return &d, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (q *memQueries) SetDayBooked(ctx context.Context, dayID string, booked int) error {
	d, ok := q.s.days[dayID]
	if !ok {
		return nil
	}
	if booked < 0 {
		return fmt.Errorf("failed to update day booked guests: booked_guests must not be negative")
	}
	d.BookedGuests = booked
	d.UpdatedAt = time.Now()
	q.s.days[dayID] = d
	return nil
}

func (q *memQueries) setDayStatus(id string, d models.DayCapacity, status models.DayStatus) {
	d.Status = status
	d.UpdatedAt = time.Now()
	q.s.days[id] = d
}

func (q *memQueries) DeactivateWindowDays(ctx context.Context, windowID string) (int, error) {
	n := 0
	for id, d := range q.s.days {
		if d.WindowID == windowID && d.IsActive() {
			q.setDayStatus(id, d, models.DayStatusInactive)
			n++
		}
	}
	return n, nil
}

func (q *memQueries) dispatched(excursionID string, date time.Time) bool {
	for _, g := range q.s.groups {
		if g.ExcursionID == excursionID && g.IsSent() && g.TourDate.Equal(date) {
			return true
		}
	}
	return false
}

func (q *memQueries) ActivateWindowDays(ctx context.Context, windowID string, fromDate time.Time) (int, error) {
	w, ok := q.s.windows[windowID]
	if !ok {
		return 0, nil
	}
	from := models.DateOf(fromDate)
	n := 0
	for id, d := range q.s.days {
		if d.WindowID != windowID || d.IsActive() || d.Date.Before(from) {
			continue
		}
		if q.dispatched(w.ExcursionID, d.Date) {
			continue
		}
		q.setDayStatus(id, d, models.DayStatusActive)
		n++
	}
	return n, nil
}

func (q *memQueries) DeactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error) {
	date = models.DateOf(date)
	n := 0
	for id, d := range q.s.days {
		w, ok := q.s.windows[d.WindowID]
		if !ok || w.ExcursionID != excursionID || !d.Date.Equal(date) || !d.IsActive() {
			continue
		}
		q.setDayStatus(id, d, models.DayStatusInactive)
		n++
	}
	return n, nil
}

func (q *memQueries) ReactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error) {
	date = models.DateOf(date)
	n := 0
	for id, d := range q.s.days {
		w, ok := q.s.windows[d.WindowID]
		if !ok || w.ExcursionID != excursionID || !w.IsActive() || !d.Date.Equal(date) || d.IsActive() {
			continue
		}
		q.setDayStatus(id, d, models.DayStatusActive)
		n++
	}
	return n, nil
}

func (q *memQueries) ExpireDaysBefore(ctx context.Context, date time.Time) (int, error) {
	date = models.DateOf(date)
	n := 0
	for id, d := range q.s.days {
		if d.IsActive() && d.Date.Before(date) {
			q.setDayStatus(id, d, models.DayStatusInactive)
			n++
		}
	}
	return n, nil
}

func (q *memQueries) CountActiveDays(ctx context.Context, windowID string) (int, error) {
	n := 0
	for _, d := range q.s.days {
		if d.WindowID == windowID && d.IsActive() {
			n++
		}
	}
	return n, nil
}

// ---- bookings

func (q *memQueries) CreateBooking(ctx context.Context, b *models.Booking) error {
	if _, ok := q.s.bookings[b.ID]; ok {
		return fmt.Errorf("booking %s: %w", b.ID, ErrDuplicate)
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	b.TourDate = models.DateOf(b.TourDate)
	q.s.bookings[b.ID] = *b
	return nil
}

func (q *memQueries) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, ok := q.s.bookings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (q *memQueries) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	return q.GetBooking(ctx, id)
}

func (q *memQueries) UpdateBookingStatus(ctx context.Context, id string, status models.PaymentStatus, at time.Time) error {
	b, ok := q.s.bookings[id]
	if !ok {
		return sql.ErrNoRows
	}
	b.PaymentStatus = status
	stamp := at
	switch status {
	case models.PaymentStatusCancelled:
		b.CancelledAt = &stamp
	case models.PaymentStatusExpired:
		b.ExpiredAt = &stamp
	case models.PaymentStatusCompleted:
		b.PaidAt = &stamp
	}
	b.UpdatedAt = time.Now()
	q.s.bookings[id] = b
	return nil
}

func (q *memQueries) UpdateBookingPricing(ctx context.Context, b *models.Booking) error {
	existing, ok := q.s.bookings[b.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.ReferralCode = b.ReferralCode
	existing.DiscountAmount = b.DiscountAmount
	existing.PartialPaid = b.PartialPaid
	existing.TotalPrice = b.TotalPrice
	existing.UpdatedAt = time.Now()
	q.s.bookings[b.ID] = existing
	return nil
}

func (q *memQueries) MarkBookingPaid(ctx context.Context, id string, reference *string, at time.Time) error {
	b, ok := q.s.bookings[id]
	if !ok || b.PaymentStatus != models.PaymentStatusPending {
		return nil
	}
	stamp := at
	b.PaymentStatus = models.PaymentStatusCompleted
	b.PaymentReference = reference
	b.PaidAt = &stamp
	b.UpdatedAt = time.Now()
	q.s.bookings[id] = b
	return nil
}

func (q *memQueries) ListPendingBookingsThrough(ctx context.Context, date time.Time) ([]models.Booking, error) {
	date = models.DateOf(date)
	var out []models.Booking
	for _, b := range q.s.bookings {
		if b.PaymentStatus == models.PaymentStatusPending && !b.TourDate.After(date) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TourDate.Equal(out[j].TourDate) {
			return out[i].TourDate.Before(out[j].TourDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *memQueries) SumHoldingGuests(ctx context.Context, windowID string) ([]GuestTotal, error) {
	byDate := map[time.Time]int{}
	for _, b := range q.s.bookings {
		if b.WindowID == windowID && b.HoldsCapacity() {
			byDate[b.TourDate] += b.TotalGuests()
		}
	}
	out := make([]GuestTotal, 0, len(byDate))
	for date, guests := range byDate {
		out = append(out, GuestTotal{WindowID: windowID, TourDate: date, Guests: guests})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TourDate.Before(out[j].TourDate) })
	return out, nil
}

// ---- referral codes and agents

func (q *memQueries) CreateReferralCode(ctx context.Context, c *models.ReferralCode) error {
	for _, existing := range q.s.referrals {
		if existing.Code == c.Code {
			return fmt.Errorf("referral code %s: %w", c.Code, ErrDuplicate)
		}
	}
	if _, ok := q.s.agents[c.AgentID]; !ok {
		return fmt.Errorf("failed to create referral code: unknown agent %s", c.AgentID)
	}
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	q.s.referrals[c.ID] = *c
	return nil
}

func (q *memQueries) GetReferralCode(ctx context.Context, id string) (*models.ReferralCode, error) {
	c, ok := q.s.referrals[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (q *memQueries) GetReferralCodeByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	for _, c := range q.s.referrals {
		if c.Code == code {
			return &c, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (q *memQueries) GetReferralCodeForUpdate(ctx context.Context, id string) (*models.ReferralCode, error) {
	return q.GetReferralCode(ctx, id)
}

func (q *memQueries) SetReferralCodeStatus(ctx context.Context, id string, status models.ReferralStatus) error {
	c, ok := q.s.referrals[id]
	if !ok {
		return nil
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	q.s.referrals[id] = c
	return nil
}

func (q *memQueries) ExpireReferralCodes(ctx context.Context, now time.Time) (int, error) {
	n := 0
	for id, c := range q.s.referrals {
		if c.Status == models.ReferralStatusActive && c.IsExpired(now) {
			c.Status = models.ReferralStatusInactive
			c.UpdatedAt = time.Now()
			q.s.referrals[id] = c
			n++
		}
	}
	return n, nil
}

func (q *memQueries) DeactivateAgentCodes(ctx context.Context, agentID string) (int, error) {
	n := 0
	for id, c := range q.s.referrals {
		if c.AgentID == agentID && c.Status == models.ReferralStatusActive {
			c.Status = models.ReferralStatusInactive
			c.UpdatedAt = time.Now()
			q.s.referrals[id] = c
			n++
		}
	}
	return n, nil
}

func (q *memQueries) ReactivateAgentCodes(ctx context.Context, agentID string, now time.Time) (int, error) {
	n := 0
	for id, c := range q.s.referrals {
		if c.AgentID == agentID && c.Status == models.ReferralStatusInactive && !c.IsExpired(now) {
			c.Status = models.ReferralStatusActive
			c.UpdatedAt = time.Now()
			q.s.referrals[id] = c
			n++
		}
	}
	return n, nil
}

func (q *memQueries) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	a, ok := q.s.agents[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (q *memQueries) GetAgentForUpdate(ctx context.Context, id string) (*models.Agent, error) {
	return q.GetAgent(ctx, id)
}

func (q *memQueries) SetAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	a, ok := q.s.agents[id]
	if !ok {
		return nil
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	q.s.agents[id] = a
	return nil
}

// ---- dispatch groups

func (q *memQueries) CreateDispatchGroup(ctx context.Context, g *models.TransportDispatchGroup) error {
	if _, ok := q.s.groups[g.ID]; ok {
		return fmt.Errorf("dispatch group %s: %w", g.ID, ErrDuplicate)
	}
	now := time.Now()
	g.CreatedAt, g.UpdatedAt = now, now
	g.TourDate = models.DateOf(g.TourDate)
	stored := *g
	stored.BookingIDs = nil
	q.s.groups[g.ID] = stored
	q.s.members[g.ID] = nil
	return nil
}

func (q *memQueries) GetDispatchGroup(ctx context.Context, id string) (*models.TransportDispatchGroup, error) {
	g, ok := q.s.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	g.BookingIDs = append([]string{}, q.s.members[id]...)
	return &g, nil
}

func (q *memQueries) GetDispatchGroupForUpdate(ctx context.Context, id string) (*models.TransportDispatchGroup, error) {
	return q.GetDispatchGroup(ctx, id)
}

func (q *memQueries) AddDispatchGroupBooking(ctx context.Context, groupID, bookingID string) error {
	if _, ok := q.s.groups[groupID]; !ok {
		return sql.ErrNoRows
	}
	for _, id := range q.s.members[groupID] {
		if id == bookingID {
			return fmt.Errorf("booking %s already grouped: %w", bookingID, ErrDuplicate)
		}
	}
	q.s.members[groupID] = append(q.s.members[groupID], bookingID)
	return nil
}

func (q *memQueries) ListDispatchGroupBookingIDs(ctx context.Context, groupID string) ([]string, error) {
	return append([]string{}, q.s.members[groupID]...), nil
}

func (q *memQueries) MarkDispatchGroupSent(ctx context.Context, id string, at time.Time) error {
	g, ok := q.s.groups[id]
	if !ok || g.Status != models.DispatchStatusDraft {
		return sql.ErrNoRows
	}
	stamp := at
	g.Status = models.DispatchStatusSent
	g.SentAt = &stamp
	g.UpdatedAt = time.Now()
	q.s.groups[id] = g
	return nil
}

func (q *memQueries) DeleteDispatchGroup(ctx context.Context, id string) error {
	if _, ok := q.s.groups[id]; !ok {
		return sql.ErrNoRows
	}
	delete(q.s.groups, id)
	delete(q.s.members, id)
	return nil
}

func (q *memQueries) CountSentDispatchGroups(ctx context.Context, excursionID string, date time.Time, excludeID string) (int, error) {
	date = models.DateOf(date)
	n := 0
	for _, g := range q.s.groups {
		if g.ID != excludeID && g.ExcursionID == excursionID && g.IsSent() && g.TourDate.Equal(date) {
			n++
		}
	}
	return n, nil
}

func (q *memQueries) ListSentDispatchDates(ctx context.Context, excursionID string, from, to time.Time) ([]time.Time, error) {
	from, to = models.DateOf(from), models.DateOf(to)
	seen := map[time.Time]bool{}
	var out []time.Time
	for _, g := range q.s.groups {
		if g.ExcursionID != excursionID || !g.IsSent() || g.TourDate.Before(from) || g.TourDate.After(to) {
			continue
		}
		if !seen[g.TourDate] {
			seen[g.TourDate] = true
			out = append(out, g.TourDate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// ============================================================================
// AUTOCOMMIT (calls made on the store directly)
// ============================================================================

func (m *MemoryStore) GetExcursion(ctx context.Context, id string) (*models.Excursion, error) {
	var result *models.Excursion
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetExcursion(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetExcursionForUpdate(ctx context.Context, id string) (*models.Excursion, error) {
	var result *models.Excursion
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetExcursionForUpdate(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) SetExcursionStatus(ctx context.Context, id string, status models.ExcursionStatus) error {
	return m.autocommit(func(q *memQueries) error { return q.SetExcursionStatus(ctx, id, status) })
}

func (m *MemoryStore) RegionNames(ctx context.Context, ids []string) (map[string]string, error) {
	var result map[string]string
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.RegionNames(ctx, ids)
		return err
	})
	return result, err
}

func (m *MemoryStore) PickupPointNames(ctx context.Context, ids []string) (map[string]string, error) {
	var result map[string]string
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.PickupPointNames(ctx, ids)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetWindow(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	var result *models.AvailabilityWindow
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetWindow(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetWindowForUpdate(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	var result *models.AvailabilityWindow
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetWindowForUpdate(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetWindowForBooking(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	var result *models.AvailabilityWindow
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetWindowForBooking(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) CreateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	return m.autocommit(func(q *memQueries) error { return q.CreateWindow(ctx, w) })
}

func (m *MemoryStore) UpdateWindow(ctx context.Context, w *models.AvailabilityWindow) error {
	return m.autocommit(func(q *memQueries) error { return q.UpdateWindow(ctx, w) })
}

func (m *MemoryStore) DeleteWindow(ctx context.Context, id string) error {
	return m.autocommit(func(q *memQueries) error { return q.DeleteWindow(ctx, id) })
}

func (m *MemoryStore) SetWindowStatus(ctx context.Context, id string, status models.WindowStatus) error {
	return m.autocommit(func(q *memQueries) error { return q.SetWindowStatus(ctx, id, status) })
}

func (m *MemoryStore) SetWindowBooked(ctx context.Context, id string, booked int) error {
	return m.autocommit(func(q *memQueries) error { return q.SetWindowBooked(ctx, id, booked) })
}

func (m *MemoryStore) FindOverlappingActiveWindows(ctx context.Context, excursionID string, start, end time.Time, excludeID string) ([]models.AvailabilityWindow, error) {
	var result []models.AvailabilityWindow
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.FindOverlappingActiveWindows(ctx, excursionID, start, end, excludeID)
		return err
	})
	return result, err
}

func (m *MemoryStore) ListActiveWindowsEndedBefore(ctx context.Context, date time.Time) ([]models.AvailabilityWindow, error) {
	var result []models.AvailabilityWindow
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ListActiveWindowsEndedBefore(ctx, date)
		return err
	})
	return result, err
}

func (m *MemoryStore) ListWindowIDs(ctx context.Context) ([]string, error) {
	var result []string
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ListWindowIDs(ctx)
		return err
	})
	return result, err
}

func (m *MemoryStore) CountActiveWindows(ctx context.Context, excursionID string) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.CountActiveWindows(ctx, excursionID)
		return err
	})
	return result, err
}

func (m *MemoryStore) CreateDays(ctx context.Context, days []models.DayCapacity) error {
	return m.autocommit(func(q *memQueries) error { return q.CreateDays(ctx, days) })
}

func (m *MemoryStore) DeleteDaysByWindow(ctx context.Context, windowID string) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.DeleteDaysByWindow(ctx, windowID)
		return err
	})
	return result, err
}

func (m *MemoryStore) ListDaysByWindow(ctx context.Context, windowID string) ([]models.DayCapacity, error) {
	var result []models.DayCapacity
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ListDaysByWindow(ctx, windowID)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetDayForUpdate(ctx context.Context, windowID string, date time.Time) (*models.DayCapacity, error) {
	var result *models.DayCapacity
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetDayForUpdate(ctx, windowID, date)
		return err
	})
	return result, err
}

func (m *MemoryStore) SetDayBooked(ctx context.Context, dayID string, booked int) error {
	return m.autocommit(func(q *memQueries) error { return q.SetDayBooked(ctx, dayID, booked) })
}

func (m *MemoryStore) DeactivateWindowDays(ctx context.Context, windowID string) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.DeactivateWindowDays(ctx, windowID)
		return err
	})
	return result, err
}

func (m *MemoryStore) ActivateWindowDays(ctx context.Context, windowID string, fromDate time.Time) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ActivateWindowDays(ctx, windowID, fromDate)
		return err
	})
	return result, err
}

func (m *MemoryStore) DeactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.DeactivateExcursionDays(ctx, excursionID, date)
		return err
	})
	return result, err
}

func (m *MemoryStore) ReactivateExcursionDays(ctx context.Context, excursionID string, date time.Time) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ReactivateExcursionDays(ctx, excursionID, date)
		return err
	})
	return result, err
}

func (m *MemoryStore) ExpireDaysBefore(ctx context.Context, date time.Time) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ExpireDaysBefore(ctx, date)
		return err
	})
	return result, err
}

func (m *MemoryStore) CountActiveDays(ctx context.Context, windowID string) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.CountActiveDays(ctx, windowID)
		return err
	})
	return result, err
}

func (m *MemoryStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.autocommit(func(q *memQueries) error { return q.CreateBooking(ctx, b) })
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var result *models.Booking
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetBooking(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetBookingForUpdate(ctx context.Context, id string) (*models.Booking, error) {
	var result *models.Booking
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetBookingForUpdate(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) UpdateBookingStatus(ctx context.Context, id string, status models.PaymentStatus, at time.Time) error {
	return m.autocommit(func(q *memQueries) error { return q.UpdateBookingStatus(ctx, id, status, at) })
}

func (m *MemoryStore) UpdateBookingPricing(ctx context.Context, b *models.Booking) error {
	return m.autocommit(func(q *memQueries) error { return q.UpdateBookingPricing(ctx, b) })
}

func (m *MemoryStore) MarkBookingPaid(ctx context.Context, id string, reference *string, at time.Time) error {
	return m.autocommit(func(q *memQueries) error { return q.MarkBookingPaid(ctx, id, reference, at) })
}

func (m *MemoryStore) ListPendingBookingsThrough(ctx context.Context, date time.Time) ([]models.Booking, error) {
	var result []models.Booking
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ListPendingBookingsThrough(ctx, date)
		return err
	})
	return result, err
}

func (m *MemoryStore) SumHoldingGuests(ctx context.Context, windowID string) ([]GuestTotal, error) {
	var result []GuestTotal
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.SumHoldingGuests(ctx, windowID)
		return err
	})
	return result, err
}

func (m *MemoryStore) CreateReferralCode(ctx context.Context, c *models.ReferralCode) error {
	return m.autocommit(func(q *memQueries) error { return q.CreateReferralCode(ctx, c) })
}

func (m *MemoryStore) GetReferralCode(ctx context.Context, id string) (*models.ReferralCode, error) {
	var result *models.ReferralCode
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetReferralCode(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetReferralCodeByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var result *models.ReferralCode
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetReferralCodeByCode(ctx, code)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetReferralCodeForUpdate(ctx context.Context, id string) (*models.ReferralCode, error) {
	var result *models.ReferralCode
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetReferralCodeForUpdate(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) SetReferralCodeStatus(ctx context.Context, id string, status models.ReferralStatus) error {
	return m.autocommit(func(q *memQueries) error { return q.SetReferralCodeStatus(ctx, id, status) })
}

func (m *MemoryStore) ExpireReferralCodes(ctx context.Context, now time.Time) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ExpireReferralCodes(ctx, now)
		return err
	})
	return result, err
}

func (m *MemoryStore) DeactivateAgentCodes(ctx context.Context, agentID string) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.DeactivateAgentCodes(ctx, agentID)
		return err
	})
	return result, err
}

func (m *MemoryStore) ReactivateAgentCodes(ctx context.Context, agentID string, now time.Time) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ReactivateAgentCodes(ctx, agentID, now)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var result *models.Agent
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetAgent(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetAgentForUpdate(ctx context.Context, id string) (*models.Agent, error) {
	var result *models.Agent
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetAgentForUpdate(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) SetAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	return m.autocommit(func(q *memQueries) error { return q.SetAgentStatus(ctx, id, status) })
}

func (m *MemoryStore) CreateDispatchGroup(ctx context.Context, g *models.TransportDispatchGroup) error {
	return m.autocommit(func(q *memQueries) error { return q.CreateDispatchGroup(ctx, g) })
}

func (m *MemoryStore) GetDispatchGroup(ctx context.Context, id string) (*models.TransportDispatchGroup, error) {
	var result *models.TransportDispatchGroup
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetDispatchGroup(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) GetDispatchGroupForUpdate(ctx context.Context, id string) (*models.TransportDispatchGroup, error) {
	var result *models.TransportDispatchGroup
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.GetDispatchGroupForUpdate(ctx, id)
		return err
	})
	return result, err
}

func (m *MemoryStore) AddDispatchGroupBooking(ctx context.Context, groupID, bookingID string) error {
	return m.autocommit(func(q *memQueries) error { return q.AddDispatchGroupBooking(ctx, groupID, bookingID) })
}

func (m *MemoryStore) ListDispatchGroupBookingIDs(ctx context.Context, groupID string) ([]string, error) {
	var result []string
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ListDispatchGroupBookingIDs(ctx, groupID)
		return err
	})
	return result, err
}

func (m *MemoryStore) MarkDispatchGroupSent(ctx context.Context, id string, at time.Time) error {
	return m.autocommit(func(q *memQueries) error { return q.MarkDispatchGroupSent(ctx, id, at) })
}

func (m *MemoryStore) DeleteDispatchGroup(ctx context.Context, id string) error {
	return m.autocommit(func(q *memQueries) error { return q.DeleteDispatchGroup(ctx, id) })
}

func (m *MemoryStore) CountSentDispatchGroups(ctx context.Context, excursionID string, date time.Time, excludeID string) (int, error) {
	var result int
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.CountSentDispatchGroups(ctx, excursionID, date, excludeID)
		return err
	})
	return result, err
}

func (m *MemoryStore) ListSentDispatchDates(ctx context.Context, excursionID string, from, to time.Time) ([]time.Time, error) {
	var result []time.Time
	err := m.autocommit(func(q *memQueries) error {
		var err error
		result, err = q.ListSentDispatchDates(ctx, excursionID, from, to)
		return err
	})
	return result, err
}
