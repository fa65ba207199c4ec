package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
)

// DispatchService drives transport dispatch groups. Sending a group takes
// its excursion and date off sale; withdrawing it puts them back.
type DispatchService struct {
	store     database.Store
	lifecycle *LifecycleCoordinator
	notifier  Notifier
	logger    *logrus.Logger
	clock     Clock
	loc       *time.Location
}

// NewDispatchService creates a new DispatchService
func NewDispatchService(
	store database.Store,
	lifecycle *LifecycleCoordinator,
	notifier Notifier,
	logger *logrus.Logger,
	clock Clock,
	loc *time.Location,
) *DispatchService {
	return &DispatchService{
		store:     store,
		lifecycle: lifecycle,
		notifier:  notifier,
		logger:    logger,
		clock:     clock,
		loc:       loc,
	}
}

// CreateGroup opens a draft group for an excursion and date
func (s *DispatchService) CreateGroup(ctx context.Context, req *models.CreateDispatchGroupRequest) (*models.TransportDispatchGroup, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	tourDate, _ := models.ParseDate(req.TourDate)

	if _, err := s.store.GetExcursion(ctx, req.ExcursionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExcursionNotFound
		}
		return nil, fmt.Errorf("failed to load excursion: %w", err)
	}

	g := &models.TransportDispatchGroup{
		ID:          uuid.New().String(),
		ExcursionID: req.ExcursionID,
		TourDate:    tourDate,
		Status:      models.DispatchStatusDraft,
		Notes:       req.Notes,
		BookingIDs:  []string{},
	}
	if err := s.store.CreateDispatchGroup(ctx, g); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"group_id":     g.ID,
		"excursion_id": g.ExcursionID,
		"date":         req.TourDate,
	}).Info("Dispatch group created")
	return g, nil
}

// GetGroup returns a group with its member bookings
func (s *DispatchService) GetGroup(ctx context.Context, id string) (*models.TransportDispatchGroup, error) {
	g, err := s.store.GetDispatchGroup(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load dispatch group: %w", err)
	}
	return g, nil
}

// AddBooking adds a seat-holding booking of the same excursion and date to
// a draft group
func (s *DispatchService) AddBooking(ctx context.Context, groupID, bookingID string) (*models.TransportDispatchGroup, error) {
	var g *models.TransportDispatchGroup
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		g, err = s.lockGroup(ctx, q, groupID)
		if err != nil {
			return err
		}
		if g.IsSent() {
			return &ConflictError{Message: "dispatch group has already been sent"}
		}

		b, err := q.GetBooking(ctx, bookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrBookingNotFound
			}
			return fmt.Errorf("failed to load booking: %w", err)
		}
		if b.ExcursionID != g.ExcursionID || !models.DateOf(b.TourDate).Equal(models.DateOf(g.TourDate)) {
			return newValidationError("booking %s is not for this group's excursion and date", bookingID)
		}
		if !b.HoldsCapacity() {
			return &ConflictError{Message: fmt.Sprintf("booking %s is %s", bookingID, b.PaymentStatus)}
		}

		if err := q.AddDispatchGroupBooking(ctx, g.ID, b.ID); err != nil {
			if errors.Is(err, database.ErrDuplicate) {
				return &ConflictError{Message: fmt.Sprintf("booking %s is already in this group", bookingID)}
			}
			return err
		}
		g.BookingIDs = append(g.BookingIDs, b.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// DispatchGroup sends a draft group and closes its excursion's days for the
// date. Sending a sent group changes nothing.
func (s *DispatchService) DispatchGroup(ctx context.Context, id string) (*models.TransportDispatchGroup, int, error) {
	now := s.clock()

	var (
		g      *models.TransportDispatchGroup
		closed int
		sent   bool
	)
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		g, err = s.lockGroup(ctx, q, id)
		if err != nil {
			return err
		}
		if g.IsSent() {
			return nil
		}

		if err := q.MarkDispatchGroupSent(ctx, g.ID, now); err != nil {
			return fmt.Errorf("failed to send dispatch group: %w", err)
		}
		g.Status = models.DispatchStatusSent
		g.SentAt = &now
		sent = true

		closed, err = s.lifecycle.GroupDispatched(ctx, q, g)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	if sent {
		s.notifier.Notify(models.SubjectGroupDispatched, dispatchEvent(g, closed, now))
	}
	return g, closed, nil
}

// UndispatchGroup deletes a group. Withdrawing a sent group reopens its
// days unless another sent group still claims the excursion and date.
func (s *DispatchService) UndispatchGroup(ctx context.Context, id string) (int, error) {
	now := s.clock()
	today := models.Today(now, s.loc)

	var (
		g        *models.TransportDispatchGroup
		reopened int
		wasSent  bool
	)
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		g, err = s.lockGroup(ctx, q, id)
		if err != nil {
			return err
		}
		wasSent = g.IsSent()

		if err := q.DeleteDispatchGroup(ctx, g.ID); err != nil {
			return fmt.Errorf("failed to delete dispatch group: %w", err)
		}
		if !wasSent {
			return nil
		}

		reopened, err = s.lifecycle.GroupWithdrawn(ctx, q, g, today)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.WithFields(logrus.Fields{
		"group_id": id,
		"was_sent": wasSent,
		"reopened": reopened,
	}).Info("Dispatch group deleted")

	if wasSent {
		s.notifier.Notify(models.SubjectGroupWithdrawn, dispatchEvent(g, reopened, now))
	}
	return reopened, nil
}

// lockGroup takes the group's excursion lock before the group row. Sending
// or withdrawing a group closes and reopens days across the excursion, so it
// must serialize with window saves and with other groups of the excursion.
func (s *DispatchService) lockGroup(ctx context.Context, q database.Queries, id string) (*models.TransportDispatchGroup, error) {
	current, err := q.GetDispatchGroup(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load dispatch group: %w", err)
	}
	if _, err := q.GetExcursionForUpdate(ctx, current.ExcursionID); err != nil {
		return nil, fmt.Errorf("failed to lock excursion: %w", err)
	}
	g, err := q.GetDispatchGroupForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to lock dispatch group: %w", err)
	}
	return g, nil
}

func dispatchEvent(g *models.TransportDispatchGroup, daysChanged int, at time.Time) models.DispatchEvent {
	return models.DispatchEvent{
		GroupID:     g.ID,
		ExcursionID: g.ExcursionID,
		TourDate:    g.TourDate.Format(models.DateLayout),
		BookingIDs:  g.BookingIDs,
		DaysChanged: daysChanged,
		OccurredAt:  at,
	}
}
