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

// AvailabilityService manages availability windows and their day capacities
type AvailabilityService struct {
	store        database.Store
	detector     *ConflictDetector
	materializer *DayMaterializer
	lifecycle    *LifecycleCoordinator
	logger       *logrus.Logger
	clock        Clock
	loc          *time.Location
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(
	store database.Store,
	detector *ConflictDetector,
	materializer *DayMaterializer,
	lifecycle *LifecycleCoordinator,
	logger *logrus.Logger,
	clock Clock,
	loc *time.Location,
) *AvailabilityService {
	return &AvailabilityService{
		store:        store,
		detector:     detector,
		materializer: materializer,
		lifecycle:    lifecycle,
		logger:       logger,
		clock:        clock,
		loc:          loc,
	}
}

func (s *AvailabilityService) today() time.Time {
	return models.Today(s.clock(), s.loc)
}

// ValidateWindow checks a proposed window without saving it. windowID is
// the window being edited, or empty for a new one.
func (s *AvailabilityService) ValidateWindow(ctx context.Context, req *models.SaveWindowRequest, windowID string) error {
	w, err := buildWindow(req, windowID)
	if err != nil {
		return err
	}

	if _, err := s.store.GetExcursion(ctx, w.ExcursionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExcursionNotFound
		}
		return fmt.Errorf("failed to load excursion: %w", err)
	}

	return s.checkConflict(ctx, s.store, w)
}

// SaveWindow creates a window (empty id) or rewrites an existing one, then
// regenerates its day capacities. Validation, the conflict check and the
// write share one transaction under the excursion lock.
func (s *AvailabilityService) SaveWindow(ctx context.Context, id string, req *models.SaveWindowRequest) (*models.AvailabilityWindow, error) {
	w, err := buildWindow(req, id)
	if err != nil {
		return nil, err
	}

	create := id == ""
	if create {
		w.ID = uuid.New().String()
	}
	today := s.today()

	var created int
	err = s.store.InTx(ctx, func(q database.Queries) error {
		if _, err := q.GetExcursionForUpdate(ctx, w.ExcursionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrExcursionNotFound
			}
			return fmt.Errorf("failed to lock excursion: %w", err)
		}

		if !create {
			existing, err := q.GetWindowForUpdate(ctx, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrWindowNotFound
				}
				return fmt.Errorf("failed to lock window: %w", err)
			}
			if existing.ExcursionID != w.ExcursionID {
				return newValidationError("a window cannot be moved to another excursion")
			}
			w.BookedGuests = existing.BookedGuests
			w.CreatedAt = existing.CreatedAt
		}

		if err := s.checkConflict(ctx, q, w); err != nil {
			return err
		}

		if create {
			if err := q.CreateWindow(ctx, w); err != nil {
				return err
			}
		} else if err := q.UpdateWindow(ctx, w); err != nil {
			return err
		}

		n, err := s.materializer.Materialize(ctx, q, w, today)
		if err != nil {
			return err
		}
		created = n

		if w.IsActive() {
			return s.lifecycle.PromoteExcursion(ctx, q, w)
		}
		return s.lifecycle.DemoteExcursionIfIdle(ctx, q, w.ExcursionID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"window_id":    w.ID,
		"excursion_id": w.ExcursionID,
		"created":      create,
		"days":         created,
	}).Info("Availability window saved")

	return w, nil
}

// SetWindowStatus activates or deactivates a window. Activation is checked
// for conflicts like a save.
func (s *AvailabilityService) SetWindowStatus(ctx context.Context, id string, status models.WindowStatus) (*models.AvailabilityWindow, error) {
	today := s.today()

	var w *models.AvailabilityWindow
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		w, err = s.lockWindow(ctx, q, id)
		if err != nil {
			return err
		}

		if w.Status == status {
			return nil
		}
		w.Status = status
		if err := w.Validate(); err != nil {
			return &ValidationError{Message: err.Error()}
		}

		if err := s.checkConflict(ctx, q, w); err != nil {
			return err
		}
		if err := q.SetWindowStatus(ctx, w.ID, status); err != nil {
			return err
		}

		if w.IsActive() {
			return s.lifecycle.WindowActivated(ctx, q, w, today)
		}
		return s.lifecycle.WindowDeactivated(ctx, q, w)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{"window_id": id, "status": status}).Info("Window status changed")
	return w, nil
}

// DeleteWindow removes a window and its days. Windows with bookings are
// kept; they can only be deactivated.
func (s *AvailabilityService) DeleteWindow(ctx context.Context, id string) error {
	err := s.store.InTx(ctx, func(q database.Queries) error {
		w, err := s.lockWindow(ctx, q, id)
		if err != nil {
			return err
		}

		totals, err := q.SumHoldingGuests(ctx, id)
		if err != nil {
			return err
		}
		for _, t := range totals {
			if t.Guests > 0 {
				return &ConflictError{Message: "window has bookings holding seats; deactivate it instead"}
			}
		}

		if err := q.DeleteWindow(ctx, id); err != nil {
			if errors.Is(err, database.ErrReferenced) {
				return &ConflictError{Message: "window has booking history; deactivate it instead"}
			}
			if errors.Is(err, sql.ErrNoRows) {
				return ErrWindowNotFound
			}
			return err
		}

		return s.lifecycle.DemoteExcursionIfIdle(ctx, q, w.ExcursionID)
	})
	if err != nil {
		return err
	}

	s.logger.WithField("window_id", id).Info("Availability window deleted")
	return nil
}

// GetWindow returns a window
func (s *AvailabilityService) GetWindow(ctx context.Context, id string) (*models.AvailabilityWindow, error) {
	w, err := s.store.GetWindow(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to load window: %w", err)
	}
	return w, nil
}

// ListDays returns the window's days with their remaining seats
func (s *AvailabilityService) ListDays(ctx context.Context, windowID string) ([]models.DayAvailability, error) {
	if _, err := s.GetWindow(ctx, windowID); err != nil {
		return nil, err
	}

	days, err := s.store.ListDaysByWindow(ctx, windowID)
	if err != nil {
		return nil, err
	}

	out := make([]models.DayAvailability, 0, len(days))
	for _, d := range days {
		out = append(out, models.DayAvailability{DayCapacity: d, Remaining: d.Remaining()})
	}
	return out, nil
}

// lockWindow locks the window's excursion and then the window itself
func (s *AvailabilityService) lockWindow(ctx context.Context, q database.Queries, id string) (*models.AvailabilityWindow, error) {
	current, err := q.GetWindow(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to load window: %w", err)
	}
	if _, err := q.GetExcursionForUpdate(ctx, current.ExcursionID); err != nil {
		return nil, fmt.Errorf("failed to lock excursion: %w", err)
	}
	w, err := q.GetWindowForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWindowNotFound
		}
		return nil, fmt.Errorf("failed to lock window: %w", err)
	}
	return w, nil
}

func (s *AvailabilityService) checkConflict(ctx context.Context, q database.Queries, w *models.AvailabilityWindow) error {
	if !w.IsActive() {
		return nil
	}
	conflict, details, err := s.detector.CheckConflict(ctx, q, ProbeFor(w))
	if err != nil {
		return fmt.Errorf("failed to check window conflicts: %w", err)
	}
	if conflict {
		return &ConflictError{
			Message: "window conflicts with an existing active window",
			Details: details,
		}
	}
	return nil
}

func buildWindow(req *models.SaveWindowRequest, id string) (*models.AvailabilityWindow, error) {
	w, err := req.ToWindow()
	if err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	w.ID = id
	if err := w.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	return w, nil
}
