package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/metrics"
	"github.com/tourdesk/excursion-backend/internal/models"
)

// Sweep names, shared by the scheduler, the maintenance endpoint and the
// run-sweeps command
const (
	SweepExpireWindows   = "expire_windows"
	SweepExpireDays      = "expire_days"
	SweepExpireBookings  = "expire_bookings"
	SweepExpireReferrals = "expire_referrals"
	SweepReconcile       = "reconcile_capacity"
)

// ErrUnknownSweep is returned by Run for a name it does not know
var ErrUnknownSweep = errors.New("unknown sweep")

// SweepResult reports what one sweep run changed
type SweepResult struct {
	Sweep    string        `json:"sweep"`
	Affected int           `json:"affected"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// SweepService runs the time-driven lifecycle sweeps. Every sweep takes
// the instant it should consider "now" and can be repeated safely.
type SweepService struct {
	store     database.Store
	bookings  *BookingService
	ledger    *CapacityLedger
	lifecycle *LifecycleCoordinator
	logger    *logrus.Logger
	loc       *time.Location
}

// NewSweepService creates a new SweepService
func NewSweepService(
	store database.Store,
	bookings *BookingService,
	ledger *CapacityLedger,
	lifecycle *LifecycleCoordinator,
	logger *logrus.Logger,
	loc *time.Location,
) *SweepService {
	return &SweepService{
		store:     store,
		bookings:  bookings,
		ledger:    ledger,
		lifecycle: lifecycle,
		logger:    logger,
		loc:       loc,
	}
}

// SweepNames lists every sweep in the order RunAll executes them
func SweepNames() []string {
	return []string{
		SweepExpireWindows,
		SweepExpireDays,
		SweepExpireBookings,
		SweepExpireReferrals,
		SweepReconcile,
	}
}

// Run executes the named sweep
func (s *SweepService) Run(ctx context.Context, name string, now time.Time) (*SweepResult, error) {
	var fn func(context.Context, time.Time) (*SweepResult, error)
	switch name {
	case SweepExpireWindows:
		fn = s.SweepExpiredWindows
	case SweepExpireDays:
		fn = s.SweepExpiredDays
	case SweepExpireBookings:
		fn = s.SweepExpiredBookings
	case SweepExpireReferrals:
		fn = s.SweepExpiredReferralCodes
	case SweepReconcile:
		fn = s.ReconcileCapacity
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownSweep, name)
	}
	return s.observe(name, func() (*SweepResult, error) { return fn(ctx, now) })
}

// RunAll executes every sweep, continuing past failures. The first error
// is returned with the results of the sweeps that ran.
func (s *SweepService) RunAll(ctx context.Context, now time.Time) ([]SweepResult, error) {
	var (
		results  []SweepResult
		firstErr error
	)
	for _, name := range SweepNames() {
		res, err := s.Run(ctx, name, now)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, *res)
	}
	return results, firstErr
}

// SweepExpiredWindows deactivates active windows whose end date is behind
// today, closing their days and demoting idle excursions
func (s *SweepService) SweepExpiredWindows(ctx context.Context, now time.Time) (*SweepResult, error) {
	today := models.Today(now, s.loc)
	res := &SweepResult{Sweep: SweepExpireWindows}

	windows, err := s.store.ListActiveWindowsEndedBefore(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended windows: %w", err)
	}

	for i := range windows {
		w := windows[i]
		var changed bool
		err := s.store.InTx(ctx, func(q database.Queries) error {
			if _, err := q.GetExcursionForUpdate(ctx, w.ExcursionID); err != nil {
				return err
			}
			locked, err := q.GetWindowForUpdate(ctx, w.ID)
			if err != nil {
				return err
			}
			if !locked.IsActive() {
				return nil
			}
			if err := q.SetWindowStatus(ctx, locked.ID, models.WindowStatusInactive); err != nil {
				return err
			}
			locked.Status = models.WindowStatusInactive
			changed = true
			return s.lifecycle.WindowDeactivated(ctx, q, locked)
		})
		switch {
		case err != nil:
			res.Failed++
			s.logger.WithError(err).WithField("window_id", w.ID).Error("Failed to expire window")
		case changed:
			res.Affected++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

// SweepExpiredDays marks every day before today inactive
func (s *SweepService) SweepExpiredDays(ctx context.Context, now time.Time) (*SweepResult, error) {
	n, err := s.store.ExpireDaysBefore(ctx, models.Today(now, s.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to expire days: %w", err)
	}
	return &SweepResult{Sweep: SweepExpireDays, Affected: n}, nil
}

// SweepExpiredBookings expires pending bookings whose tour has started
func (s *SweepService) SweepExpiredBookings(ctx context.Context, now time.Time) (*SweepResult, error) {
	res := &SweepResult{Sweep: SweepExpireBookings}

	pending, err := s.store.ListPendingBookingsThrough(ctx, models.Today(now, s.loc))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending bookings: %w", err)
	}

	for i := range pending {
		b := &pending[i]
		if !b.HasStarted(now, s.loc) {
			res.Skipped++
			continue
		}

		_, err := s.bookings.expireAt(ctx, b.ID, now)
		var conflict *ConflictError
		switch {
		case err == nil:
			res.Affected++
		case errors.As(err, &conflict):
			// paid or cancelled since it was listed
			res.Skipped++
		default:
			res.Failed++
			s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to expire booking")
		}
	}
	return res, nil
}

// SweepExpiredReferralCodes switches off active codes past their expiry
func (s *SweepService) SweepExpiredReferralCodes(ctx context.Context, now time.Time) (*SweepResult, error) {
	n, err := s.store.ExpireReferralCodes(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire referral codes: %w", err)
	}
	return &SweepResult{Sweep: SweepExpireReferrals, Affected: n}, nil
}

// ReconcileCapacity recomputes booked guests of every window from its
// bookings. Affected counts windows that needed a correction.
func (s *SweepService) ReconcileCapacity(ctx context.Context, _ time.Time) (*SweepResult, error) {
	res := &SweepResult{Sweep: SweepReconcile}

	ids, err := s.store.ListWindowIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list windows: %w", err)
	}
	sort.Strings(ids)

	for _, id := range ids {
		var rr *ReconcileResult
		err := s.store.InTx(ctx, func(q database.Queries) error {
			w, err := q.GetWindow(ctx, id)
			if err != nil {
				return err
			}
			if _, err := q.GetExcursionForUpdate(ctx, w.ExcursionID); err != nil {
				return err
			}
			rr, err = s.ledger.Reconcile(ctx, q, id)
			return err
		})
		switch {
		case err != nil:
			res.Failed++
			s.logger.WithError(err).WithField("window_id", id).Error("Failed to reconcile window")
		case rr.DaysCorrected > 0 || rr.WindowCorrected:
			res.Affected++
		default:
			res.Skipped++
		}
	}
	return res, nil
}

func (s *SweepService) observe(name string, fn func() (*SweepResult, error)) (*SweepResult, error) {
	start := time.Now()
	res, err := fn()
	elapsed := time.Since(start)
	metrics.SweepDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		metrics.SweepRuns.WithLabelValues(name, "error").Inc()
		s.logger.WithError(err).WithField("sweep", name).Error("Sweep failed")
		return nil, err
	}

	res.Duration = elapsed
	result := "ok"
	if res.Failed > 0 {
		result = "partial"
	}
	metrics.SweepRuns.WithLabelValues(name, result).Inc()
	metrics.SweepAffected.WithLabelValues(name).Add(float64(res.Affected))

	s.logger.WithFields(logrus.Fields{
		"sweep":    name,
		"affected": res.Affected,
		"skipped":  res.Skipped,
		"failed":   res.Failed,
		"duration": elapsed.String(),
	}).Info("Sweep completed")
	return res, nil
}
