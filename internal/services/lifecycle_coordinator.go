package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
)

// LifecycleCoordinator cascades status transitions into dependent records.
// Each handler runs on the transaction of the operation that triggered it,
// so a failed cascade rolls back the triggering write too.
type LifecycleCoordinator struct {
	ledger *CapacityLedger
	logger *logrus.Logger
}

// NewLifecycleCoordinator creates a new LifecycleCoordinator
func NewLifecycleCoordinator(ledger *CapacityLedger, logger *logrus.Logger) *LifecycleCoordinator {
	return &LifecycleCoordinator{ledger: ledger, logger: logger}
}

// ============================================================================
// BOOKINGS
// ============================================================================

// TransitionBooking moves a locked booking to next and releases its seats
// when it stops holding capacity. Repeating the current status is a no-op
// and reports changed=false.
func (c *LifecycleCoordinator) TransitionBooking(ctx context.Context, q database.Queries, b *models.Booking, next models.PaymentStatus, at time.Time) (changed bool, err error) {
	if b.PaymentStatus == next {
		return false, nil
	}
	if !b.CanTransitionTo(next) {
		return false, &ConflictError{
			Message: fmt.Sprintf("booking cannot move from %s to %s", b.PaymentStatus, next),
		}
	}

	wasHolding := b.HoldsCapacity()
	if err := q.UpdateBookingStatus(ctx, b.ID, next, at); err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	b.PaymentStatus = next
	b.UpdatedAt = at
	stamp := at
	switch next {
	case models.PaymentStatusCancelled:
		b.CancelledAt = &stamp
	case models.PaymentStatusExpired:
		b.ExpiredAt = &stamp
	case models.PaymentStatusCompleted:
		b.PaidAt = &stamp
	}

	if wasHolding && !b.HoldsCapacity() {
		if err := c.ledger.Release(ctx, q, b.WindowID, b.TourDate, b.TotalGuests(), string(next)); err != nil {
			return false, err
		}
	}

	c.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"window_id":  b.WindowID,
		"status":     next,
	}).Info("Booking status changed")

	return true, nil
}

// ============================================================================
// WINDOWS AND EXCURSIONS
// ============================================================================

// WindowActivated reopens the window's days from today and promotes the
// excursion when the window has something to sell
func (c *LifecycleCoordinator) WindowActivated(ctx context.Context, q database.Queries, w *models.AvailabilityWindow, today time.Time) error {
	reopened, err := q.ActivateWindowDays(ctx, w.ID, today)
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"window_id": w.ID, "days": reopened}).Info("Window days reopened")
	return c.PromoteExcursion(ctx, q, w)
}

// WindowDeactivated closes the window's days and demotes the excursion when
// no active window remains
func (c *LifecycleCoordinator) WindowDeactivated(ctx context.Context, q database.Queries, w *models.AvailabilityWindow) error {
	closed, err := q.DeactivateWindowDays(ctx, w.ID)
	if err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{"window_id": w.ID, "days": closed}).Info("Window days closed")
	return c.DemoteExcursionIfIdle(ctx, q, w.ExcursionID)
}

// PromoteExcursion marks the excursion active when w is active and has at
// least one active day
func (c *LifecycleCoordinator) PromoteExcursion(ctx context.Context, q database.Queries, w *models.AvailabilityWindow) error {
	if !w.IsActive() {
		return nil
	}
	active, err := q.CountActiveDays(ctx, w.ID)
	if err != nil {
		return err
	}
	if active == 0 {
		return nil
	}
	return q.SetExcursionStatus(ctx, w.ExcursionID, models.ExcursionStatusActive)
}

// DemoteExcursionIfIdle marks the excursion inactive when it has no active
// window left
func (c *LifecycleCoordinator) DemoteExcursionIfIdle(ctx context.Context, q database.Queries, excursionID string) error {
	remaining, err := q.CountActiveWindows(ctx, excursionID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	c.logger.WithField("excursion_id", excursionID).Info("Excursion has no active window left")
	return q.SetExcursionStatus(ctx, excursionID, models.ExcursionStatusInactive)
}

// ============================================================================
// DISPATCH GROUPS
// ============================================================================

// GroupDispatched closes every active day of the group's excursion and date
func (c *LifecycleCoordinator) GroupDispatched(ctx context.Context, q database.Queries, g *models.TransportDispatchGroup) (int, error) {
	closed, err := q.DeactivateExcursionDays(ctx, g.ExcursionID, g.TourDate)
	if err != nil {
		return 0, err
	}
	c.logger.WithFields(logrus.Fields{
		"group_id":     g.ID,
		"excursion_id": g.ExcursionID,
		"date":         g.TourDate.Format(models.DateLayout),
		"days":         closed,
	}).Info("Dispatch closed day capacities")
	return closed, nil
}

// GroupWithdrawn reopens the days a withdrawn sent group had closed, unless
// another sent group still claims the same excursion and date. Past dates
// stay closed.
func (c *LifecycleCoordinator) GroupWithdrawn(ctx context.Context, q database.Queries, g *models.TransportDispatchGroup, today time.Time) (int, error) {
	others, err := q.CountSentDispatchGroups(ctx, g.ExcursionID, g.TourDate, g.ID)
	if err != nil {
		return 0, err
	}

	fields := logrus.Fields{
		"group_id":     g.ID,
		"excursion_id": g.ExcursionID,
		"date":         g.TourDate.Format(models.DateLayout),
	}

	if others > 0 {
		c.logger.WithFields(fields).WithField("other_groups", others).Info("Date still dispatched by another group")
		return 0, nil
	}
	if models.DateOf(g.TourDate).Before(today) {
		return 0, nil
	}

	reopened, err := q.ReactivateExcursionDays(ctx, g.ExcursionID, g.TourDate)
	if err != nil {
		return 0, err
	}
	c.logger.WithFields(fields).WithField("days", reopened).Info("Withdrawn dispatch reopened day capacities")
	return reopened, nil
}

// ============================================================================
// AGENTS
// ============================================================================

// AgentStatusChanged forces an inactive agent's codes inactive, or restores
// the non-expired codes of a reactivated agent
func (c *LifecycleCoordinator) AgentStatusChanged(ctx context.Context, q database.Queries, agentID string, status models.AgentStatus, now time.Time) (int, error) {
	var (
		changed int
		err     error
	)
	if status == models.AgentStatusActive {
		changed, err = q.ReactivateAgentCodes(ctx, agentID, now)
	} else {
		changed, err = q.DeactivateAgentCodes(ctx, agentID)
	}
	if err != nil {
		return 0, err
	}

	c.logger.WithFields(logrus.Fields{
		"agent_id": agentID,
		"status":   status,
		"codes":    changed,
	}).Info("Agent referral codes updated")
	return changed, nil
}
