package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/models"
)

var (
	ErrExcursionNotFound    = errors.New("excursion not found")
	ErrWindowNotFound       = errors.New("availability window not found")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrReferralCodeNotFound = errors.New("referral code not found")
	ErrAgentNotFound        = errors.New("agent not found")
	ErrGroupNotFound        = errors.New("dispatch group not found")

	// ErrBookingForbidden is returned when the caller may not change the booking
	ErrBookingForbidden = errors.New("not allowed to change this booking")

	// ErrDayNotBookable is returned when the window has no open day on the
	// requested date (not a matching weekday, already passed or dispatched)
	ErrDayNotBookable = errors.New("tour date is not open for booking")
)

// ValidationError reports malformed or incomplete input. Nothing was written.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a request that collides with existing state, such
// as a window overlapping another active window
type ConflictError struct {
	Message string
	Details []string
}

func (e *ConflictError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Details, "; ")
}

// InsufficientCapacityError is returned when a day cannot seat the party
type InsufficientCapacityError struct {
	WindowID  string
	Date      time.Time
	Requested int
	Remaining int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity on %s: requested %d, remaining %d",
		e.Date.Format(models.DateLayout), e.Requested, e.Remaining)
}

// InvalidOrExpiredCodeError is returned when a referral code cannot be redeemed
type InvalidOrExpiredCodeError struct {
	Code   string
	Reason string
}

func (e *InvalidOrExpiredCodeError) Error() string {
	return fmt.Sprintf("referral code %s is %s", e.Code, e.Reason)
}

// InconsistentStateError marks a ledger invariant violation. It aborts the
// enclosing transaction and is always logged with its identifiers.
type InconsistentStateError struct {
	Op     string
	Fields logrus.Fields
}

func (e *InconsistentStateError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		keys = append(keys, fmt.Sprintf("%s=%v", k, v))
	}
	sort.Strings(keys)
	return fmt.Sprintf("inconsistent state in %s (%s)", e.Op, strings.Join(keys, ", "))
}

// IsExpected reports whether err is a normal, caller-facing outcome rather
// than a system fault
func IsExpected(err error) bool {
	var (
		validation *ValidationError
		conflict   *ConflictError
		capacity   *InsufficientCapacityError
		code       *InvalidOrExpiredCodeError
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &conflict),
		errors.As(err, &capacity), errors.As(err, &code):
		return true
	case errors.Is(err, ErrDayNotBookable), errors.Is(err, ErrBookingForbidden):
		return true
	}
	return isNotFound(err)
}

func isNotFound(err error) bool {
	for _, target := range []error{
		ErrExcursionNotFound, ErrWindowNotFound, ErrBookingNotFound,
		ErrReferralCodeNotFound, ErrAgentNotFound, ErrGroupNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
