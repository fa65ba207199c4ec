package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/external"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/utils"
	"github.com/tourdesk/excursion-backend/pkg/pricing"
)

// VoucherLookup fetches guest reservations used to pre-fill bookings
type VoucherLookup interface {
	GetVoucher(ctx context.Context, reservationID string) (*external.Voucher, error)
}

// BookingCaller identifies who is booking
type BookingCaller struct {
	UserID    *string
	UserAgent string
}

// BookingService runs the booking lifecycle against the capacity ledger
type BookingService struct {
	store     database.Store
	ledger    *CapacityLedger
	lifecycle *LifecycleCoordinator
	notifier  Notifier
	vouchers  VoucherLookup
	logger    *logrus.Logger
	clock     Clock
	loc       *time.Location
}

// NewBookingService creates a new BookingService. vouchers may be nil, in
// which case reservation IDs are stored without pre-filling.
func NewBookingService(
	store database.Store,
	ledger *CapacityLedger,
	lifecycle *LifecycleCoordinator,
	notifier Notifier,
	vouchers VoucherLookup,
	logger *logrus.Logger,
	clock Clock,
	loc *time.Location,
) *BookingService {
	return &BookingService{
		store:     store,
		ledger:    ledger,
		lifecycle: lifecycle,
		notifier:  notifier,
		vouchers:  vouchers,
		logger:    logger,
		clock:     clock,
		loc:       loc,
	}
}

// TryBook reserves seats and creates a pending booking. A reservation
// lookup, when requested, runs before the transaction so a failed call
// never touches capacity.
func (s *BookingService) TryBook(ctx context.Context, req *models.CreateBookingRequest, caller BookingCaller) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	tourDate, _ := models.ParseDate(req.TourDate)
	if tourDate.Before(models.Today(s.clock(), s.loc)) {
		return nil, newValidationError("tour_date %s is in the past", req.TourDate)
	}

	if err := s.prefillFromVoucher(ctx, req); err != nil {
		return nil, err
	}
	if req.PickupPointID == "" {
		return nil, newValidationError("pickup_point_id is required")
	}

	partial := decimal.Zero
	if req.PartialPaid != nil {
		partial = *req.PartialPaid
	}

	booking := &models.Booking{
		ID:                   uuid.New().String(),
		WindowID:             req.WindowID,
		TourDate:             tourDate,
		PickupPointID:        req.PickupPointID,
		AdultCount:           req.AdultCount,
		ChildCount:           req.ChildCount,
		InfantCount:          req.InfantCount,
		PartialPaymentMethod: req.PartialPaymentMethod,
		PaymentStatus:        models.PaymentStatusPending,
		ReservationID:        req.ReservationID,
		UserID:               caller.UserID,
		GuestName:            req.GuestName,
		GuestEmail:           req.GuestEmail,
		Channel:              utils.BookingChannel(caller.UserAgent),
	}

	err := s.store.InTx(ctx, func(q database.Queries) error {
		if _, err := s.ledger.Reserve(ctx, q, req.WindowID, tourDate, req.TotalGuests()); err != nil {
			return err
		}

		// Read after Reserve so prices come from the locked window
		w, err := q.GetWindow(ctx, req.WindowID)
		if err != nil {
			return fmt.Errorf("failed to load window: %w", err)
		}
		if !w.PickupPointIDs.Contains(req.PickupPointID) {
			return newValidationError("pickup point %s is not served by this window", req.PickupPointID)
		}

		base, err := pricing.BasePrice(quoteOf(w), req.AdultCount, req.ChildCount, req.InfantCount)
		if err != nil {
			return &ValidationError{Message: err.Error()}
		}
		price, err := pricing.ComputeFinalPrice(base, decimal.Zero, partial)
		if err != nil {
			return &ValidationError{Message: err.Error()}
		}

		booking.ExcursionID = w.ExcursionID
		booking.StartTime = w.StartTime
		booking.BasePrice = base
		booking.DiscountAmount = decimal.Zero
		booking.PartialPaid = price.PartialPaid
		booking.TotalPrice = price.TotalPrice
		if !price.PartialPaid.Valid {
			booking.PartialPaymentMethod = nil
		}

		return q.CreateBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"window_id":  booking.WindowID,
		"date":       req.TourDate,
		"guests":     booking.TotalGuests(),
		"channel":    booking.Channel,
	}).Info("Booking created")

	s.notifier.Notify(models.SubjectBookingCreated, models.NewBookingEvent(booking, "", s.clock()))
	return booking, nil
}

func (s *BookingService) prefillFromVoucher(ctx context.Context, req *models.CreateBookingRequest) error {
	if req.ReservationID == nil || *req.ReservationID == "" || s.vouchers == nil {
		return nil
	}

	v, err := s.vouchers.GetVoucher(ctx, *req.ReservationID)
	if err != nil {
		if errors.Is(err, external.ErrVoucherNotFound) {
			return newValidationError("reservation %s not found", *req.ReservationID)
		}
		return fmt.Errorf("failed to look up reservation: %w", err)
	}

	if req.GuestName == nil && v.GuestName != "" {
		req.GuestName = &v.GuestName
	}
	if req.GuestEmail == nil && v.GuestEmail != "" {
		req.GuestEmail = &v.GuestEmail
	}
	if req.PickupPointID == "" {
		req.PickupPointID = v.PickupPointID
	}
	return nil
}

// QuoteBasePrice prices a party against a window's current prices
func (s *BookingService) QuoteBasePrice(ctx context.Context, windowID string, adults, children, infants int) (decimal.Decimal, error) {
	w, err := s.store.GetWindow(ctx, windowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrWindowNotFound
		}
		return decimal.Zero, fmt.Errorf("failed to load window: %w", err)
	}

	base, err := pricing.BasePrice(quoteOf(w), adults, children, infants)
	if err != nil {
		return decimal.Zero, &ValidationError{Message: err.Error()}
	}
	return base, nil
}

// GetBooking returns a booking
func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	b, err := s.store.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	return b, nil
}

// ConfirmPayment applies the payment gateway's verdict. Success completes a
// pending booking; repeating it is a no-op. Failure leaves the booking
// pending for another attempt.
func (s *BookingService) ConfirmPayment(ctx context.Context, id string, verdict *models.PaymentVerdictRequest) (*models.Booking, error) {
	now := s.clock()

	var (
		b       *models.Booking
		changed bool
	)
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		b, err = s.lockBooking(ctx, q, id)
		if err != nil {
			return err
		}

		if !verdict.Success {
			return nil
		}

		switch b.PaymentStatus {
		case models.PaymentStatusCompleted:
			return nil
		case models.PaymentStatusPending:
		default:
			return &ConflictError{Message: fmt.Sprintf("booking is %s and cannot be paid", b.PaymentStatus)}
		}

		var reference *string
		if verdict.PaymentReference != "" {
			reference = &verdict.PaymentReference
		}
		if err := q.MarkBookingPaid(ctx, b.ID, reference, now); err != nil {
			return err
		}
		b.PaymentStatus = models.PaymentStatusCompleted
		b.PaymentReference = reference
		b.PaidAt = &now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"booking_id": id, "success": verdict.Success}
	switch {
	case changed:
		s.logger.WithFields(fields).Info("Booking paid")
		s.notifier.Notify(models.SubjectBookingPaid, models.NewBookingEvent(b, "", now))
	case !verdict.Success && b.PaymentStatus == models.PaymentStatusPending:
		s.logger.WithFields(fields).WithField("reason", verdict.Reason).Warn("Payment failed")
		s.notifier.Notify(models.SubjectPaymentFailed, models.NewBookingEvent(b, verdict.Reason, now))
	}
	return b, nil
}

// BookingActor is the caller asking to change a booking
type BookingActor struct {
	UserID string
	Admin  bool
}

// CancelBooking cancels a pending or paid booking and releases its seats.
// Customers may cancel only their own pending bookings; cancelling a paid
// booking is a refund and needs an admin. Cancelling a cancelled booking
// changes nothing.
func (s *BookingService) CancelBooking(ctx context.Context, id string, actor BookingActor) (*models.Booking, error) {
	return s.transition(ctx, id, models.PaymentStatusCancelled, s.clock(), func(b *models.Booking) error {
		if actor.Admin {
			return nil
		}
		if b.UserID == nil || *b.UserID != actor.UserID {
			return ErrBookingForbidden
		}
		if b.PaymentStatus == models.PaymentStatusCompleted {
			return fmt.Errorf("%w: paid bookings are refunded by an admin", ErrBookingForbidden)
		}
		return nil
	})
}

// ExpireBooking expires a pending booking whose tour has started and
// releases its seats. Expiring an expired booking changes nothing.
func (s *BookingService) ExpireBooking(ctx context.Context, id string) (*models.Booking, error) {
	return s.expireAt(ctx, id, s.clock())
}

func (s *BookingService) expireAt(ctx context.Context, id string, now time.Time) (*models.Booking, error) {
	return s.transition(ctx, id, models.PaymentStatusExpired, now, func(b *models.Booking) error {
		if b.PaymentStatus != models.PaymentStatusExpired && !b.HasStarted(now, s.loc) {
			return &ConflictError{Message: "booking cannot expire before its tour starts"}
		}
		return nil
	})
}

func (s *BookingService) transition(ctx context.Context, id string, next models.PaymentStatus, now time.Time, guard func(b *models.Booking) error) (*models.Booking, error) {
	var (
		b       *models.Booking
		changed bool
	)
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		b, err = s.lockBooking(ctx, q, id)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(b); err != nil {
				return err
			}
		}
		changed, err = s.lifecycle.TransitionBooking(ctx, q, b, next, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if changed {
		subject := models.SubjectBookingCancelled
		if next == models.PaymentStatusExpired {
			subject = models.SubjectBookingExpired
		}
		s.notifier.Notify(subject, models.NewBookingEvent(b, "", now))
	}
	return b, nil
}

// ApplyReferral re-prices a pending booking with a referral code. The
// discount is always taken from the original base price. An expired code
// is switched off as a side effect, even though the call fails.
func (s *BookingService) ApplyReferral(ctx context.Context, bookingID, code string) (*models.Booking, error) {
	normalized := models.NormalizeReferralCode(code)
	if normalized == "" {
		return nil, newValidationError("referral code is required")
	}
	now := s.clock()

	var (
		b       *models.Booking
		invalid error
	)
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		b, err = s.lockBooking(ctx, q, bookingID)
		if err != nil {
			return err
		}
		if b.PaymentStatus != models.PaymentStatusPending {
			return &ConflictError{Message: "referral codes can only be applied to pending bookings"}
		}

		rc, err := q.GetReferralCodeByCode(ctx, normalized)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return &InvalidOrExpiredCodeError{Code: normalized, Reason: "not found"}
			}
			return fmt.Errorf("failed to load referral code: %w", err)
		}
		if rc, err = q.GetReferralCodeForUpdate(ctx, rc.ID); err != nil {
			return fmt.Errorf("failed to lock referral code: %w", err)
		}

		if !rc.IsRedeemable(now) {
			if !rc.IsExpired(now) {
				return &InvalidOrExpiredCodeError{Code: rc.Code, Reason: "inactive"}
			}
			if rc.Status == models.ReferralStatusActive {
				if err := q.SetReferralCodeStatus(ctx, rc.ID, models.ReferralStatusInactive); err != nil {
					return err
				}
				s.logger.WithField("code", rc.Code).Info("Expired referral code deactivated on use")
			}
			// commit the status flip, then report the failure
			invalid = &InvalidOrExpiredCodeError{Code: rc.Code, Reason: "expired"}
			return nil
		}

		discount, err := pricing.ComputeReferralDiscount(b.BasePrice, rc.DiscountPercent)
		if err != nil {
			return &ValidationError{Message: err.Error()}
		}
		partial := decimal.Zero
		if b.PartialPaid.Valid {
			partial = b.PartialPaid.Decimal
		}
		price, err := pricing.ComputeFinalPrice(b.BasePrice, discount, partial)
		if err != nil {
			return &ValidationError{Message: err.Error()}
		}

		b.ReferralCode = &rc.Code
		b.DiscountAmount = discount
		b.PartialPaid = price.PartialPaid
		b.TotalPrice = price.TotalPrice
		return q.UpdateBookingPricing(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	if invalid != nil {
		return nil, invalid
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": b.ID,
		"code":       normalized,
		"discount":   b.DiscountAmount.StringFixed(2),
		"total":      b.TotalPrice.StringFixed(2),
	}).Info("Referral code applied")

	return b, nil
}

func (s *BookingService) lockBooking(ctx context.Context, q database.Queries, id string) (*models.Booking, error) {
	b, err := q.GetBookingForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}
	return b, nil
}

func quoteOf(w *models.AvailabilityWindow) pricing.Quote {
	return pricing.Quote{
		AdultPrice:      w.AdultPrice,
		ChildPrice:      w.ChildPrice,
		InfantPrice:     w.InfantPrice,
		DiscountPercent: w.DiscountPercent,
	}
}
