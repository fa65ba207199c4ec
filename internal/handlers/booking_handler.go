package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/middleware"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/services"
	"github.com/tourdesk/excursion-backend/pkg/jwt"
)

// BookingHandler handles booking requests
type BookingHandler struct {
	bookings *services.BookingService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings *services.BookingService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		logger:   logger,
	}
}

// CreateBooking handles POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	userID := userCtx.UserID
	b, err := h.bookings.TryBook(c.Request.Context(), &req, services.BookingCaller{
		UserID:    &userID,
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, h.logger, "create_booking", err)
		return
	}

	c.JSON(http.StatusCreated, b)
}

// GetBooking handles GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	b, err := h.bookings.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get_booking", err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// CancelBooking handles POST /api/v1/bookings/:id/cancel. Admins may
// cancel any booking, which refunds a paid one.
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return
	}

	b, err := h.bookings.CancelBooking(c.Request.Context(), c.Param("id"), services.BookingActor{
		UserID: userCtx.UserID,
		Admin:  userCtx.HasRole(jwt.RoleAdmin),
	})
	if err != nil {
		respondError(c, h.logger, "cancel_booking", err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// ExpireBooking handles POST /api/v1/bookings/:id/expire
func (h *BookingHandler) ExpireBooking(c *gin.Context) {
	b, err := h.bookings.ExpireBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "expire_booking", err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// ApplyReferral handles POST /api/v1/bookings/:id/referral
func (h *BookingHandler) ApplyReferral(c *gin.Context) {
	var req models.ApplyReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	b, err := h.bookings.ApplyReferral(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		respondError(c, h.logger, "apply_referral", err)
		return
	}

	c.JSON(http.StatusOK, b)
}

// ConfirmPayment handles POST /api/v1/bookings/:id/payment
func (h *BookingHandler) ConfirmPayment(c *gin.Context) {
	var req models.PaymentVerdictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	b, err := h.bookings.ConfirmPayment(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, "confirm_payment", err)
		return
	}

	c.JSON(http.StatusOK, b)
}
