package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// badRequest answers a request whose body or parameters could not be read
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation_error",
		Message: message,
	})
}

// respondError maps a service error onto an HTTP status. Expected outcomes
// are logged at debug; anything else is a server error.
func respondError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	var (
		validation *services.ValidationError
		conflict   *services.ConflictError
		capacity   *services.InsufficientCapacityError
		code       *services.InvalidOrExpiredCodeError
	)

	status := http.StatusInternalServerError
	resp := ErrorResponse{Error: "internal_error", Message: "Something went wrong"}

	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		resp = ErrorResponse{Error: "validation_error", Message: validation.Message}
	case errors.As(err, &capacity):
		status = http.StatusConflict
		resp = ErrorResponse{
			Error:   "insufficient_capacity",
			Message: capacity.Error(),
			Details: gin.H{
				"date":      capacity.Date.Format(models.DateLayout),
				"requested": capacity.Requested,
				"remaining": capacity.Remaining,
			},
		}
	case errors.As(err, &conflict):
		status = http.StatusConflict
		resp = ErrorResponse{Error: "conflict", Message: conflict.Message}
		if len(conflict.Details) > 0 {
			resp.Details = conflict.Details
		}
	case errors.As(err, &code):
		status = http.StatusUnprocessableEntity
		resp = ErrorResponse{Error: "invalid_referral_code", Message: code.Error()}
	case errors.Is(err, services.ErrBookingForbidden):
		status = http.StatusForbidden
		resp = ErrorResponse{Error: "forbidden", Message: err.Error()}
	case errors.Is(err, services.ErrDayNotBookable):
		status = http.StatusConflict
		resp = ErrorResponse{Error: "day_not_bookable", Message: err.Error()}
	case errors.Is(err, services.ErrExcursionNotFound),
		errors.Is(err, services.ErrWindowNotFound),
		errors.Is(err, services.ErrBookingNotFound),
		errors.Is(err, services.ErrReferralCodeNotFound),
		errors.Is(err, services.ErrAgentNotFound),
		errors.Is(err, services.ErrGroupNotFound):
		status = http.StatusNotFound
		resp = ErrorResponse{Error: "not_found", Message: err.Error()}
	}

	entry := logger.WithError(err).WithFields(logrus.Fields{"op": op, "status": status})
	if status == http.StatusInternalServerError {
		entry.Error("Request failed")
		_ = c.Error(err)
	} else {
		entry.Debug("Request rejected")
	}

	c.JSON(status, resp)
}
