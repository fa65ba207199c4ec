package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/services"
)

// WindowHandler handles availability window requests
type WindowHandler struct {
	availability *services.AvailabilityService
	bookings     *services.BookingService
	logger       *logrus.Logger
}

// NewWindowHandler creates a new WindowHandler
func NewWindowHandler(availability *services.AvailabilityService, bookings *services.BookingService, logger *logrus.Logger) *WindowHandler {
	return &WindowHandler{
		availability: availability,
		bookings:     bookings,
		logger:       logger,
	}
}

// ValidateWindowRequest wraps a proposed window. WindowID is set when an
// existing window is being edited so it is not compared with itself.
type ValidateWindowRequest struct {
	WindowID string `json:"window_id"`
	models.SaveWindowRequest
}

// ValidateWindow handles POST /api/v1/windows/validate
func (h *WindowHandler) ValidateWindow(c *gin.Context) {
	var req ValidateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.availability.ValidateWindow(c.Request.Context(), &req.SaveWindowRequest, req.WindowID); err != nil {
		respondError(c, h.logger, "validate_window", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// CreateWindow handles POST /api/v1/windows
func (h *WindowHandler) CreateWindow(c *gin.Context) {
	var req models.SaveWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	w, err := h.availability.SaveWindow(c.Request.Context(), "", &req)
	if err != nil {
		respondError(c, h.logger, "create_window", err)
		return
	}

	c.JSON(http.StatusCreated, w)
}

// UpdateWindow handles PUT /api/v1/windows/:id
func (h *WindowHandler) UpdateWindow(c *gin.Context) {
	var req models.SaveWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	w, err := h.availability.SaveWindow(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.logger, "update_window", err)
		return
	}

	c.JSON(http.StatusOK, w)
}

// SetWindowStatus handles PATCH /api/v1/windows/:id/status
func (h *WindowHandler) SetWindowStatus(c *gin.Context) {
	var req models.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	w, err := h.availability.SetWindowStatus(c.Request.Context(), c.Param("id"), models.WindowStatus(req.Status))
	if err != nil {
		respondError(c, h.logger, "set_window_status", err)
		return
	}

	c.JSON(http.StatusOK, w)
}

// DeleteWindow handles DELETE /api/v1/windows/:id
func (h *WindowHandler) DeleteWindow(c *gin.Context) {
	if err := h.availability.DeleteWindow(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "delete_window", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetWindow handles GET /api/v1/windows/:id
func (h *WindowHandler) GetWindow(c *gin.Context) {
	w, err := h.availability.GetWindow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get_window", err)
		return
	}

	c.JSON(http.StatusOK, w)
}

// ListDays handles GET /api/v1/windows/:id/days
func (h *WindowHandler) ListDays(c *gin.Context) {
	days, err := h.availability.ListDays(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "list_days", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window_id": c.Param("id"),
		"days":      days,
		"count":     len(days),
	})
}

// QuoteWindow handles GET /api/v1/windows/:id/quote?adults=&children=&infants=
func (h *WindowHandler) QuoteWindow(c *gin.Context) {
	counts := make(map[string]int, 3)
	for _, key := range []string{"adults", "children", "infants"} {
		raw := c.DefaultQuery(key, "0")
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "Invalid "+key+" count: "+raw)
			return
		}
		counts[key] = n
	}

	base, err := h.bookings.QuoteBasePrice(c.Request.Context(), c.Param("id"), counts["adults"], counts["children"], counts["infants"])
	if err != nil {
		respondError(c, h.logger, "quote_window", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"window_id":  c.Param("id"),
		"adults":     counts["adults"],
		"children":   counts["children"],
		"infants":    counts["infants"],
		"base_price": base,
	})
}
