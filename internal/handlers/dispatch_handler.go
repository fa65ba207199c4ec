package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/services"
)

// DispatchHandler handles transport dispatch group requests
type DispatchHandler struct {
	dispatch *services.DispatchService
	logger   *logrus.Logger
}

// NewDispatchHandler creates a new DispatchHandler
func NewDispatchHandler(dispatch *services.DispatchService, logger *logrus.Logger) *DispatchHandler {
	return &DispatchHandler{
		dispatch: dispatch,
		logger:   logger,
	}
}

// CreateGroup handles POST /api/v1/dispatch-groups
func (h *DispatchHandler) CreateGroup(c *gin.Context) {
	var req models.CreateDispatchGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	g, err := h.dispatch.CreateGroup(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "create_dispatch_group", err)
		return
	}

	c.JSON(http.StatusCreated, g)
}

// GetGroup handles GET /api/v1/dispatch-groups/:id
func (h *DispatchHandler) GetGroup(c *gin.Context) {
	g, err := h.dispatch.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get_dispatch_group", err)
		return
	}

	c.JSON(http.StatusOK, g)
}

// AddBooking handles POST /api/v1/dispatch-groups/:id/bookings
func (h *DispatchHandler) AddBooking(c *gin.Context) {
	var req models.AddGroupBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	g, err := h.dispatch.AddBooking(c.Request.Context(), c.Param("id"), req.BookingID)
	if err != nil {
		respondError(c, h.logger, "add_group_booking", err)
		return
	}

	c.JSON(http.StatusOK, g)
}

// DispatchGroup handles POST /api/v1/dispatch-groups/:id/dispatch
func (h *DispatchHandler) DispatchGroup(c *gin.Context) {
	g, closed, err := h.dispatch.DispatchGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "dispatch_group", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"group":       g,
		"days_closed": closed,
	})
}

// DeleteGroup handles DELETE /api/v1/dispatch-groups/:id. Deleting a sent
// group withdraws the dispatch and reopens its days.
func (h *DispatchHandler) DeleteGroup(c *gin.Context) {
	reopened, err := h.dispatch.UndispatchGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "delete_dispatch_group", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deleted":       true,
		"days_reopened": reopened,
	})
}
