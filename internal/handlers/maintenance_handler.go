package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/services"
)

// MaintenanceHandler exposes the lifecycle sweeps and scheduler state
type MaintenanceHandler struct {
	sweeps *services.SweepService
	cron   *services.CronService
	clock  services.Clock
	logger *logrus.Logger
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(sweeps *services.SweepService, cron *services.CronService, clock services.Clock, logger *logrus.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeps: sweeps,
		cron:   cron,
		clock:  clock,
		logger: logger,
	}
}

// RunSweep handles POST /api/v1/admin/sweeps/:name. The name "all" runs
// every sweep in order.
func (h *MaintenanceHandler) RunSweep(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	if name == "all" {
		results, err := h.sweeps.RunAll(ctx, h.clock())
		resp := gin.H{"results": results}
		if err != nil {
			h.logger.WithError(err).Warn("Manual sweep run finished with errors")
			resp["error"] = err.Error()
		}
		c.JSON(http.StatusOK, resp)
		return
	}

	res, err := h.cron.RunNow(ctx, name)
	if err != nil {
		if errors.Is(err, services.ErrUnknownSweep) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: err.Error(),
				Details: gin.H{"available": services.SweepNames()},
			})
			return
		}
		respondError(c, h.logger, "run_sweep", err)
		return
	}

	c.JSON(http.StatusOK, res)
}

// GetCronStatus handles GET /api/v1/admin/cron
func (h *MaintenanceHandler) GetCronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.cron.GetJobStatus())
}
