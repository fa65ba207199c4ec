package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/services"
)

// ReferralHandler handles referral code and agent requests
type ReferralHandler struct {
	referrals *services.ReferralService
	logger    *logrus.Logger
}

// NewReferralHandler creates a new ReferralHandler
func NewReferralHandler(referrals *services.ReferralService, logger *logrus.Logger) *ReferralHandler {
	return &ReferralHandler{
		referrals: referrals,
		logger:    logger,
	}
}

// CreateReferralCode handles POST /api/v1/referral-codes
func (h *ReferralHandler) CreateReferralCode(c *gin.Context) {
	var req models.CreateReferralCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rc, err := h.referrals.CreateReferralCode(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, "create_referral_code", err)
		return
	}

	c.JSON(http.StatusCreated, rc)
}

// ReactivateReferralCode handles POST /api/v1/referral-codes/:id/reactivate
func (h *ReferralHandler) ReactivateReferralCode(c *gin.Context) {
	rc, err := h.referrals.ReactivateReferralCode(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "reactivate_referral_code", err)
		return
	}

	c.JSON(http.StatusOK, rc)
}

// SetAgentStatus handles PATCH /api/v1/agents/:id/status
func (h *ReferralHandler) SetAgentStatus(c *gin.Context) {
	var req models.SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	agent, changed, err := h.referrals.SetAgentStatus(c.Request.Context(), c.Param("id"), models.AgentStatus(req.Status))
	if err != nil {
		respondError(c, h.logger, "set_agent_status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"agent":         agent,
		"codes_changed": changed,
	})
}
