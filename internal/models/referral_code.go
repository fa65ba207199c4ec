package models

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ReferralStatus represents whether a referral code can be redeemed
type ReferralStatus string

const (
	ReferralStatusActive   ReferralStatus = "active"
	ReferralStatusInactive ReferralStatus = "inactive"
)

// AgentStatus represents whether a sales agent is enabled
type AgentStatus string

const (
	AgentStatusActive   AgentStatus = "active"
	AgentStatusInactive AgentStatus = "inactive"
)

// Agent is a sales agent owning referral codes
type Agent struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Email     *string     `json:"email,omitempty" db:"email"`
	Status    AgentStatus `json:"status" db:"status"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// ReferralCode is a time-limited percentage discount owned by an agent
type ReferralCode struct {
	ID              string          `json:"id" db:"id"`
	Code            string          `json:"code" db:"code"`
	AgentID         string          `json:"agent_id" db:"agent_id"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	ExpiresAt       time.Time       `json:"expires_at" db:"expires_at"`
	Status          ReferralStatus  `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// CreateReferralCodeRequest represents the request to issue a referral code
type CreateReferralCodeRequest struct {
	Code            string          `json:"code,omitempty"`
	AgentID         string          `json:"agent_id" binding:"required"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	ExpiresAt       time.Time       `json:"expires_at" binding:"required"`
}

// SetStatusRequest is the payload of every status toggle endpoint
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// NormalizeReferralCode canonicalises user input for lookup
func NormalizeReferralCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate validates the create referral code request
func (r *CreateReferralCodeRequest) Validate(now time.Time) error {
	if !r.DiscountPercent.IsPositive() || r.DiscountPercent.GreaterThan(decimal.NewFromInt(100)) {
		return errors.New("discount_percent must be greater than 0 and at most 100")
	}
	if !r.ExpiresAt.After(now) {
		return errors.New("expires_at must be in the future")
	}
	if r.Code != "" && len(NormalizeReferralCode(r.Code)) < 4 {
		return errors.New("code must be at least 4 characters")
	}
	return nil
}

// IsExpired reports whether the code's expiry has passed at now
func (c *ReferralCode) IsExpired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// IsRedeemable reports whether the code can be applied at now
func (c *ReferralCode) IsRedeemable(now time.Time) bool {
	return c.Status == ReferralStatusActive && !c.IsExpired(now)
}
