package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/excursion-backend/internal/models"
)

func codeRequest(code string) *models.CreateReferralCodeRequest {
	return &models.CreateReferralCodeRequest{
		Code:            code,
		AgentID:         "agent-1",
		DiscountPercent: decimal.NewFromInt(10),
		ExpiresAt:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateReferralCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.SeedAgent(models.Agent{ID: "agent-1", Name: "Coastal Tours"})

	generated, err := env.referrals.CreateReferralCode(ctx, codeRequest(""))
	require.NoError(t, err)
	assert.Len(t, generated.Code, 8)
	assert.Equal(t, models.ReferralStatusActive, generated.Status)

	_, err = env.referrals.CreateReferralCode(ctx, codeRequest("PROMO1"))
	require.NoError(t, err)

	_, err = env.referrals.CreateReferralCode(ctx, codeRequest("promo1"))
	var cerr *ConflictError
	assert.ErrorAs(t, err, &cerr)

	bad := codeRequest("")
	bad.DiscountPercent = decimal.NewFromInt(120)
	_, err = env.referrals.CreateReferralCode(ctx, bad)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	missing := codeRequest("")
	missing.AgentID = "agent-404"
	_, err = env.referrals.CreateReferralCode(ctx, missing)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestAgentStatusCascadesToCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.SeedAgent(models.Agent{ID: "agent-1", Name: "Coastal Tours"})

	rc, err := env.referrals.CreateReferralCode(ctx, codeRequest("COAST1"))
	require.NoError(t, err)

	agent, changed, err := env.referrals.SetAgentStatus(ctx, "agent-1", models.AgentStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, models.AgentStatusInactive, agent.Status)
	assert.Equal(t, 1, changed)

	got, err := env.store.GetReferralCode(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusInactive, got.Status)

	_, err = env.referrals.ReactivateReferralCode(ctx, rc.ID)
	var cerr *ConflictError
	assert.ErrorAs(t, err, &cerr)

	_, err = env.referrals.CreateReferralCode(ctx, codeRequest("COAST2"))
	assert.ErrorAs(t, err, &cerr)

	// repeating the status is a no-op
	_, changed, err = env.referrals.SetAgentStatus(ctx, "agent-1", models.AgentStatusInactive)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	_, changed, err = env.referrals.SetAgentStatus(ctx, "agent-1", models.AgentStatusActive)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	got, err = env.store.GetReferralCode(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusActive, got.Status)
}

func TestReactivateExpiredReferralCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.SeedAgent(models.Agent{ID: "agent-1", Name: "Coastal Tours"})

	rc, err := env.referrals.CreateReferralCode(ctx, codeRequest("SHORT1"))
	require.NoError(t, err)

	env.clock.Set(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	_, err = env.referrals.ReactivateReferralCode(ctx, rc.ID)
	var ierr *InvalidOrExpiredCodeError
	require.ErrorAs(t, err, &ierr)

	got, err := env.store.GetReferralCode(ctx, rc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReferralStatusInactive, got.Status)
}

func TestSetAgentStatusValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.referrals.SetAgentStatus(ctx, "agent-1", models.AgentStatus("paused"))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, _, err = env.referrals.SetAgentStatus(ctx, "agent-404", models.AgentStatusInactive)
	assert.ErrorIs(t, err, ErrAgentNotFound)
}
