package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tourdesk/excursion-backend/internal/models"
)

const referralColumns = `id, code, agent_id, discount_percent, expires_at, status, created_at, updated_at`

// CreateReferralCode inserts a referral code. Codes are unique.
func (q *sqlQueries) CreateReferralCode(ctx context.Context, c *models.ReferralCode) error {
	row := q.ext.QueryRowxContext(ctx, `
		INSERT INTO referral_codes (id, code, agent_id, discount_percent, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		c.ID, c.Code, c.AgentID, c.DiscountPercent, c.ExpiresAt, c.Status)
	if err := row.Scan(&c.CreatedAt, &c.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("referral code %s: %w", c.Code, ErrDuplicate)
		}
		return fmt.Errorf("failed to create referral code: %w", err)
	}
	return nil
}

// GetReferralCode retrieves a referral code by ID
func (q *sqlQueries) GetReferralCode(ctx context.Context, id string) (*models.ReferralCode, error) {
	var c models.ReferralCode
	query := `SELECT ` + referralColumns + ` FROM referral_codes WHERE id = $1`
	if err := sqlx.GetContext(ctx, q.ext, &c, query, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetReferralCodeByCode retrieves a referral code by its code
func (q *sqlQueries) GetReferralCodeByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var c models.ReferralCode
	query := `SELECT ` + referralColumns + ` FROM referral_codes WHERE code = $1`
	if err := sqlx.GetContext(ctx, q.ext, &c, query, code); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetReferralCodeForUpdate locks a referral code row
func (q *sqlQueries) GetReferralCodeForUpdate(ctx context.Context, id string) (*models.ReferralCode, error) {
	var c models.ReferralCode
	query := `SELECT ` + referralColumns + ` FROM referral_codes WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, q.ext, &c, query, id); err != nil {
		return nil, err
	}
	return &c, nil
}

// SetReferralCodeStatus updates a referral code's status
func (q *sqlQueries) SetReferralCodeStatus(ctx context.Context, id string, status models.ReferralStatus) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE referral_codes SET status = $2, updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update referral code status: %w", err)
	}
	return nil
}

// ExpireReferralCodes deactivates active codes whose expiry has passed
func (q *sqlQueries) ExpireReferralCodes(ctx context.Context, now time.Time) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE referral_codes SET status = 'inactive', updated_at = NOW()
		WHERE status = 'active' AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire referral codes: %w", err)
	}
	return rowsAffected(res), nil
}

// DeactivateAgentCodes deactivates every active code of an agent
func (q *sqlQueries) DeactivateAgentCodes(ctx context.Context, agentID string) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE referral_codes SET status = 'inactive', updated_at = NOW()
		WHERE agent_id = $1 AND status = 'active'`, agentID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate agent codes: %w", err)
	}
	return rowsAffected(res), nil
}

// ReactivateAgentCodes reactivates an agent's codes that have not expired
func (q *sqlQueries) ReactivateAgentCodes(ctx context.Context, agentID string, now time.Time) (int, error) {
	res, err := q.ext.ExecContext(ctx, `
		UPDATE referral_codes SET status = 'active', updated_at = NOW()
		WHERE agent_id = $1 AND status = 'inactive' AND expires_at > $2`, agentID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to reactivate agent codes: %w", err)
	}
	return rowsAffected(res), nil
}

// GetAgent retrieves an agent by ID
func (q *sqlQueries) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := sqlx.GetContext(ctx, q.ext, &a, `
		SELECT id, name, email, status, created_at, updated_at
		FROM agents WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAgentForUpdate locks an agent row
func (q *sqlQueries) GetAgentForUpdate(ctx context.Context, id string) (*models.Agent, error) {
	var a models.Agent
	err := sqlx.GetContext(ctx, q.ext, &a, `
		SELECT id, name, email, status, created_at, updated_at
		FROM agents WHERE id = $1
		FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAgentStatus updates an agent's status
func (q *sqlQueries) SetAgentStatus(ctx context.Context, id string, status models.AgentStatus) error {
	_, err := q.ext.ExecContext(ctx, `
		UPDATE agents SET status = $2, updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}
	return nil
}
