package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/database"
	"github.com/tourdesk/excursion-backend/internal/models"
	"github.com/tourdesk/excursion-backend/internal/utils"
)

const (
	generatedCodeLength = 8
	maxCodeAttempts     = 5
)

// ReferralService manages agents' referral codes
type ReferralService struct {
	store     database.Store
	lifecycle *LifecycleCoordinator
	logger    *logrus.Logger
	clock     Clock
}

// NewReferralService creates a new ReferralService
func NewReferralService(store database.Store, lifecycle *LifecycleCoordinator, logger *logrus.Logger, clock Clock) *ReferralService {
	return &ReferralService{store: store, lifecycle: lifecycle, logger: logger, clock: clock}
}

// CreateReferralCode issues a code for an active agent. Without an explicit
// code a random one is generated, retrying on collisions.
func (s *ReferralService) CreateReferralCode(ctx context.Context, req *models.CreateReferralCodeRequest) (*models.ReferralCode, error) {
	now := s.clock()
	if err := req.Validate(now); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}

	agent, err := s.store.GetAgent(ctx, req.AgentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("failed to load agent: %w", err)
	}
	if agent.Status != models.AgentStatusActive {
		return nil, &ConflictError{Message: "agent is inactive"}
	}

	explicit := models.NormalizeReferralCode(req.Code)
	attempts := 1
	if explicit == "" {
		attempts = maxCodeAttempts
	}

	for i := 0; i < attempts; i++ {
		code := explicit
		if code == "" {
			if code, err = utils.GenerateReferralCode(generatedCodeLength); err != nil {
				return nil, err
			}
		}

		rc := &models.ReferralCode{
			ID:              uuid.New().String(),
			Code:            code,
			AgentID:         agent.ID,
			DiscountPercent: req.DiscountPercent,
			ExpiresAt:       req.ExpiresAt,
			Status:          models.ReferralStatusActive,
		}

		err = s.store.CreateReferralCode(ctx, rc)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"code":     rc.Code,
				"agent_id": rc.AgentID,
			}).Info("Referral code created")
			return rc, nil
		}
		if !errors.Is(err, database.ErrDuplicate) {
			return nil, err
		}
	}

	if explicit != "" {
		return nil, &ConflictError{Message: fmt.Sprintf("referral code %s already exists", explicit)}
	}
	return nil, fmt.Errorf("failed to generate a unique referral code after %d attempts", maxCodeAttempts)
}

// ReactivateReferralCode turns an inactive code back on. Expired codes and
// codes of inactive agents stay off.
func (s *ReferralService) ReactivateReferralCode(ctx context.Context, id string) (*models.ReferralCode, error) {
	now := s.clock()

	var rc *models.ReferralCode
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		rc, err = q.GetReferralCodeForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrReferralCodeNotFound
			}
			return fmt.Errorf("failed to lock referral code: %w", err)
		}

		if rc.IsRedeemable(now) {
			return nil
		}
		if rc.IsExpired(now) {
			if rc.Status == models.ReferralStatusActive {
				if err := q.SetReferralCodeStatus(ctx, rc.ID, models.ReferralStatusInactive); err != nil {
					return err
				}
				rc.Status = models.ReferralStatusInactive
			}
			return nil
		}

		agent, err := q.GetAgent(ctx, rc.AgentID)
		if err != nil {
			return fmt.Errorf("failed to load agent: %w", err)
		}
		if agent.Status != models.AgentStatusActive {
			return &ConflictError{Message: "agent is inactive"}
		}

		if err := q.SetReferralCodeStatus(ctx, rc.ID, models.ReferralStatusActive); err != nil {
			return err
		}
		rc.Status = models.ReferralStatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	if rc.IsExpired(now) {
		return nil, &InvalidOrExpiredCodeError{Code: rc.Code, Reason: "expired"}
	}

	s.logger.WithField("code", rc.Code).Info("Referral code reactivated")
	return rc, nil
}

// SetAgentStatus enables or disables an agent and cascades to its codes
func (s *ReferralService) SetAgentStatus(ctx context.Context, agentID string, status models.AgentStatus) (*models.Agent, int, error) {
	if status != models.AgentStatusActive && status != models.AgentStatusInactive {
		return nil, 0, newValidationError("invalid agent status: %s", status)
	}
	now := s.clock()

	var (
		agent   *models.Agent
		changed int
	)
	err := s.store.InTx(ctx, func(q database.Queries) error {
		var err error
		agent, err = q.GetAgentForUpdate(ctx, agentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAgentNotFound
			}
			return fmt.Errorf("failed to lock agent: %w", err)
		}
		if agent.Status == status {
			return nil
		}

		if err := q.SetAgentStatus(ctx, agentID, status); err != nil {
			return err
		}
		agent.Status = status

		changed, err = s.lifecycle.AgentStatusChanged(ctx, q, agentID, status, now)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	return agent, changed, nil
}

