package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/tourdesk/excursion-backend/internal/config"
)

// SweepLocker serialises a scheduled sweep across replicas
type SweepLocker interface {
	TryAcquire(ctx context.Context, name string) (release func(), ok bool, err error)
}

// CronService schedules the lifecycle sweeps
type CronService struct {
	cron    *cron.Cron
	sweeps  *SweepService
	lock    SweepLocker
	logger  *logrus.Logger
	clock   Clock
	timeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	last    map[string]*SweepResult
}

// NewCronService creates a new CronService. lock may be nil on a single
// replica.
func NewCronService(sweeps *SweepService, lock SweepLocker, logger *logrus.Logger, clock Clock) *CronService {
	// Create cron with seconds precision
	c := cron.New(cron.WithSeconds())

	return &CronService{
		cron:    c,
		sweeps:  sweeps,
		lock:    lock,
		logger:  logger,
		clock:   clock,
		timeout: config.SweepJobTimeout,
		entries: make(map[string]cron.EntryID),
		last:    make(map[string]*SweepResult),
	}
}

// Start schedules every sweep and starts the scheduler
func (s *CronService) Start(cfg config.SchedulerConfig) error {
	s.logger.Info("Starting cron service...")

	// Cron format: second minute hour day month weekday
	specs := map[string]string{
		SweepExpireWindows:   cfg.ExpireWindowsSpec,
		SweepExpireDays:      cfg.ExpireDaysSpec,
		SweepExpireBookings:  cfg.ExpireBookingsSpec,
		SweepExpireReferrals: cfg.ExpireReferralsSpec,
		SweepReconcile:       cfg.ReconcileSpec,
	}

	for _, name := range SweepNames() {
		spec := specs[name]
		if spec == "" {
			s.logger.WithField("sweep", name).Warn("No schedule configured, sweep disabled")
			continue
		}

		name := name
		id, err := s.cron.AddFunc(spec, func() { s.runJob(name) })
		if err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", name, err)
		}

		s.mu.Lock()
		s.entries[name] = id
		s.mu.Unlock()

		s.logger.WithFields(logrus.Fields{"sweep": name, "spec": spec}).Info("Scheduled sweep")
	}

	s.cron.Start()
	s.logger.Info("Cron service started successfully")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunNow runs one sweep immediately, bypassing the replica lock
func (s *CronService) RunNow(ctx context.Context, name string) (*SweepResult, error) {
	s.logger.WithField("sweep", name).Info("[MANUAL] Running sweep now")
	res, err := s.sweeps.Run(ctx, name, s.clock())
	if err != nil {
		return nil, err
	}
	s.remember(name, res)
	return res, nil
}

func (s *CronService) runJob(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	log := s.logger.WithField("sweep", name)

	if s.lock != nil {
		release, ok, err := s.lock.TryAcquire(ctx, name)
		if err != nil {
			log.WithError(err).Error("[CRON] Failed to take sweep lock")
			return
		}
		if !ok {
			log.Debug("[CRON] Sweep already running on another replica")
			return
		}
		defer release()
	}

	res, err := s.sweeps.Run(ctx, name, s.clock())
	if err != nil {
		log.WithError(err).Error("[CRON] Sweep failed")
		return
	}
	s.remember(name, res)
}

func (s *CronService) remember(name string, res *SweepResult) {
	s.mu.Lock()
	s.last[name] = res
	s.mu.Unlock()
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]map[string]interface{}, 0, len(s.entries))
	for _, name := range SweepNames() {
		id, ok := s.entries[name]
		if !ok {
			continue
		}
		entry := s.cron.Entry(id)
		job := map[string]interface{}{
			"sweep":    name,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		}
		if res, ok := s.last[name]; ok {
			job["last_result"] = res
		}
		jobs = append(jobs, job)
	}

	return map[string]interface{}{
		"running":   len(s.entries) > 0,
		"job_count": len(s.entries),
		"jobs":      jobs,
	}
}
