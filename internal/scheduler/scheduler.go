package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/config"
)

// Drainer re-drives pending side-effect tasks.
type Drainer interface {
	Drain(ctx context.Context, limit int) (int, error)
}

// Scheduler manages scheduled tasks.
type Scheduler struct {
	cron    *cron.Cron
	drainer Drainer
	cfg     config.OutboxConfig
	timeout time.Duration
	logger  *zap.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(cfg config.OutboxConfig, drainer Drainer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}

	// SkipIfStillRunning keeps a slow drain from overlapping the next tick.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &Scheduler{
		cron:    c,
		drainer: drainer,
		cfg:     cfg,
		timeout: 2 * time.Minute,
		logger:  logger,
	}
}

// Start registers the outbox drain and starts the scheduler.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.cfg.CronSchedule))

	if _, err := s.cron.AddFunc(s.cfg.CronSchedule, s.drainOutbox); err != nil {
		return fmt.Errorf("schedule outbox drain: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running drain to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) drainOutbox() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.drainer.Drain(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("outbox drain failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("outbox drained", zap.Int("tasks", n))
	}
}
