package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/lingoledger/internal/entity"
)

// Sweeper runs one reconciliation pass.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Config controls the sweep schedule and its retry policy.
type Config struct {
	Interval     time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Scheduler runs the sweep periodically. A run that is still going when the
// next tick fires is not started twice.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   Sweeper
	retrier   retry.Retry[int]
	interval  time.Duration
	logger    logrus.FieldLogger
	clock     func() time.Time
	cancel    context.CancelFunc
}

// New creates a new scheduler instance
func New(sweeper Sweeper, cfg Config, logger logrus.FieldLogger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sweeper:   sweeper,
		retrier: retry.New[int](retry.Config{
			MaxAttempts:   cfg.MaxAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return errors.Is(err, entity.ErrStoreUnavailable)
			},
		}),
		interval: cfg.Interval,
		logger:   logger,
		clock:    time.Now,
	}
}

// Start schedules the sweep and returns immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.WithError(err).Error("scheduled sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.scheduler.StartAsync()
	s.logger.WithField("interval", s.interval.String()).Info("sweep scheduler started")
	return nil
}

// RunOnce sweeps with the retry policy applied. Each attempt reads the clock
// again.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	swept, err := s.retrier.Do(ctx, func(ctx context.Context) (int, error) {
		return s.sweeper.Sweep(ctx, s.clock().UTC())
	})
	if err != nil {
		return swept, err
	}
	s.logger.WithFields(logrus.Fields{
		"swept":    swept,
		"duration": time.Since(start).String(),
	}).Debug("sweep finished")
	return swept, nil
}

// Stop terminates the schedule and cancels a running sweep.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.scheduler.Stop()
}
