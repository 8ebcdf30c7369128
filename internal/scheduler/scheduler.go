// Package scheduler runs the pipeline for every user on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds the schedules and limits for multi-user runs
type Config struct {
	ProcessSpec string
	RetrySpec   string
	Concurrency int
	MaxRetries  int
}

// UserRun is the outcome of one user's share of a scheduled pass
type UserRun struct {
	UserID  string                 `json:"user_id"`
	Result  *core.ProcessingResult `json:"result,omitempty"`
	Sync    *core.SyncResult       `json:"sync,omitempty"`
	Skipped bool                   `json:"skipped,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Scheduler drives processing and retry passes across all users
type Scheduler struct {
	users        core.UserDirectory
	events       core.EventStore
	settings     core.DeliverySettings
	orchestrator *core.Orchestrator
	delivery     *core.DeliveryEngine
	logger       *zap.Logger
	cfg          Config
	now          func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New creates a scheduler
func New(
	users core.UserDirectory,
	events core.EventStore,
	settings core.DeliverySettings,
	orchestrator *core.Orchestrator,
	delivery *core.DeliveryEngine,
	logger *zap.Logger,
	cfg Config,
) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = core.DefaultMaxRetries
	}
	return &Scheduler{
		users:        users,
		events:       events,
		settings:     settings,
		orchestrator: orchestrator,
		delivery:     delivery,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// Start registers the cron jobs and starts the cron runner
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	cronLogger := &cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if s.cfg.ProcessSpec != "" {
		if _, err := c.AddFunc(s.cfg.ProcessSpec, func() { s.RunProcessAll(ctx) }); err != nil {
			return fmt.Errorf("invalid process schedule %q: %w", s.cfg.ProcessSpec, err)
		}
	}
	if s.cfg.RetrySpec != "" {
		if _, err := c.AddFunc(s.cfg.RetrySpec, func() { s.RunSyncAll(ctx) }); err != nil {
			return fmt.Errorf("invalid retry schedule %q: %w", s.cfg.RetrySpec, err)
		}
	}

	c.Start()
	s.cron = c

	s.logger.Info("Scheduler started",
		zap.String("process", s.cfg.ProcessSpec),
		zap.String("retry", s.cfg.RetrySpec),
		zap.Int("concurrency", s.cfg.Concurrency))
	return nil
}

// Stop stops the cron runner and waits for running jobs to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunProcessAll runs the full pipeline for every user
func (s *Scheduler) RunProcessAll(ctx context.Context) ([]UserRun, error) {
	return s.forEachUser(ctx, "process", func(ctx context.Context, user *core.User) UserRun {
		run := UserRun{UserID: user.ID}
		result, err := s.orchestrator.ProcessEmails(ctx, user.ID, user.AuthContext(), core.ProcessOptions{})
		run.Result = result
		if err != nil {
			run.Error = err.Error()
		}
		return run
	})
}

// RunSyncAll runs a delivery pass for users with delivery enabled and at least one
// event whose advisory backoff has elapsed
func (s *Scheduler) RunSyncAll(ctx context.Context) ([]UserRun, error) {
	backoff := s.delivery.Backoff()
	return s.forEachUser(ctx, "sync", func(ctx context.Context, user *core.User) UserRun {
		run := UserRun{UserID: user.ID}

		enabled, err := s.settings.IsCalendarDeliveryEnabled(ctx, user.ID)
		if err != nil {
			run.Error = err.Error()
			return run
		}
		if !enabled {
			run.Skipped = true
			return run
		}

		due, err := s.hasDueEvents(ctx, user.ID, backoff)
		if err != nil {
			run.Error = err.Error()
			return run
		}
		if !due {
			run.Skipped = true
			return run
		}

		result, err := s.delivery.SyncPendingEventsForUser(ctx, user.ID, user.AuthContext(), s.cfg.MaxRetries)
		run.Sync = result
		if err != nil {
			run.Error = err.Error()
		}
		return run
	})
}

func (s *Scheduler) hasDueEvents(ctx context.Context, userID string, backoff core.Backoff) (bool, error) {
	events, err := s.events.ListDeliverableEvents(ctx, userID, s.cfg.MaxRetries)
	if err != nil {
		return false, fmt.Errorf("failed to list deliverable events: %w", err)
	}
	now := s.now()
	for _, event := range events {
		if backoff.IsDue(event, now) {
			return true, nil
		}
	}
	return false, nil
}

// forEachUser fans out over the user directory with bounded parallelism. A failure
// for one user never stops the others.
func (s *Scheduler) forEachUser(ctx context.Context, pass string, fn func(context.Context, *core.User) UserRun) ([]UserRun, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		s.logger.Error("Failed to list users", zap.String("pass", pass), zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	runs := make([]UserRun, len(users))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, user := range users {
		g.Go(func() error {
			if ctx.Err() != nil {
				runs[i] = UserRun{UserID: user.ID, Error: ctx.Err().Error()}
				return nil
			}
			runs[i] = fn(ctx, user)
			return nil
		})
	}
	g.Wait()

	failed, skipped := 0, 0
	for _, run := range runs {
		if run.Error != "" {
			failed++
			s.logger.Warn("User pass failed",
				zap.String("pass", pass),
				zap.String("user_id", run.UserID),
				zap.String("error", run.Error))
		}
		if run.Skipped {
			skipped++
		}
	}
	s.logger.Info("Scheduled pass finished",
		zap.String("pass", pass),
		zap.Int("users", len(users)),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped))

	return runs, nil
}

// cronLogger adapts zap to the cron.Logger interface
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
