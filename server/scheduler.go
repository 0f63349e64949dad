package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dxtr-labs/v1.0-sub000/store"
)

const (
	defaultSchedulerPollInterval = 30 * time.Second
)

var standardCronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow,
)

// parseCronExpressionUTC parses a standard 5-field cron expression.
// Expressions are interpreted in UTC only; timezone prefixes are rejected.
func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("cron expression is required")
	}

	upper := strings.ToUpper(clean)
	if strings.Contains(upper, "CRON_TZ=") || strings.Contains(upper, "TZ=") {
		return nil, fmt.Errorf("cron expression must be UTC-only (timezone prefixes are not allowed)")
	}

	schedule, err := standardCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return schedule, nil
}

func nextCronRunUTC(expr string, now time.Time) (time.Time, error) {
	schedule, err := parseCronExpressionUTC(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()), nil
}

// SchedulerConfig configures the background workflow re-run scheduler.
type SchedulerConfig struct {
	Store        store.WorkflowStore
	Runner       *RunService
	PollInterval time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// Scheduler periodically re-runs active saved workflows that carry a
// cron expression.
type Scheduler struct {
	store        store.WorkflowStore
	runner       *RunService
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu      sync.Mutex
	nextRun map[string]time.Time
	active  map[string]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a scheduler instance.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler store is nil")
	}
	if cfg.Runner == nil {
		return nil, errors.New("scheduler runner is nil")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultSchedulerPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		store:        cfg.Store,
		runner:       cfg.Runner,
		pollInterval: cfg.PollInterval,
		now:          cfg.Now,
		logger:       cfg.Logger,
		nextRun:      map[string]time.Time{},
		active:       map[string]struct{}{},
	}, nil
}

// Start starts background polling. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = s.RunOnce(loopCtx)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				_ = s.RunOnce(loopCtx)
			}
		}
	}()
}

// Stop stops background polling and waits for the loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce executes a single scheduler pass: load the scheduled workflow
// set, compute due times, and kick off due runs.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.now().UTC()
	scheduled, err := s.store.ListScheduled(ctx)
	if err != nil {
		s.logger.Error("listing scheduled workflows", "error", err)
		return err
	}

	seen := make(map[string]bool, len(scheduled))
	for _, rec := range scheduled {
		seen[rec.ID] = true
		s.processScheduled(ctx, rec, now)
	}

	// Forget workflows whose schedule was removed or disabled.
	s.mu.Lock()
	for id := range s.nextRun {
		if !seen[id] {
			delete(s.nextRun, id)
		}
	}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) processScheduled(ctx context.Context, rec store.WorkflowRecord, now time.Time) {
	next, err := s.dueTime(rec, now)
	if err != nil {
		s.logger.Error("invalid workflow schedule", "workflow_id", rec.ID, "cron", rec.CronExpr, "error", err)
		return
	}
	if now.Before(next) {
		return
	}

	if !s.markActive(rec.ID) {
		// Prior run still in flight: skip this tick, keep the due time.
		s.logger.Warn("skipping scheduled run, prior run still active", "workflow_id", rec.ID)
		return
	}

	after, err := nextCronRunUTC(rec.CronExpr, now)
	if err != nil {
		s.unmarkActive(rec.ID)
		return
	}
	s.setNextRun(rec.ID, after)

	go func() {
		defer s.unmarkActive(rec.ID)
		runID, err := s.runner.Run(context.WithoutCancel(ctx), rec)
		if err != nil {
			s.logger.Error("scheduled run failed", "workflow_id", rec.ID, "run_id", runID, "error", err)
			return
		}
		s.logger.Info("scheduled run completed", "workflow_id", rec.ID, "run_id", runID)
	}()
}

// dueTime returns the tracked next-run time for a workflow, computing it
// on first sight so a freshly scheduled workflow does not fire immediately.
func (s *Scheduler) dueTime(rec store.WorkflowRecord, now time.Time) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next, ok := s.nextRun[rec.ID]; ok {
		return next, nil
	}
	next, err := nextCronRunUTC(rec.CronExpr, now)
	if err != nil {
		return time.Time{}, err
	}
	s.nextRun[rec.ID] = next
	return next, nil
}

func (s *Scheduler) setNextRun(id string, next time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun[id] = next
}

func (s *Scheduler) markActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		return false
	}
	s.active[id] = struct{}{}
	return true
}

func (s *Scheduler) unmarkActive(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}
