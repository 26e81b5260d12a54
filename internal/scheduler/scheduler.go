package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/camuig/pnl-ledger/internal/config"
	"github.com/camuig/pnl-ledger/internal/ledger"
	"github.com/camuig/pnl-ledger/internal/logger"
	"github.com/camuig/pnl-ledger/internal/pipeline"
)

// Syncer runs one sync over a window.
type Syncer interface {
	Run(ctx context.Context, w pipeline.Window) (pipeline.Result, error)
}

type ErrorNotifier interface {
	NotifyError(context string, err error)
}

// Scheduler triggers a sync of the last lookback days on a cron schedule.
type Scheduler struct {
	syncer   Syncer
	notifier ErrorNotifier
	logger   *logger.Logger
	schedule string
	lookback int
	loc      *time.Location
	now      func() time.Time
	afterRun []func(pipeline.Result)
}

func NewScheduler(syncer Syncer, notifier ErrorNotifier, cfg *config.Config, log *logger.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		notifier: notifier,
		logger:   log,
		schedule: cfg.Sync.Schedule,
		lookback: cfg.Sync.LookbackDays,
		loc:      cfg.KSTLocation(),
		now:      time.Now,
	}
}

// AfterRun registers fn to be called with the result of every scheduled run.
func (s *Scheduler) AfterRun(fn func(pipeline.Result)) {
	s.afterRun = append(s.afterRun, fn)
}

// Run blocks until ctx is done, syncing at every schedule tick.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(cron.NewParser(config.CronFields)), cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.schedule, func() { s.runCycle(ctx) }); err != nil {
		return fmt.Errorf("add schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.logger.Info("scheduler started", "schedule", s.schedule, "lookback_days", s.lookback)

	<-ctx.Done()

	// wait for a running sync to finish
	<-c.Stop().Done()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in scheduler cycle", "panic", fmt.Sprint(r))
			if s.notifier != nil {
				s.notifier.NotifyError("scheduler panic", fmt.Errorf("%v", r))
			}
		}
	}()

	if ctx.Err() != nil {
		return
	}

	w := pipeline.LookbackWindow(ledger.DateOf(s.now().In(s.loc)), s.lookback)
	s.logger.Info("scheduled sync", "window", w.String())

	res, err := s.syncer.Run(pipeline.WithTrigger(ctx, "schedule"), w)
	if err != nil {
		// already logged and notified by the orchestrator
		s.logger.Debug("scheduled sync ended with error", "error", err)
	}
	for _, fn := range s.afterRun {
		fn(res)
	}
}
