package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/juju/zaputil/zapctx"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/aegisid/aegisid/pkg/model"
)

// Scheduler triggers review runs from the policy's cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	engine *Engine

	mu    sync.Mutex
	entry cron.EntryID
	spec  string
}

// NewScheduler creates a scheduler driving the given engine. Call Reload
// with the policy's schedule before Start.
func NewScheduler(engine *Engine) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		engine: engine,
	}
}

// Start begins firing scheduled runs.
func (s *Scheduler) Start() {
	s.cron.Start()
	zapctx.Info(context.Background(), "review scheduler started")
}

// Stop stops firing scheduled runs. Runs already triggered keep
// executing.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	zapctx.Info(context.Background(), "review scheduler stopped")
}

// Reload swaps the cron entry for the given schedule, which is how policy
// reloads take effect. An empty schedule removes the entry and disables
// scheduled runs.
func (s *Scheduler) Reload(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
		s.spec = ""
	}
	if schedule == "" {
		return nil
	}

	entry, err := s.cron.AddFunc(schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	s.entry = entry
	s.spec = schedule
	zapctx.Info(context.Background(), "review runs scheduled", zap.String("schedule", schedule))
	return nil
}

// Schedule returns the active cron spec, or an empty string when
// scheduled runs are disabled.
func (s *Scheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spec
}

func (s *Scheduler) runScheduled() {
	ctx := context.Background()
	run, err := s.engine.TriggerRun(ctx, TriggerOptions{Trigger: model.TriggerScheduled})
	if err != nil {
		zapctx.Warn(ctx, "scheduled review run did not start", zap.Error(err))
		return
	}
	zapctx.Info(ctx, "scheduled review run started", zap.String("run_id", run.ID))
}
