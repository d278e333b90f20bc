package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

// Executor runs one test cycle. *dispatch.Dispatcher satisfies it.
type Executor interface {
	Execute(ctx context.Context, testID int64, override domain.Parameters) (*domain.ExecutionReport, error)
}

// TestLister is the slice of the catalog the runner reads on each sync.
type TestLister interface {
	ListTests(ctx context.Context) ([]domain.SyntheticTest, error)
}

type entry struct {
	id       cron.EntryID
	interval int
}

// Runner executes each synthetic test every IntervalSeconds. Sync keeps the
// cron entries in line with the catalog.
type Runner struct {
	Logger   *zap.Logger
	Tests    TestLister
	Executor Executor

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[int64]entry
	ctx     context.Context
}

func NewRunner(logger *zap.Logger, tests TestLister, exec Executor) *Runner {
	return &Runner{
		Logger:   logger,
		Tests:    tests,
		Executor: exec,
		cron:     cron.New(),
		entries:  make(map[int64]entry),
		ctx:      context.Background(),
	}
}

// Run syncs every resync interval until ctx is done. A zero resync only
// performs the initial sync.
func (r *Runner) Run(ctx context.Context, resync time.Duration) {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	if err := r.Sync(ctx); err != nil {
		r.Logger.Warn("runner_sync_error", zap.Error(err))
	}
	r.cron.Start()
	r.Logger.Info("runner_started", zap.Int("tests", r.Len()))
	defer func() {
		<-r.cron.Stop().Done()
		r.Logger.Info("runner_stopped")
	}()

	if resync <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(resync)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := r.Sync(ctx); err != nil {
				r.Logger.Warn("runner_sync_error", zap.Error(err))
			}
		}
	}
}

// Sync adds entries for new tests, reschedules tests whose interval changed
// and removes tests that are gone.
func (r *Runner) Sync(ctx context.Context) error {
	tests, err := r.Tests.ListTests(ctx)
	if err != nil {
		return fmt.Errorf("list tests: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active := make(map[int64]bool, len(tests))
	for _, t := range tests {
		interval := t.IntervalSeconds
		if interval < domain.MinIntervalSeconds {
			interval = domain.MinIntervalSeconds
		}
		active[t.ID] = true
		if e, ok := r.entries[t.ID]; ok {
			if e.interval == interval {
				continue
			}
			r.cron.Remove(e.id)
			delete(r.entries, t.ID)
		}

		testID := t.ID
		id, err := r.cron.AddFunc(fmt.Sprintf("@every %ds", interval), func() { r.fire(testID) })
		if err != nil {
			r.Logger.Warn("runner_schedule_error", zap.Int64("test_id", testID), zap.Error(err))
			continue
		}
		r.entries[testID] = entry{id: id, interval: interval}
		r.Logger.Debug("runner_scheduled", zap.Int64("test_id", testID), zap.Int("interval_s", interval))
	}

	for testID, e := range r.entries {
		if !active[testID] {
			r.cron.Remove(e.id)
			delete(r.entries, testID)
		}
	}
	return nil
}

// Len reports the number of scheduled tests.
func (r *Runner) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Runner) fire(testID int64) {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()

	rep, err := r.Executor.Execute(ctx, testID, nil)
	if err != nil {
		r.Logger.Warn("runner_execute_error", zap.Int64("test_id", testID), zap.Error(err))
		return
	}
	r.Logger.Debug("runner_executed",
		zap.Int64("test_id", testID),
		zap.String("cycle_id", rep.CycleID),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
	)
}
