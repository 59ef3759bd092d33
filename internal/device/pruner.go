package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// pruneTimeout bounds one retention pass.
const pruneTimeout = 5 * time.Minute

// HistoryPruneFunc deletes history older than the given age.
// This is satisfied by (*SQLiteStateHistoryRepository).PruneHistory.
type HistoryPruneFunc func(ctx context.Context, olderThan time.Duration) (int64, error)

// HistoryPruner deletes old state history on a cron schedule.
type HistoryPruner struct {
	prune     HistoryPruneFunc
	retention time.Duration
	schedule  cron.Schedule
	expr      string
	cron      *cron.Cron
	logger    Logger

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewHistoryPruner creates a pruner that keeps retention worth of history.
// schedule is a standard five-field cron expression or a descriptor such
// as "@daily".
func NewHistoryPruner(prune HistoryPruneFunc, retention time.Duration, schedule string) (*HistoryPruner, error) {
	if prune == nil {
		return nil, fmt.Errorf("prune function is required")
	}
	if retention <= 0 {
		return nil, fmt.Errorf("retention must be positive")
	}
	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, schedule, err)
	}
	return &HistoryPruner{
		prune:     prune,
		retention: retention,
		schedule:  parsed,
		expr:      schedule,
		cron:      cron.New(),
		logger:    noopLogger{},
	}, nil
}

// SetLogger sets the logger for the pruner.
func (p *HistoryPruner) SetLogger(logger Logger) {
	p.logger = logger
}

// Start schedules the retention pass. Calling Start twice is a no-op.
func (p *HistoryPruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron.Schedule(p.schedule, cron.FuncJob(func() {
		p.mu.Lock()
		runCtx := p.ctx
		p.mu.Unlock()
		if runCtx == nil {
			return
		}
		p.RunOnce(runCtx) //nolint:errcheck // logged inside
	}))
	p.cron.Start()
	p.started = true
	p.logger.Info("history pruner started", "schedule", p.expr, "retention", p.retention)
}

// Stop halts the schedule and waits for a running pass to finish.
func (p *HistoryPruner) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.ctx = nil
	p.started = false
	p.mu.Unlock()

	<-p.cron.Stop().Done()
}

// RunOnce deletes expired history now and returns the number of rows removed.
func (p *HistoryPruner) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	start := time.Now()
	deleted, err := p.prune(ctx, p.retention)
	if err != nil {
		p.logger.Warn("history prune failed", "error", err)
		return 0, err
	}
	p.logger.Info("history pruned", "deleted", deleted, "duration", time.Since(start))
	return deleted, nil
}
