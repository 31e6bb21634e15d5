package flowkernel

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
)

// ProgressMonitor polls a progress combiner on a cron schedule and reports
// each reading. Polling recomputes the tree from scratch, so the monitor is
// the only component that needs to call Update periodically.
type ProgressMonitor struct {
	combiner *ProgressCombiner
	logger   Logger
	report   func(ProgressReading)

	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	schedule string
	running  bool
}

// NewProgressMonitor creates a stopped monitor for combiner. report may be nil.
func NewProgressMonitor(combiner *ProgressCombiner, logger Logger, report func(ProgressReading)) *ProgressMonitor {
	return &ProgressMonitor{
		combiner: combiner,
		logger:   loggerOrNop(logger),
		report:   report,
		cron:     cron.New(),
	}
}

// Start schedules polling with the given cron spec and starts the scheduler.
func (pm *ProgressMonitor) Start(schedule string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if err := pm.scheduleLocked(schedule); err != nil {
		return err
	}
	if !pm.running {
		pm.cron.Start()
		pm.running = true
	}
	return nil
}

// Reschedule replaces the polling schedule. An empty schedule pauses polling.
func (pm *ProgressMonitor) Reschedule(schedule string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if schedule == pm.schedule {
		return nil
	}
	return pm.scheduleLocked(schedule)
}

func (pm *ProgressMonitor) scheduleLocked(schedule string) error {
	var entry cron.EntryID
	if schedule != "" {
		id, err := pm.cron.AddFunc(schedule, pm.Poll)
		if err != nil {
			return fmt.Errorf("invalid progress schedule %q: %w", schedule, err)
		}
		entry = id
	}
	if pm.entry != 0 {
		pm.cron.Remove(pm.entry)
	}
	pm.entry = entry
	pm.schedule = schedule
	pm.logger.Debug("Progress schedule set", "schedule", schedule)
	return nil
}

// Schedule returns the active cron spec.
func (pm *ProgressMonitor) Schedule() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.schedule
}

// Poll recomputes the reading once and reports it.
func (pm *ProgressMonitor) Poll() {
	reading := pm.combiner.Update()
	if pm.report != nil {
		pm.report(reading)
	}
}

// Stop stops the scheduler and waits for a running poll to finish or ctx to end.
func (pm *ProgressMonitor) Stop(ctx context.Context) error {
	pm.mu.Lock()
	if !pm.running {
		pm.mu.Unlock()
		return nil
	}
	pm.running = false
	stopped := pm.cron.Stop()
	pm.mu.Unlock()

	select {
	case <-stopped.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
