/*
scheduler.go - Daily batch job runner

PURPOSE:
  Fires the two daily jobs (expire grants, issue recurring grants) once
  per calendar day via cron, records each run for audit and UI display,
  and exposes a manual trigger for admins.

DESIGN:
  - cron spec "0 5 0 * * *": 00:05 local, shortly past midnight so the
    calendar day has definitely rolled over
  - An in-process mutex serializes the cron firing against the manual
    trigger; there must never be two concurrent runs, or a recurring
    grant could be issued twice before the tracker advance commits
  - Deployments run a single instance of this process; cross-instance
    exclusion is an operational concern, not handled here

USAGE:
  jobs := NewDailyScheduler(store, engineScheduler)
  jobs.Start()
  // ... later
  jobs.Stop()

SEE ALSO:
  - engine/scheduler.go: the jobs themselves
  - handlers.go: TriggerScheduler / ListSchedulerRuns endpoints
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/warp/vacation-engine/engine"
	"github.com/warp/vacation-engine/store/sqlite"
)

// DailyScheduler owns the cron loop around engine.Scheduler.
type DailyScheduler struct {
	Store *sqlite.Store
	Jobs  *engine.Scheduler

	// Spec is the cron schedule (seconds-resolution spec).
	Spec string

	cron *cron.Cron
	mu   sync.Mutex
}

// NewDailyScheduler creates a scheduler firing shortly past midnight.
func NewDailyScheduler(store *sqlite.Store, jobs *engine.Scheduler) *DailyScheduler {
	return &DailyScheduler{
		Store: store,
		Jobs:  jobs,
		Spec:  "0 5 0 * * *",
	}
}

// Start begins the cron loop.
func (ds *DailyScheduler) Start() error {
	c := cron.New()
	err := c.AddFunc(ds.Spec, func() {
		ds.execute(context.Background(), "cron")
	})
	if err != nil {
		return fmt.Errorf("bad cron spec %q: %w", ds.Spec, err)
	}
	c.Start()
	ds.cron = c
	log.Printf("[Scheduler] Started with spec %q", ds.Spec)
	return nil
}

// Stop halts the cron loop. A run already in flight finishes.
func (ds *DailyScheduler) Stop() {
	if ds.cron != nil {
		ds.cron.Stop()
		log.Println("[Scheduler] Stopped")
	}
}

// RunNow triggers an immediate run (admin endpoint). Serialized against
// the cron firing by the same mutex.
func (ds *DailyScheduler) RunNow(ctx context.Context) engine.RunReport {
	return ds.execute(ctx, "manual")
}

func (ds *DailyScheduler) execute(ctx context.Context, trigger string) engine.RunReport {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	started := time.Now()
	today := ds.Jobs.Clock.Today()
	run := sqlite.SchedulerRun{
		ID:        fmt.Sprintf("run-%d", started.UnixNano()),
		RunDate:   today,
		Trigger:   trigger,
		StartedAt: started,
	}
	if err := ds.Store.SaveSchedulerRun(ctx, run); err != nil {
		log.Printf("[Scheduler] Failed to save run record: %v", err)
	}

	report := ds.Jobs.RunDaily(ctx)

	completed := time.Now()
	run.Report = report
	run.CompletedAt = &completed
	if err := ds.Store.SaveSchedulerRun(ctx, run); err != nil {
		log.Printf("[Scheduler] Failed to update run record: %v", err)
	}

	log.Printf("[Scheduler] %s run for %s: expired=%d issued=%d refreshed=%d failed=%d",
		trigger, today, report.Expired, report.Issued, report.Refreshed, report.Failed)
	return report
}
