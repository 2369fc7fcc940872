/*
scheduler.go - The daily batch jobs

PURPOSE:
  Two independent jobs, each run once per calendar day:
    1. ExpireGrants:         ACTIVE buckets past their validity window
                             transition to EXPIRED. Idempotent.
    2. IssueRecurringGrants: every schedule tracker is evaluated; a grant
                             is minted only when the recomputed expected
                             date equals today, otherwise the cursor is
                             refreshed and the row skipped.

FAILURE ISOLATION:
  Each row runs in its own transaction. A row's failure is logged with its
  identifying keys and counted; it never aborts sibling rows and is not
  retried the same day - operators follow up manually.

SINGLE RUNNER:
  At most one scheduler instance may be active at a time; overlapping runs
  could double-issue a recurring grant before the tracker advance commits.
  The api layer enforces this in-process; deployments enforce it across
  instances.
*/
package engine

import (
	"context"
	"log"
)

// RunReport summarizes one invocation of a daily job.
type RunReport struct {
	Expired   int
	Issued    int
	Refreshed int
	Failed    int
}

// Scheduler runs the two daily batch jobs.
type Scheduler struct {
	Store      Store
	Clock      Clock
	Registry   *TypeRegistry
	Strategies *StrategyFactory
}

func NewScheduler(store Store, clock Clock, registry *TypeRegistry) *Scheduler {
	return &Scheduler{
		Store:      store,
		Clock:      clock,
		Registry:   registry,
		Strategies: NewStrategyFactory(),
	}
}

// ExpireGrants transitions every ACTIVE grant with expiryDate < today to
// EXPIRED. Balances are untouched; remaining time simply becomes unusable.
// Re-running on the same day finds nothing left to expire.
func (sc *Scheduler) ExpireGrants(ctx context.Context) RunReport {
	var report RunReport
	today := sc.Clock.Today()

	grants, err := sc.Store.ListExpirable(ctx, today)
	if err != nil {
		log.Printf("[Scheduler] expire: listing grants failed: %v", err)
		report.Failed++
		return report
	}

	for _, g := range grants {
		g.Expire()
		if err := sc.Store.UpdateGrant(ctx, g); err != nil {
			log.Printf("[Scheduler] expire: grant=%s employee=%s: %v", g.ID, g.EmployeeID, err)
			report.Failed++
			continue
		}
		report.Expired++
	}
	return report
}

// IssueRecurringGrants evaluates every schedule tracker. The expected grant
// date is recomputed from the last issuance (yesterday before the first);
// only an exact match with today issues a grant. A mismatch refreshes the
// tracker's cursor without issuing, which heals a stale tracker after a
// policy edit - whether its cursor points into the past or the future.
func (sc *Scheduler) IssueRecurringGrants(ctx context.Context) RunReport {
	var report RunReport
	today := sc.Clock.Today()

	trackers, err := sc.Store.ListTrackers(ctx)
	if err != nil {
		log.Printf("[Scheduler] grant: listing trackers failed: %v", err)
		report.Failed++
		return report
	}

	for _, t := range trackers {
		if err := sc.processTracker(ctx, t, today, &report); err != nil {
			log.Printf("[Scheduler] grant: tracker=%s employee=%s policy=%s: %v",
				t.ID, t.EmployeeID, t.PolicyID, err)
			report.Failed++
		}
	}
	return report
}

func (sc *Scheduler) processTracker(ctx context.Context, t *ScheduleTracker, today Date, report *RunReport) error {
	p, err := sc.Store.GetPolicy(ctx, t.PolicyID)
	if err != nil {
		return err
	}
	if !p.IsRepeat() || p.Deleted {
		return nil
	}

	// The expected date anchors on the last issuance so an interval > 1
	// keeps its cadence; before the first issuance yesterday anchors it.
	// Issuing sets LastGrantedAt to today, which makes a same-day re-run
	// recompute a future date and fall through to the no-op branch.
	anchor := today.AddDays(-1)
	if t.LastGrantedAt != nil {
		anchor = *t.LastGrantedAt
	}
	expected := NextGrantDate(p, anchor)
	if !expected.Equal(today) {
		next := NextGrantDate(p, today)
		if !next.Equal(t.NextGrantDate) {
			t.NextGrantDate = next
			t.UpdatedAt = sc.Clock.Now()
			if err := sc.Store.UpdateTracker(ctx, t); err != nil {
				return err
			}
			report.Refreshed++
		}
		return nil
	}

	// Today is a grant day: mint the bucket and advance the cursor in one
	// transaction so a partial failure leaves the tracker untouched.
	strategy, _ := sc.Strategies.For(MethodRepeatGrant)
	err = sc.Store.WithTx(ctx, func(tx Store) error {
		_, err := strategy.RegisterGrant(ctx, tx, sc.Registry, GrantConfig{
			Policy:      p,
			EmployeeID:  t.EmployeeID,
			Type:        p.VacationType,
			Amount:      *p.GrantTime,
			GrantDate:   today,
			Description: p.Name,
			Actor:       SystemActor(),
			Now:         sc.Clock.Now(),
		})
		if err != nil {
			return err
		}
		granted := today
		t.LastGrantedAt = &granted
		t.NextGrantDate = NextGrantDate(p, today)
		t.UpdatedAt = sc.Clock.Now()
		return tx.UpdateTracker(ctx, t)
	})
	if err != nil {
		return err
	}
	report.Issued++
	return nil
}

// RunDaily executes both jobs in order and returns the merged report.
func (sc *Scheduler) RunDaily(ctx context.Context) RunReport {
	expire := sc.ExpireGrants(ctx)
	grant := sc.IssueRecurringGrants(ctx)
	return RunReport{
		Expired:   expire.Expired,
		Issued:    grant.Issued,
		Refreshed: grant.Refreshed,
		Failed:    expire.Failed + grant.Failed,
	}
}
