package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/vacation-engine/engine"
	"github.com/warp/vacation-engine/engine/store"
)

// =============================================================================
// SETUP
// =============================================================================

// newTestScheduler shares the store and clock with a service so tests can
// arrange state through the normal operations.
func newTestScheduler(dir *fakeDirectory) (*engine.Scheduler, *engine.Service, *store.Memory) {
	mem := store.NewMemory()
	clock := engine.FixedClock{Day: engine.NewDate(2025, time.June, 10)}
	registry := engine.NewTypeRegistry(engine.DefaultTypes()...)
	svc := engine.NewService(mem, dir, clock, registry)
	return engine.NewScheduler(mem, clock, registry), svc, mem
}

// assignTo creates the REPEAT_GRANT policy and assigns it to emp-1.
func assignTo(t *testing.T, svc *engine.Service, p *engine.Policy) engine.PolicyID {
	t.Helper()
	ctx := context.Background()

	p.ID = ""
	id, err := svc.CreatePolicy(ctx, p, admin())
	require.NoError(t, err)
	require.NoError(t, svc.AssignPolicy(ctx, id, "emp-1", admin()))
	return id
}

// assignRepeat creates a yearly REPEAT_GRANT policy anchored on first and
// assigns it to emp-1, returning the policy id.
func assignRepeat(t *testing.T, svc *engine.Service, first engine.Date) engine.PolicyID {
	p := repeatPolicy(engine.RepeatYearly, 1, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = first
	return assignTo(t, svc, p)
}

// issueOn runs the grant job against the shared store as of a given day.
func issueOn(mem *store.Memory, d engine.Date) engine.RunReport {
	registry := engine.NewTypeRegistry(engine.DefaultTypes()...)
	sched := engine.NewScheduler(mem, engine.FixedClock{Day: d}, registry)
	return sched.IssueRecurringGrants(context.Background())
}

func soleTracker(t *testing.T, mem *store.Memory) *engine.ScheduleTracker {
	t.Helper()
	trackers, err := mem.ListTrackers(context.Background())
	require.NoError(t, err)
	require.Len(t, trackers, 1)
	return trackers[0]
}

// =============================================================================
// EXPIRY JOB
// =============================================================================

func TestExpireGrants_Idempotent(t *testing.T) {
	// GIVEN: One bucket whose expiry is in the past and one still valid
	// WHEN: The expiry job runs twice
	// THEN: The stale bucket expires once with its balance untouched;
	//       the second run finds nothing

	dir := newFakeDirectory("emp-1")
	sched, svc, mem := newTestScheduler(dir)
	ctx := context.Background()

	staleID, err := svc.ManualGrant(ctx, "emp-1", "annual", dec("3"),
		day(2025, time.January, 1), day(2025, time.March, 31), "carried over", "", admin())
	require.NoError(t, err)
	_, err = svc.ManualGrant(ctx, "emp-1", "annual", dec("5"),
		engine.Date{}, engine.Date{}, "current year", "", admin())
	require.NoError(t, err)

	report := sched.ExpireGrants(ctx)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, report.Failed)

	g, err := mem.GetGrant(ctx, staleID)
	require.NoError(t, err)
	assert.Equal(t, engine.GrantExpired, g.Status)
	assert.True(t, g.RemainTime.Equal(dec("3")), "expiry must not touch the balance")

	report = sched.ExpireGrants(ctx)
	assert.Equal(t, 0, report.Expired)
}

// =============================================================================
// RECURRING-GRANT JOB
// =============================================================================

func TestIssueRecurringGrants_OnGrantDay(t *testing.T) {
	// GIVEN: A tracker whose cursor is due today, the policy's anchor day
	// WHEN: The grant job runs
	// THEN: One bucket is minted with the policy's grant time and the
	//       cursor advances one recurrence step

	dir := newFakeDirectory("emp-1")
	sched, svc, mem := newTestScheduler(dir)
	ctx := context.Background()

	assignRepeat(t, svc, day(2025, time.June, 10))

	report := sched.IssueRecurringGrants(ctx)
	assert.Equal(t, 1, report.Issued)
	assert.Equal(t, 0, report.Failed)

	grants, err := mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].GrantTime.Equal(dec("10")))
	assert.True(t, grants[0].OccurDate.Equal(day(2025, time.June, 10)))

	tr := soleTracker(t, mem)
	require.NotNil(t, tr.LastGrantedAt)
	assert.True(t, tr.LastGrantedAt.Equal(day(2025, time.June, 10)))
	assert.True(t, tr.NextGrantDate.Equal(day(2026, time.June, 10)))
}

func TestIssueRecurringGrants_SameDayRerun_NoDoubleIssue(t *testing.T) {
	dir := newFakeDirectory("emp-1")
	sched, svc, mem := newTestScheduler(dir)
	ctx := context.Background()

	assignRepeat(t, svc, day(2025, time.June, 10))

	first := sched.IssueRecurringGrants(ctx)
	second := sched.IssueRecurringGrants(ctx)
	assert.Equal(t, 1, first.Issued)
	assert.Equal(t, 0, second.Issued)

	grants, err := mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestIssueRecurringGrants_DailyIntervalTwo_KeepsCadence(t *testing.T) {
	// GIVEN: An every-other-day recurrence anchored on its first grant day
	// WHEN: The grant job runs on five consecutive days
	// THEN: Days 1, 3 and 5 issue; the days in between do not

	dir := newFakeDirectory("emp-1")
	_, svc, mem := newTestScheduler(dir)

	p := repeatPolicy(engine.RepeatDaily, 2, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = day(2025, time.June, 10)
	assignTo(t, svc, p)

	issued := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		issued = append(issued, issueOn(mem, day(2025, time.June, 10+i)).Issued)
	}
	assert.Equal(t, []int{1, 0, 1, 0, 1}, issued)

	grants, err := mem.ListGrants(context.Background(), "emp-1", "annual")
	require.NoError(t, err)
	assert.Len(t, grants, 3)
}

func TestIssueRecurringGrants_YearlyIntervalTwo_SkipsInterveningYears(t *testing.T) {
	dir := newFakeDirectory("emp-1")
	_, svc, mem := newTestScheduler(dir)

	p := repeatPolicy(engine.RepeatYearly, 2, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = day(2026, time.January, 1)
	assignTo(t, svc, p)

	assert.Equal(t, 1, issueOn(mem, day(2026, time.January, 1)).Issued)
	assert.Equal(t, 0, issueOn(mem, day(2027, time.January, 1)).Issued)
	assert.Equal(t, 1, issueOn(mem, day(2028, time.January, 1)).Issued)

	grants, err := mem.ListGrants(context.Background(), "emp-1", "annual")
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}

func TestIssueRecurringGrants_QuarterlyIntervalTwo_NotRephasedByOffDays(t *testing.T) {
	// GIVEN: A half-year cadence (QUARTERLY, interval 2) anchored on Jul 1
	// WHEN: The job also runs on the first of intervening months
	// THEN: Only Jul 1 and Jan 1 issue; the off-phase runs neither issue
	//       nor shift the cadence

	dir := newFakeDirectory("emp-1")
	_, svc, mem := newTestScheduler(dir)

	p := repeatPolicy(engine.RepeatQuarterly, 2, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = day(2025, time.July, 1)
	assignTo(t, svc, p)

	assert.Equal(t, 1, issueOn(mem, day(2025, time.July, 1)).Issued)
	assert.Equal(t, 0, issueOn(mem, day(2025, time.August, 1)).Issued)
	assert.Equal(t, 0, issueOn(mem, day(2025, time.October, 1)).Issued)
	assert.Equal(t, 1, issueOn(mem, day(2026, time.January, 1)).Issued)

	grants, err := mem.ListGrants(context.Background(), "emp-1", "annual")
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}

func TestIssueRecurringGrants_FutureStaleCursor_Refreshed(t *testing.T) {
	// GIVEN: A tracker whose cursor points past the real next occurrence
	//        (left behind by a policy edit)
	// WHEN: The grant job runs before either date
	// THEN: The cursor is pulled back to the recomputed date and the real
	//       occurrence still issues

	dir := newFakeDirectory("emp-1")
	_, svc, mem := newTestScheduler(dir)
	ctx := context.Background()

	assignRepeat(t, svc, day(2025, time.September, 1))

	tr := soleTracker(t, mem)
	tr.NextGrantDate = day(2025, time.December, 1)
	require.NoError(t, mem.UpdateTracker(ctx, tr))

	report := issueOn(mem, day(2025, time.June, 11))
	assert.Equal(t, 0, report.Issued)
	assert.Equal(t, 1, report.Refreshed)

	tr = soleTracker(t, mem)
	assert.True(t, tr.NextGrantDate.Equal(day(2025, time.September, 1)))

	assert.Equal(t, 1, issueOn(mem, day(2025, time.September, 1)).Issued)
}

func TestIssueRecurringGrants_StaleTracker_RefreshedWithoutIssuing(t *testing.T) {
	// GIVEN: A tracker whose cursor points at a day that is not on the
	//        policy's recurrence (e.g. after a policy edit)
	// WHEN: The grant job runs on that day
	// THEN: The cursor is refreshed to the recomputed next date; no grant

	dir := newFakeDirectory("emp-1")
	sched, svc, mem := newTestScheduler(dir)
	ctx := context.Background()

	assignRepeat(t, svc, day(2025, time.March, 1))

	tr := soleTracker(t, mem)
	tr.NextGrantDate = day(2025, time.June, 1)
	require.NoError(t, mem.UpdateTracker(ctx, tr))

	report := sched.IssueRecurringGrants(ctx)
	assert.Equal(t, 0, report.Issued)
	assert.Equal(t, 1, report.Refreshed)

	grants, err := mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.Empty(t, grants)

	tr = soleTracker(t, mem)
	assert.True(t, tr.NextGrantDate.Equal(day(2026, time.March, 1)))
}

func TestIssueRecurringGrants_NotDueYet_Skipped(t *testing.T) {
	dir := newFakeDirectory("emp-1")
	sched, svc, mem := newTestScheduler(dir)
	ctx := context.Background()

	// Anchor in the past: assignment already advanced the cursor to 2026.
	assignRepeat(t, svc, day(2025, time.March, 1))

	report := sched.IssueRecurringGrants(ctx)
	assert.Equal(t, 0, report.Issued)
	assert.Equal(t, 0, report.Refreshed)

	grants, err := mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestIssueRecurringGrants_RetiredPolicy_Skipped(t *testing.T) {
	dir := newFakeDirectory("emp-1")
	sched, svc, mem := newTestScheduler(dir)
	ctx := context.Background()

	policyID := assignRepeat(t, svc, day(2025, time.June, 10))
	require.NoError(t, svc.RetirePolicy(ctx, policyID, admin()))

	report := sched.IssueRecurringGrants(ctx)
	assert.Equal(t, 0, report.Issued)

	grants, err := mem.ListGrants(ctx, "emp-1", "annual")
	require.NoError(t, err)
	assert.Empty(t, grants)
}

// =============================================================================
// COMBINED RUN
// =============================================================================

func TestRunDaily_MergesReports(t *testing.T) {
	dir := newFakeDirectory("emp-1")
	sched, svc, _ := newTestScheduler(dir)
	ctx := context.Background()

	_, err := svc.ManualGrant(ctx, "emp-1", "sick", dec("2"),
		day(2025, time.January, 1), day(2025, time.May, 31), "expired bucket", "", admin())
	require.NoError(t, err)
	assignRepeat(t, svc, day(2025, time.June, 10))

	report := sched.RunDaily(ctx)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Issued)
	assert.Equal(t, 0, report.Failed)
}
