package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(year int, month time.Month, d int) engine.Date {
	return engine.NewDate(year, month, d)
}

func repeatPolicy(unit engine.RepeatUnit, interval int, timing engine.GrantTiming) *engine.Policy {
	grant := decimal.RequireFromString("10")
	return &engine.Policy{
		ID:           "pol-repeat",
		Name:         "repeat policy",
		VacationType: "annual",
		GrantMethod:  engine.MethodRepeatGrant,
		GrantTime:    &grant,
		Recurrence: engine.Recurrence{
			RepeatUnit:     unit,
			RepeatInterval: interval,
			GrantTiming:    timing,
		},
	}
}

// =============================================================================
// NEXT-DATE: YEARLY
// =============================================================================

func TestNextGrantDate_Yearly_FixedDate(t *testing.T) {
	// GIVEN: Yearly recurrence anchored on Jan 1
	// WHEN: Computing the next date from the day before and from the day itself
	// THEN: Strictly-after semantics: Dec 31 -> Jan 1, Jan 1 -> next Jan 1

	p := repeatPolicy(engine.RepeatYearly, 1, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = day(2025, time.January, 1)

	if got := engine.NextGrantDate(p, day(2024, time.December, 31)); !got.Equal(day(2025, time.January, 1)) {
		t.Errorf("from Dec 31: expected 2025-01-01, got %s", got)
	}
	if got := engine.NextGrantDate(p, day(2025, time.January, 1)); !got.Equal(day(2026, time.January, 1)) {
		t.Errorf("from Jan 1: expected 2026-01-01, got %s", got)
	}
}

func TestNextGrantDate_Yearly_ConsecutiveYears(t *testing.T) {
	// The scheduler's issuance check: NextGrantDate(policy, today-1) == today
	// must hold on the grant day of two consecutive years.

	p := repeatPolicy(engine.RepeatYearly, 1, engine.TimingSpecificMonth)
	p.Recurrence.SpecificMonths = []time.Month{time.April}
	p.Recurrence.SpecificDays = []int{15}

	for _, today := range []engine.Date{day(2025, time.April, 15), day(2026, time.April, 15)} {
		expected := engine.NextGrantDate(p, today.AddDays(-1))
		if !expected.Equal(today) {
			t.Errorf("expected issuance on %s, got %s", today, expected)
		}
	}
}

func TestNextGrantDate_Yearly_LeapDayClamped(t *testing.T) {
	// GIVEN: Yearly recurrence anchored on Feb 29
	// WHEN: The next year is not a leap year
	// THEN: The date clamps to Feb 28 instead of drifting into March

	p := repeatPolicy(engine.RepeatYearly, 1, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = day(2024, time.February, 29)

	if got := engine.NextGrantDate(p, day(2024, time.March, 1)); !got.Equal(day(2025, time.February, 28)) {
		t.Errorf("expected 2025-02-28, got %s", got)
	}
}

// =============================================================================
// NEXT-DATE: MONTHLY
// =============================================================================

func TestNextGrantDate_Monthly_DayClampWithoutDrift(t *testing.T) {
	// GIVEN: Monthly recurrence on day 31
	// WHEN: Walking through February
	// THEN: Feb clamps to its last day, March returns to the 31st

	p := repeatPolicy(engine.RepeatMonthly, 1, engine.TimingSpecificDay)
	p.Recurrence.SpecificDays = []int{31}

	got := engine.NextGrantDate(p, day(2025, time.January, 15))
	if !got.Equal(day(2025, time.January, 31)) {
		t.Fatalf("expected 2025-01-31, got %s", got)
	}
	got = engine.NextGrantDate(p, got)
	if !got.Equal(day(2025, time.February, 28)) {
		t.Fatalf("expected 2025-02-28, got %s", got)
	}
	got = engine.NextGrantDate(p, got)
	if !got.Equal(day(2025, time.March, 31)) {
		t.Fatalf("expected 2025-03-31 (no drift), got %s", got)
	}
}

func TestNextGrantDate_Monthly_Interval(t *testing.T) {
	p := repeatPolicy(engine.RepeatMonthly, 2, engine.TimingSpecificDay)
	p.Recurrence.SpecificDays = []int{1}

	got := engine.NextGrantDate(p, day(2025, time.January, 1))
	if !got.Equal(day(2025, time.March, 1)) {
		t.Errorf("expected 2025-03-01, got %s", got)
	}
}

// =============================================================================
// NEXT-DATE: PERIOD ENDS
// =============================================================================

func TestNextGrantDate_QuarterEnd_LandsOnQuarterEnds(t *testing.T) {
	// GIVEN: Quarterly recurrence with QUARTER_END timing
	// WHEN: Computing from mid-quarter and from just before a quarter end
	// THEN: Every result is an actual quarter-end day

	p := repeatPolicy(engine.RepeatQuarterly, 1, engine.TimingQuarterEnd)

	if got := engine.NextGrantDate(p, day(2025, time.March, 30)); !got.Equal(day(2025, time.March, 31)) {
		t.Errorf("from Mar 30: expected 2025-03-31, got %s", got)
	}
	if got := engine.NextGrantDate(p, day(2025, time.March, 31)); !got.Equal(day(2025, time.June, 30)) {
		t.Errorf("from Mar 31: expected 2025-06-30, got %s", got)
	}
}

func TestNextGrantDate_YearEnd(t *testing.T) {
	p := repeatPolicy(engine.RepeatYearly, 1, engine.TimingYearEnd)

	if got := engine.NextGrantDate(p, day(2025, time.December, 30)); !got.Equal(day(2025, time.December, 31)) {
		t.Errorf("from Dec 30: expected 2025-12-31, got %s", got)
	}
	if got := engine.NextGrantDate(p, day(2025, time.December, 31)); !got.Equal(day(2026, time.December, 31)) {
		t.Errorf("from Dec 31: expected 2026-12-31, got %s", got)
	}
}

func TestNextGrantDate_Daily(t *testing.T) {
	p := repeatPolicy(engine.RepeatDaily, 14, engine.GrantTiming(""))

	got := engine.NextGrantDate(p, day(2025, time.June, 1))
	if !got.Equal(day(2025, time.June, 15)) {
		t.Errorf("expected 2025-06-15, got %s", got)
	}
}

func TestNextGrantDate_AlwaysStrictlyAfter(t *testing.T) {
	// Property: for every supported unit the result is strictly after from.
	policies := []*engine.Policy{
		repeatPolicy(engine.RepeatYearly, 1, engine.TimingYearEnd),
		repeatPolicy(engine.RepeatMonthly, 1, engine.TimingSpecificDay),
		repeatPolicy(engine.RepeatQuarterly, 1, engine.TimingQuarterEnd),
		repeatPolicy(engine.RepeatHalf, 1, engine.TimingHalfEnd),
		repeatPolicy(engine.RepeatDaily, 1, engine.GrantTiming("")),
	}
	policies[1].Recurrence.SpecificDays = []int{15}

	from := day(2025, time.January, 1)
	for i := 0; i < 400; i++ {
		for _, p := range policies {
			next := engine.NextGrantDate(p, from)
			if !next.After(from) {
				t.Fatalf("%s: next %s not strictly after %s", p.Recurrence.RepeatUnit, next, from)
			}
		}
		from = from.AddDays(1)
	}
}

// =============================================================================
// INITIAL CURSOR
// =============================================================================

func TestInitialGrantDate_FutureFirstGrantHonored(t *testing.T) {
	p := repeatPolicy(engine.RepeatYearly, 1, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = day(2026, time.July, 1)

	got := engine.InitialGrantDate(p, day(2025, time.June, 1))
	if !got.Equal(day(2026, time.July, 1)) {
		t.Errorf("expected 2026-07-01, got %s", got)
	}
}

func TestInitialGrantDate_PastFirstGrantAdvances(t *testing.T) {
	p := repeatPolicy(engine.RepeatYearly, 1, engine.TimingFixedDate)
	p.Recurrence.FirstGrantDate = day(2020, time.July, 1)

	got := engine.InitialGrantDate(p, day(2025, time.June, 1))
	if !got.Equal(day(2025, time.July, 1)) {
		t.Errorf("expected 2025-07-01, got %s", got)
	}
}
