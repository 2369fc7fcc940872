/*
schedule.go - Grant schedule trackers and recurrence arithmetic

PURPOSE:
  One ScheduleTracker exists per (employee, REPEAT_GRANT policy) pair. It
  records when the employee was last granted and when the next grant is
  due. The daily grant job consults trackers; NextGrantDate is the single
  source of recurrence arithmetic, used both to schedule and to verify on
  the day of issuance.

VERIFICATION ON ISSUANCE DAY:
  The grant job recomputes NextGrantDate(policy, lastGrantedAt) - or
  (policy, today-1) before the first issuance - and issues only when the
  result equals today. A stale tracker (e.g. after a policy edit)
  therefore refreshes its cursor instead of issuing on the wrong day.
  The equality check assumes recurrence steps are at least one day apart,
  which holds for every supported repeat unit.

INTERVAL PHASE:
  The candidate walk starts at the recurrence anchor (firstGrantDate),
  not at from. Starting at from would re-phase any repeatInterval > 1
  onto from's own year/month/day and the expected date would never land
  on the real cadence.

SEE ALSO:
  - policy.go: recurrence configuration
  - scheduler.go: the daily grant job
*/
package engine

import "time"

// =============================================================================
// SCHEDULE TRACKER
// =============================================================================

// ScheduleTracker is the per-employee-per-policy recurrence cursor.
// Created when a REPEAT_GRANT policy is assigned; advanced only by the
// daily scheduler. Never created for non-repeating policies.
type ScheduleTracker struct {
	ID            TrackerID
	EmployeeID    EmployeeID
	PolicyID      PolicyID
	LastGrantedAt *Date
	NextGrantDate Date

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// NEXT-DATE ALGORITHM
// =============================================================================

// NextGrantDate computes the first grant date strictly after from for the
// policy's recurrence. Callers must only pass REPEAT_GRANT policies.
func NextGrantDate(p *Policy, from Date) Date {
	r := p.Recurrence
	switch r.RepeatUnit {
	case RepeatDaily:
		return snapToPeriodEnd(r.GrantTiming, nextDaily(r, from))
	case RepeatYearly:
		return nextYearly(r, from)
	default: // MONTHLY, QUARTERLY, HALF
		return nextMonthly(r, from)
	}
}

// nextDaily steps in whole intervals from the anchor. Without an anchor
// the phase is undefined and the step simply counts from from.
func nextDaily(r Recurrence, from Date) Date {
	first := r.FirstGrantDate
	if first.IsZero() {
		return from.AddDays(r.RepeatInterval)
	}
	if first.After(from) {
		return first
	}
	steps := DaysBetween(first, from)/r.RepeatInterval + 1
	return first.AddDays(steps * r.RepeatInterval)
}

func nextYearly(r Recurrence, from Date) Date {
	month, day := yearlyAnchor(r)
	year := from.Year()
	if !r.FirstGrantDate.IsZero() {
		year = r.FirstGrantDate.Year()
	}
	// Candidates are snapped before the strictly-after comparison; a
	// period-end timing must be able to land on the period end itself.
	cand := snapToPeriodEnd(r.GrantTiming, WithDayClamped(year, month, day))
	for !cand.After(from) {
		year += r.RepeatInterval
		cand = snapToPeriodEnd(r.GrantTiming, WithDayClamped(year, month, day))
	}
	return cand
}

// yearlyAnchor resolves the fixed month/day a yearly recurrence pivots on.
func yearlyAnchor(r Recurrence) (time.Month, int) {
	month := time.January
	day := 1
	if !r.FirstGrantDate.IsZero() {
		month = r.FirstGrantDate.Month()
		day = r.FirstGrantDate.Day()
	}
	if r.GrantTiming == TimingSpecificMonth && len(r.SpecificMonths) > 0 {
		month = r.SpecificMonths[0]
	}
	if len(r.SpecificDays) > 0 {
		day = r.SpecificDays[0]
	}
	return month, day
}

func nextMonthly(r Recurrence, from Date) Date {
	step := monthsPerStep[r.RepeatUnit] * r.RepeatInterval
	day := monthlyAnchorDay(r, from)

	// Walk (year, month) pairs so clamping never accumulates drift the way
	// repeated AddDate on a clamped day would (Jan 31 + 1 month = Mar 3).
	// Candidates are snapped before the strictly-after comparison.
	year, month := from.Year(), from.Month()
	if !r.FirstGrantDate.IsZero() {
		year, month = r.FirstGrantDate.Year(), r.FirstGrantDate.Month()
	}
	cand := snapToPeriodEnd(r.GrantTiming, WithDayClamped(year, month, day))
	for !cand.After(from) {
		m := int(month) + step
		year += (m - 1) / 12
		month = time.Month((m-1)%12 + 1)
		cand = snapToPeriodEnd(r.GrantTiming, WithDayClamped(year, month, day))
	}
	return cand
}

func monthlyAnchorDay(r Recurrence, from Date) int {
	if r.GrantTiming == TimingSpecificDay && len(r.SpecificDays) > 0 {
		return r.SpecificDays[0]
	}
	if !r.FirstGrantDate.IsZero() {
		return r.FirstGrantDate.Day()
	}
	return from.Day()
}

// snapToPeriodEnd overrides a computed date with the last calendar day of
// its period when the timing names a period end.
func snapToPeriodEnd(t GrantTiming, d Date) Date {
	switch t {
	case TimingQuarterEnd:
		return d.EndOfQuarter()
	case TimingHalfEnd:
		return d.EndOfHalf()
	case TimingYearEnd:
		return d.EndOfYear()
	default:
		return d
	}
}

// InitialGrantDate computes the tracker cursor at assignment time: the
// configured first grant date when it is still today or ahead, otherwise
// the first occurrence strictly after today.
func InitialGrantDate(p *Policy, today Date) Date {
	if first := p.Recurrence.FirstGrantDate; !first.IsZero() && first.AfterOrEqual(today) {
		return snapToPeriodEnd(p.Recurrence.GrantTiming, first)
	}
	return NextGrantDate(p, today)
}
