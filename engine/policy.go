/*
policy.go - Policy definitions and validation

PURPOSE:
  A Policy describes how one category of leave is granted and when the
  resulting buckets expire. Policies are configuration: an administrator
  creates them, the engine validates them, and once grants reference a
  policy its core fields are frozen.

GRANT METHODS:
  ON_REQUEST:   employee submits a request, approvers decide, the grant
                materializes on full approval
  MANUAL_GRANT: an administrator mints a grant directly
  REPEAT_GRANT: the daily scheduler mints grants on a recurrence schedule

RECURRENCE:
  REPEAT_GRANT policies carry a fully-specified recurrence: a repeat unit
  (yearly/monthly/daily/half/quarterly), an interval, a grant timing that
  anchors the date (fixed date, specific month/day, or a period end), and
  the first grant date. Non-repeating policies must leave all of it empty.

VALIDITY WINDOWS:
  EffectiveType computes the bucket's start date from the grant date;
  ExpirationType computes the expiry date from the start date.

SEE ALSO:
  - strategy.go: per-grant-method construction strategies
  - schedule.go: next-date recurrence arithmetic
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMS
// =============================================================================

type GrantMethod string

const (
	MethodOnRequest   GrantMethod = "ON_REQUEST"
	MethodManualGrant GrantMethod = "MANUAL_GRANT"
	MethodRepeatGrant GrantMethod = "REPEAT_GRANT"
)

type RepeatUnit string

const (
	RepeatYearly    RepeatUnit = "YEARLY"
	RepeatMonthly   RepeatUnit = "MONTHLY"
	RepeatDaily     RepeatUnit = "DAILY"
	RepeatHalf      RepeatUnit = "HALF"
	RepeatQuarterly RepeatUnit = "QUARTERLY"
)

// monthsPerStep is the month span of one interval step for month-based units.
var monthsPerStep = map[RepeatUnit]int{
	RepeatMonthly:   1,
	RepeatQuarterly: 3,
	RepeatHalf:      6,
}

type GrantTiming string

const (
	TimingFixedDate     GrantTiming = "FIXED_DATE"
	TimingSpecificMonth GrantTiming = "SPECIFIC_MONTH"
	TimingSpecificDay   GrantTiming = "SPECIFIC_DAY"
	TimingQuarterEnd    GrantTiming = "QUARTER_END"
	TimingHalfEnd       GrantTiming = "HALF_END"
	TimingYearEnd       GrantTiming = "YEAR_END"
)

// EffectiveType computes a bucket's validity start from its grant date.
type EffectiveType string

const (
	EffectiveImmediate      EffectiveType = "IMMEDIATE"
	EffectiveNextDay        EffectiveType = "NEXT_DAY"
	EffectiveNextMonthStart EffectiveType = "NEXT_MONTH_START"
	EffectiveNextYearStart  EffectiveType = "NEXT_YEAR_START"
)

// ExpirationType computes a bucket's expiry from its validity start.
type ExpirationType string

const (
	ExpireYearEnd          ExpirationType = "YEAR_END"
	ExpireAfterOneYear     ExpirationType = "AFTER_ONE_YEAR"
	ExpireAfterSixMonths   ExpirationType = "AFTER_SIX_MONTHS"
	ExpireAfterThreeMonths ExpirationType = "AFTER_THREE_MONTHS"
)

// =============================================================================
// POLICY
// =============================================================================

// Recurrence holds the REPEAT_GRANT schedule fields. Zero value means
// "no recurrence" and is required for non-repeating methods.
type Recurrence struct {
	RepeatUnit     RepeatUnit
	RepeatInterval int
	GrantTiming    GrantTiming
	SpecificMonths []time.Month
	SpecificDays   []int
	FirstGrantDate Date
}

func (r Recurrence) IsZero() bool {
	return r.RepeatUnit == "" && r.RepeatInterval == 0 && r.GrantTiming == "" &&
		len(r.SpecificMonths) == 0 && len(r.SpecificDays) == 0 && r.FirstGrantDate.IsZero()
}

type Policy struct {
	ID          PolicyID
	Name        string
	Description string

	VacationType VacationType
	GrantMethod  GrantMethod

	// GrantTime is the bucket size in decimal days. Required for
	// REPEAT_GRANT; may be nil for ON_REQUEST (computed per request).
	GrantTime *decimal.Decimal

	FlexibleGrant bool
	MinuteGrant   bool

	Recurrence Recurrence

	EffectiveType  EffectiveType
	ExpirationType ExpirationType

	// Approval applies to ON_REQUEST policies.
	Approval ApprovalRule

	// Soft delete only; policies are never physically removed.
	Deleted bool

	Version int

	// Audit - supplied explicitly by the caller.
	CreatedBy  Actor
	CreatedAt  time.Time
	ModifiedBy Actor
	ModifiedAt time.Time
}

// ApprovalRule configures how ON_REQUEST submissions are approved.
type ApprovalRule struct {
	// Sequential mandates in-order slot decisions.
	Sequential bool

	// RequireDepartmentHead mandates that every approver holds the
	// department-head capability for the requester's department.
	RequireDepartmentHead bool
}

// IsRepeat reports whether this policy is scheduler-driven.
func (p *Policy) IsRepeat() bool { return p.GrantMethod == MethodRepeatGrant }

// =============================================================================
// VALIDITY WINDOW COMPUTATION
// =============================================================================

// StartDateFor computes the validity start of a bucket granted on grantDate.
func (p *Policy) StartDateFor(grantDate Date) Date {
	switch p.EffectiveType {
	case EffectiveNextDay:
		return grantDate.AddDays(1)
	case EffectiveNextMonthStart:
		return grantDate.StartOfNextMonth()
	case EffectiveNextYearStart:
		return grantDate.StartOfNextYear()
	default: // EffectiveImmediate and unset
		return grantDate
	}
}

// ExpiryDateFor computes the expiry of a bucket whose validity starts at start.
func (p *Policy) ExpiryDateFor(start Date) Date {
	switch p.ExpirationType {
	case ExpireAfterOneYear:
		return start.AddYears(1).AddDays(-1)
	case ExpireAfterSixMonths:
		return start.AddMonths(6).AddDays(-1)
	case ExpireAfterThreeMonths:
		return start.AddMonths(3).AddDays(-1)
	default: // ExpireYearEnd and unset
		return start.EndOfYear()
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks cross-field consistency. Rejected policies are never
// partially persisted.
func (p *Policy) Validate() error {
	switch p.GrantMethod {
	case MethodOnRequest, MethodManualGrant:
		if !p.Recurrence.IsZero() {
			return &ConfigError{Field: "recurrence", Constraint: "must be empty unless grant method is REPEAT_GRANT"}
		}
	case MethodRepeatGrant:
		return p.validateRecurrence()
	default:
		return &ConfigError{Field: "grantMethod", Constraint: "must be one of ON_REQUEST, MANUAL_GRANT, REPEAT_GRANT"}
	}
	if p.GrantTime != nil && !p.GrantTime.IsPositive() {
		return &ConfigError{Field: "grantTime", Constraint: "must be positive"}
	}
	return nil
}

func (p *Policy) validateRecurrence() error {
	if p.GrantTime == nil {
		return &ConfigError{Field: "grantTime", Constraint: "required for REPEAT_GRANT"}
	}
	if !p.GrantTime.IsPositive() {
		return &ConfigError{Field: "grantTime", Constraint: "must be positive"}
	}
	r := p.Recurrence
	switch r.RepeatUnit {
	case RepeatYearly, RepeatDaily:
		if r.RepeatInterval < 1 {
			return &ConfigError{Field: "repeatInterval", Constraint: "must be a positive integer"}
		}
	case RepeatMonthly, RepeatHalf, RepeatQuarterly:
		if r.RepeatInterval < 1 || r.RepeatInterval > 12 {
			return &ConfigError{Field: "repeatInterval", Constraint: "must be in [1,12] for MONTHLY/HALF/QUARTERLY"}
		}
	default:
		return &ConfigError{Field: "repeatUnit", Constraint: "required for REPEAT_GRANT"}
	}
	switch r.GrantTiming {
	case TimingFixedDate:
		if r.FirstGrantDate.IsZero() {
			return &ConfigError{Field: "firstGrantDate", Constraint: "required for FIXED_DATE timing"}
		}
	case TimingSpecificMonth:
		if len(r.SpecificMonths) == 0 {
			return &ConfigError{Field: "specificMonths", Constraint: "required for SPECIFIC_MONTH timing"}
		}
		for _, m := range r.SpecificMonths {
			if m < time.January || m > time.December {
				return &ConfigError{Field: "specificMonths", Constraint: "months must be in [1,12]"}
			}
		}
	case TimingSpecificDay:
		if len(r.SpecificDays) == 0 {
			return &ConfigError{Field: "specificDays", Constraint: "required for SPECIFIC_DAY timing"}
		}
		for _, d := range r.SpecificDays {
			if d < 1 || d > 31 {
				return &ConfigError{Field: "specificDays", Constraint: "days must be in [1,31]"}
			}
		}
	case TimingQuarterEnd, TimingHalfEnd, TimingYearEnd:
		// Period-end timings need no extra fields.
	default:
		return &ConfigError{Field: "grantTiming", Constraint: "required for REPEAT_GRANT"}
	}
	return nil
}
