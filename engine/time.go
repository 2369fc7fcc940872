package engine

import (
	"time"
)

// =============================================================================
// DATE - Day-granular calendar point (all schedule arithmetic is in days)
// =============================================================================

// Date is a calendar day in UTC. Grant validity windows, tracker cursors and
// the daily jobs all operate at day granularity; intra-day times only appear
// on usage windows, which stay time.Time.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date   { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddMonths(n int) Date { return Date{Time: d.Time.AddDate(0, n, 0)} }
func (d Date) AddYears(n int) Date  { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// DaysBetween returns the calendar days from a to b, negative when b
// precedes a. Dates are UTC midnights, so the division is exact.
func DaysBetween(a, b Date) int {
	return int(b.Time.Sub(a.Time) / (24 * time.Hour))
}

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// =============================================================================
// CALENDAR HELPERS - Month/period boundaries for recurrence arithmetic
// =============================================================================

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// WithDayClamped returns the date in year/month with the requested day,
// clamped to the last valid day when the month is shorter.
func WithDayClamped(year int, month time.Month, day int) Date {
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return NewDate(year, month, day)
}

// EndOfMonth returns the last calendar day of d's month.
func (d Date) EndOfMonth() Date {
	return NewDate(d.Year(), d.Month(), DaysInMonth(d.Year(), d.Month()))
}

// EndOfQuarter returns the last calendar day of d's quarter
// (Mar 31, Jun 30, Sep 30 or Dec 31).
func (d Date) EndOfQuarter() Date {
	q := (int(d.Month()) - 1) / 3
	month := time.Month(q*3 + 3)
	return NewDate(d.Year(), month, DaysInMonth(d.Year(), month))
}

// EndOfHalf returns Jun 30 or Dec 31 of d's year.
func (d Date) EndOfHalf() Date {
	if d.Month() <= time.June {
		return NewDate(d.Year(), time.June, 30)
	}
	return NewDate(d.Year(), time.December, 31)
}

// EndOfYear returns Dec 31 of d's year.
func (d Date) EndOfYear() Date {
	return NewDate(d.Year(), time.December, 31)
}

// StartOfNextMonth returns the first day of the month after d.
func (d Date) StartOfNextMonth() Date {
	return NewDate(d.Year(), d.Month(), 1).AddMonths(1)
}

// StartOfNextYear returns Jan 1 of the year after d.
func (d Date) StartOfNextYear() Date {
	return NewDate(d.Year()+1, time.January, 1)
}

// =============================================================================
// CLOCK - Injected time source so batch logic stays testable
// =============================================================================

type Clock interface {
	// Today returns the current calendar day.
	Today() Date

	// Now returns the current instant.
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Today() Date    { return DateOf(time.Now()) }
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same day. Tests and backfills use it.
type FixedClock struct {
	Day Date
}

func (c FixedClock) Today() Date    { return c.Day }
func (c FixedClock) Now() time.Time { return c.Day.Time }
