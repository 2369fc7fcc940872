/*
Package timeunit converts named leave units into the canonical decimal-day
representation used by every balance in the engine.

PURPOSE:
  All entitlement arithmetic happens in decimal days. Employees, however,
  request leave in human units: a whole day, a morning off, a three-hour
  block, a 30-minute block. This package owns the conversion table in both
  directions.

KEY CONCEPTS:
  - Unit: a named leave unit (DAYOFF, MORNINGOFF, ONETIMEOFF, ...)
  - Quantize: (unit, count) -> decimal days, exact fixed-point
  - Humanize: decimal days -> label ("2 days 3 hours"), the inverse

PRECISION:
  Every multiplier is a multiple of 1/16 of a day (a 30-minute block on an
  8-hour day). Quantized values therefore always land on the 1/16 grid and
  sum exactly; decimal.Decimal keeps the arithmetic drift-free. A value off
  the grid cannot have been produced by Quantize and Humanize treats it as
  an implementation error, not user input.

SEE ALSO:
  - engine/usage.go: debits grants by quantized amounts
  - engine/service.go: humanizes balances for callers
*/
package timeunit

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Unit is a named leave unit selectable on a usage request.
type Unit string

const (
	DayOff       Unit = "DAYOFF"       // whole working day
	MorningOff   Unit = "MORNINGOFF"   // first half of the day
	AfternoonOff Unit = "AFTERNOONOFF" // second half of the day
	OneTimeOff   Unit = "ONETIMEOFF"   // 1-hour block
	TwoTimeOff   Unit = "TWOTIMEOFF"   // 2-hour block
	ThreeTimeOff Unit = "THREETIMEOFF" // 3-hour block
	FiveTimeOff  Unit = "FIVETIMEOFF"  // 5-hour block
	SixTimeOff   Unit = "SIXTIMEOFF"   // 6-hour block
	SevenTimeOff Unit = "SEVENTIMEOFF" // 7-hour block
	HalfTimeOff  Unit = "HALFTIMEOFF"  // 30-minute block
)

var (
	// ErrUnknownUnit is returned when a unit tag is not in the table.
	ErrUnknownUnit = errors.New("unknown time unit")

	// ErrInvalidCount is returned for a non-positive count.
	ErrInvalidCount = errors.New("count must be positive")

	// ErrUnrepresentable is returned by Humanize for values that cannot have
	// been produced by Quantize. This indicates corrupted ledger data, not
	// bad user input.
	ErrUnrepresentable = errors.New("value not representable in time units")
)

// multipliers maps each unit to its decimal-day value.
// A flat table keyed by unit tag; no per-variant behavior.
var multipliers = map[Unit]decimal.Decimal{
	DayOff:       decimal.RequireFromString("1"),
	MorningOff:   decimal.RequireFromString("0.5"),
	AfternoonOff: decimal.RequireFromString("0.5"),
	OneTimeOff:   decimal.RequireFromString("0.125"),
	TwoTimeOff:   decimal.RequireFromString("0.25"),
	ThreeTimeOff: decimal.RequireFromString("0.375"),
	FiveTimeOff:  decimal.RequireFromString("0.625"),
	SixTimeOff:   decimal.RequireFromString("0.75"),
	SevenTimeOff: decimal.RequireFromString("0.875"),
	HalfTimeOff:  decimal.RequireFromString("0.0625"),
}

var (
	oneDay     = decimal.RequireFromString("1")
	oneHour    = decimal.RequireFromString("0.125")
	halfHour   = decimal.RequireFromString("0.0625")
	sixteenths = decimal.RequireFromString("16")
)

// Valid reports whether u is a known unit tag.
func Valid(u Unit) bool {
	_, ok := multipliers[u]
	return ok
}

// Multiplier returns the decimal-day value of a single count of u.
func Multiplier(u Unit) (decimal.Decimal, error) {
	m, ok := multipliers[u]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownUnit, u)
	}
	return m, nil
}

// Quantize converts count occurrences of unit u into decimal days.
func Quantize(u Unit, count int) (decimal.Decimal, error) {
	m, err := Multiplier(u)
	if err != nil {
		return decimal.Zero, err
	}
	if count <= 0 {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}
	return m.Mul(decimal.NewFromInt(int64(count))), nil
}

// Humanize renders a quantized decimal-day value as a label, e.g.
// 2.375 -> "2 days 3 hours", 0.0625 -> "30 minutes", 0 -> "0 days".
// Only values on the 1/16-day grid are accepted; anything else cannot
// round-trip and is rejected with ErrUnrepresentable.
func Humanize(d decimal.Decimal) (string, error) {
	if d.IsNegative() {
		return "", fmt.Errorf("%w: negative value %s", ErrUnrepresentable, d)
	}
	if !d.Mul(sixteenths).IsInteger() {
		return "", fmt.Errorf("%w: %s is off the 30-minute grid", ErrUnrepresentable, d)
	}
	if d.IsZero() {
		return "0 days", nil
	}

	days := d.Floor()
	rem := d.Sub(days)
	hours := rem.Div(oneHour).Floor()
	rem = rem.Sub(hours.Mul(oneHour))
	halfFlag := rem.Equal(halfHour)

	var out string
	if !days.IsZero() {
		out = plural(days.IntPart(), "day")
	}
	if !hours.IsZero() {
		out = join(out, plural(hours.IntPart(), "hour"))
	}
	if halfFlag {
		out = join(out, "30 minutes")
	}
	return out, nil
}

func plural(n int64, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.FormatInt(n, 10) + " " + noun + "s"
}

func join(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
