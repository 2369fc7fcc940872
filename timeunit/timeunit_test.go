package timeunit_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/timeunit"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// =============================================================================
// QUANTIZATION
// =============================================================================

func TestQuantize_SingleUnits(t *testing.T) {
	cases := []struct {
		unit timeunit.Unit
		want string
	}{
		{timeunit.DayOff, "1"},
		{timeunit.MorningOff, "0.5"},
		{timeunit.AfternoonOff, "0.5"},
		{timeunit.OneTimeOff, "0.125"},
		{timeunit.TwoTimeOff, "0.25"},
		{timeunit.ThreeTimeOff, "0.375"},
		{timeunit.FiveTimeOff, "0.625"},
		{timeunit.SixTimeOff, "0.75"},
		{timeunit.SevenTimeOff, "0.875"},
		{timeunit.HalfTimeOff, "0.0625"},
	}
	for _, c := range cases {
		got, err := timeunit.Quantize(c.unit, 1)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.unit, err)
		}
		if !got.Equal(d(c.want)) {
			t.Errorf("%s: expected %s, got %s", c.unit, c.want, got)
		}
	}
}

func TestQuantize_HourBlocks_SumExactly(t *testing.T) {
	// GIVEN: 19 separate one-hour blocks
	// WHEN: Quantized and summed
	// THEN: Exactly 2.375 days - no floating point drift

	total := decimal.Zero
	for i := 0; i < 19; i++ {
		v, err := timeunit.Quantize(timeunit.OneTimeOff, 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		total = total.Add(v)
	}
	if !total.Equal(d("2.375")) {
		t.Errorf("expected 2.375, got %s", total)
	}

	label, err := timeunit.Humanize(total)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if label != "2 days 3 hours" {
		t.Errorf("expected %q, got %q", "2 days 3 hours", label)
	}
}

func TestQuantize_UnknownUnit_Rejected(t *testing.T) {
	_, err := timeunit.Quantize("WEEKOFF", 1)
	if !errors.Is(err, timeunit.ErrUnknownUnit) {
		t.Errorf("expected ErrUnknownUnit, got %v", err)
	}
}

func TestQuantize_NonPositiveCount_Rejected(t *testing.T) {
	for _, count := range []int{0, -1} {
		_, err := timeunit.Quantize(timeunit.DayOff, count)
		if !errors.Is(err, timeunit.ErrInvalidCount) {
			t.Errorf("count %d: expected ErrInvalidCount, got %v", count, err)
		}
	}
}

// =============================================================================
// HUMANIZATION
// =============================================================================

func TestHumanize_GridValues(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0 days"},
		{"1", "1 day"},
		{"2", "2 days"},
		{"0.125", "1 hour"},
		{"0.5", "4 hours"},
		{"0.0625", "30 minutes"},
		{"2.375", "2 days 3 hours"},
		{"1.5625", "1 day 4 hours 30 minutes"},
		{"0.1875", "1 hour 30 minutes"},
	}
	for _, c := range cases {
		got, err := timeunit.Humanize(d(c.in))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("%s: expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestHumanize_OffGrid_Rejected(t *testing.T) {
	// Values off the 1/16 grid cannot have been produced by Quantize; they
	// indicate corrupted data, never user input.
	for _, in := range []string{"0.3", "0.01", "1.99"} {
		_, err := timeunit.Humanize(d(in))
		if !errors.Is(err, timeunit.ErrUnrepresentable) {
			t.Errorf("%s: expected ErrUnrepresentable, got %v", in, err)
		}
	}
}

func TestHumanize_Negative_Rejected(t *testing.T) {
	_, err := timeunit.Humanize(d("-0.5"))
	if !errors.Is(err, timeunit.ErrUnrepresentable) {
		t.Errorf("expected ErrUnrepresentable, got %v", err)
	}
}

func TestQuantize_Humanize_RoundTrip(t *testing.T) {
	// Any (unit, count) quantization must humanize without error.
	units := []timeunit.Unit{
		timeunit.DayOff, timeunit.MorningOff, timeunit.OneTimeOff,
		timeunit.HalfTimeOff, timeunit.SevenTimeOff,
	}
	for _, u := range units {
		for _, count := range []int{1, 3, 17} {
			v, err := timeunit.Quantize(u, count)
			if err != nil {
				t.Fatalf("%s x%d: unexpected error: %v", u, count, err)
			}
			if _, err := timeunit.Humanize(v); err != nil {
				t.Errorf("%s x%d (=%s): humanize failed: %v", u, count, v, err)
			}
		}
	}
}
