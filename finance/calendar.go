package finance

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// CALENDAR ARITHMETIC - Month-safe date math, always in UTC
// =============================================================================

const (
	dateLayout     = "2006-01-02"
	monthKeyLayout = "2006-01"
	labelLayout    = "Jan 2006"
)

// Interval is the repetition cadence of a recurring ledger entry.
type Interval string

const (
	IntervalWeekly    Interval = "weekly"
	IntervalBiweekly  Interval = "biweekly"
	IntervalMonthly   Interval = "monthly"
	IntervalQuarterly Interval = "quarterly"
	IntervalYearly    Interval = "yearly"
)

// AddDays returns t moved by n days.
func AddDays(t time.Time, n int) time.Time {
	return t.UTC().AddDate(0, 0, n)
}

// AddMonths moves t by n calendar months and clamps the day of month to the
// last valid day of the destination month (Jan 31 + 1 month = Feb 28/29).
// time.AddDate would normalize Feb 31 into March instead.
func AddMonths(t time.Time, n int) time.Time {
	t = t.UTC()
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)

	if last := DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// AddYears is AddMonths by 12*n, so Feb 29 lands on Feb 28 in common years.
func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, 12*n)
}

// AdvanceByInterval returns the next occurrence after t. Unknown or empty
// intervals advance monthly.
func AdvanceByInterval(t time.Time, interval Interval) time.Time {
	switch interval {
	case IntervalWeekly:
		return AddDays(t, 7)
	case IntervalBiweekly:
		return AddDays(t, 14)
	case IntervalQuarterly:
		return AddMonths(t, 3)
	case IntervalYearly:
		return AddMonths(t, 12)
	default:
		return AddMonths(t, 1)
	}
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// StartOfMonth returns the first instant of t's month.
func StartOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// EndOfMonth returns the last instant (23:59:59.999) of t's month.
func EndOfMonth(t time.Time) time.Time {
	return AddMonths(StartOfMonth(t), 1).Add(-time.Millisecond)
}

// MonthKey formats t as "2006-01".
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthKeyLayout)
}

// MonthLabel formats t as "Jan 2006".
func MonthLabel(t time.Time) string {
	return t.UTC().Format(labelLayout)
}

// ParseDate accepts "2006-01-02" or an RFC 3339 timestamp and returns the
// calendar date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// ParseMonth accepts "2006-01", "2006-01-02" or RFC 3339 and returns the
// first day of that month.
func ParseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(monthKeyLayout, s); err == nil {
		return t, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, err
	}
	return StartOfMonth(t), nil
}
