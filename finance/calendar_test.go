package finance_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/cashflow-engine/finance"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

// =============================================================================
// MONTH ARITHMETIC
// =============================================================================

func TestAddMonths_ClampsToLastDayOfMonth(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"leap year february", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"common year february", date(2023, time.January, 31), 1, date(2023, time.February, 28)},
		{"thirty day month", date(2024, time.March, 31), 1, date(2024, time.April, 30)},
		{"no clamp needed", date(2024, time.January, 15), 1, date(2024, time.February, 15)},
		{"across year end", date(2024, time.November, 30), 3, date(2025, time.February, 28)},
		{"negative months", date(2024, time.March, 31), -1, date(2024, time.February, 29)},
		{"zero months", date(2024, time.May, 31), 0, date(2024, time.May, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, finance.AddMonths(tt.in, tt.n))
		})
	}
}

func TestAddMonths_PreservesTimeOfDay(t *testing.T) {
	in := time.Date(2024, time.January, 31, 13, 45, 0, 0, time.UTC)
	got := finance.AddMonths(in, 1)
	assert.Equal(t, time.Date(2024, time.February, 29, 13, 45, 0, 0, time.UTC), got)
}

func TestAddYears_LeapDay(t *testing.T) {
	assert.Equal(t, date(2025, time.February, 28), finance.AddYears(date(2024, time.February, 29), 1))
	assert.Equal(t, date(2028, time.February, 29), finance.AddYears(date(2024, time.February, 29), 4))
}

func TestAddDays(t *testing.T) {
	assert.Equal(t, date(2024, time.March, 1), finance.AddDays(date(2024, time.February, 28), 2))
	assert.Equal(t, date(2023, time.December, 31), finance.AddDays(date(2024, time.January, 1), -1))
}

func TestAdvanceByInterval(t *testing.T) {
	start := date(2024, time.January, 31)

	tests := []struct {
		interval finance.Interval
		want     time.Time
	}{
		{finance.IntervalWeekly, date(2024, time.February, 7)},
		{finance.IntervalBiweekly, date(2024, time.February, 14)},
		{finance.IntervalMonthly, date(2024, time.February, 29)},
		{finance.IntervalQuarterly, date(2024, time.April, 30)},
		{finance.IntervalYearly, date(2025, time.January, 31)},
		{"", date(2024, time.February, 29)},
		{"fortnightly", date(2024, time.February, 29)},
	}

	for _, tt := range tests {
		t.Run(string(tt.interval), func(t *testing.T) {
			assert.Equal(t, tt.want, finance.AdvanceByInterval(start, tt.interval))
		})
	}
}

func TestMonthBoundaries(t *testing.T) {
	mid := time.Date(2024, time.February, 10, 8, 30, 0, 0, time.UTC)

	assert.Equal(t, date(2024, time.February, 1), finance.StartOfMonth(mid))
	assert.Equal(t, time.Date(2024, time.February, 29, 23, 59, 59, int(999*time.Millisecond), time.UTC), finance.EndOfMonth(mid))
	assert.Equal(t, "2024-02", finance.MonthKey(mid))
	assert.Equal(t, "Feb 2024", finance.MonthLabel(mid))
	assert.Equal(t, 29, finance.DaysInMonth(2024, time.February))
	assert.Equal(t, 28, finance.DaysInMonth(2100, time.February))
}

func TestParseDate(t *testing.T) {
	got, err := finance.ParseDate("2024-07-05")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.July, 5), got)

	got, err = finance.ParseDate("2024-07-05T22:10:00Z")
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.July, 5), got)

	_, err = finance.ParseDate("05/07/2024")
	assert.Error(t, err)
}

func TestParseMonth(t *testing.T) {
	for _, in := range []string{"2024-08", "2024-08-17", "2024-08-17T10:00:00Z"} {
		got, err := finance.ParseMonth(in)
		require.NoError(t, err, in)
		assert.Equal(t, date(2024, time.August, 1), got, in)
	}

	_, err := finance.ParseMonth("August")
	assert.Error(t, err)
}
