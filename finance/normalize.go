package finance

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BOUNDARY NORMALIZATION - Pure functions applied on ingest and persistence
// =============================================================================

// normalizedEntry is a LedgerEntry whose date and value were successfully read.
type normalizedEntry struct {
	LedgerEntry
	due      time.Time
	value    decimal.Decimal
	monthKey string
}

// normalize returns false for entries that cannot take part in aggregation.
func (e LedgerEntry) normalize() (normalizedEntry, bool) {
	if math.IsNaN(e.Value) || math.IsInf(e.Value, 0) {
		return normalizedEntry{}, false
	}
	due, err := ParseDate(e.DueDate)
	if err != nil {
		return normalizedEntry{}, false
	}
	return normalizedEntry{
		LedgerEntry: e,
		due:         due,
		value:       decimal.NewFromFloat(e.Value),
		monthKey:    MonthKey(due),
	}, true
}

func normalizeEntries(entries []LedgerEntry) []normalizedEntry {
	out := make([]normalizedEntry, 0, len(entries))
	for _, e := range entries {
		if n, ok := e.normalize(); ok {
			out = append(out, n)
		}
	}
	return out
}

// NormalizeThresholds drops values that are not finite or fall outside
// (0,1], then sorts ascending and removes duplicates. Never returns an error:
// a bad value is filtered, not allowed to reject the whole budget.
func NormalizeThresholds(raw []float64) []float64 {
	out := make([]float64, 0, len(raw))
	for _, t := range raw {
		if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 || t > 1 {
			continue
		}
		out = append(out, t)
	}
	sort.Float64s(out)

	unique := out[:0]
	for i, t := range out {
		if i > 0 && t == out[i-1] {
			continue
		}
		unique = append(unique, t)
	}
	return unique
}

// ParseThresholds reads a persisted threshold list. Both a JSON array
// ("[0.5,0.8]") and a comma separated list ("0.5, 0.8") are accepted;
// unreadable items are dropped.
func ParseThresholds(raw string) []float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var values []float64
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &values); err == nil {
			return NormalizeThresholds(values)
		}
		raw = strings.Trim(raw, "[]")
	}

	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return NormalizeThresholds(values)
}

// FormatThresholds renders a normalized list as a JSON array for storage.
func FormatThresholds(thresholds []float64) string {
	normalized := NormalizeThresholds(thresholds)
	b, err := json.Marshal(normalized)
	if err != nil {
		return "[]"
	}
	return string(b)
}
