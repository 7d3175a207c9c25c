package finance

// =============================================================================
// RECURRING PROJECTOR - Expands recurring entries into future buckets
// =============================================================================

// MaxRecurrenceSteps bounds the expansion of a single entry so malformed
// intervals cannot loop forever.
const MaxRecurrenceSteps = 500

// ProjectRecurring expands each recurring entry forward from its due date and
// returns per-month contributions for occurrences inside the bucket window.
//
// The due date itself is never counted: it already shows up in the actual
// totals. Occurrences before the window start are skipped, expansion stops at
// the first occurrence past the window end.
func ProjectRecurring(entries []LedgerEntry, buckets []Bucket) map[string]Totals {
	result := make(map[string]Totals)
	if len(buckets) == 0 {
		return result
	}

	// Buckets are contiguous, so the window covers exactly their months.
	window := WindowOf(buckets)

	for _, e := range normalizeEntries(entries) {
		if !e.Recurring {
			continue
		}

		occurrence := AdvanceByInterval(e.due, e.RecurringInterval)
		for step := 0; step < MaxRecurrenceSteps; step++ {
			if occurrence.After(window.End) {
				break
			}
			if window.Contains(occurrence) {
				key := MonthKey(occurrence)
				result[key] = result[key].addEntry(e.Type, e.value)
			}
			occurrence = AdvanceByInterval(occurrence, e.RecurringInterval)
		}
	}
	return result
}
