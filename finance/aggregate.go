package finance

import "github.com/shopspring/decimal"

// =============================================================================
// ACTUAL AGGREGATOR - Group-then-sum, two grouping keys
// =============================================================================

// AggregateActuals sums every entry into its due month, per type. No status
// filter: a projection reflects all recorded entries regardless of payment
// state.
func AggregateActuals(entries []LedgerEntry) map[string]Totals {
	result := make(map[string]Totals)
	for _, e := range normalizeEntries(entries) {
		result[e.monthKey] = result[e.monthKey].addEntry(e.Type, e.value)
	}
	return result
}

// ConsumptionFilter restricts which entries count as budget consumption.
type ConsumptionFilter struct {
	// Type defaults to payable.
	Type EntryType
	// Statuses, when non-empty, keeps only entries in one of these states.
	Statuses []EntryStatus
}

func (f ConsumptionFilter) matches(e normalizedEntry) bool {
	want := f.Type
	if want == "" {
		want = EntryPayable
	}
	if e.Type != want {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}

// ConsumptionKey identifies one category in one month.
type ConsumptionKey struct {
	CategoryID int64
	MonthKey   string
}

// AggregateConsumption sums matching entries per (category, month). Entries
// without a category cannot be attributed to a budget and are left out.
func AggregateConsumption(entries []LedgerEntry, filter ConsumptionFilter) map[ConsumptionKey]decimal.Decimal {
	result := make(map[ConsumptionKey]decimal.Decimal)
	for _, e := range normalizeEntries(entries) {
		if e.CategoryID == 0 || !filter.matches(e) {
			continue
		}
		k := ConsumptionKey{CategoryID: e.CategoryID, MonthKey: e.monthKey}
		result[k] = result[k].Add(e.value)
	}
	return result
}
