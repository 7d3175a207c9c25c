/*
Package finance provides the analytical core of the cash-flow engine.

PURPOSE:
  Computes forward-looking monthly cash-flow projections and budget
  consumption health over an immutable snapshot of ledger entries, budgets
  and goals. Everything here is pure: the same snapshot and reference date
  always produce the same output, and nothing is written anywhere.

KEY CONCEPTS IN THIS FILE (types.go):
  - LedgerEntry: a raw payable/receivable record supplied by a collaborator
  - Budget: a monthly ceiling for a category with alert thresholds
  - FinanceGoal: a target net result for one calendar month
  - Totals: receivable/payable/net triple used by projections

DATA FLOW:
  entries + goals   -> BuildBuckets -> AggregateActuals + ProjectRecurring
                    -> matchGoal -> []MonthlyProjection
  entries + budgets -> AggregateConsumption -> Classifier
                    -> []BudgetSummary -> AggregateByCategory

MALFORMED INPUT:
  Analytics over messy financial data never fail. Entries with an
  unparseable due date or a non-finite value are skipped, thresholds out
  of (0,1] are filtered, goals with an unreadable month are ignored.

SEE ALSO:
  - calendar.go: all date math
  - projection.go: ProjectionEngine
  - summary.go: BudgetAnalyzer
*/
package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER ENTRY - Raw record, never mutated
// =============================================================================

type EntryType string

const (
	EntryPayable    EntryType = "payable"
	EntryReceivable EntryType = "receivable"
)

type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusPaid      EntryStatus = "paid"
	StatusOverdue   EntryStatus = "overdue"
	StatusCancelled EntryStatus = "cancelled"
)

// LedgerEntry is one financial record as fetched by the caller. DueDate and
// Value are kept in their raw form; normalization happens per computation.
type LedgerEntry struct {
	ID                string
	Type              EntryType
	Status            EntryStatus
	Value             float64
	DueDate           string // "2006-01-02" or RFC 3339
	Recurring         bool
	RecurringInterval Interval
	CategoryID        int64 // 0 = uncategorized
}

// =============================================================================
// BUDGET & GOAL
// =============================================================================

// Budget is a monthly spending ceiling for a category.
type Budget struct {
	ID           int64
	CategoryID   int64
	OwnerID      int64
	Name         string
	MonthlyLimit decimal.Decimal
	Thresholds   []float64 // ascending, unique, in (0,1]

	// ReferenceMonth pins the budget to a single month ("2006-01").
	// Empty means the budget applies to every month.
	ReferenceMonth string
}

// FinanceGoal is a target net result for a calendar month.
type FinanceGoal struct {
	Month           string
	TargetNetAmount *decimal.Decimal
	Notes           string
}

// Snapshot is everything a computation run reads, fetched once per run.
type Snapshot struct {
	Entries []LedgerEntry
	Budgets []Budget
	Goals   []FinanceGoal
}

// =============================================================================
// TOTALS
// =============================================================================

type Totals struct {
	Receivable decimal.Decimal
	Payable    decimal.Decimal
	Net        decimal.Decimal
}

// Add returns the sum of both totals with Net recomputed.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Receivable: t.Receivable.Add(o.Receivable),
		Payable:    t.Payable.Add(o.Payable),
	}.withNet()
}

func (t Totals) withNet() Totals {
	t.Net = t.Receivable.Sub(t.Payable)
	return t
}

func (t Totals) addEntry(typ EntryType, value decimal.Decimal) Totals {
	switch typ {
	case EntryReceivable:
		t.Receivable = t.Receivable.Add(value)
	case EntryPayable:
		t.Payable = t.Payable.Add(value)
	}
	return t.withNet()
}
