package finance

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// BUDGET SUMMARIES - Consumption per (budget, month)
// =============================================================================

var hundred = decimal.NewFromInt(100)

// BudgetSummary is the consumption result of one budget in one month.
type BudgetSummary struct {
	BudgetID   int64
	CategoryID int64
	Name       string
	MonthKey   string

	MonthlyLimit decimal.Decimal
	Consumption  decimal.Decimal
	Remaining    decimal.Decimal
	Percentage   float64
	Status       Status

	// Thresholds is the effective list the status was computed with, and
	// Crossed the subset already reached by this month's consumption.
	Thresholds []float64
	Crossed    []float64
}

// SummaryInput selects which budgets and months to evaluate.
type SummaryInput struct {
	Budgets []Budget
	Entries []LedgerEntry
	Months  []Bucket
	Filter  ConsumptionFilter
}

// BudgetAnalyzer turns ledger entries into budget health.
type BudgetAnalyzer struct {
	Classifier Classifier
}

// NewBudgetAnalyzer builds an analyzer around an injected classifier config.
func NewBudgetAnalyzer(cfg ClassifierConfig) *BudgetAnalyzer {
	return &BudgetAnalyzer{Classifier: NewClassifier(cfg)}
}

// Summarize returns one summary per budget per month, budgets in input order
// and months ascending. A budget pinned to a ReferenceMonth only yields that
// month, and only if it is part of the requested range.
func (a *BudgetAnalyzer) Summarize(in SummaryInput) []BudgetSummary {
	consumption := AggregateConsumption(in.Entries, in.Filter)

	var summaries []BudgetSummary
	for _, budget := range in.Budgets {
		pinned := ""
		if budget.ReferenceMonth != "" {
			month, err := ParseMonth(budget.ReferenceMonth)
			if err != nil {
				continue
			}
			pinned = MonthKey(month)
		}

		for _, month := range in.Months {
			if pinned != "" && pinned != month.MonthKey {
				continue
			}
			spent := consumption[ConsumptionKey{CategoryID: budget.CategoryID, MonthKey: month.MonthKey}]
			summaries = append(summaries, a.summarize(budget, month.MonthKey, spent))
		}
	}
	return summaries
}

func (a *BudgetAnalyzer) summarize(budget Budget, monthKey string, consumption decimal.Decimal) BudgetSummary {
	thresholds := a.Classifier.EffectiveThresholds(budget.Thresholds)

	s := BudgetSummary{
		BudgetID:     budget.ID,
		CategoryID:   budget.CategoryID,
		Name:         budget.Name,
		MonthKey:     monthKey,
		MonthlyLimit: budget.MonthlyLimit,
		Consumption:  consumption,
		Remaining:    budget.MonthlyLimit.Sub(consumption),
		Status:       a.Classifier.Classify(consumption, budget.MonthlyLimit, thresholds),
		Thresholds:   thresholds,
	}

	if budget.MonthlyLimit.IsPositive() {
		ratio := consumption.Div(budget.MonthlyLimit)
		s.Percentage = ratio.Mul(hundred).Round(2).InexactFloat64()

		r := ratio.InexactFloat64()
		for _, t := range thresholds {
			if r >= t {
				s.Crossed = append(s.Crossed, t)
			}
		}
	}
	return s
}
