package finance

import "github.com/shopspring/decimal"

// GoalMatch is a goal attached to one projected month.
//
// TargetNetAmount, Achieved and GapToGoal stay nil when the goal exists but
// carries no target.
type GoalMatch struct {
	TargetNetAmount *decimal.Decimal
	Achieved        *bool
	GapToGoal       *decimal.Decimal
	Notes           string
}

// indexGoals keys goals by month. The first goal for a month wins; goals
// with an unreadable month are ignored.
func indexGoals(goals []FinanceGoal) map[string]FinanceGoal {
	index := make(map[string]FinanceGoal, len(goals))
	for _, g := range goals {
		month, err := ParseMonth(g.Month)
		if err != nil {
			continue
		}
		key := MonthKey(month)
		if _, exists := index[key]; exists {
			continue
		}
		index[key] = g
	}
	return index
}

// matchGoal compares a projected net result with the month's goal.
func matchGoal(goal FinanceGoal, projectedNet decimal.Decimal) *GoalMatch {
	match := &GoalMatch{Notes: goal.Notes}
	if goal.TargetNetAmount == nil {
		return match
	}

	target := *goal.TargetNetAmount
	achieved := projectedNet.GreaterThanOrEqual(target)
	gap := projectedNet.Sub(target)

	match.TargetNetAmount = &target
	match.Achieved = &achieved
	match.GapToGoal = &gap
	return match
}
