package finance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryConsumption merges every BudgetSummary of one category.
type CategoryConsumption struct {
	CategoryID        int64
	TotalLimit        decimal.Decimal
	TotalConsumption  decimal.Decimal
	Remaining         decimal.Decimal
	AveragePercentage float64
	HighestPercentage float64
	Months            int
	Status            Status
}

// AggregateByCategory groups summaries by category, sorted by CategoryID.
// Status is the most severe one observed; AveragePercentage is weighted by
// limit (total consumption over total limit), not a mean of percentages.
func AggregateByCategory(summaries []BudgetSummary) []CategoryConsumption {
	byCategory := make(map[int64]*CategoryConsumption)

	for _, s := range summaries {
		c, ok := byCategory[s.CategoryID]
		if !ok {
			c = &CategoryConsumption{CategoryID: s.CategoryID, Status: StatusHealthy}
			byCategory[s.CategoryID] = c
		}
		c.TotalLimit = c.TotalLimit.Add(s.MonthlyLimit)
		c.TotalConsumption = c.TotalConsumption.Add(s.Consumption)
		c.Months++
		if s.Percentage > c.HighestPercentage {
			c.HighestPercentage = s.Percentage
		}
		c.Status = MaxStatus(c.Status, s.Status)
	}

	result := make([]CategoryConsumption, 0, len(byCategory))
	for _, c := range byCategory {
		if c.TotalLimit.IsPositive() {
			c.AveragePercentage = c.TotalConsumption.Div(c.TotalLimit).Mul(hundred).Round(2).InexactFloat64()
		}
		c.Remaining = c.TotalLimit.Sub(c.TotalConsumption)
		result = append(result, *c)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CategoryID < result[j].CategoryID
	})
	return result
}
