/*
projection.go - Monthly cash-flow projection

PURPOSE:
  Answers "where will each of the next N months land?" by combining what is
  already recorded in the ledger with what recurring entries will add, and
  comparing the result with the month's goal.

PROCESS:
  1. Build N month buckets starting at the reference month
  2. Actual totals: every entry summed into its due month
  3. Recurring totals: future occurrences of recurring entries
  4. Projected = actual + recurring, Net = receivable - payable
  5. Attach the month's goal, if any, and derive the flags

FLAGS:
  IsCurrent/IsPast/IsFuture compare the bucket start with the reference
  month start. NeedsAttention is set only when a goal with a target exists
  and the projection misses it.

EXAMPLE:
  engine := &ProjectionEngine{}
  months := engine.Project(ProjectionInput{
      Entries:     entries,
      Goals:       goals,
      Reference:   time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC),
      MonthsAhead: 3,
  })

SEE ALSO:
  - aggregate.go: AggregateActuals
  - recurring.go: ProjectRecurring
  - goal.go: matchGoal
*/
package finance

import "time"

// =============================================================================
// PROJECTION ENGINE
// =============================================================================

// ProjectionEngine computes MonthlyProjection rows. It holds no state and is
// safe for concurrent use.
type ProjectionEngine struct{}

// ProjectionInput contains all inputs for one projection run.
type ProjectionInput struct {
	Entries []LedgerEntry
	Goals   []FinanceGoal

	// Reference selects the first projected month.
	Reference time.Time

	// MonthsAhead is clamped to [1, 24].
	MonthsAhead int
}

// MonthlyProjection is one bucket's computed result.
type MonthlyProjection struct {
	MonthKey string
	Label    string
	Start    time.Time
	End      time.Time

	Actual    Totals
	Projected Totals
	Goal      *GoalMatch

	IsCurrent      bool
	IsPast         bool
	IsFuture       bool
	HasGoal        bool
	NeedsAttention bool
}

// Project returns one MonthlyProjection per bucket, in calendar order.
func (pe *ProjectionEngine) Project(input ProjectionInput) []MonthlyProjection {
	buckets := BuildBuckets(input.Reference, input.MonthsAhead)
	referenceStart := StartOfMonth(input.Reference)

	actuals := AggregateActuals(input.Entries)
	recurring := ProjectRecurring(input.Entries, buckets)
	goals := indexGoals(input.Goals)

	projections := make([]MonthlyProjection, 0, len(buckets))
	for _, b := range buckets {
		actual := actuals[b.MonthKey].withNet()
		projected := actual.Add(recurring[b.MonthKey])

		p := MonthlyProjection{
			MonthKey:  b.MonthKey,
			Label:     b.Label,
			Start:     b.Start,
			End:       b.End,
			Actual:    actual,
			Projected: projected,
			IsCurrent: b.Start.Equal(referenceStart),
			IsPast:    b.Start.Before(referenceStart),
			IsFuture:  b.Start.After(referenceStart),
		}

		if goal, ok := goals[b.MonthKey]; ok {
			p.Goal = matchGoal(goal, projected.Net)
			p.HasGoal = true
			p.NeedsAttention = p.Goal.Achieved != nil && !*p.Goal.Achieved
		}

		projections = append(projections, p)
	}
	return projections
}
