/*
dto.go - Data Transfer Objects for API responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the finance and alert domain models from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are exposed as float64 for dashboard consumption. All arithmetic
  happens on decimal.Decimal before conversion.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cashflow-engine/alert"
	"github.com/warp/cashflow-engine/finance"
)

// =============================================================================
// PROJECTIONS
// =============================================================================

// TotalsDTO is a receivable/payable/net triple.
type TotalsDTO struct {
	Receivable float64 `json:"receivable"`
	Payable    float64 `json:"payable"`
	Net        float64 `json:"net"`
}

// GoalDTO is a goal attached to a projected month.
type GoalDTO struct {
	TargetNetAmount *float64 `json:"target_net_amount"`
	Achieved        *bool    `json:"achieved"`
	GapToGoal       *float64 `json:"gap_to_goal"`
	Notes           string   `json:"notes,omitempty"`
}

// MonthlyProjectionDTO represents one projected month.
type MonthlyProjectionDTO struct {
	Month          string    `json:"month"`
	Label          string    `json:"label"`
	Start          string    `json:"start"`
	End            string    `json:"end"`
	Actual         TotalsDTO `json:"actual"`
	Projected      TotalsDTO `json:"projected"`
	Goal           *GoalDTO  `json:"goal,omitempty"`
	IsCurrent      bool      `json:"is_current"`
	IsPast         bool      `json:"is_past"`
	IsFuture       bool      `json:"is_future"`
	HasGoal        bool      `json:"has_goal"`
	NeedsAttention bool      `json:"needs_attention"`
}

// ProjectionResponse wraps a projection run.
type ProjectionResponse struct {
	OwnerID     int64                  `json:"owner_id"`
	Reference   string                 `json:"reference"`
	MonthsAhead int                    `json:"months_ahead"`
	Months      []MonthlyProjectionDTO `json:"months"`
}

// =============================================================================
// BUDGETS
// =============================================================================

// BudgetSummaryDTO represents one budget in one month.
type BudgetSummaryDTO struct {
	BudgetID     int64     `json:"budget_id"`
	CategoryID   int64     `json:"category_id"`
	Name         string    `json:"name"`
	Month        string    `json:"month"`
	MonthlyLimit float64   `json:"monthly_limit"`
	Consumption  float64   `json:"consumption"`
	Remaining    float64   `json:"remaining"`
	Percentage   float64   `json:"percentage"`
	Status       string    `json:"status"`
	Thresholds   []float64 `json:"thresholds"`
	Crossed      []float64 `json:"crossed"`
}

// CategoryConsumptionDTO represents a category rollup.
type CategoryConsumptionDTO struct {
	CategoryID        int64   `json:"category_id"`
	TotalLimit        float64 `json:"total_limit"`
	TotalConsumption  float64 `json:"total_consumption"`
	Remaining         float64 `json:"remaining"`
	AveragePercentage float64 `json:"average_percentage"`
	HighestPercentage float64 `json:"highest_percentage"`
	Months            int     `json:"months"`
	Status            string  `json:"status"`
}

// =============================================================================
// ALERTS
// =============================================================================

// TriggerDTO represents a stored alert trigger.
type TriggerDTO struct {
	ID             string `json:"id"`
	BudgetID       int64  `json:"budget_id"`
	ReferenceMonth string `json:"reference_month"`
	Threshold      string `json:"threshold"`
	TriggeredAt    string `json:"triggered_at"`
	CreatedAt      string `json:"created_at"`
}

// EvaluateAlertsRequest is the optional body of POST /api/alerts/evaluate.
type EvaluateAlertsRequest struct {
	Reference string `json:"reference,omitempty"` // YYYY-MM-DD, defaults to today
}

// EvaluateAlertsResponse reports one scheduler pass.
type EvaluateAlertsResponse struct {
	Reference       string `json:"reference"`
	Owners          int    `json:"owners"`
	FailedOwners    int    `json:"failed_owners"`
	Budgets         int    `json:"budgets"`
	Crossings       int    `json:"crossings"`
	Created         int    `json:"created"`
	Duplicates      int    `json:"duplicates"`
	Races           int    `json:"races"`
	Invalid         int    `json:"invalid"`
	StorageFailures int    `json:"storage_failures"`
	Dispatched      int    `json:"dispatched"`
	DispatchErrors  int    `json:"dispatch_errors"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTotalsDTO(t finance.Totals) TotalsDTO {
	return TotalsDTO{
		Receivable: t.Receivable.InexactFloat64(),
		Payable:    t.Payable.InexactFloat64(),
		Net:        t.Net.InexactFloat64(),
	}
}

func decimalPtr(d *decimal.Decimal) *float64 {
	if d == nil {
		return nil
	}
	f := d.InexactFloat64()
	return &f
}

func toProjectionDTOs(projections []finance.MonthlyProjection) []MonthlyProjectionDTO {
	dtos := make([]MonthlyProjectionDTO, 0, len(projections))
	for _, p := range projections {
		dto := MonthlyProjectionDTO{
			Month:          p.MonthKey,
			Label:          p.Label,
			Start:          p.Start.Format("2006-01-02"),
			End:            p.End.Format("2006-01-02"),
			Actual:         toTotalsDTO(p.Actual),
			Projected:      toTotalsDTO(p.Projected),
			IsCurrent:      p.IsCurrent,
			IsPast:         p.IsPast,
			IsFuture:       p.IsFuture,
			HasGoal:        p.HasGoal,
			NeedsAttention: p.NeedsAttention,
		}
		if p.Goal != nil {
			dto.Goal = &GoalDTO{
				TargetNetAmount: decimalPtr(p.Goal.TargetNetAmount),
				Achieved:        p.Goal.Achieved,
				GapToGoal:       decimalPtr(p.Goal.GapToGoal),
				Notes:           p.Goal.Notes,
			}
		}
		dtos = append(dtos, dto)
	}
	return dtos
}

func toBudgetSummaryDTOs(summaries []finance.BudgetSummary) []BudgetSummaryDTO {
	dtos := make([]BudgetSummaryDTO, 0, len(summaries))
	for _, s := range summaries {
		crossed := s.Crossed
		if crossed == nil {
			crossed = []float64{}
		}
		dtos = append(dtos, BudgetSummaryDTO{
			BudgetID:     s.BudgetID,
			CategoryID:   s.CategoryID,
			Name:         s.Name,
			Month:        s.MonthKey,
			MonthlyLimit: s.MonthlyLimit.InexactFloat64(),
			Consumption:  s.Consumption.InexactFloat64(),
			Remaining:    s.Remaining.InexactFloat64(),
			Percentage:   s.Percentage,
			Status:       string(s.Status),
			Thresholds:   s.Thresholds,
			Crossed:      crossed,
		})
	}
	return dtos
}

func toCategoryDTOs(categories []finance.CategoryConsumption) []CategoryConsumptionDTO {
	dtos := make([]CategoryConsumptionDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, CategoryConsumptionDTO{
			CategoryID:        c.CategoryID,
			TotalLimit:        c.TotalLimit.InexactFloat64(),
			TotalConsumption:  c.TotalConsumption.InexactFloat64(),
			Remaining:         c.Remaining.InexactFloat64(),
			AveragePercentage: c.AveragePercentage,
			HighestPercentage: c.HighestPercentage,
			Months:            c.Months,
			Status:            string(c.Status),
		})
	}
	return dtos
}

func toTriggerDTOs(triggers []alert.Trigger) []TriggerDTO {
	dtos := make([]TriggerDTO, 0, len(triggers))
	for _, t := range triggers {
		dtos = append(dtos, TriggerDTO{
			ID:             t.ID,
			BudgetID:       t.BudgetID,
			ReferenceMonth: finance.MonthKey(t.ReferenceMonth),
			Threshold:      t.Threshold,
			TriggeredAt:    t.TriggeredAt.UTC().Format(time.RFC3339),
			CreatedAt:      t.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return dtos
}

func toEvaluateResponse(stats RunStats) EvaluateAlertsResponse {
	return EvaluateAlertsResponse{
		Reference:       finance.MonthKey(stats.Reference),
		Owners:          stats.Owners,
		FailedOwners:    stats.FailedOwners,
		Budgets:         stats.Budgets,
		Crossings:       stats.Crossings,
		Created:         stats.Created,
		Duplicates:      stats.Duplicates,
		Races:           stats.Races,
		Invalid:         stats.Invalid,
		StorageFailures: stats.StorageFailures,
		Dispatched:      stats.Dispatched,
		DispatchErrors:  stats.DispatchErrors,
	}
}
