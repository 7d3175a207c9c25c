package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/alert"
	"github.com/warp/cashflow-engine/finance"
	"github.com/warp/cashflow-engine/store/sqlite"
)

type testEnv struct {
	store      *sqlite.Store
	handler    *Handler
	router     http.Handler
	dispatcher *recordingDispatcher
}

// setupTestServer seeds owner 42 with July 2024 activity:
// 1000 receivable, 400 payable in category 7, a 500 budget on category 7
// and a July goal of 800.
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveEntry(ctx, 42, finance.LedgerEntry{
		ID: "salary", Type: finance.EntryReceivable, Status: finance.StatusPaid, Value: 1000, DueDate: "2024-07-10",
	}))
	require.NoError(t, store.SaveEntry(ctx, 42, finance.LedgerEntry{
		ID: "groceries", Type: finance.EntryPayable, Status: finance.StatusPaid, Value: 400, DueDate: "2024-07-12", CategoryID: 7,
	}))
	require.NoError(t, store.SaveBudget(ctx, finance.Budget{
		ID: 1, OwnerID: 42, CategoryID: 7, Name: "Groceries",
		MonthlyLimit: decimal.NewFromInt(500), Thresholds: []float64{0.5, 0.75, 0.9},
	}))
	target := decimal.NewFromInt(800)
	require.NoError(t, store.SaveGoal(ctx, 42, finance.FinanceGoal{Month: "2024-07", TargetNetAmount: &target, Notes: "holiday fund"}))

	clock := func() time.Time { return time.Date(2024, time.July, 15, 12, 0, 0, 0, time.UTC) }

	analyzer := finance.NewBudgetAnalyzer(finance.DefaultClassifierConfig())
	h := NewHandler(store, store, analyzer, quietLogger())
	h.Now = clock

	dispatcher := &recordingDispatcher{}
	dedup := alert.NewDeduplicator(store, quietLogger())
	h.Scheduler = NewAlertScheduler(store, analyzer, dedup, dispatcher, quietLogger())
	h.Scheduler.Now = clock

	return &testEnv{
		store:      store,
		handler:    h,
		router:     NewRouter(h, nil),
		dispatcher: dispatcher,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]string](t, rr)["status"])
}

// =============================================================================
// PROJECTIONS
// =============================================================================

func TestGetProjections(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/owners/42/projections?reference=2024-07-01&months=2", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[ProjectionResponse](t, rr)
	assert.Equal(t, int64(42), resp.OwnerID)
	assert.Equal(t, 2, resp.MonthsAhead)
	require.Len(t, resp.Months, 2)

	july := resp.Months[0]
	assert.Equal(t, "2024-07", july.Month)
	assert.True(t, july.IsCurrent)
	assert.Equal(t, 1000.0, july.Actual.Receivable)
	assert.Equal(t, 400.0, july.Actual.Payable)
	assert.Equal(t, 600.0, july.Projected.Net)
	assert.True(t, july.HasGoal)
	assert.True(t, july.NeedsAttention)
	require.NotNil(t, july.Goal)
	require.NotNil(t, july.Goal.Achieved)
	assert.False(t, *july.Goal.Achieved)
	assert.Equal(t, -200.0, *july.Goal.GapToGoal)
	assert.Equal(t, "holiday fund", july.Goal.Notes)

	august := resp.Months[1]
	assert.Equal(t, "2024-08", august.Month)
	assert.True(t, august.IsFuture)
	assert.False(t, august.HasGoal)
	assert.Nil(t, august.Goal)
	assert.Zero(t, august.Projected.Net)
}

func TestGetProjections_DefaultsAndClamping(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/owners/42/projections", "")
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[ProjectionResponse](t, rr)
	assert.Equal(t, "2024-07-15", resp.Reference, "reference defaults to today")
	assert.Len(t, resp.Months, 6)

	rr = env.do(t, http.MethodGet, "/api/owners/42/projections?months=99", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[ProjectionResponse](t, rr).Months, 24)
}

func TestGetProjections_UnknownOwnerIsEmpty(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/owners/7/projections?months=1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[ProjectionResponse](t, rr)
	require.Len(t, resp.Months, 1)
	assert.Zero(t, resp.Months[0].Projected.Net)
}

func TestGetProjections_BadInput(t *testing.T) {
	env := setupTestServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"owner not a number", "/api/owners/abc/projections"},
		{"owner not positive", "/api/owners/0/projections"},
		{"bad reference", "/api/owners/42/projections?reference=July"},
		{"bad months", "/api/owners/42/projections?months=six"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.path, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, decode[ErrorResponse](t, rr).Error)
		})
	}
}

// =============================================================================
// BUDGETS
// =============================================================================

func TestGetBudgetSummaries(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/owners/42/budgets/summary?from=2024-07&to=2024-08", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	summaries := decode[[]BudgetSummaryDTO](t, rr)
	require.Len(t, summaries, 2)

	july := summaries[0]
	assert.Equal(t, "2024-07", july.Month)
	assert.Equal(t, 400.0, july.Consumption)
	assert.Equal(t, 100.0, july.Remaining)
	assert.Equal(t, 80.0, july.Percentage)
	assert.Equal(t, "caution", july.Status)
	assert.Equal(t, []float64{0.5, 0.75}, july.Crossed)

	august := summaries[1]
	assert.Equal(t, "healthy", august.Status)
	assert.Empty(t, august.Crossed)
}

func TestGetBudgetSummaries_DefaultsToCurrentMonth(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/owners/42/budgets/summary", "")
	require.Equal(t, http.StatusOK, rr.Code)

	summaries := decode[[]BudgetSummaryDTO](t, rr)
	require.Len(t, summaries, 1)
	assert.Equal(t, "2024-07", summaries[0].Month)
}

func TestGetBudgetSummaries_InvertedRange(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/owners/42/budgets/summary?from=2024-08&to=2024-07", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetCategoryConsumption(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/owners/42/budgets/categories?from=2024-07&to=2024-08", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	categories := decode[[]CategoryConsumptionDTO](t, rr)
	require.Len(t, categories, 1)

	c := categories[0]
	assert.Equal(t, int64(7), c.CategoryID)
	assert.Equal(t, 1000.0, c.TotalLimit)
	assert.Equal(t, 400.0, c.TotalConsumption)
	assert.Equal(t, 40.0, c.AveragePercentage)
	assert.Equal(t, 80.0, c.HighestPercentage)
	assert.Equal(t, 2, c.Months)
	assert.Equal(t, "caution", c.Status)
}

// =============================================================================
// ALERTS
// =============================================================================

func TestEvaluateAlerts_ThenListTriggers(t *testing.T) {
	// GIVEN: Owner 42 has spent 80% of the groceries budget in July
	// WHEN: Alerts are evaluated twice
	// THEN: Two triggers are stored and exactly one alert is dispatched
	env := setupTestServer(t)

	rr := env.do(t, http.MethodPost, "/api/alerts/evaluate", `{"reference":"2024-07-15"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[EvaluateAlertsResponse](t, rr)
	assert.Equal(t, "2024-07", resp.Reference)
	assert.Equal(t, 1, resp.Owners)
	assert.Equal(t, 2, resp.Created)
	assert.Equal(t, 1, resp.Dispatched)

	rr = env.do(t, http.MethodPost, "/api/alerts/evaluate", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	resp = decode[EvaluateAlertsResponse](t, rr)
	assert.Equal(t, "2024-07", resp.Reference, "empty body runs on the scheduler clock")
	assert.Equal(t, 2, resp.Duplicates)
	assert.Equal(t, 0, resp.Dispatched)

	require.Len(t, env.dispatcher.messages, 1)
	assert.Equal(t, "0.75", env.dispatcher.messages[0].Threshold)

	rr = env.do(t, http.MethodGet, "/api/budgets/1/triggers", "")
	require.Equal(t, http.StatusOK, rr.Code)

	triggers := decode[[]TriggerDTO](t, rr)
	require.Len(t, triggers, 2)
	assert.Equal(t, "0.50", triggers[0].Threshold)
	assert.Equal(t, "0.75", triggers[1].Threshold)
	assert.Equal(t, "2024-07", triggers[0].ReferenceMonth)
}

func TestEvaluateAlerts_BadInput(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodPost, "/api/alerts/evaluate", `{"reference":"someday"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/alerts/evaluate", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEvaluateAlerts_NoScheduler(t *testing.T) {
	env := setupTestServer(t)
	env.handler.Scheduler = nil

	rr := env.do(t, http.MethodPost, "/api/alerts/evaluate", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestListTriggers_Empty(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/api/budgets/1/triggers", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}
