/*
handlers.go - HTTP API handlers for the cash-flow dashboard

PURPOSE:
  Exposes projections, budget health and alert triggers via a read-only
  REST API, plus a manual trigger for the alert scheduler. Handles HTTP
  request/response, JSON serialization, and delegates to the finance and
  alert packages.

ENDPOINTS:
  Health:
    GET    /health                                   Liveness + database ping

  Projections:
    GET    /api/owners/{ownerID}/projections          ?reference=YYYY-MM-DD&months=N

  Budgets:
    GET    /api/owners/{ownerID}/budgets/summary      ?from=YYYY-MM&to=YYYY-MM
    GET    /api/owners/{ownerID}/budgets/categories   ?from=YYYY-MM&to=YYYY-MM

  Alerts:
    GET    /api/budgets/{budgetID}/triggers           Stored triggers of a budget
    POST   /api/alerts/evaluate                       Run one scheduler pass (body
                                                      reference defaults to the
                                                      scheduler's clock)

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Source: owner snapshots (SQLite store in production)
  - Triggers: alert trigger listing
  - Engine/Analyzer: pure finance computations
  - Scheduler: alert evaluation for the manual endpoint

REQUEST FLOW:
  1. Parse path and query parameters
  2. Load the owner's snapshot once
  3. Call domain logic (projection, summary, category rollup)
  4. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid path or query parameters
  - 500: Storage errors
  - 503: Database unreachable, or scheduler not configured

SEE ALSO:
  - dto.go: Response data structures
  - scheduler.go: Alert scheduler
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/cashflow-engine/alert"
	"github.com/warp/cashflow-engine/finance"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// SnapshotSource loads the data a computation run reads.
type SnapshotSource interface {
	ListOwners(ctx context.Context) ([]int64, error)
	LoadSnapshot(ctx context.Context, ownerID int64) (finance.Snapshot, error)
}

// TriggerLister lists the stored alert triggers of a budget.
type TriggerLister interface {
	List(ctx context.Context, budgetID int64) ([]alert.Trigger, error)
}

// Pinger is implemented by sources that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Source    SnapshotSource
	Triggers  TriggerLister
	Engine    *finance.ProjectionEngine
	Analyzer  *finance.BudgetAnalyzer
	Scheduler *AlertScheduler
	Filter    finance.ConsumptionFilter
	Logger    *slog.Logger

	// MonthsAhead is used when the request does not set ?months.
	MonthsAhead int
	Now         func() time.Time
}

// NewHandler creates a new handler with default finance components.
func NewHandler(source SnapshotSource, triggers TriggerLister, analyzer *finance.BudgetAnalyzer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if analyzer == nil {
		analyzer = finance.NewBudgetAnalyzer(finance.DefaultClassifierConfig())
	}
	return &Handler{
		Source:      source,
		Triggers:    triggers,
		Engine:      &finance.ProjectionEngine{},
		Analyzer:    analyzer,
		Filter:      finance.ConsumptionFilter{Type: finance.EntryPayable},
		Logger:      logger.With("component", "api"),
		MonthsAhead: 6,
		Now:         time.Now,
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness and, when available, database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Source.(Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// PROJECTION ENDPOINTS
// =============================================================================

// GetProjections returns monthly cash-flow projections for an owner.
func (h *Handler) GetProjections(w http.ResponseWriter, r *http.Request) {
	ownerID, err := pathInt64(r, "ownerID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner id", err)
		return
	}

	reference := h.now()
	if raw := r.URL.Query().Get("reference"); raw != "" {
		reference, err = finance.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid reference date", err)
			return
		}
	}

	months := h.MonthsAhead
	if raw := r.URL.Query().Get("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid months", err)
			return
		}
	}
	months = finance.ClampMonthsAhead(months)

	snap, err := h.Source.LoadSnapshot(r.Context(), ownerID)
	if err != nil {
		h.storageError(w, r, "failed to load snapshot", err)
		return
	}

	projections := h.Engine.Project(finance.ProjectionInput{
		Entries:     snap.Entries,
		Goals:       snap.Goals,
		Reference:   reference,
		MonthsAhead: months,
	})

	writeJSON(w, http.StatusOK, ProjectionResponse{
		OwnerID:     ownerID,
		Reference:   reference.Format("2006-01-02"),
		MonthsAhead: months,
		Months:      toProjectionDTOs(projections),
	})
}

// =============================================================================
// BUDGET ENDPOINTS
// =============================================================================

// GetBudgetSummaries returns one summary per budget per month in range.
func (h *Handler) GetBudgetSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, ok := h.summarize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toBudgetSummaryDTOs(summaries))
}

// GetCategoryConsumption returns budget summaries rolled up per category.
func (h *Handler) GetCategoryConsumption(w http.ResponseWriter, r *http.Request) {
	summaries, ok := h.summarize(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTOs(finance.AggregateByCategory(summaries)))
}

func (h *Handler) summarize(w http.ResponseWriter, r *http.Request) ([]finance.BudgetSummary, bool) {
	ownerID, err := pathInt64(r, "ownerID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner id", err)
		return nil, false
	}

	months, err := h.monthRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month range", err)
		return nil, false
	}

	snap, err := h.Source.LoadSnapshot(r.Context(), ownerID)
	if err != nil {
		h.storageError(w, r, "failed to load snapshot", err)
		return nil, false
	}

	return h.Analyzer.Summarize(finance.SummaryInput{
		Budgets: snap.Budgets,
		Entries: snap.Entries,
		Months:  months,
		Filter:  h.Filter,
	}), true
}

// monthRange reads ?from and ?to; both default to the current month.
func (h *Handler) monthRange(r *http.Request) ([]finance.Bucket, error) {
	current := finance.StartOfMonth(h.now())
	from, to := current, current

	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := finance.ParseMonth(raw)
		if err != nil {
			return nil, err
		}
		from, to = parsed, parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := finance.ParseMonth(raw)
		if err != nil {
			return nil, err
		}
		to = parsed
	}
	if to.Before(from) {
		return nil, fmt.Errorf("to %s precedes from %s", finance.MonthKey(to), finance.MonthKey(from))
	}
	return finance.MonthRange(from, to), nil
}

// =============================================================================
// ALERT ENDPOINTS
// =============================================================================

// ListTriggers returns the stored alert triggers of a budget.
func (h *Handler) ListTriggers(w http.ResponseWriter, r *http.Request) {
	budgetID, err := pathInt64(r, "budgetID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid budget id", err)
		return
	}

	triggers, err := h.Triggers.List(r.Context(), budgetID)
	if err != nil {
		h.storageError(w, r, "failed to list triggers", err)
		return
	}
	writeJSON(w, http.StatusOK, toTriggerDTOs(triggers))
}

// EvaluateAlerts runs one alert evaluation pass immediately.
func (h *Handler) EvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "alert scheduler not configured", nil)
		return
	}

	var req EvaluateAlertsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var stats RunStats
	var err error
	if req.Reference == "" {
		stats, err = h.Scheduler.RunNow(r.Context())
	} else {
		reference, parseErr := finance.ParseDate(req.Reference)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, "invalid reference date", parseErr)
			return
		}
		stats, err = h.Scheduler.RunOnce(r.Context(), reference)
	}
	if err != nil {
		h.storageError(w, r, "alert evaluation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toEvaluateResponse(stats))
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) storageError(w http.ResponseWriter, r *http.Request, message string, err error) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(r.Context(), message, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, message, err)
}

func pathInt64(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", name, raw)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
