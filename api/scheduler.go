/*
scheduler.go - Automated budget alert scheduler

PURPOSE:
  Periodically evaluates every owner's budgets for the current month and
  registers each crossed threshold with the alert deduplicator. Crossings
  the deduplicator accepts are handed to the dispatcher.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Owners are evaluated concurrently, bounded by Workers
  - Every crossed threshold is registered, lowest first, so the trigger
    table records the full history of a month
  - At most one notification per (budget, month) and run: the highest
    threshold the deduplicator allowed to dispatch
  - A failing owner is logged and skipped; the run continues

CONFIGURATION:
  - CheckInterval: How often to check (default: 15 minutes)
  - Workers: Concurrent owners (default: 4)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAlertScheduler(store, analyzer, dedup, dispatcher, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: EvaluateAlerts endpoint (manual run)
  - alert/dedup.go: Deduplicator
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/cashflow-engine/alert"
	"github.com/warp/cashflow-engine/finance"
	"github.com/warp/cashflow-engine/notify"
)

// RunStats summarizes one evaluation pass.
type RunStats struct {
	Reference       time.Time
	Owners          int
	FailedOwners    int
	Budgets         int
	Crossings       int
	Created         int
	Duplicates      int
	Races           int
	Invalid         int
	StorageFailures int
	Dispatched      int
	DispatchErrors  int
}

func (s *RunStats) merge(o RunStats) {
	s.Owners += o.Owners
	s.FailedOwners += o.FailedOwners
	s.Budgets += o.Budgets
	s.Crossings += o.Crossings
	s.Created += o.Created
	s.Duplicates += o.Duplicates
	s.Races += o.Races
	s.Invalid += o.Invalid
	s.StorageFailures += o.StorageFailures
	s.Dispatched += o.Dispatched
	s.DispatchErrors += o.DispatchErrors
}

func (s *RunStats) count(r alert.Result) {
	switch r.Reason {
	case alert.ReasonCreated:
		s.Created++
	case alert.ReasonDuplicate:
		s.Duplicates++
	case alert.ReasonConstraintRace:
		s.Races++
	case alert.ReasonInvalidInput:
		s.Invalid++
	case alert.ReasonStorageFailure:
		s.StorageFailures++
	}
}

// AlertScheduler handles automated budget alert evaluation.
type AlertScheduler struct {
	Source        SnapshotSource
	Analyzer      *finance.BudgetAnalyzer
	Dedup         *alert.Deduplicator
	Dispatcher    notify.Dispatcher
	Filter        finance.ConsumptionFilter
	CheckInterval time.Duration
	Workers       int
	Enabled       bool
	Logger        *slog.Logger
	Now           func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewAlertScheduler creates a new scheduler.
func NewAlertScheduler(source SnapshotSource, analyzer *finance.BudgetAnalyzer, dedup *alert.Deduplicator, dispatcher notify.Dispatcher, logger *slog.Logger) *AlertScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertScheduler{
		Source:        source,
		Analyzer:      analyzer,
		Dedup:         dedup,
		Dispatcher:    dispatcher,
		Filter:        finance.ConsumptionFilter{Type: finance.EntryPayable},
		CheckInterval: 15 * time.Minute,
		Workers:       4,
		Enabled:       true,
		Logger:        logger.With("component", "scheduler"),
		Now:           time.Now,
	}
}

// Start begins the scheduler.
func (s *AlertScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger().Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.logger().Info("scheduler started", "check_interval", s.CheckInterval, "workers", s.Workers)
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *AlertScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger().Info("scheduler stopped")
	}
}

func (s *AlertScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.checkAndProcess(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkAndProcess(ctx)
		case <-stop:
			return
		}
	}
}

func (s *AlertScheduler) checkAndProcess(ctx context.Context) {
	stats, err := s.RunOnce(ctx, s.now())
	if err != nil {
		s.logger().Error("alert evaluation failed", "error", err)
		return
	}
	if stats.Crossings > 0 || stats.FailedOwners > 0 {
		s.logger().Info("alert evaluation completed",
			"owners", stats.Owners,
			"failed_owners", stats.FailedOwners,
			"crossings", stats.Crossings,
			"created", stats.Created,
			"duplicates", stats.Duplicates,
			"dispatched", stats.Dispatched)
	}
}

// RunOnce evaluates all owners for the month containing reference.
func (s *AlertScheduler) RunOnce(ctx context.Context, reference time.Time) (RunStats, error) {
	stats := RunStats{Reference: finance.StartOfMonth(reference)}

	owners, err := s.Source.ListOwners(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list owners: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())

	for _, ownerID := range owners {
		g.Go(func() error {
			ownerStats := s.evaluateOwner(gctx, ownerID, reference)
			mu.Lock()
			stats.merge(ownerStats)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, ctx.Err()
}

func (s *AlertScheduler) evaluateOwner(ctx context.Context, ownerID int64, reference time.Time) RunStats {
	stats := RunStats{Owners: 1}
	log := s.logger().With("owner_id", ownerID)

	snap, err := s.Source.LoadSnapshot(ctx, ownerID)
	if err != nil {
		log.Error("failed to load snapshot", "error", err)
		stats.FailedOwners++
		return stats
	}

	month := finance.NewBucket(reference)
	summaries := s.Analyzer.Summarize(finance.SummaryInput{
		Budgets: snap.Budgets,
		Entries: snap.Entries,
		Months:  []finance.Bucket{month},
		Filter:  s.Filter,
	})

	now := s.now()
	for _, summary := range summaries {
		stats.Budgets++

		var dispatch *alert.Result
		var dispatchThreshold float64
		for _, threshold := range summary.Crossed {
			stats.Crossings++
			result := s.Dedup.RegisterTrigger(ctx, alert.Request{
				BudgetID:       summary.BudgetID,
				ReferenceMonth: month.Start,
				Threshold:      threshold,
				Now:            now,
			})
			stats.count(result)
			if result.ShouldDispatch {
				r := result
				dispatch, dispatchThreshold = &r, threshold
			}
		}

		if dispatch == nil || s.Dispatcher == nil {
			continue
		}
		msg := alertMessage(ownerID, summary, dispatchThreshold, *dispatch, now)
		if err := s.Dispatcher.Dispatch(ctx, msg); err != nil {
			log.Error("failed to dispatch budget alert", "budget_id", summary.BudgetID, "error", err)
			stats.DispatchErrors++
			continue
		}
		stats.Dispatched++
	}
	return stats
}

func alertMessage(ownerID int64, summary finance.BudgetSummary, threshold float64, result alert.Result, now time.Time) notify.AlertMessage {
	msg := notify.AlertMessage{
		OwnerID:     ownerID,
		BudgetID:    summary.BudgetID,
		BudgetName:  summary.Name,
		CategoryID:  summary.CategoryID,
		Month:       summary.MonthKey,
		Status:      string(summary.Status),
		Consumption: summary.Consumption.String(),
		Limit:       summary.MonthlyLimit.String(),
		Percentage:  summary.Percentage,
		Reason:      string(result.Reason),
		Timestamp:   now.UTC(),
	}
	if formatted, err := alert.FormatThreshold(threshold); err == nil {
		msg.Threshold = formatted
	}
	if result.Record != nil {
		msg.TriggerID = result.Record.ID
	}
	return msg
}

// RunNow evaluates the current month on the scheduler's clock.
func (s *AlertScheduler) RunNow(ctx context.Context) (RunStats, error) {
	return s.RunOnce(ctx, s.now())
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *AlertScheduler) GetNextRunTime() time.Time {
	return s.now().Add(s.CheckInterval)
}

func (s *AlertScheduler) workers() int {
	if s.Workers < 1 {
		return 1
	}
	return s.Workers
}

func (s *AlertScheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AlertScheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
