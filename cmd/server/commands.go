package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/cashflow-engine/api"
	"github.com/warp/cashflow-engine/finance"
)

var (
	flagReference string
	flagOwner     int64
	flagMonths    int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API and the alert scheduler",
	RunE:  runServe,
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run one alert evaluation pass and exit",
	RunE:  runEvaluate,
}

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Print an owner's monthly projections as JSON",
	RunE:  runProject,
}

func init() {
	evaluateCmd.Flags().StringVar(&flagReference, "reference", "", "Reference date YYYY-MM-DD (default: today)")

	projectCmd.Flags().Int64Var(&flagOwner, "owner", 0, "Owner ID")
	projectCmd.Flags().IntVar(&flagMonths, "months", 0, "Months ahead, 1-24 (default: config)")
	projectCmd.Flags().StringVar(&flagReference, "reference", "", "Reference date YYYY-MM-DD (default: today)")
	_ = projectCmd.MarkFlagRequired("owner")
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := api.NewHandler(a.store, a.store, a.analyzer, a.logger)
	handler.Filter = a.cfg.ConsumptionFilter()
	handler.MonthsAhead = a.cfg.Projection.MonthsAhead
	handler.Scheduler = a.scheduler

	router := api.NewRouter(handler, a.cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.scheduler.Start()

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", server.Addr, "db", a.cfg.Database.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		a.scheduler.Stop()
		return fmt.Errorf("server failed: %w", err)
	}

	a.logger.Info("shutting down server")
	a.scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	a.logger.Info("server stopped")
	return nil
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	reference, err := referenceDate()
	if err != nil {
		return err
	}

	stats, err := a.scheduler.RunOnce(cmd.Context(), reference)
	if err != nil {
		return err
	}

	a.logger.Info("alert evaluation completed",
		"reference", finance.MonthKey(stats.Reference),
		"owners", stats.Owners,
		"failed_owners", stats.FailedOwners,
		"crossings", stats.Crossings,
		"created", stats.Created,
		"duplicates", stats.Duplicates,
		"races", stats.Races,
		"storage_failures", stats.StorageFailures,
		"dispatched", stats.Dispatched,
		"dispatch_errors", stats.DispatchErrors)

	if stats.FailedOwners > 0 {
		return fmt.Errorf("%d of %d owners failed", stats.FailedOwners, stats.Owners)
	}
	return nil
}

func runProject(cmd *cobra.Command, _ []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	reference, err := referenceDate()
	if err != nil {
		return err
	}
	months := flagMonths
	if months == 0 {
		months = a.cfg.Projection.MonthsAhead
	}

	snap, err := a.store.LoadSnapshot(cmd.Context(), flagOwner)
	if err != nil {
		return err
	}

	engine := &finance.ProjectionEngine{}
	projections := engine.Project(finance.ProjectionInput{
		Entries:     snap.Entries,
		Goals:       snap.Goals,
		Reference:   reference,
		MonthsAhead: months,
	})

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(projections)
}

func referenceDate() (time.Time, error) {
	if flagReference == "" {
		return time.Now().UTC(), nil
	}
	reference, err := finance.ParseDate(flagReference)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --reference: %w", err)
	}
	return reference, nil
}
