/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cash-flow engine. Handles configuration,
  dependency injection, and graceful shutdown.

COMMANDS:
  serve     HTTP dashboard API plus the alert scheduler (default)
  evaluate  One alert evaluation pass, then exit
  project   Print an owner's projections as JSON

STARTUP SEQUENCE:
  1. Load .env, then the TOML config file, then environment overrides
  2. Validate configuration
  3. Configure slog
  4. Initialize SQLite store (runs migrations)
  5. Wire deduplicator, dispatcher and scheduler
  6. Start server with graceful shutdown

GLOBAL FLAGS:
  --config  TOML configuration file (default: cashflow.toml, optional)
  --db      SQLite database path, overrides config
            Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the alert scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close AMQP and database connections

ENVIRONMENT:
  See config/config.go for the full list (CASHFLOW_*, AMQP_*, LOG_*).

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Alert scheduler
  - config/config.go: Configuration
*/
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/warp/cashflow-engine/alert"
	"github.com/warp/cashflow-engine/api"
	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/finance"
	"github.com/warp/cashflow-engine/notify"
	"github.com/warp/cashflow-engine/store/sqlite"
)

var (
	flagConfig string
	flagDBPath string
)

var rootCmd = &cobra.Command{
	Use:           "cashflow",
	Short:         "Cash-flow projections and budget alerts",
	Long:          "Projects monthly cash flow, classifies budget health and sends deduplicated budget alerts.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "cashflow.toml", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(serveCmd, evaluateCmd, projectCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *sqlite.Store
	analyzer   *finance.BudgetAnalyzer
	dispatcher notify.Dispatcher
	scheduler  *api.AlertScheduler
	amqp       *notify.AMQPDispatcher
}

func loadConfig() (config.Config, error) {
	// Optional; real environment variables take precedence
	_ = godotenv.Load()

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagDBPath != "" {
		cfg.Database.Path = flagDBPath
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// newApp wires store, analyzer, deduplicator, dispatcher and scheduler.
// withAMQP is false for commands that never dispatch.
func newApp(withAMQP bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg)

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		analyzer: finance.NewBudgetAnalyzer(cfg.Classifier()),
	}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{Logger: logger}
	if withAMQP && cfg.AMQP.URL != "" {
		amqp, err := notify.NewAMQPDispatcher(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.AMQP.Queue, logger)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
		}
		a.amqp = amqp
		dispatcher = notify.Fanout{dispatcher, amqp}
	}
	a.dispatcher = dispatcher

	dedup := alert.NewDeduplicator(store, logger)
	dedup.TouchExisting = cfg.Alerts.TouchExisting

	scheduler := api.NewAlertScheduler(store, a.analyzer, dedup, dispatcher, logger)
	scheduler.Filter = cfg.ConsumptionFilter()
	scheduler.CheckInterval = cfg.Alerts.CheckInterval.Duration
	scheduler.Workers = cfg.Alerts.Workers
	scheduler.Enabled = cfg.Alerts.Enabled
	a.scheduler = scheduler

	return a, nil
}

func (a *app) Close() {
	if a.amqp != nil {
		if err := a.amqp.Close(); err != nil {
			a.logger.Warn("failed to close AMQP connection", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}
