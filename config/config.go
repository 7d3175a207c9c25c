// Package config loads engine settings from a TOML file with environment
// overrides. Values not set anywhere keep DefaultConfig.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/warp/cashflow-engine/finance"
)

// Config holds all engine configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	Budgets    BudgetsConfig    `toml:"budgets"`
	Projection ProjectionConfig `toml:"projection"`
	Alerts     AlertsConfig     `toml:"alerts"`
	AMQP       AMQPConfig       `toml:"amqp"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// BudgetsConfig holds classifier defaults injected into finance.Classifier.
type BudgetsConfig struct {
	DefaultThresholds   []float64 `toml:"default_thresholds"`
	CautionCutoff       float64   `toml:"caution_cutoff"`
	WarningCutoff       float64   `toml:"warning_cutoff"`
	ConsumptionStatuses []string  `toml:"consumption_statuses"`
}

// ProjectionConfig holds projection defaults.
type ProjectionConfig struct {
	MonthsAhead int `toml:"months_ahead"`
}

// AlertsConfig holds the alert scheduler settings.
type AlertsConfig struct {
	Enabled       bool     `toml:"enabled"`
	CheckInterval Duration `toml:"check_interval"`
	Workers       int      `toml:"workers"`
	TouchExisting bool     `toml:"touch_existing"`
}

// AMQPConfig holds broker settings. An empty URL disables AMQP dispatch.
type AMQPConfig struct {
	URL      string `toml:"url,omitempty"`
	Exchange string `toml:"exchange"`
	Queue    string `toml:"queue"`
}

// LogConfig holds slog settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration reads "15m" style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	classifier := finance.DefaultClassifierConfig()
	return Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{
			Path: "cashflow.db",
		},
		Budgets: BudgetsConfig{
			CautionCutoff: classifier.CautionCutoff,
			WarningCutoff: classifier.WarningCutoff,
		},
		Projection: ProjectionConfig{
			MonthsAhead: 6,
		},
		Alerts: AlertsConfig{
			Enabled:       true,
			CheckInterval: Duration{15 * time.Minute},
			Workers:       4,
			TouchExisting: true,
		},
		AMQP: AMQPConfig{
			Exchange: "cashflow",
			Queue:    "budget_alerts",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (skipped when empty or missing), then applies environment
// overrides. Call godotenv.Load beforehand to pick up a .env file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("reading config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Port = getEnvInt("CASHFLOW_PORT", cfg.Server.Port)
	cfg.Database.Path = getEnv("CASHFLOW_DB_PATH", cfg.Database.Path)

	if raw := os.Getenv("CASHFLOW_DEFAULT_THRESHOLDS"); raw != "" {
		cfg.Budgets.DefaultThresholds = finance.ParseThresholds(raw)
	}
	cfg.Budgets.CautionCutoff = getEnvFloat("CASHFLOW_CAUTION_CUTOFF", cfg.Budgets.CautionCutoff)
	cfg.Budgets.WarningCutoff = getEnvFloat("CASHFLOW_WARNING_CUTOFF", cfg.Budgets.WarningCutoff)

	cfg.Projection.MonthsAhead = getEnvInt("CASHFLOW_MONTHS_AHEAD", cfg.Projection.MonthsAhead)

	cfg.Alerts.Enabled = getEnvBool("CASHFLOW_ALERTS_ENABLED", cfg.Alerts.Enabled)
	cfg.Alerts.CheckInterval.Duration = getEnvDuration("CASHFLOW_ALERTS_INTERVAL", cfg.Alerts.CheckInterval.Duration)
	cfg.Alerts.Workers = getEnvInt("CASHFLOW_ALERTS_WORKERS", cfg.Alerts.Workers)

	cfg.AMQP.URL = getEnv("AMQP_URL", cfg.AMQP.URL)
	cfg.AMQP.Exchange = getEnv("AMQP_EXCHANGE", cfg.AMQP.Exchange)
	cfg.AMQP.Queue = getEnv("AMQP_QUEUE", cfg.AMQP.Queue)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)
}

// Classifier returns the injected classifier defaults.
func (c Config) Classifier() finance.ClassifierConfig {
	return finance.ClassifierConfig{
		DefaultThresholds: finance.NormalizeThresholds(c.Budgets.DefaultThresholds),
		CautionCutoff:     c.Budgets.CautionCutoff,
		WarningCutoff:     c.Budgets.WarningCutoff,
	}
}

// ConsumptionFilter returns the entry filter used for budget consumption.
func (c Config) ConsumptionFilter() finance.ConsumptionFilter {
	filter := finance.ConsumptionFilter{Type: finance.EntryPayable}
	for _, s := range c.Budgets.ConsumptionStatuses {
		filter.Statuses = append(filter.Statuses, finance.EntryStatus(s))
	}
	return filter
}

// SlogLevel maps Log.Level to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", c.Server.Port))
	}

	if c.Database.Path == "" {
		errors = append(errors, "database path cannot be empty")
	}

	for _, t := range c.Budgets.DefaultThresholds {
		if t <= 0 || t > 1 {
			errors = append(errors, fmt.Sprintf("invalid default threshold %v: must be in (0,1]", t))
		}
	}
	if c.Budgets.CautionCutoff <= 0 || c.Budgets.CautionCutoff >= 1 {
		errors = append(errors, fmt.Sprintf("invalid caution cutoff %v: must be in (0,1)", c.Budgets.CautionCutoff))
	}
	if c.Budgets.WarningCutoff <= 0 || c.Budgets.WarningCutoff >= 1 {
		errors = append(errors, fmt.Sprintf("invalid warning cutoff %v: must be in (0,1)", c.Budgets.WarningCutoff))
	}
	if c.Budgets.CautionCutoff > c.Budgets.WarningCutoff {
		errors = append(errors, "caution cutoff must not exceed warning cutoff")
	}

	valid := map[string]bool{
		string(finance.StatusPending): true, string(finance.StatusPaid): true,
		string(finance.StatusOverdue): true, string(finance.StatusCancelled): true,
	}
	for _, s := range c.Budgets.ConsumptionStatuses {
		if !valid[s] {
			errors = append(errors, fmt.Sprintf("invalid consumption status '%s'", s))
		}
	}

	if c.Projection.MonthsAhead < finance.MinMonthsAhead || c.Projection.MonthsAhead > finance.MaxMonthsAhead {
		errors = append(errors, fmt.Sprintf("invalid months ahead %d: must be between %d and %d",
			c.Projection.MonthsAhead, finance.MinMonthsAhead, finance.MaxMonthsAhead))
	}

	if c.Alerts.Enabled {
		if c.Alerts.CheckInterval.Duration < time.Second {
			errors = append(errors, fmt.Sprintf("invalid alert check interval %v: must be at least 1 second", c.Alerts.CheckInterval.Duration))
		}
		if c.Alerts.Workers < 1 {
			errors = append(errors, fmt.Sprintf("invalid alert workers %d: must be at least 1", c.Alerts.Workers))
		}
	}

	if c.AMQP.URL != "" {
		if parsedURL, err := url.Parse(c.AMQP.URL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQP.URL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQP.Exchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQP.Queue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.Log.Format))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
