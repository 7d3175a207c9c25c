// Package notify delivers budget alerts that the deduplicator decided to
// dispatch.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Dispatcher delivers one alert.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg AlertMessage) error
}

// LogDispatcher writes alerts to a structured log. It is the default when no
// broker is configured.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Dispatch(ctx context.Context, msg AlertMessage) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "budget alert",
		"owner_id", msg.OwnerID,
		"budget_id", msg.BudgetID,
		"budget", msg.BudgetName,
		"month", msg.Month,
		"threshold", msg.Threshold,
		"status", msg.Status,
		"percentage", msg.Percentage,
		"reason", msg.Reason)
	return nil
}

// Fanout sends every alert to all dispatchers and joins their errors.
type Fanout []Dispatcher

func (f Fanout) Dispatch(ctx context.Context, msg AlertMessage) error {
	var errs []error
	for _, d := range f {
		if err := d.Dispatch(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
