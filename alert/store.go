package alert

import (
	"context"
	"time"
)

// TriggerStore persists alert triggers. Implementations must be safe for
// concurrent use and enforce uniqueness of Key.
//
// IMPLEMENTATIONS:
//   - alert/store/memory.go: in-process map guarded by a mutex
//   - store/sqlite/sqlite.go: INSERT ... ON CONFLICT DO NOTHING on a unique index
type TriggerStore interface {
	// FindOrCreate inserts t unless a trigger with the same key exists, in
	// which case the existing row is returned with created=false. A store
	// that detects a lost insert race without being able to read the
	// winner returns ErrDuplicateTrigger.
	FindOrCreate(ctx context.Context, t Trigger) (stored Trigger, created bool, err error)

	// Find returns ErrTriggerNotFound when the key has no trigger.
	Find(ctx context.Context, key Key) (Trigger, error)

	// Touch sets TriggeredAt and returns the updated row.
	Touch(ctx context.Context, key Key, at time.Time) (Trigger, error)

	// List returns a budget's triggers ordered by month then threshold.
	List(ctx context.Context, budgetID int64) ([]Trigger, error)
}
