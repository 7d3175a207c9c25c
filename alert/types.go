/*
types.go - Alert trigger records and the dedup request/result contract

PURPOSE:
  A budget crossing a consumption threshold in a given month must notify
  exactly once, no matter how many evaluation runs, replicas or retries
  observe the crossing. The Trigger row is the durable proof that the
  notification for a (budget, month, threshold) key was claimed.

KEY:
  BudgetID        > 0
  ReferenceMonth  first day of the month, UTC
  Threshold       two decimal string ("0.90"); 0.9 and 0.90 are the same key

SEE ALSO:
  - dedup.go: Deduplicator.RegisterTrigger
  - store.go: TriggerStore contract
*/
package alert

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// KEY
// =============================================================================

// Key identifies one alert. At most one Trigger exists per Key.
type Key struct {
	BudgetID       int64
	ReferenceMonth time.Time
	Threshold      string
}

// NewKey validates and normalizes the raw request fields.
func NewKey(budgetID int64, referenceMonth time.Time, threshold float64) (Key, error) {
	if budgetID <= 0 {
		return Key{}, &InvalidKeyError{Field: "budget_id", Reason: fmt.Sprintf("must be positive, got %d", budgetID)}
	}
	if referenceMonth.IsZero() {
		return Key{}, &InvalidKeyError{Field: "reference_month", Reason: "missing"}
	}
	formatted, err := FormatThreshold(threshold)
	if err != nil {
		return Key{}, err
	}

	return Key{
		BudgetID:       budgetID,
		ReferenceMonth: firstOfMonth(referenceMonth),
		Threshold:      formatted,
	}, nil
}

// FormatThreshold renders a threshold ratio with two decimals.
func FormatThreshold(threshold float64) (string, error) {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 || threshold > 1 {
		return "", &InvalidKeyError{Field: "threshold", Reason: fmt.Sprintf("must be in (0,1], got %v", threshold)}
	}
	formatted := decimal.NewFromFloat(threshold).StringFixed(2)
	if formatted == "0.00" {
		return "", &InvalidKeyError{Field: "threshold", Reason: fmt.Sprintf("%v rounds to zero", threshold)}
	}
	return formatted, nil
}

// MonthKey returns the reference month as "2006-01".
func (k Key) MonthKey() string {
	return k.ReferenceMonth.Format("2006-01")
}

func (k Key) String() string {
	return fmt.Sprintf("budget:%d/%s/%s", k.BudgetID, k.MonthKey(), k.Threshold)
}

func firstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// TRIGGER - Durable record
// =============================================================================

// Trigger is the persisted claim for a Key. TriggeredAt moves forward each
// time a duplicate observation touches the row; CreatedAt never changes.
type Trigger struct {
	ID             string
	BudgetID       int64
	ReferenceMonth time.Time
	Threshold      string
	TriggeredAt    time.Time
	CreatedAt      time.Time
}

// Key returns the dedup key of the record.
func (t Trigger) Key() Key {
	return Key{BudgetID: t.BudgetID, ReferenceMonth: t.ReferenceMonth, Threshold: t.Threshold}
}

// =============================================================================
// REQUEST / RESULT
// =============================================================================

// Request asks whether a threshold crossing should be dispatched.
type Request struct {
	BudgetID       int64
	ReferenceMonth time.Time
	Threshold      float64

	// Now overrides the clock for TriggeredAt/CreatedAt.
	Now time.Time

	// SkipTouch leaves TriggeredAt alone when the trigger already exists.
	SkipTouch bool
}

// Reason explains a Result.
type Reason string

const (
	ReasonCreated        Reason = "created"
	ReasonDuplicate      Reason = "duplicate"
	ReasonConstraintRace Reason = "constraint-race"
	ReasonInvalidInput   Reason = "invalid-input"
	ReasonStorageFailure Reason = "storage-failure"
)

// Result is the dispatch decision.
//
// ShouldDispatch is true for a freshly created trigger and, failing open, when
// the store could not be consulted. Err carries the underlying problem for
// invalid input, storage failures and failed follow-up reads or touches.
type Result struct {
	ShouldDispatch bool
	Created        bool
	Record         *Trigger
	Reason         Reason
	Err            error
}
