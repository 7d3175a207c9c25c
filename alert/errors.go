package alert

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateTrigger is returned by a TriggerStore whose insert lost a
	// race on the unique key and could not resolve it on its own.
	ErrDuplicateTrigger = errors.New("duplicate alert trigger")

	// ErrTriggerNotFound is returned when no trigger exists for a key.
	ErrTriggerNotFound = errors.New("alert trigger not found")

	// ErrInvalidKey is returned when a request cannot be turned into a Key.
	ErrInvalidKey = errors.New("invalid alert key")

	// ErrNoStore is reported when a Deduplicator has no TriggerStore.
	ErrNoStore = errors.New("alert trigger store not configured")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// InvalidKeyError names the offending request field.
type InvalidKeyError struct {
	Field  string
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid alert key: %s %s", e.Field, e.Reason)
}

func (e *InvalidKeyError) Unwrap() error {
	return ErrInvalidKey
}

// StoreError wraps a storage failure with the key and operation involved.
type StoreError struct {
	Op  string
	Key Key
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("alert store %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
