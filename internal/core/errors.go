package core

import (
	"errors"
	"fmt"
)

// Sentinel errors, matched with errors.Is.
var (
	// ErrNotFound covers any lookup of a record or reservation that does
	// not exist, including records pruned after reaching zero.
	ErrNotFound = errors.New("not found")

	// ErrConcurrencyConflict is returned when a write transaction keeps
	// losing to concurrent writers past the retry budget. The operation
	// had no effect and is safe to resubmit.
	ErrConcurrencyConflict = errors.New("concurrent modification conflict, retry the operation")
)

// ValidationError rejects malformed input before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientStockError rejects a reservation that exceeds what is
// available at one level (or in base units, Level "base"). The requested
// and available figures let the caller decide whether to retry smaller.
type InsufficientStockError struct {
	Level     string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock at %s: requested %d, available %d",
		e.Level, e.Requested, e.Available)
}

// Shortfall is how much the request overshoots availability.
func (e *InsufficientStockError) Shortfall() int64 {
	return e.Requested - e.Available
}

// AlreadyTerminalError rejects a state change on a reservation that has
// already left active. Terminal states never transition again.
type AlreadyTerminalError struct {
	Status ReservationStatus
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("reservation is already %s", e.Status)
}

// InventoryMismatchError rejects a fulfillment whose record no longer
// covers the frozen reservation at some level. The ledger is never clamped
// or driven negative; the discrepancy is surfaced for manual resolution.
type InventoryMismatchError struct {
	Level    string
	Reserved int64
	OnHand   int64
}

func (e *InventoryMismatchError) Error() string {
	return fmt.Sprintf("inventory mismatch at %s: reservation holds %d but record has %d",
		e.Level, e.Reserved, e.OnHand)
}
