package core

import (
	"time"

	"stockroom/internal/units"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is an earmark against one inventory record. It reduces
// available quantity without touching the ledger row until fulfillment.
// ReservedBase is computed once at creation with the then-current conversion
// rate and frozen; later rate changes never alter an open reservation.
//
// Status leaves active exactly once, to fulfilled or cancelled; both are
// terminal.
type Reservation struct {
	ID                int64             `json:"id"`
	InventoryRecordID int64             `json:"inventory_record_id"`
	SKU               string            `json:"sku"`
	WarehouseCode     string            `json:"warehouse_code"`
	LocationCode      string            `json:"location_code"`
	DemandRef         *string           `json:"demand_ref,omitempty"` // opaque reference to the originating demand line
	Qty               units.Quantity    `json:"qty"`
	ReservedBase      int64             `json:"reserved_base"`
	RatesMissing      bool              `json:"rates_missing"`
	Status            ReservationStatus `json:"status"`
	RequestedBy       string            `json:"requested_by"`
	Notes             string            `json:"notes"`
	ReservedAt        time.Time         `json:"reserved_at"`
	FulfilledAt       *time.Time        `json:"fulfilled_at,omitempty"`
	FulfilledBy       *string           `json:"fulfilled_by,omitempty"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy       *string           `json:"cancelled_by,omitempty"`
	CancelReason      *string           `json:"cancel_reason,omitempty"`
}

// ReserveInput is one reserve request. ExpectedBase, when supplied by the
// caller, is recomputed server-side and any disagreement is rejected.
type ReserveInput struct {
	RecordID     int64
	Qty          units.Quantity
	RequestedBy  string
	DemandRef    string
	Notes        string
	ExpectedBase *int64
}

// BulkReserveItemError pairs a failed bulk item with its error.
type BulkReserveItemError struct {
	Input ReserveInput
	Err   error
}

// BulkReserveResult reports per-item outcomes. Items run independently:
// one failure neither blocks nor rolls back the others.
type BulkReserveResult struct {
	Succeeded []Reservation
	Failed    []BulkReserveItemError
}

// FulfillBulkResult reports per-reservation fulfillment outcomes as counts
// plus an itemized failure list.
type FulfillBulkResult struct {
	FulfilledCount int
	FailedCount    int
	Failures       []FulfillFailure
}

type FulfillFailure struct {
	ReservationID int64
	Err           error
}

// ReservationFilter selects reservations for the read-only query surface.
// Zero values mean "no constraint". From/To bound reserved_at.
type ReservationFilter struct {
	WarehouseCode string
	LocationCode  string
	RecordID      int64
	SKU           string
	Status        ReservationStatus
	RequestedBy   string
	From          time.Time
	To            time.Time
}

// WarehouseSummary aggregates the active reservation ledger per warehouse.
type WarehouseSummary struct {
	WarehouseCode string `json:"warehouse_code"`
	ActiveCount   int64  `json:"active_count"`
	ReservedBase  int64  `json:"reserved_base"`
	RecordCount   int64  `json:"record_count"` // distinct inventory records with active reservations
}
