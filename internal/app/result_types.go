package app

import (
	"stockroom/internal/core"
)

type ReservationResult struct {
	Reservation core.Reservation `json:"reservation"`
}

type ReservationListResult struct {
	Reservations []core.Reservation `json:"reservations"`
	Count        int                `json:"count"`
}

// BulkReserveFailure flattens a per-item error for transport.
type BulkReserveFailure struct {
	RecordID int64  `json:"record_id"`
	Error    string `json:"error"`
}

type BulkReserveResult struct {
	Succeeded []core.Reservation   `json:"succeeded"`
	Failed    []BulkReserveFailure `json:"failed"`
}

type FulfillBulkFailure struct {
	ReservationID int64  `json:"reservation_id"`
	Error         string `json:"error"`
}

type FulfillBulkResult struct {
	FulfilledCount int                  `json:"fulfilled_count"`
	FailedCount    int                  `json:"failed_count"`
	Failures       []FulfillBulkFailure `json:"failures"`
}

type SummaryResult struct {
	Warehouses []core.WarehouseSummary `json:"warehouses"`
}

type AvailabilityResult struct {
	Availability core.Availability `json:"availability"`
}

type ReserveCheckResult struct {
	Check core.ReserveCheck `json:"check"`
}

// RecordResult carries an inventory record. Record is nil when the
// operation pruned the row (all three levels reached zero).
type RecordResult struct {
	Record *core.InventoryRecord `json:"record"`
	Pruned bool                  `json:"pruned,omitempty"`
}

type RecordListResult struct {
	Records []core.InventoryRecord `json:"records"`
	Count   int                    `json:"count"`
}
