package app

import (
	"context"

	"stockroom/internal/core"
	"stockroom/internal/units"
)

// ApplicationService is the single interface all transport adapters call.
// It decouples presentation from the reservation core; implementations
// contain no HTTP, no display logic, and no SQL of their own.
type ApplicationService interface {
	// Reserve earmarks stock on one inventory record for pending demand.
	Reserve(ctx context.Context, req ReserveRequest) (*ReservationResult, error)

	// BulkReserve runs each item independently; partial success is normal.
	BulkReserve(ctx context.Context, req BulkReserveRequest) (*BulkReserveResult, error)

	// Cancel releases an active reservation without touching the ledger.
	Cancel(ctx context.Context, reservationID int64, req CancelRequest) error

	// Fulfill converts an active reservation into an inventory deduction.
	Fulfill(ctx context.Context, reservationID int64, req FulfillRequest) error

	// FulfillBulk fulfills reservations independently, partial-success.
	FulfillBulk(ctx context.Context, req FulfillBulkRequest) (*FulfillBulkResult, error)

	GetReservation(ctx context.Context, reservationID int64) (*ReservationResult, error)

	// QueryReservations filters the reservation ledger.
	QueryReservations(ctx context.Context, req QueryReservationsRequest) (*ReservationListResult, error)

	// GetSummaryByWarehouse aggregates active reservations per warehouse.
	GetSummaryByWarehouse(ctx context.Context) (*SummaryResult, error)

	// GetAvailability recomputes availability for one record on demand.
	GetAvailability(ctx context.Context, recordID int64) (*AvailabilityResult, error)

	// CanReserve is the advisory base-unit pre-check.
	CanReserve(ctx context.Context, recordID int64, requestedBase int64) (*ReserveCheckResult, error)

	// ReceiveStock records a goods receipt, creating the record if needed.
	ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*RecordResult, error)

	// AdjustStock applies an external stock correction. A record emptied by
	// the adjustment is pruned and the result carries a nil record.
	AdjustStock(ctx context.Context, recordID int64, req AdjustStockRequest) (*RecordResult, error)

	GetRecord(ctx context.Context, recordID int64) (*RecordResult, error)
	ListRecords(ctx context.Context, warehouseCode string) (*RecordListResult, error)

	SetConversionRate(ctx context.Context, rates units.Rates) error
	GetConversionRate(ctx context.Context, sku string) (*units.Rates, error)
}

// NewAppService wires the core services behind the ApplicationService.
func NewAppService(
	reservations core.ReservationService,
	inventory core.InventoryService,
	availability core.AvailabilityService,
	queries core.QueryService,
	conversions core.ConversionService,
) ApplicationService {
	return &appService{
		reservations: reservations,
		inventory:    inventory,
		availability: availability,
		queries:      queries,
		conversions:  conversions,
	}
}
