package core

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockroom/internal/units"
)

// AvailabilityService derives available stock on demand: current ledger row
// minus the sum of active reservations, in levels and in base units. Nothing
// here is cached or stored; the ledger and the reservation table stay the
// only sources of truth.
type AvailabilityService interface {
	AvailableFor(ctx context.Context, recordID int64) (*Availability, error)

	// CanReserve is a read-only convenience pre-check in base units. It is
	// advisory only: callers must still handle InsufficientStockError from
	// Reserve, because stock can move in between.
	CanReserve(ctx context.Context, recordID int64, requestedBase int64) (*ReserveCheck, error)
}

type availabilityService struct {
	pool              *pgxpool.Pool
	lowStockThreshold int64 // base units; available at or below this flags low stock
}

func NewAvailabilityService(pool *pgxpool.Pool, lowStockThreshold int64) AvailabilityService {
	return &availabilityService{pool: pool, lowStockThreshold: lowStockThreshold}
}

func (s *availabilityService) AvailableFor(ctx context.Context, recordID int64) (*Availability, error) {
	rec, err := fetchRecordQ(ctx, s.pool, recordID, false)
	if err != nil {
		return nil, err
	}
	rates, err := lookupRatesQ(ctx, s.pool, rec.SKU)
	if err != nil {
		return nil, err
	}
	reserved, reservedBase, err := sumActiveReservationsQ(ctx, s.pool, recordID)
	if err != nil {
		return nil, err
	}

	totalBase, ratesMissing := units.ToBase(rec.Qty, rates)
	availableBase := totalBase - reservedBase

	return &Availability{
		RecordID:      rec.ID,
		SKU:           rec.SKU,
		WarehouseCode: rec.WarehouseCode,
		Total:         rec.Qty,
		TotalBase:     totalBase,
		Reserved:      reserved,
		ReservedBase:  reservedBase,
		Available:     rec.Qty.Sub(reserved),
		AvailableBase: availableBase,
		RatesMissing:  ratesMissing,
		OutOfStock:    availableBase <= 0,
		LowStock:      availableBase > 0 && availableBase <= s.lowStockThreshold,
	}, nil
}

func (s *availabilityService) CanReserve(ctx context.Context, recordID int64, requestedBase int64) (*ReserveCheck, error) {
	if requestedBase < 0 {
		return nil, &ValidationError{Field: "requested_base", Reason: "must be non-negative"}
	}

	avail, err := s.AvailableFor(ctx, recordID)
	if err != nil {
		return nil, err
	}

	check := &ReserveCheck{
		Can:           requestedBase <= avail.AvailableBase,
		AvailableBase: avail.AvailableBase,
	}
	if !check.Can {
		check.Shortfall = requestedBase - avail.AvailableBase
	}
	return check, nil
}
