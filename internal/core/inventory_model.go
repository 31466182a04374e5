package core

import (
	"time"

	"github.com/shopspring/decimal"

	"stockroom/internal/units"
)

// InventoryRecord is one row of the quantity ledger: stock of a SKU at a
// warehouse location, optionally per lot. The three level quantities are
// stored in their own units, never pre-converted, and are always >= 0.
// A record whose three quantities all reach zero is deleted so the location
// slot is immediately reusable; its history lives in the audit stream.
type InventoryRecord struct {
	ID             int64           `json:"id"`
	SKU            string          `json:"sku"`
	WarehouseCode  string          `json:"warehouse_code"`
	LocationCode   string          `json:"location_code"`
	LotNumber      *string         `json:"lot_number,omitempty"`
	ManufacturedOn *time.Time      `json:"manufactured_on,omitempty"`
	Qty            units.Quantity  `json:"qty"`
	UnitCost       decimal.Decimal `json:"unit_cost"` // weighted average receipt cost per base unit
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Availability is a derived view over one inventory record: total minus the
// sum of currently active reservations, recomputed fresh on every request.
type Availability struct {
	RecordID      int64          `json:"record_id"`
	SKU           string         `json:"sku"`
	WarehouseCode string         `json:"warehouse_code"`
	Total         units.Quantity `json:"total"`
	TotalBase     int64          `json:"total_base"`
	Reserved      units.Quantity `json:"reserved"`
	ReservedBase  int64          `json:"reserved_base"`
	Available     units.Quantity `json:"available"`
	AvailableBase int64          `json:"available_base"`
	RatesMissing  bool           `json:"rates_missing"`
	OutOfStock    bool           `json:"is_out_of_stock"`
	LowStock      bool           `json:"is_low_stock"`
}

// ReserveCheck is the advisory result of CanReserve. It is not a promise:
// stock can move between the check and the reserve call, so callers must
// still handle InsufficientStockError from Reserve itself.
type ReserveCheck struct {
	Can           bool  `json:"can"`
	AvailableBase int64 `json:"available_base"`
	Shortfall     int64 `json:"shortfall"`
}
