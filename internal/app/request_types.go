package app

import (
	"stockroom/internal/units"
)

// ReserveRequest is the transport-facing reserve payload. The engine
// recomputes the base total itself; ExpectedBase, when present, must agree
// or the request is rejected.
type ReserveRequest struct {
	RecordID     int64          `json:"record_id"`
	Qty          units.Quantity `json:"qty"`
	RequestedBy  string         `json:"requested_by"`
	DemandRef    string         `json:"demand_ref,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	ExpectedBase *int64         `json:"expected_base,omitempty"`
}

type BulkReserveRequest struct {
	Items []ReserveRequest `json:"items"`
}

type CancelRequest struct {
	RequestedBy string `json:"requested_by"`
	Reason      string `json:"reason,omitempty"`
}

type FulfillRequest struct {
	RequestedBy string `json:"requested_by"`
	Notes       string `json:"notes,omitempty"`
}

type FulfillBulkRequest struct {
	ReservationIDs []int64 `json:"reservation_ids"`
	RequestedBy    string  `json:"requested_by"`
}

// QueryReservationsRequest filters the reservation ledger. From/To are
// YYYY-MM-DD dates; empty fields are unconstrained.
type QueryReservationsRequest struct {
	WarehouseCode string `json:"warehouse_code,omitempty"`
	LocationCode  string `json:"location_code,omitempty"`
	RecordID      int64  `json:"record_id,omitempty"`
	SKU           string `json:"sku,omitempty"`
	Status        string `json:"status,omitempty"`
	RequestedBy   string `json:"requested_by,omitempty"`
	From          string `json:"from,omitempty"`
	To            string `json:"to,omitempty"`
}

// ReceiveStockRequest records a goods receipt. ManufacturedOn is an
// optional YYYY-MM-DD date; UnitCost is a decimal string per base unit.
type ReceiveStockRequest struct {
	SKU            string         `json:"sku"`
	WarehouseCode  string         `json:"warehouse_code"`
	LocationCode   string         `json:"location_code"`
	LotNumber      string         `json:"lot_number,omitempty"`
	ManufacturedOn string         `json:"manufactured_on,omitempty"`
	Qty            units.Quantity `json:"qty"`
	UnitCost       string         `json:"unit_cost,omitempty"`
	ReceivedBy     string         `json:"received_by"`
}

type AdjustStockRequest struct {
	Delta      units.Quantity `json:"delta"`
	AdjustedBy string         `json:"adjusted_by"`
	Reason     string         `json:"reason,omitempty"`
}
