package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stockroom/internal/units"
)

// InventoryService owns the quantity ledger. Receiving stock is the only way
// records come into existence; AdjustStock is the hook for external stock
// corrections. Only this service and the ReservationService mutate ledger
// rows.
type InventoryService interface {
	// ReceiveStock records a goods receipt: tops up an existing record for
	// the same SKU/warehouse/location/lot or creates a new one, maintaining
	// a weighted-average unit cost across receipts.
	ReceiveStock(ctx context.Context, in ReceiveStockInput) (*InventoryRecord, error)

	GetRecord(ctx context.Context, recordID int64) (*InventoryRecord, error)
	// ListRecords returns ledger rows, optionally filtered by warehouse.
	ListRecords(ctx context.Context, warehouseCode string) ([]InventoryRecord, error)

	// AdjustStock applies a signed per-level correction. The result must
	// stay non-negative at every level; a record adjusted to zero across
	// all levels is pruned, in which case the returned record is nil.
	//
	// Adjustments ignore active reservations on purpose: shrinking stock
	// below a frozen reservation is possible here and is caught later by
	// fulfillment's inventory-mismatch check.
	AdjustStock(ctx context.Context, recordID int64, delta units.Quantity, adjustedBy, reason string) (*InventoryRecord, error)
}

// ReceiveStockInput describes one goods receipt.
type ReceiveStockInput struct {
	SKU            string
	WarehouseCode  string
	LocationCode   string
	LotNumber      string // empty means no lot tracking for this receipt
	ManufacturedOn *time.Time
	Qty            units.Quantity
	UnitCost       decimal.Decimal // cost per base unit
	ReceivedBy     string
}

type inventoryService struct {
	pool  *pgxpool.Pool
	audit AuditSink
}

func NewInventoryService(pool *pgxpool.Pool, audit AuditSink) InventoryService {
	return &inventoryService{pool: pool, audit: audit}
}

func (s *inventoryService) ReceiveStock(ctx context.Context, in ReceiveStockInput) (*InventoryRecord, error) {
	switch {
	case in.SKU == "":
		return nil, &ValidationError{Field: "sku", Reason: "must not be empty"}
	case in.WarehouseCode == "":
		return nil, &ValidationError{Field: "warehouse_code", Reason: "must not be empty"}
	case in.LocationCode == "":
		return nil, &ValidationError{Field: "location_code", Reason: "must not be empty"}
	case in.ReceivedBy == "":
		return nil, &ValidationError{Field: "received_by", Reason: "must not be empty"}
	case in.Qty.HasNegative():
		return nil, &ValidationError{Field: "qty", Reason: "levels must be non-negative integers"}
	case in.Qty.IsZero():
		return nil, &ValidationError{Field: "qty", Reason: "must not be zero"}
	case in.UnitCost.IsNegative():
		return nil, &ValidationError{Field: "unit_cost", Reason: "must not be negative"}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lot *string
	if in.LotNumber != "" {
		lot = &in.LotNumber
	}

	rates, err := lookupRatesQ(ctx, tx, in.SKU)
	if err != nil {
		return nil, err
	}
	receivedBase, _ := units.ToBase(in.Qty, rates)

	// Lock the matching record if one exists; lot comparison treats NULL as
	// a value so untracked receipts land on the untracked row.
	var rec InventoryRecord
	err = scanInventoryRecord(tx.QueryRow(ctx, `
		SELECT`+inventoryRecordColumns+`
		FROM inventory_records
		WHERE sku = $1 AND warehouse_code = $2 AND location_code = $3
		  AND lot_number IS NOT DISTINCT FROM $4
		FOR UPDATE
	`, in.SKU, in.WarehouseCode, in.LocationCode, lot), &rec)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = scanInventoryRecord(tx.QueryRow(ctx, `
			INSERT INTO inventory_records
				(sku, warehouse_code, location_code, lot_number, manufactured_on,
				 level1_qty, level2_qty, level3_qty, unit_cost)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING`+inventoryRecordColumns,
			in.SKU, in.WarehouseCode, in.LocationCode, lot, in.ManufacturedOn,
			in.Qty.Level1, in.Qty.Level2, in.Qty.Level3, in.UnitCost), &rec)
		if err != nil {
			return nil, fmt.Errorf("failed to insert inventory record: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("failed to lock inventory record for receipt: %w", err)

	default:
		// Weighted average cost over base units:
		// new = (old_base*old_cost + recv_base*recv_cost) / (old_base + recv_base)
		oldBase, _ := units.ToBase(rec.Qty, rates)
		newCost := in.UnitCost
		if total := oldBase + receivedBase; total > 0 {
			newCost = decimal.NewFromInt(oldBase).Mul(rec.UnitCost).
				Add(decimal.NewFromInt(receivedBase).Mul(in.UnitCost)).
				Div(decimal.NewFromInt(total))
		}

		newQty := rec.Qty.Add(in.Qty)
		err = scanInventoryRecord(tx.QueryRow(ctx, `
			UPDATE inventory_records
			SET level1_qty = $1, level2_qty = $2, level3_qty = $3, unit_cost = $4, updated_at = NOW()
			WHERE id = $5
			RETURNING`+inventoryRecordColumns,
			newQty.Level1, newQty.Level2, newQty.Level3, newCost, rec.ID), &rec)
		if err != nil {
			return nil, fmt.Errorf("failed to update inventory record %d: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit goods receipt: %w", err)
	}

	ev := newAuditEvent(AuditStockReceived, in.ReceivedBy)
	ev.SKU = rec.SKU
	ev.WarehouseCode = rec.WarehouseCode
	ev.RecordID = rec.ID
	ev.Qty = in.Qty
	ev.BaseQty = receivedBase
	ev.Note = fmt.Sprintf("received into %s @ %s/base unit", rec.LocationCode, in.UnitCost)
	s.audit.Record(ctx, ev)

	return &rec, nil
}

func (s *inventoryService) GetRecord(ctx context.Context, recordID int64) (*InventoryRecord, error) {
	return fetchRecordQ(ctx, s.pool, recordID, false)
}

func (s *inventoryService) ListRecords(ctx context.Context, warehouseCode string) ([]InventoryRecord, error) {
	query := "SELECT" + inventoryRecordColumns + " FROM inventory_records"
	var args []any
	if warehouseCode != "" {
		query += " WHERE warehouse_code = $1"
		args = append(args, warehouseCode)
	}
	query += " ORDER BY sku, warehouse_code, location_code"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query inventory records: %w", err)
	}
	defer rows.Close()

	var records []InventoryRecord
	for rows.Next() {
		var rec InventoryRecord
		if err := scanInventoryRecord(rows, &rec); err != nil {
			return nil, fmt.Errorf("failed to scan inventory record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *inventoryService) AdjustStock(ctx context.Context, recordID int64, delta units.Quantity, adjustedBy, reason string) (*InventoryRecord, error) {
	if adjustedBy == "" {
		return nil, &ValidationError{Field: "adjusted_by", Reason: "must not be empty"}
	}
	if delta.IsZero() {
		return nil, &ValidationError{Field: "delta", Reason: "must not be zero"}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rec, err := fetchRecordQ(ctx, tx, recordID, true)
	if err != nil {
		return nil, err
	}

	newQty := rec.Qty.Add(delta)
	if newQty.HasNegative() {
		return nil, &ValidationError{Field: "delta", Reason: "adjustment would drive a level below zero"}
	}

	pruned := newQty.IsZero()
	if pruned {
		if _, err := tx.Exec(ctx, "DELETE FROM inventory_records WHERE id = $1", rec.ID); err != nil {
			return nil, fmt.Errorf("failed to prune inventory record %d: %w", rec.ID, err)
		}
	} else {
		err = scanInventoryRecord(tx.QueryRow(ctx, `
			UPDATE inventory_records
			SET level1_qty = $1, level2_qty = $2, level3_qty = $3, updated_at = NOW()
			WHERE id = $4
			RETURNING`+inventoryRecordColumns,
			newQty.Level1, newQty.Level2, newQty.Level3, rec.ID), rec)
		if err != nil {
			return nil, fmt.Errorf("failed to adjust inventory record %d: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}

	ev := newAuditEvent(AuditStockAdjusted, adjustedBy)
	ev.SKU = rec.SKU
	ev.WarehouseCode = rec.WarehouseCode
	ev.RecordID = rec.ID
	ev.Qty = delta
	ev.Note = reason
	s.audit.Record(ctx, ev)

	if pruned {
		pruneEv := newAuditEvent(AuditRecordPruned, adjustedBy)
		pruneEv.SKU = rec.SKU
		pruneEv.WarehouseCode = rec.WarehouseCode
		pruneEv.RecordID = rec.ID
		pruneEv.Note = fmt.Sprintf("record emptied by adjustment, location %s freed", rec.LocationCode)
		s.audit.Record(ctx, pruneEv)
		return nil, nil
	}
	return rec, nil
}
