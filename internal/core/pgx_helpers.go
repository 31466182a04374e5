package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"stockroom/internal/units"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared
// query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// maxTxRetries bounds how often a transaction is retried after losing to a
// concurrent writer before ErrConcurrencyConflict is surfaced.
const maxTxRetries = 3

// retryablePgErr reports whether err is a Postgres serialization failure
// (40001) or deadlock (40P01), both safe to retry after a full rollback.
func retryablePgErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

const inventoryRecordColumns = `
	id, sku, warehouse_code, location_code, lot_number, manufactured_on,
	level1_qty, level2_qty, level3_qty, unit_cost, created_at, updated_at`

func scanInventoryRecord(row pgx.Row, rec *InventoryRecord) error {
	return row.Scan(
		&rec.ID, &rec.SKU, &rec.WarehouseCode, &rec.LocationCode,
		&rec.LotNumber, &rec.ManufacturedOn,
		&rec.Qty.Level1, &rec.Qty.Level2, &rec.Qty.Level3,
		&rec.UnitCost, &rec.CreatedAt, &rec.UpdatedAt,
	)
}

// fetchRecordQ loads one inventory record, optionally locking the row for
// the remainder of the transaction. Absent rows map to ErrNotFound.
func fetchRecordQ(ctx context.Context, q pgxQuerier, recordID int64, forUpdate bool) (*InventoryRecord, error) {
	sql := "SELECT" + inventoryRecordColumns + " FROM inventory_records WHERE id = $1"
	if forUpdate {
		sql += " FOR UPDATE"
	}
	var rec InventoryRecord
	if err := scanInventoryRecord(q.QueryRow(ctx, sql, recordID), &rec); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch inventory record %d: %w", recordID, err)
	}
	return &rec, nil
}

// lookupRatesQ returns the conversion rates for a SKU, or nil when none are
// configured. Missing rates are a policy case, never an error.
func lookupRatesQ(ctx context.Context, q pgxQuerier, sku string) (*units.Rates, error) {
	var r units.Rates
	err := q.QueryRow(ctx, `
		SELECT sku, level1_name, level2_name, level3_name, level1_rate, level2_rate
		FROM conversion_rates
		WHERE sku = $1
	`, sku).Scan(&r.SKU, &r.Level1Name, &r.Level2Name, &r.Level3Name, &r.Level1Rate, &r.Level2Rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up conversion rates for %s: %w", sku, err)
	}
	return &r, nil
}

// sumActiveReservationsQ sums the active reservations pinned to one record,
// per level and in frozen base units.
func sumActiveReservationsQ(ctx context.Context, q pgxQuerier, recordID int64) (units.Quantity, int64, error) {
	var sum units.Quantity
	var base int64
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(level1_qty), 0), COALESCE(SUM(level2_qty), 0),
		       COALESCE(SUM(level3_qty), 0), COALESCE(SUM(reserved_base), 0)
		FROM reservations
		WHERE inventory_record_id = $1 AND status = 'active'
	`, recordID).Scan(&sum.Level1, &sum.Level2, &sum.Level3, &base)
	if err != nil {
		return units.Quantity{}, 0, fmt.Errorf("failed to sum active reservations for record %d: %w", recordID, err)
	}
	return sum, base, nil
}

// decrementAndMaybePruneTx subtracts q from the record's three levels and
// deletes the row when the result is zero across all levels, freeing the
// location slot. The caller must already hold the row lock and must have
// verified the record covers q.
func decrementAndMaybePruneTx(ctx context.Context, tx pgx.Tx, rec *InventoryRecord, q units.Quantity) (pruned bool, err error) {
	remaining := rec.Qty.Sub(q)
	if remaining.HasNegative() {
		return false, fmt.Errorf("decrement would drive record %d negative", rec.ID)
	}

	if remaining.IsZero() {
		if _, err := tx.Exec(ctx, "DELETE FROM inventory_records WHERE id = $1", rec.ID); err != nil {
			return false, fmt.Errorf("failed to prune inventory record %d: %w", rec.ID, err)
		}
		return true, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE inventory_records
		SET level1_qty = $1, level2_qty = $2, level3_qty = $3, updated_at = NOW()
		WHERE id = $4
	`, remaining.Level1, remaining.Level2, remaining.Level3, rec.ID)
	if err != nil {
		return false, fmt.Errorf("failed to decrement inventory record %d: %w", rec.ID, err)
	}
	return false, nil
}
