package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stockroom/internal/units"
)

// ReservationService is the reservation engine: it earmarks stock for
// pending demand, releases earmarks, and converts them into actual
// deductions. Reserve and Fulfill serialize per inventory record by locking
// the ledger row for the duration of their transaction, so two competing
// reserves can never both pass the availability check against stale sums.
// Operations on different records proceed without mutual blocking.
type ReservationService interface {
	// Reserve earmarks quantities against one inventory record. The frozen
	// base total is computed from the rates current at this moment; later
	// rate changes never alter it.
	Reserve(ctx context.Context, in ReserveInput) (*Reservation, error)

	// BulkReserve runs each item as an independent Reserve. One item's
	// failure neither rolls back nor blocks the others: a caller spreading
	// one demand across candidate locations keeps whatever succeeds.
	BulkReserve(ctx context.Context, inputs []ReserveInput) *BulkReserveResult

	// Cancel releases an active reservation. Pure status change: the ledger
	// was never decremented, so there is nothing to restore. Cancelling a
	// terminal reservation returns AlreadyTerminalError, never a silent ok.
	Cancel(ctx context.Context, reservationID int64, requestedBy, reason string) error

	// Fulfill converts an active reservation into an actual deduction. The
	// record must still cover every reserved level; otherwise the call
	// fails with InventoryMismatchError and nothing changes. A record
	// emptied by the deduction is pruned while the reservation row remains
	// queryable as fulfilled.
	Fulfill(ctx context.Context, reservationID int64, requestedBy, notes string) error

	// FulfillBulk fulfills each reservation independently, partial-success.
	FulfillBulk(ctx context.Context, ids []int64, requestedBy string) *FulfillBulkResult

	GetReservation(ctx context.Context, reservationID int64) (*Reservation, error)
}

type reservationService struct {
	pool  *pgxpool.Pool
	audit AuditSink
}

func NewReservationService(pool *pgxpool.Pool, audit AuditSink) ReservationService {
	return &reservationService{pool: pool, audit: audit}
}

const reservationColumns = `
	id, inventory_record_id, sku, warehouse_code, location_code, demand_ref,
	level1_qty, level2_qty, level3_qty, reserved_base, rates_missing,
	status, requested_by, notes, reserved_at,
	fulfilled_at, fulfilled_by, cancelled_at, cancelled_by, cancel_reason`

func scanReservation(row pgx.Row, r *Reservation) error {
	return row.Scan(
		&r.ID, &r.InventoryRecordID, &r.SKU, &r.WarehouseCode, &r.LocationCode, &r.DemandRef,
		&r.Qty.Level1, &r.Qty.Level2, &r.Qty.Level3, &r.ReservedBase, &r.RatesMissing,
		&r.Status, &r.RequestedBy, &r.Notes, &r.ReservedAt,
		&r.FulfilledAt, &r.FulfilledBy, &r.CancelledAt, &r.CancelledBy, &r.CancelReason,
	)
}

// withRetry reruns fn after serialization failures or deadlocks, up to
// maxTxRetries attempts. fn must leave no state behind on failure.
func (s *reservationService) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = fn(ctx)
		if err == nil || !retryablePgErr(err) {
			return err
		}
	}
	return ErrConcurrencyConflict
}

// ── Reserve ──────────────────────────────────────────────────────────────────

func validateReserveInput(in ReserveInput) error {
	switch {
	case in.RecordID <= 0:
		return &ValidationError{Field: "record_id", Reason: "must be a positive id"}
	case in.RequestedBy == "":
		return &ValidationError{Field: "requested_by", Reason: "must not be empty"}
	case in.Qty.HasNegative():
		return &ValidationError{Field: "qty", Reason: "levels must be non-negative integers"}
	case in.Qty.IsZero():
		return &ValidationError{Field: "qty", Reason: "must not be zero"}
	}
	return nil
}

func (s *reservationService) Reserve(ctx context.Context, in ReserveInput) (*Reservation, error) {
	if err := validateReserveInput(in); err != nil {
		return nil, err
	}

	var res *Reservation
	err := s.withRetry(ctx, func(ctx context.Context) error {
		r, err := s.reserveOnce(ctx, in)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := newAuditEvent(AuditReservationCreated, in.RequestedBy)
	ev.SKU = res.SKU
	ev.WarehouseCode = res.WarehouseCode
	ev.RecordID = res.InventoryRecordID
	ev.ReservationID = res.ID
	ev.Qty = res.Qty
	ev.BaseQty = res.ReservedBase
	ev.Note = in.Notes
	s.audit.Record(ctx, ev)

	return res, nil
}

func (s *reservationService) reserveOnce(ctx context.Context, in ReserveInput) (*Reservation, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the ledger row: single writer per record from here to commit.
	rec, err := fetchRecordQ(ctx, tx, in.RecordID, true)
	if err != nil {
		return nil, err
	}

	rates, err := lookupRatesQ(ctx, tx, rec.SKU)
	if err != nil {
		return nil, err
	}
	requestedBase, ratesMissing := units.ToBase(in.Qty, rates)

	// Defense in depth: a caller-supplied total that disagrees with the
	// server-side recomputation is rejected, not trusted.
	if in.ExpectedBase != nil && *in.ExpectedBase != requestedBase {
		return nil, &ValidationError{
			Field:  "expected_base",
			Reason: fmt.Sprintf("caller total %d disagrees with computed total %d", *in.ExpectedBase, requestedBase),
		}
	}

	reservedSum, reservedBase, err := sumActiveReservationsQ(ctx, tx, rec.ID)
	if err != nil {
		return nil, err
	}

	avail := rec.Qty.Sub(reservedSum)
	for _, lvl := range []struct {
		name                 string
		requested, available int64
	}{
		{"level1", in.Qty.Level1, avail.Level1},
		{"level2", in.Qty.Level2, avail.Level2},
		{"level3", in.Qty.Level3, avail.Level3},
	} {
		if lvl.requested > lvl.available {
			return nil, &InsufficientStockError{Level: lvl.name, Requested: lvl.requested, Available: lvl.available}
		}
	}
	totalBase, _ := units.ToBase(rec.Qty, rates)
	if availableBase := totalBase - reservedBase; requestedBase > availableBase {
		return nil, &InsufficientStockError{Level: "base", Requested: requestedBase, Available: availableBase}
	}

	var demandRef *string
	if in.DemandRef != "" {
		demandRef = &in.DemandRef
	}

	var res Reservation
	err = scanReservation(tx.QueryRow(ctx, `
		INSERT INTO reservations
			(inventory_record_id, sku, warehouse_code, location_code, demand_ref,
			 level1_qty, level2_qty, level3_qty, reserved_base, rates_missing,
			 status, requested_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'active', $11, $12)
		RETURNING`+reservationColumns,
		rec.ID, rec.SKU, rec.WarehouseCode, rec.LocationCode, demandRef,
		in.Qty.Level1, in.Qty.Level2, in.Qty.Level3, requestedBase, ratesMissing,
		in.RequestedBy, in.Notes), &res)
	if err != nil {
		return nil, fmt.Errorf("failed to insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return &res, nil
}

func (s *reservationService) BulkReserve(ctx context.Context, inputs []ReserveInput) *BulkReserveResult {
	result := &BulkReserveResult{}
	for _, in := range inputs {
		res, err := s.Reserve(ctx, in)
		if err != nil {
			result.Failed = append(result.Failed, BulkReserveItemError{Input: in, Err: err})
			continue
		}
		result.Succeeded = append(result.Succeeded, *res)
	}
	return result
}

// ── Cancel ───────────────────────────────────────────────────────────────────

func (s *reservationService) Cancel(ctx context.Context, reservationID int64, requestedBy, reason string) error {
	if requestedBy == "" {
		return &ValidationError{Field: "requested_by", Reason: "must not be empty"}
	}

	var cancelReason *string
	if reason != "" {
		cancelReason = &reason
	}

	// Atomic compare-and-set on status; no broader lock is needed because a
	// cancellation never touches the ledger.
	tag, err := s.pool.Exec(ctx, `
		UPDATE reservations
		SET status = 'cancelled', cancelled_at = NOW(), cancelled_by = $2, cancel_reason = $3
		WHERE id = $1 AND status = 'active'
	`, reservationID, requestedBy, cancelReason)
	if err != nil {
		return fmt.Errorf("failed to cancel reservation %d: %w", reservationID, err)
	}

	if tag.RowsAffected() == 0 {
		var status ReservationStatus
		err := s.pool.QueryRow(ctx, "SELECT status FROM reservations WHERE id = $1", reservationID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to fetch reservation %d: %w", reservationID, err)
		}
		return &AlreadyTerminalError{Status: status}
	}

	res, err := s.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}

	ev := newAuditEvent(AuditReservationCancelled, requestedBy)
	ev.SKU = res.SKU
	ev.WarehouseCode = res.WarehouseCode
	ev.RecordID = res.InventoryRecordID
	ev.ReservationID = res.ID
	ev.Qty = res.Qty
	ev.BaseQty = res.ReservedBase
	ev.Note = reason
	s.audit.Record(ctx, ev)

	return nil
}

// ── Fulfill ──────────────────────────────────────────────────────────────────

func (s *reservationService) Fulfill(ctx context.Context, reservationID int64, requestedBy, notes string) error {
	if requestedBy == "" {
		return &ValidationError{Field: "requested_by", Reason: "must not be empty"}
	}

	var res *Reservation
	var pruned bool
	err := s.withRetry(ctx, func(ctx context.Context) error {
		r, p, err := s.fulfillOnce(ctx, reservationID, requestedBy, notes)
		if err != nil {
			return err
		}
		res, pruned = r, p
		return nil
	})
	if err != nil {
		return err
	}

	ev := newAuditEvent(AuditReservationFulfilled, requestedBy)
	ev.SKU = res.SKU
	ev.WarehouseCode = res.WarehouseCode
	ev.RecordID = res.InventoryRecordID
	ev.ReservationID = res.ID
	ev.Qty = res.Qty
	ev.BaseQty = res.ReservedBase
	ev.Note = notes
	s.audit.Record(ctx, ev)

	if pruned {
		pruneEv := newAuditEvent(AuditRecordPruned, requestedBy)
		pruneEv.SKU = res.SKU
		pruneEv.WarehouseCode = res.WarehouseCode
		pruneEv.RecordID = res.InventoryRecordID
		pruneEv.Note = fmt.Sprintf("record emptied by fulfilling reservation %d, location freed", res.ID)
		s.audit.Record(ctx, pruneEv)
	}
	return nil
}

func (s *reservationService) fulfillOnce(ctx context.Context, reservationID int64, requestedBy, notes string) (*Reservation, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var res Reservation
	err = scanReservation(tx.QueryRow(ctx,
		"SELECT"+reservationColumns+" FROM reservations WHERE id = $1 FOR UPDATE",
		reservationID), &res)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, ErrNotFound
		}
		return nil, false, fmt.Errorf("failed to fetch reservation %d: %w", reservationID, err)
	}
	if res.Status != ReservationActive {
		return nil, false, &AlreadyTerminalError{Status: res.Status}
	}

	rec, err := fetchRecordQ(ctx, tx, res.InventoryRecordID, true)
	if errors.Is(err, ErrNotFound) {
		// The ledger row vanished under a frozen reservation (external
		// adjustment pruned it). Same policy as a per-level shortfall.
		return nil, false, &InventoryMismatchError{Level: "base", Reserved: res.ReservedBase, OnHand: 0}
	}
	if err != nil {
		return nil, false, err
	}

	// The reservation was checked against availability when it was taken;
	// re-verify against what inventory actually holds now. Never clamp,
	// never go negative.
	for _, lvl := range []struct {
		name             string
		reserved, onHand int64
	}{
		{"level1", res.Qty.Level1, rec.Qty.Level1},
		{"level2", res.Qty.Level2, rec.Qty.Level2},
		{"level3", res.Qty.Level3, rec.Qty.Level3},
	} {
		if lvl.reserved > lvl.onHand {
			return nil, false, &InventoryMismatchError{Level: lvl.name, Reserved: lvl.reserved, OnHand: lvl.onHand}
		}
	}

	pruned, err := decrementAndMaybePruneTx(ctx, tx, rec, res.Qty)
	if err != nil {
		return nil, false, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE reservations
		SET status = 'fulfilled', fulfilled_at = NOW(), fulfilled_by = $2,
		    notes = CASE WHEN $3 = '' THEN notes
		                 WHEN notes = '' THEN $3
		                 ELSE notes || '; ' || $3 END
		WHERE id = $1
	`, reservationID, requestedBy, notes)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark reservation %d fulfilled: %w", reservationID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit fulfillment: %w", err)
	}
	return &res, pruned, nil
}

func (s *reservationService) FulfillBulk(ctx context.Context, ids []int64, requestedBy string) *FulfillBulkResult {
	result := &FulfillBulkResult{}
	for _, id := range ids {
		if err := s.Fulfill(ctx, id, requestedBy, ""); err != nil {
			result.FailedCount++
			result.Failures = append(result.Failures, FulfillFailure{ReservationID: id, Err: err})
			continue
		}
		result.FulfilledCount++
	}
	return result
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *reservationService) GetReservation(ctx context.Context, reservationID int64) (*Reservation, error) {
	var res Reservation
	err := scanReservation(s.pool.QueryRow(ctx,
		"SELECT"+reservationColumns+" FROM reservations WHERE id = $1",
		reservationID), &res)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch reservation %d: %w", reservationID, err)
	}
	return &res, nil
}
