package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"stockroom/internal/audit"
	"stockroom/internal/core"
	"stockroom/internal/units"
)

func TestReserve_TracksAvailability(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})
	avail := core.NewAvailabilityService(pool, 10)

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})

	res, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID:    rec.ID,
		Qty:         units.Quantity{Level1: 3},
		RequestedBy: "alice",
		DemandRef:   "SO-1001",
	})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if res.Status != core.ReservationActive {
		t.Errorf("Expected status active, got %s", res.Status)
	}
	if res.ReservedBase != 3*144 {
		t.Errorf("Expected reserved_base %d, got %d", 3*144, res.ReservedBase)
	}
	if res.RatesMissing {
		t.Error("Expected rates_missing false")
	}

	// Ledger row itself is untouched; only availability shrinks.
	got, err := inv.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Qty.Level1 != 10 {
		t.Errorf("Expected on-hand unchanged at 10, got %d", got.Qty.Level1)
	}

	a, err := avail.AvailableFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AvailableFor failed: %v", err)
	}
	if a.Available.Level1 != 7 {
		t.Errorf("Expected 7 cartons available, got %d", a.Available.Level1)
	}
	if a.AvailableBase != 7*144 {
		t.Errorf("Expected available_base %d, got %d", 7*144, a.AvailableBase)
	}

	// 8 > 7 available: rejected with the exact shortfall, nothing written.
	_, err = rsv.Reserve(ctx, core.ReserveInput{
		RecordID:    rec.ID,
		Qty:         units.Quantity{Level1: 8},
		RequestedBy: "bob",
	})
	var insErr *core.InsufficientStockError
	if !errors.As(err, &insErr) {
		t.Fatalf("Expected InsufficientStockError, got %v", err)
	}
	if insErr.Shortfall() != 1 {
		t.Errorf("Expected shortfall 1, got %d", insErr.Shortfall())
	}

	a, err = avail.AvailableFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AvailableFor failed: %v", err)
	}
	if a.Available.Level1 != 7 {
		t.Errorf("Expected availability unchanged at 7 after rejection, got %d", a.Available.Level1)
	}
}

func TestReserve_MissingRatesFallsBackToNaiveSum(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	// No conversion rates for this SKU.
	rec := receiveRecord(t, inv, "NO-RATES", "WH1", "B-02-02", units.Quantity{Level1: 5, Level2: 5, Level3: 5})

	res, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID:    rec.ID,
		Qty:         units.Quantity{Level1: 2, Level2: 3, Level3: 5},
		RequestedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if res.ReservedBase != 10 {
		t.Errorf("Expected naive-sum reserved_base 10, got %d", res.ReservedBase)
	}
	if !res.RatesMissing {
		t.Error("Expected rates_missing flag on reservation")
	}
}

func TestReserve_ExpectedBaseMismatch(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})

	wrong := int64(100) // correct value is 288
	_, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID:     rec.ID,
		Qty:          units.Quantity{Level1: 2},
		RequestedBy:  "alice",
		ExpectedBase: &wrong,
	})
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Expected ValidationError on expected_base mismatch, got %v", err)
	}
}

func TestReserve_InputValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})
	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})

	cases := []core.ReserveInput{
		{RecordID: rec.ID, Qty: units.Quantity{}, RequestedBy: "a"},          // zero qty
		{RecordID: rec.ID, Qty: units.Quantity{Level1: -1}, RequestedBy: "a"}, // negative
		{RecordID: rec.ID, Qty: units.Quantity{Level1: 1}},                    // no requester
	}
	for i, in := range cases {
		var vErr *core.ValidationError
		if _, err := rsv.Reserve(ctx, in); !errors.As(err, &vErr) {
			t.Errorf("case %d: expected ValidationError, got %v", i, err)
		}
	}

	if _, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID:    999999,
		Qty:         units.Quantity{Level1: 1},
		RequestedBy: "a",
	}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing record, got %v", err)
	}
}

func TestCancel_ReleasesAndIsTerminal(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})
	avail := core.NewAvailabilityService(pool, 10)

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})
	res, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level1: 4}, RequestedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if err := rsv.Cancel(ctx, res.ID, "alice", "customer changed order"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	got, err := rsv.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetReservation failed: %v", err)
	}
	if got.Status != core.ReservationCancelled {
		t.Errorf("Expected status cancelled, got %s", got.Status)
	}
	if got.CancelledAt == nil || got.CancelReason == nil || *got.CancelReason != "customer changed order" {
		t.Errorf("Expected cancellation metadata, got %+v", got)
	}

	// Full availability restored; ledger never moved.
	a, err := avail.AvailableFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AvailableFor failed: %v", err)
	}
	if a.Available.Level1 != 10 {
		t.Errorf("Expected 10 available after cancel, got %d", a.Available.Level1)
	}

	// Second cancel hits a terminal reservation.
	var termErr *core.AlreadyTerminalError
	if err := rsv.Cancel(ctx, res.ID, "alice", "again"); !errors.As(err, &termErr) {
		t.Fatalf("Expected AlreadyTerminalError on double cancel, got %v", err)
	}
	if termErr.Status != core.ReservationCancelled {
		t.Errorf("Expected terminal status cancelled, got %s", termErr.Status)
	}

	if err := rsv.Cancel(ctx, 999999, "alice", "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFulfill_DecrementsLedger(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})
	res, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level1: 3}, RequestedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if err := rsv.Fulfill(ctx, res.ID, "warehouse-bot", "picked from A-01-01"); err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}

	got, err := inv.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Qty.Level1 != 7 {
		t.Errorf("Expected 7 cartons on hand after fulfillment, got %d", got.Qty.Level1)
	}

	done, err := rsv.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetReservation failed: %v", err)
	}
	if done.Status != core.ReservationFulfilled {
		t.Errorf("Expected status fulfilled, got %s", done.Status)
	}
	if done.FulfilledAt == nil || done.FulfilledBy == nil || *done.FulfilledBy != "warehouse-bot" {
		t.Errorf("Expected fulfillment metadata, got %+v", done)
	}

	// Fulfilled is terminal too.
	var termErr *core.AlreadyTerminalError
	if err := rsv.Fulfill(ctx, res.ID, "warehouse-bot", ""); !errors.As(err, &termErr) {
		t.Errorf("Expected AlreadyTerminalError on re-fulfill, got %v", err)
	}
	if err := rsv.Cancel(ctx, res.ID, "alice", "too late"); !errors.As(err, &termErr) {
		t.Errorf("Expected AlreadyTerminalError cancelling a fulfilled reservation, got %v", err)
	}
}

func TestFulfill_ExactExhaustionPrunesRecord(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 2, Level2: 3})
	res, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level1: 2, Level2: 3}, RequestedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if err := rsv.Fulfill(ctx, res.ID, "warehouse-bot", ""); err != nil {
		t.Fatalf("Fulfill failed: %v", err)
	}

	// Record drained to zero on every level: the row is gone.
	if _, err := inv.GetRecord(ctx, rec.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected pruned record, got %v", err)
	}

	// The fulfilled reservation outlives its record.
	done, err := rsv.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetReservation after prune failed: %v", err)
	}
	if done.Status != core.ReservationFulfilled {
		t.Errorf("Expected status fulfilled, got %s", done.Status)
	}
}

func TestFulfill_InventoryMismatchAfterShrink(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})
	res, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level1: 3}, RequestedBy: "alice",
	})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	// A cycle count shrinks the record below the reservation.
	if _, err := inv.AdjustStock(ctx, rec.ID, units.Quantity{Level1: -8}, "bob", "shrinkage"); err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}

	var misErr *core.InventoryMismatchError
	if err := rsv.Fulfill(ctx, res.ID, "warehouse-bot", ""); !errors.As(err, &misErr) {
		t.Fatalf("Expected InventoryMismatchError, got %v", err)
	}
	if misErr.Reserved != 3 || misErr.OnHand != 2 {
		t.Errorf("Expected mismatch 3 reserved vs 2 on hand, got %+v", misErr)
	}

	// Nothing deducted, reservation still active.
	got, err := inv.GetRecord(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if got.Qty.Level1 != 2 {
		t.Errorf("Expected 2 cartons on hand, got %d", got.Qty.Level1)
	}
	still, err := rsv.GetReservation(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetReservation failed: %v", err)
	}
	if still.Status != core.ReservationActive {
		t.Errorf("Expected reservation still active, got %s", still.Status)
	}
}

func TestBulkReserve_PartialSuccess(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	recA := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})
	recB := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-02", units.Quantity{Level1: 1})

	result := rsv.BulkReserve(ctx, []core.ReserveInput{
		{RecordID: recA.ID, Qty: units.Quantity{Level1: 5}, RequestedBy: "alice"},
		{RecordID: recB.ID, Qty: units.Quantity{Level1: 5}, RequestedBy: "alice"}, // insufficient
		{RecordID: recA.ID, Qty: units.Quantity{Level1: 2}, RequestedBy: "alice"},
	})

	if len(result.Succeeded) != 2 {
		t.Errorf("Expected 2 successes, got %d", len(result.Succeeded))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("Expected 1 failure, got %d", len(result.Failed))
	}
	var insErr *core.InsufficientStockError
	if !errors.As(result.Failed[0].Err, &insErr) {
		t.Errorf("Expected InsufficientStockError on failed item, got %v", result.Failed[0].Err)
	}
	if result.Failed[0].Input.RecordID != recB.ID {
		t.Errorf("Expected failure on record %d, got %d", recB.ID, result.Failed[0].Input.RecordID)
	}
}

func TestFulfillBulk_CountsAndFailures(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})
	resA, err := rsv.Reserve(ctx, core.ReserveInput{RecordID: rec.ID, Qty: units.Quantity{Level1: 2}, RequestedBy: "alice"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	resB, err := rsv.Reserve(ctx, core.ReserveInput{RecordID: rec.ID, Qty: units.Quantity{Level1: 2}, RequestedBy: "alice"})
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := rsv.Cancel(ctx, resB.ID, "alice", "dropped"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	result := rsv.FulfillBulk(ctx, []int64{resA.ID, resB.ID, 999999}, "warehouse-bot")
	if result.FulfilledCount != 1 {
		t.Errorf("Expected 1 fulfilled, got %d", result.FulfilledCount)
	}
	if result.FailedCount != 2 || len(result.Failures) != 2 {
		t.Fatalf("Expected 2 failures, got %d (%d itemized)", result.FailedCount, len(result.Failures))
	}
	var termErr *core.AlreadyTerminalError
	if !errors.As(result.Failures[0].Err, &termErr) {
		t.Errorf("Expected AlreadyTerminalError for cancelled reservation, got %v", result.Failures[0].Err)
	}
	if !errors.Is(result.Failures[1].Err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", result.Failures[1].Err)
	}
}

// Many workers over-request a single record at once. The row lock serializes
// them: exactly as many reservations succeed as the stock covers, and the
// active ledger never exceeds on-hand.
func TestConcurrentReserves_NoOversell(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 10})

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = rsv.Reserve(ctx, core.ReserveInput{
				RecordID:    rec.ID,
				Qty:         units.Quantity{Level1: 2},
				RequestedBy: "worker",
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var insErr *core.InsufficientStockError
		if !errors.As(err, &insErr) {
			t.Errorf("Unexpected error kind: %v", err)
		}
	}
	if succeeded != 5 {
		t.Errorf("Expected exactly 5 of %d reservations to succeed, got %d", workers, succeeded)
	}

	var totalReserved int64
	err := pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(level1_qty), 0) FROM reservations WHERE inventory_record_id = $1 AND status = 'active'",
		rec.ID,
	).Scan(&totalReserved)
	if err != nil {
		t.Fatalf("Failed to sum active reservations: %v", err)
	}
	if totalReserved != 10 {
		t.Errorf("Expected active ledger to hold exactly 10 cartons, got %d", totalReserved)
	}
}
