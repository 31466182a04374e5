package core_test

import (
	"context"
	"errors"
	"testing"

	"stockroom/internal/audit"
	"stockroom/internal/core"
	"stockroom/internal/units"
)

func TestAvailability_BaseMath(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})
	avail := core.NewAvailabilityService(pool, 10)

	// 2 cartons + 5 boxes + 30 pieces = 288 + 60 + 30 = 378 base.
	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 2, Level2: 5, Level3: 30})

	if _, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level1: 1, Level3: 10}, RequestedBy: "alice",
	}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	a, err := avail.AvailableFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AvailableFor failed: %v", err)
	}
	if a.TotalBase != 378 {
		t.Errorf("Expected total_base 378, got %d", a.TotalBase)
	}
	if a.ReservedBase != 154 {
		t.Errorf("Expected reserved_base 154, got %d", a.ReservedBase)
	}
	if a.AvailableBase != 224 {
		t.Errorf("Expected available_base 224, got %d", a.AvailableBase)
	}
	want := units.Quantity{Level1: 1, Level2: 5, Level3: 20}
	if a.Available != want {
		t.Errorf("Expected available %+v, got %+v", want, a.Available)
	}
	if a.RatesMissing {
		t.Error("Expected rates_missing false")
	}
	if a.OutOfStock || a.LowStock {
		t.Errorf("Expected healthy stock flags, got out_of_stock=%v low_stock=%v", a.OutOfStock, a.LowStock)
	}
}

func TestAvailability_MissingRatesFlag(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	inv := core.NewInventoryService(pool, audit.Nop{})
	avail := core.NewAvailabilityService(pool, 10)

	rec := receiveRecord(t, inv, "NO-RATES", "WH1", "B-01-01", units.Quantity{Level1: 2, Level3: 3})

	a, err := avail.AvailableFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AvailableFor failed: %v", err)
	}
	if !a.RatesMissing {
		t.Error("Expected rates_missing true for unconfigured SKU")
	}
	if a.TotalBase != 5 {
		t.Errorf("Expected naive-sum total_base 5, got %d", a.TotalBase)
	}
}

func TestAvailability_StockFlags(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})
	avail := core.NewAvailabilityService(pool, 50)

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level3: 60})

	// 60 - 20 = 40 pieces left, at or below the threshold of 50.
	if _, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level3: 20}, RequestedBy: "alice",
	}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	a, err := avail.AvailableFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AvailableFor failed: %v", err)
	}
	if !a.LowStock || a.OutOfStock {
		t.Errorf("Expected low_stock only, got out_of_stock=%v low_stock=%v", a.OutOfStock, a.LowStock)
	}

	// Reserve the rest: fully committed.
	if _, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level3: 40}, RequestedBy: "alice",
	}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	a, err = avail.AvailableFor(ctx, rec.ID)
	if err != nil {
		t.Fatalf("AvailableFor failed: %v", err)
	}
	if !a.OutOfStock || a.LowStock {
		t.Errorf("Expected out_of_stock only, got out_of_stock=%v low_stock=%v", a.OutOfStock, a.LowStock)
	}
}

func TestCanReserve_Advisory(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()
	ctx := context.Background()

	seedRates(t, pool, "WIDGET-A", 144, 12)
	inv := core.NewInventoryService(pool, audit.Nop{})
	rsv := core.NewReservationService(pool, audit.Nop{})
	avail := core.NewAvailabilityService(pool, 10)

	rec := receiveRecord(t, inv, "WIDGET-A", "WH1", "A-01-01", units.Quantity{Level1: 1}) // 144 base

	check, err := avail.CanReserve(ctx, rec.ID, 100)
	if err != nil {
		t.Fatalf("CanReserve failed: %v", err)
	}
	if !check.Can || check.AvailableBase != 144 || check.Shortfall != 0 {
		t.Errorf("Expected yes/144/0, got %+v", check)
	}

	check, err = avail.CanReserve(ctx, rec.ID, 200)
	if err != nil {
		t.Fatalf("CanReserve failed: %v", err)
	}
	if check.Can || check.Shortfall != 56 {
		t.Errorf("Expected no with shortfall 56, got %+v", check)
	}

	// Advisory only: the answer can go stale the moment it is returned.
	if _, err := rsv.Reserve(ctx, core.ReserveInput{
		RecordID: rec.ID, Qty: units.Quantity{Level1: 1}, RequestedBy: "alice",
	}); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	check, err = avail.CanReserve(ctx, rec.ID, 1)
	if err != nil {
		t.Fatalf("CanReserve failed: %v", err)
	}
	if check.Can || check.AvailableBase != 0 {
		t.Errorf("Expected exhausted record, got %+v", check)
	}
}

func TestAvailability_UnknownRecord(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	avail := core.NewAvailabilityService(pool, 10)
	if _, err := avail.AvailableFor(context.Background(), 999999); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
