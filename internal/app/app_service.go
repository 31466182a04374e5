package app

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"stockroom/internal/core"
	"stockroom/internal/units"
)

type appService struct {
	reservations core.ReservationService
	inventory    core.InventoryService
	availability core.AvailabilityService
	queries      core.QueryService
	conversions  core.ConversionService
}

func (s *appService) Reserve(ctx context.Context, req ReserveRequest) (*ReservationResult, error) {
	res, err := s.reservations.Reserve(ctx, core.ReserveInput{
		RecordID:     req.RecordID,
		Qty:          req.Qty,
		RequestedBy:  req.RequestedBy,
		DemandRef:    req.DemandRef,
		Notes:        req.Notes,
		ExpectedBase: req.ExpectedBase,
	})
	if err != nil {
		return nil, err
	}
	return &ReservationResult{Reservation: *res}, nil
}

func (s *appService) BulkReserve(ctx context.Context, req BulkReserveRequest) (*BulkReserveResult, error) {
	if len(req.Items) == 0 {
		return nil, &core.ValidationError{Field: "items", Reason: "must not be empty"}
	}

	inputs := make([]core.ReserveInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, core.ReserveInput{
			RecordID:     item.RecordID,
			Qty:          item.Qty,
			RequestedBy:  item.RequestedBy,
			DemandRef:    item.DemandRef,
			Notes:        item.Notes,
			ExpectedBase: item.ExpectedBase,
		})
	}

	bulk := s.reservations.BulkReserve(ctx, inputs)
	result := &BulkReserveResult{Succeeded: bulk.Succeeded}
	for _, f := range bulk.Failed {
		result.Failed = append(result.Failed, BulkReserveFailure{
			RecordID: f.Input.RecordID,
			Error:    f.Err.Error(),
		})
	}
	return result, nil
}

func (s *appService) Cancel(ctx context.Context, reservationID int64, req CancelRequest) error {
	return s.reservations.Cancel(ctx, reservationID, req.RequestedBy, req.Reason)
}

func (s *appService) Fulfill(ctx context.Context, reservationID int64, req FulfillRequest) error {
	return s.reservations.Fulfill(ctx, reservationID, req.RequestedBy, req.Notes)
}

func (s *appService) FulfillBulk(ctx context.Context, req FulfillBulkRequest) (*FulfillBulkResult, error) {
	if len(req.ReservationIDs) == 0 {
		return nil, &core.ValidationError{Field: "reservation_ids", Reason: "must not be empty"}
	}

	bulk := s.reservations.FulfillBulk(ctx, req.ReservationIDs, req.RequestedBy)
	result := &FulfillBulkResult{
		FulfilledCount: bulk.FulfilledCount,
		FailedCount:    bulk.FailedCount,
	}
	for _, f := range bulk.Failures {
		result.Failures = append(result.Failures, FulfillBulkFailure{
			ReservationID: f.ReservationID,
			Error:         f.Err.Error(),
		})
	}
	return result, nil
}

func (s *appService) GetReservation(ctx context.Context, reservationID int64) (*ReservationResult, error) {
	res, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	return &ReservationResult{Reservation: *res}, nil
}

func (s *appService) QueryReservations(ctx context.Context, req QueryReservationsRequest) (*ReservationListResult, error) {
	filter := core.ReservationFilter{
		WarehouseCode: req.WarehouseCode,
		LocationCode:  req.LocationCode,
		RecordID:      req.RecordID,
		SKU:           req.SKU,
		Status:        core.ReservationStatus(req.Status),
		RequestedBy:   req.RequestedBy,
	}

	switch filter.Status {
	case "", core.ReservationActive, core.ReservationFulfilled, core.ReservationCancelled:
	default:
		return nil, &core.ValidationError{Field: "status", Reason: "must be active, fulfilled or cancelled"}
	}

	var err error
	if filter.From, err = parseDate(req.From, "from"); err != nil {
		return nil, err
	}
	if filter.To, err = parseDate(req.To, "to"); err != nil {
		return nil, err
	}
	if !filter.To.IsZero() {
		// Inclusive day bound: "to" means up to the end of that day.
		filter.To = filter.To.Add(24*time.Hour - time.Nanosecond)
	}

	reservations, err := s.queries.QueryReservations(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &ReservationListResult{Reservations: reservations, Count: len(reservations)}, nil
}

func (s *appService) GetSummaryByWarehouse(ctx context.Context) (*SummaryResult, error) {
	summaries, err := s.queries.SummaryByWarehouse(ctx)
	if err != nil {
		return nil, err
	}
	return &SummaryResult{Warehouses: summaries}, nil
}

func (s *appService) GetAvailability(ctx context.Context, recordID int64) (*AvailabilityResult, error) {
	avail, err := s.availability.AvailableFor(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return &AvailabilityResult{Availability: *avail}, nil
}

func (s *appService) CanReserve(ctx context.Context, recordID int64, requestedBase int64) (*ReserveCheckResult, error) {
	check, err := s.availability.CanReserve(ctx, recordID, requestedBase)
	if err != nil {
		return nil, err
	}
	return &ReserveCheckResult{Check: *check}, nil
}

func (s *appService) ReceiveStock(ctx context.Context, req ReceiveStockRequest) (*RecordResult, error) {
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		var err error
		if unitCost, err = decimal.NewFromString(req.UnitCost); err != nil {
			return nil, &core.ValidationError{Field: "unit_cost", Reason: "must be a decimal number"}
		}
	}

	var manufactured *time.Time
	if req.ManufacturedOn != "" {
		d, err := parseDate(req.ManufacturedOn, "manufactured_on")
		if err != nil {
			return nil, err
		}
		manufactured = &d
	}

	rec, err := s.inventory.ReceiveStock(ctx, core.ReceiveStockInput{
		SKU:            req.SKU,
		WarehouseCode:  req.WarehouseCode,
		LocationCode:   req.LocationCode,
		LotNumber:      req.LotNumber,
		ManufacturedOn: manufactured,
		Qty:            req.Qty,
		UnitCost:       unitCost,
		ReceivedBy:     req.ReceivedBy,
	})
	if err != nil {
		return nil, err
	}
	return &RecordResult{Record: rec}, nil
}

func (s *appService) AdjustStock(ctx context.Context, recordID int64, req AdjustStockRequest) (*RecordResult, error) {
	rec, err := s.inventory.AdjustStock(ctx, recordID, req.Delta, req.AdjustedBy, req.Reason)
	if err != nil {
		return nil, err
	}
	return &RecordResult{Record: rec, Pruned: rec == nil}, nil
}

func (s *appService) GetRecord(ctx context.Context, recordID int64) (*RecordResult, error) {
	rec, err := s.inventory.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return &RecordResult{Record: rec}, nil
}

func (s *appService) ListRecords(ctx context.Context, warehouseCode string) (*RecordListResult, error) {
	records, err := s.inventory.ListRecords(ctx, warehouseCode)
	if err != nil {
		return nil, err
	}
	return &RecordListResult{Records: records, Count: len(records)}, nil
}

func (s *appService) SetConversionRate(ctx context.Context, rates units.Rates) error {
	return s.conversions.SetRates(ctx, rates)
}

func (s *appService) GetConversionRate(ctx context.Context, sku string) (*units.Rates, error) {
	return s.conversions.GetRates(ctx, sku)
}

func parseDate(value, field string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, &core.ValidationError{Field: field, Reason: "must be a YYYY-MM-DD date"}
	}
	return d, nil
}
