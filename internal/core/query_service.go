package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryService is the read-only surface over the reservation ledger. It
// adds no invariants of its own; it faithfully reflects stored state.
type QueryService interface {
	QueryReservations(ctx context.Context, f ReservationFilter) ([]Reservation, error)
	// SummaryByWarehouse aggregates active reservations per warehouse.
	SummaryByWarehouse(ctx context.Context) ([]WarehouseSummary, error)
}

type queryService struct {
	pool *pgxpool.Pool
}

func NewQueryService(pool *pgxpool.Pool) QueryService {
	return &queryService{pool: pool}
}

func (s *queryService) QueryReservations(ctx context.Context, f ReservationFilter) ([]Reservation, error) {
	query := "SELECT" + reservationColumns + " FROM reservations WHERE 1=1"
	var args []any

	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND %s $%d", clause, len(args))
	}

	if f.WarehouseCode != "" {
		add("warehouse_code =", f.WarehouseCode)
	}
	if f.LocationCode != "" {
		add("location_code =", f.LocationCode)
	}
	if f.RecordID != 0 {
		add("inventory_record_id =", f.RecordID)
	}
	if f.SKU != "" {
		add("sku =", f.SKU)
	}
	if f.Status != "" {
		add("status =", string(f.Status))
	}
	if f.RequestedBy != "" {
		add("requested_by =", f.RequestedBy)
	}
	if !f.From.IsZero() {
		add("reserved_at >=", f.From)
	}
	if !f.To.IsZero() {
		add("reserved_at <=", f.To)
	}
	query += " ORDER BY reserved_at DESC, id DESC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []Reservation
	for rows.Next() {
		var r Reservation
		if err := scanReservation(rows, &r); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func (s *queryService) SummaryByWarehouse(ctx context.Context) ([]WarehouseSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT warehouse_code,
		       COUNT(*),
		       COALESCE(SUM(reserved_base), 0),
		       COUNT(DISTINCT inventory_record_id)
		FROM reservations
		WHERE status = 'active'
		GROUP BY warehouse_code
		ORDER BY warehouse_code
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouse summary: %w", err)
	}
	defer rows.Close()

	var summaries []WarehouseSummary
	for rows.Next() {
		var ws WarehouseSummary
		if err := rows.Scan(&ws.WarehouseCode, &ws.ActiveCount, &ws.ReservedBase, &ws.RecordCount); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse summary: %w", err)
		}
		summaries = append(summaries, ws)
	}
	return summaries, rows.Err()
}
