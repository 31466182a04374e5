package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"stockroom/internal/units"
)

// Audit actions emitted by the mutation paths.
const (
	AuditStockReceived        = "stock.received"
	AuditStockAdjusted        = "stock.adjusted"
	AuditRecordPruned         = "stock.record_pruned"
	AuditReservationCreated   = "reservation.created"
	AuditReservationCancelled = "reservation.cancelled"
	AuditReservationFulfilled = "reservation.fulfilled"
)

// AuditEvent describes one committed mutation. Because zero-quantity records
// are deleted rather than kept as history rows, the audit stream is the only
// durable trace of what a location held.
type AuditEvent struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Actor         string         `json:"actor"`
	SKU           string         `json:"sku"`
	WarehouseCode string         `json:"warehouse_code"`
	RecordID      int64          `json:"record_id,omitempty"`
	ReservationID int64          `json:"reservation_id,omitempty"`
	Qty           units.Quantity `json:"qty"`
	BaseQty       int64          `json:"base_qty"`
	Note          string         `json:"note,omitempty"`
}

// AuditSink receives events after the mutating transaction commits. It is an
// external collaborator: implementations own delivery and must not block the
// business operation on sink failures.
type AuditSink interface {
	Record(ctx context.Context, ev AuditEvent)
}

func newAuditEvent(action, actor string) AuditEvent {
	return AuditEvent{
		ID:         uuid.NewString(),
		Action:     action,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
	}
}
