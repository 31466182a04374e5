// Package audit provides AuditSink implementations. The reservation core
// treats the sink as an external collaborator: sinks own delivery and never
// fail the business operation.
package audit

import (
	"context"

	"go.uber.org/zap"

	"stockroom/internal/core"
)

// LogSink writes audit events to the structured log. It is the default sink
// when no broker is configured and doubles as the durable trace for pruned
// inventory records in development setups.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Record(_ context.Context, ev core.AuditEvent) {
	s.logger.Info(ev.Action,
		zap.String("event_id", ev.ID),
		zap.Time("occurred_at", ev.OccurredAt),
		zap.String("actor", ev.Actor),
		zap.String("sku", ev.SKU),
		zap.String("warehouse", ev.WarehouseCode),
		zap.Int64("record_id", ev.RecordID),
		zap.Int64("reservation_id", ev.ReservationID),
		zap.Int64("level1", ev.Qty.Level1),
		zap.Int64("level2", ev.Qty.Level2),
		zap.Int64("level3", ev.Qty.Level3),
		zap.Int64("base_qty", ev.BaseQty),
		zap.String("note", ev.Note),
	)
}

// Nop discards events. Used in tests that do not assert on the audit stream.
type Nop struct{}

func (Nop) Record(context.Context, core.AuditEvent) {}
