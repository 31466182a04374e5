package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"stockroom/internal/core"
)

// KafkaSink publishes audit events as JSON messages, keyed by SKU so events
// for one item stay ordered within a partition. Delivery failures are logged
// and dropped rather than propagated: the mutation already committed, and
// the sink must not block or fail the business operation.
type KafkaSink struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		},
		logger: logger.Named("audit.kafka"),
	}
}

func (s *KafkaSink) Record(ctx context.Context, ev core.AuditEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to marshal audit event", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.SKU),
		Value: payload,
		Time:  ev.OccurredAt,
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Error("failed to publish audit event",
			zap.String("event_id", ev.ID),
			zap.String("action", ev.Action),
			zap.Error(err),
		)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
