package main

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"stockroom/internal/adapters/web"
	"stockroom/internal/app"
	"stockroom/internal/audit"
	"stockroom/internal/core"
	"stockroom/internal/db"
)

// defaultLowStockThreshold flags records whose available base quantity drops
// to this level or below. Override with LOW_STOCK_THRESHOLD.
const defaultLowStockThreshold = 10

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic("logger: " + err.Error())
	}
	defer logger.Sync()

	ctx := context.Background()
	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	var sink core.AuditSink
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_AUDIT_TOPIC")
		if topic == "" {
			topic = "stockroom.audit"
		}
		kafkaSink := audit.NewKafkaSink(strings.Split(brokers, ","), topic, logger)
		defer kafkaSink.Close()
		sink = kafkaSink
		logger.Info("audit sink: kafka", zap.String("topic", topic))
	} else {
		sink = audit.NewLogSink(logger)
		logger.Info("audit sink: log")
	}

	lowStock := int64(defaultLowStockThreshold)
	if raw := os.Getenv("LOW_STOCK_THRESHOLD"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 {
			lowStock = v
		} else {
			logger.Warn("ignoring invalid LOW_STOCK_THRESHOLD", zap.String("value", raw))
		}
	}

	conversionService := core.NewConversionService(pool)
	inventoryService := core.NewInventoryService(pool, sink)
	reservationService := core.NewReservationService(pool, sink)
	availabilityService := core.NewAvailabilityService(pool, lowStock)
	queryService := core.NewQueryService(pool)

	svc := app.NewAppService(reservationService, inventoryService, availabilityService, queryService, conversionService)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	handler := web.NewHandler(svc, logger, os.Getenv("ALLOWED_ORIGINS"))

	logger.Info("server starting", zap.String("port", port))
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
}
