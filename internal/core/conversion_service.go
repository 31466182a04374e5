package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"stockroom/internal/units"
)

// ConversionService administers per-SKU unit conversion rates. Rate changes
// apply to future conversions only: every open reservation keeps the base
// total frozen at its creation time.
type ConversionService interface {
	SetRates(ctx context.Context, r units.Rates) error
	// GetRates returns ErrNotFound when no rates are configured for the SKU.
	GetRates(ctx context.Context, sku string) (*units.Rates, error)
}

type conversionService struct {
	pool *pgxpool.Pool
}

func NewConversionService(pool *pgxpool.Pool) ConversionService {
	return &conversionService{pool: pool}
}

func (s *conversionService) SetRates(ctx context.Context, r units.Rates) error {
	if r.SKU == "" {
		return &ValidationError{Field: "sku", Reason: "must not be empty"}
	}
	if r.Level1Rate < 1 {
		return &ValidationError{Field: "level1_rate", Reason: "must be a positive integer"}
	}
	if r.Level2Rate < 1 {
		return &ValidationError{Field: "level2_rate", Reason: "must be a positive integer"}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversion_rates (sku, level1_name, level2_name, level3_name, level1_rate, level2_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (sku) DO UPDATE SET
			level1_name = EXCLUDED.level1_name,
			level2_name = EXCLUDED.level2_name,
			level3_name = EXCLUDED.level3_name,
			level1_rate = EXCLUDED.level1_rate,
			level2_rate = EXCLUDED.level2_rate,
			updated_at  = NOW()
	`, r.SKU, r.Level1Name, r.Level2Name, r.Level3Name, r.Level1Rate, r.Level2Rate)
	if err != nil {
		return fmt.Errorf("failed to upsert conversion rates for %s: %w", r.SKU, err)
	}
	return nil
}

func (s *conversionService) GetRates(ctx context.Context, sku string) (*units.Rates, error) {
	r, err := lookupRatesQ(ctx, s.pool, sku)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return r, nil
}
