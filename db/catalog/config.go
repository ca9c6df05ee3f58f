package catalog

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"repricer/decision/repricing"
	pricingerrors "repricer/pkg/errors"
)

// Defaults fills policy columns left NULL in the stored row.
func Defaults() repricing.PricingConfig {
	return repricing.PricingConfig{
		SurchargeOneQuotePct:  decimal.NewFromInt(30),
		SurchargeTwoQuotesPct: decimal.NewFromInt(20),
		MarginFloor:           decimal.NewFromInt(1500),
		MarginCeiling:         decimal.NewFromInt(10000),
		CompetitorDiscount:    decimal.NewFromInt(200),
		DeliveryFee:           decimal.NewFromInt(5000),
		DeliveryOperatorCost:  decimal.NewFromInt(3333),
		FreeDeliveryThreshold: decimal.NewFromInt(50000),
		RoundingUnit:          decimal.NewFromInt(100),
	}
}

const configColumns = `surcharge_one_quote_pct, surcharge_two_quotes_pct, margin_floor, margin_ceiling,
	competitor_discount, delivery_fee, delivery_operator_cost, free_delivery_threshold, rounding_unit`

// configFields lists config struct fields in configColumns order.
func configFields(cfg *repricing.PricingConfig) []*decimal.Decimal {
	return []*decimal.Decimal{
		&cfg.SurchargeOneQuotePct,
		&cfg.SurchargeTwoQuotesPct,
		&cfg.MarginFloor,
		&cfg.MarginCeiling,
		&cfg.CompetitorDiscount,
		&cfg.DeliveryFee,
		&cfg.DeliveryOperatorCost,
		&cfg.FreeDeliveryThreshold,
		&cfg.RoundingUnit,
	}
}

// GetPricingConfig loads the single policy row.
// No row yields NO_CONFIGURATION; more than one yields INVALID_CONFIG.
func (s *Store) GetPricingConfig(ctx context.Context) (repricing.PricingConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM pricing_config LIMIT 2`)
	if err != nil {
		return repricing.PricingConfig{}, fmt.Errorf("failed to query pricing config: %w", err)
	}
	defer rows.Close()

	cfg := Defaults()
	fields := configFields(&cfg)
	count := 0
	for rows.Next() {
		count++
		if count > 1 {
			break
		}
		nulls := make([]decimal.NullDecimal, len(fields))
		dest := make([]any, len(fields))
		for i := range nulls {
			dest[i] = &nulls[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return repricing.PricingConfig{}, fmt.Errorf("failed to scan pricing config: %w", err)
		}
		for i, n := range nulls {
			if n.Valid {
				*fields[i] = n.Decimal
			}
		}
	}
	if err := rows.Err(); err != nil {
		return repricing.PricingConfig{}, fmt.Errorf("failed to read pricing config: %w", err)
	}

	switch {
	case count == 0:
		return repricing.PricingConfig{}, pricingerrors.NewNoConfigurationError()
	case count > 1:
		return repricing.PricingConfig{}, pricingerrors.NewInvalidConfigError("pricing_config", "more than one configuration row")
	}

	if err := cfg.Validate(); err != nil {
		return repricing.PricingConfig{}, err
	}
	return cfg, nil
}

// SavePricingConfig writes the single policy row, replacing any previous values.
func (s *Store) SavePricingConfig(ctx context.Context, cfg repricing.PricingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO pricing_config (id, ` + configColumns + `, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET
			surcharge_one_quote_pct = excluded.surcharge_one_quote_pct,
			surcharge_two_quotes_pct = excluded.surcharge_two_quotes_pct,
			margin_floor = excluded.margin_floor,
			margin_ceiling = excluded.margin_ceiling,
			competitor_discount = excluded.competitor_discount,
			delivery_fee = excluded.delivery_fee,
			delivery_operator_cost = excluded.delivery_operator_cost,
			free_delivery_threshold = excluded.free_delivery_threshold,
			rounding_unit = excluded.rounding_unit,
			updated_at = CURRENT_TIMESTAMP
	`
	fields := configFields(&cfg)
	args := make([]any, len(fields))
	for i, f := range fields {
		args[i] = f.String()
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return fmt.Errorf("failed to save pricing config: %w", err)
	}
	return nil
}
