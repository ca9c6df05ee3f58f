// Package api defines the shared request/response contracts for all services.
package api

import (
	"github.com/shopspring/decimal"

	"repricer/decision/repricing"
	pricingerrors "repricer/pkg/errors"
)

// PriceRequest is the input for a stateless pricing computation.
type PriceRequest struct {
	Config PolicyConfig      `json:"config"`
	Quotes []decimal.Decimal `json:"quotes"`
}

// PolicyConfig is the wire form of a pricing policy. Every field is required;
// an omitted or null field is distinguishable from zero.
type PolicyConfig struct {
	SurchargeOneQuotePct  decimal.NullDecimal `json:"surcharge_one_quote_pct"`
	SurchargeTwoQuotesPct decimal.NullDecimal `json:"surcharge_two_quotes_pct"`
	MarginFloor           decimal.NullDecimal `json:"margin_floor"`
	MarginCeiling         decimal.NullDecimal `json:"margin_ceiling"`
	CompetitorDiscount    decimal.NullDecimal `json:"competitor_discount"`
	DeliveryFee           decimal.NullDecimal `json:"delivery_fee"`
	DeliveryOperatorCost  decimal.NullDecimal `json:"delivery_operator_cost"`
	FreeDeliveryThreshold decimal.NullDecimal `json:"free_delivery_threshold"`
	RoundingUnit          decimal.NullDecimal `json:"rounding_unit"`
}

// PricingConfig converts the wire form into an engine snapshot.
// The first missing field is reported as INVALID_CONFIG.
func (p PolicyConfig) PricingConfig() (repricing.PricingConfig, error) {
	var cfg repricing.PricingConfig
	fields := []struct {
		name string
		src  decimal.NullDecimal
		dst  *decimal.Decimal
	}{
		{"surcharge_one_quote_pct", p.SurchargeOneQuotePct, &cfg.SurchargeOneQuotePct},
		{"surcharge_two_quotes_pct", p.SurchargeTwoQuotesPct, &cfg.SurchargeTwoQuotesPct},
		{"margin_floor", p.MarginFloor, &cfg.MarginFloor},
		{"margin_ceiling", p.MarginCeiling, &cfg.MarginCeiling},
		{"competitor_discount", p.CompetitorDiscount, &cfg.CompetitorDiscount},
		{"delivery_fee", p.DeliveryFee, &cfg.DeliveryFee},
		{"delivery_operator_cost", p.DeliveryOperatorCost, &cfg.DeliveryOperatorCost},
		{"free_delivery_threshold", p.FreeDeliveryThreshold, &cfg.FreeDeliveryThreshold},
		{"rounding_unit", p.RoundingUnit, &cfg.RoundingUnit},
	}
	for _, f := range fields {
		if !f.src.Valid {
			return repricing.PricingConfig{}, pricingerrors.NewInvalidConfigError(f.name, "is required")
		}
		*f.dst = f.src.Decimal
	}
	return cfg, cfg.Validate()
}

// RepriceResponse reports a single-item recompute.
type RepriceResponse struct {
	Pair          Pair             `json:"pair"`
	Result        repricing.Result `json:"result"`
	PreviousPrice *decimal.Decimal `json:"previous_price,omitempty"`
	Changed       bool             `json:"changed"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
