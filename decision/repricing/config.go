package repricing

import (
	"github.com/shopspring/decimal"

	pricingerrors "repricer/pkg/errors"
)

// PricingConfig is the tenant-wide policy snapshot for one pricing run.
// Values are never mutated by the engine.
type PricingConfig struct {
	// Markup percentages per tier
	SurchargeOneQuotePct  decimal.Decimal `json:"surcharge_one_quote_pct"`
	SurchargeTwoQuotesPct decimal.Decimal `json:"surcharge_two_quotes_pct"`

	// Absolute margin bounds over the reference quote
	MarginFloor   decimal.Decimal `json:"margin_floor"`
	MarginCeiling decimal.Decimal `json:"margin_ceiling"`

	// Undercut applied to the third-lowest quote
	CompetitorDiscount decimal.Decimal `json:"competitor_discount"`

	// Delivery economics for the 3+ quote tier
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	DeliveryOperatorCost  decimal.Decimal `json:"delivery_operator_cost"`
	FreeDeliveryThreshold decimal.Decimal `json:"free_delivery_threshold"`

	// Zero disables rounding up
	RoundingUnit decimal.Decimal `json:"rounding_unit"`
}

// Validate rejects negative monetary or percentage fields.
// An inverted floor/ceiling pair is accepted; see Inverted.
func (c PricingConfig) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"surcharge_one_quote_pct", c.SurchargeOneQuotePct},
		{"surcharge_two_quotes_pct", c.SurchargeTwoQuotesPct},
		{"margin_floor", c.MarginFloor},
		{"margin_ceiling", c.MarginCeiling},
		{"competitor_discount", c.CompetitorDiscount},
		{"delivery_fee", c.DeliveryFee},
		{"delivery_operator_cost", c.DeliveryOperatorCost},
		{"free_delivery_threshold", c.FreeDeliveryThreshold},
		{"rounding_unit", c.RoundingUnit},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return pricingerrors.NewInvalidConfigError(f.name, "must not be negative")
		}
	}
	return nil
}

// Inverted reports whether the margin ceiling sits below the floor.
// The engine applies such a clamp as configured.
func (c PricingConfig) Inverted() bool {
	return c.MarginCeiling.LessThan(c.MarginFloor)
}
