// Package repricing provides the Competitive Pricing Policy Engine.
// Turns a policy snapshot and a set of competitor quotes into one recommended sale price.
package repricing

import (
	"github.com/shopspring/decimal"
)

// Status is the engine outcome for one invocation
type Status string

const (
	StatusPriced        Status = "priced"
	StatusNotComputable Status = "not_computable"
)

// Branch identifies which formula produced the raw price
type Branch string

const (
	BranchNone          Branch = ""
	BranchSurcharge     Branch = "surcharge"
	BranchSplitGap      Branch = "split_gap"
	BranchUndercut      Branch = "undercut"
	BranchUndercutTopUp Branch = "undercut_top_up"
)

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// Result is the explicit outcome of a pricing run.
type Result struct {
	Status     Status `json:"status"`
	Tier       Tier   `json:"tier"`
	Branch     Branch `json:"branch,omitempty"`
	QuoteCount int    `json:"quote_count"`

	// Reference quote used for margin reporting
	Base decimal.Decimal `json:"base"`
	// Price after clamping, before rounding
	Raw decimal.Decimal `json:"raw"`
	// Final listed price
	Price decimal.Decimal `json:"price"`
	// Price - Base
	Margin decimal.Decimal `json:"margin"`
	// Ceiling clamp lowered the raw price
	Clamped bool `json:"clamped"`
}

// Priced reports whether a numeric price was produced.
func (r Result) Priced() bool {
	return r.Status == StatusPriced
}

// evaluation is the tier evaluator output before rounding
type evaluation struct {
	base    decimal.Decimal
	price   decimal.Decimal
	branch  Branch
	clamped bool
}

// Compute ingests quotes, applies the tier formula, then rounds and finalizes.
// An empty set yields a not-computable Result with a nil error.
func Compute(cfg PricingConfig, quotes []Quote) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	set, err := Ingest(quotes)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Status:     StatusNotComputable,
		Tier:       set.Tier,
		QuoteCount: set.QuoteCount(),
	}

	eval, ok := evaluate(cfg, set)
	if !ok {
		return result, nil
	}

	price := Finalize(RoundUp(eval.price, cfg.RoundingUnit))

	result.Status = StatusPriced
	result.Branch = eval.branch
	result.Base = eval.base
	result.Raw = eval.price
	result.Price = price
	result.Margin = price.Sub(eval.base)
	result.Clamped = eval.clamped
	return result, nil
}

// ComputePrice returns the recommended price, or ok=false when none can be set.
// Rejected input (invalid quote or configuration) is also reported as ok=false;
// use Compute to see the reason.
func ComputePrice(cfg PricingConfig, quotes []Quote) (decimal.Decimal, bool) {
	result, err := Compute(cfg, quotes)
	if err != nil || !result.Priced() {
		return decimal.Zero, false
	}
	return result.Price, true
}

func evaluate(cfg PricingConfig, set QuoteSet) (evaluation, bool) {
	switch set.Tier {
	case TierOneQuote:
		return surcharge(set.Sorted[0], cfg.SurchargeOneQuotePct, cfg), true
	case TierTwoQuotes:
		// Anchored to the higher quote
		return surcharge(set.Sorted[1], cfg.SurchargeTwoQuotesPct, cfg), true
	case TierThreeOrMoreQuotes:
		return undercut(set.Sorted[1], set.Sorted[2], cfg), true
	default:
		return evaluation{}, false
	}
}

// surcharge prices the 1- and 2-quote tiers: percentage markup floored at MarginFloor
// and capped at MarginCeiling over base.
func surcharge(base, pct decimal.Decimal, cfg PricingConfig) evaluation {
	markup := base.Mul(pct).Div(hundred)
	price := base.Add(decimal.Max(markup, cfg.MarginFloor))

	price, clamped := clampCeiling(price, base, cfg.MarginCeiling)
	return evaluation{
		base:    base,
		price:   price,
		branch:  BranchSurcharge,
		clamped: clamped,
	}
}

// undercut prices the 3+ tier from the second and third lowest quotes.
func undercut(q2, q3 decimal.Decimal, cfg PricingConfig) evaluation {
	gap := q3.Sub(q2)

	var eval evaluation
	if gap.LessThan(cfg.CompetitorDiscount) {
		eval = evaluation{
			base:   q2,
			price:  q2.Add(gap.Div(two)),
			branch: BranchSplitGap,
		}
	} else {
		target := q3.Sub(cfg.CompetitorDiscount)

		deliveryIncome := decimal.Zero
		if target.LessThan(cfg.FreeDeliveryThreshold) {
			deliveryIncome = cfg.DeliveryFee
		}
		netMargin := target.Sub(q2).Add(deliveryIncome).Sub(cfg.DeliveryOperatorCost)

		eval = evaluation{base: q3}
		if netMargin.GreaterThan(cfg.MarginFloor) {
			eval.price = target
			eval.branch = BranchUndercut
		} else {
			shortfall := cfg.MarginFloor.Sub(netMargin)
			eval.price = target.Add(shortfall)
			eval.branch = BranchUndercutTopUp
		}
	}

	eval.price, eval.clamped = clampCeiling(eval.price, eval.base, cfg.MarginCeiling)
	return eval
}

func clampCeiling(price, base, ceiling decimal.Decimal) (decimal.Decimal, bool) {
	limit := base.Add(ceiling)
	if price.GreaterThan(limit) {
		return limit, true
	}
	return price, false
}
