package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"repricer/db/catalog"
	"repricer/decision/repricing"
)

// policyFlag binds a CLI flag to one PricingConfig field.
type policyFlag struct {
	name  string
	usage string
	field func(cfg *repricing.PricingConfig) *decimal.Decimal
}

var policyFlags = []policyFlag{
	{"surcharge-one", "Markup percent with a single quote", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.SurchargeOneQuotePct }},
	{"surcharge-two", "Markup percent with two quotes", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.SurchargeTwoQuotesPct }},
	{"margin-floor", "Minimum absolute margin", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.MarginFloor }},
	{"margin-ceiling", "Maximum absolute margin", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.MarginCeiling }},
	{"discount", "Undercut applied to the third-lowest quote", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.CompetitorDiscount }},
	{"delivery-fee", "Delivery fee charged below the free-delivery threshold", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.DeliveryFee }},
	{"operator-cost", "Delivery operator cost per order", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.DeliveryOperatorCost }},
	{"free-delivery-threshold", "Order value from which delivery is free", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.FreeDeliveryThreshold }},
	{"rounding-unit", "Round prices up to a multiple of this unit (0 disables)", func(c *repricing.PricingConfig) *decimal.Decimal { return &c.RoundingUnit }},
}

// policyCLIFlags renders policyFlags with their defaults.
func policyCLIFlags() []cli.Flag {
	defaults := catalog.Defaults()
	flags := make([]cli.Flag, 0, len(policyFlags))
	for _, pf := range policyFlags {
		flags = append(flags, &cli.StringFlag{
			Name:  pf.name,
			Value: pf.field(&defaults).String(),
			Usage: pf.usage,
		})
	}
	return flags
}

// applyPolicyFlags overrides cfg with every policy flag; when onlySet is true only explicit flags apply.
func applyPolicyFlags(c *cli.Context, cfg *repricing.PricingConfig, onlySet bool) error {
	for _, pf := range policyFlags {
		if onlySet && !c.IsSet(pf.name) {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(c.String(pf.name)))
		if err != nil {
			return fmt.Errorf("invalid --%s: %w", pf.name, err)
		}
		*pf.field(cfg) = v
	}
	return nil
}

func parseQuotes(raw string) ([]repricing.Quote, error) {
	var quotes []repricing.Quote
	for _, part := range splitList(raw) {
		q, err := decimal.NewFromString(part)
		if err != nil {
			return nil, fmt.Errorf("invalid quote %q: %w", part, err)
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

// =============================================================================
// COMPUTE COMMAND
// =============================================================================

func computeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "quotes",
			Aliases: []string{"q"},
			Usage:   "Comma-separated competitor quotes",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "table",
			Usage:   "Output format (table, json)",
		},
		&cli.BoolFlag{
			Name:  "use-store",
			Usage: "Load the pricing policy from the catalog database instead of flags",
		},
	}

	return &cli.Command{
		Name:   "compute",
		Usage:  "Price a quote list without touching the catalog",
		Flags:  append(flags, policyCLIFlags()...),
		Action: runCompute,
	}
}

func runCompute(c *cli.Context) error {
	quotes, err := parseQuotes(c.String("quotes"))
	if err != nil {
		return err
	}

	cfg := catalog.Defaults()
	if c.Bool("use-store") {
		store, err := openCatalog(c)
		if err != nil {
			return err
		}
		defer store.Close()
		if cfg, err = store.GetPricingConfig(c.Context); err != nil {
			return err
		}
		if err := applyPolicyFlags(c, &cfg, true); err != nil {
			return err
		}
	} else if err := applyPolicyFlags(c, &cfg, false); err != nil {
		return err
	}

	result, err := repricing.Compute(cfg, quotes)
	if err != nil {
		return err
	}

	switch c.String("format") {
	case "json":
		return outputJSON(c.App.Writer, result)
	case "table":
		return outputTable(c.App.Writer, result)
	default:
		return fmt.Errorf("unknown format %q", c.String("format"))
	}
}

func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputTable(w io.Writer, result repricing.Result) error {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                      PRICING DECISION                        ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Tier:                  %-37s ║\n", result.Tier)
	fmt.Fprintf(w, "║  Quotes:                %-37d ║\n", result.QuoteCount)

	if !result.Priced() {
		fmt.Fprintf(w, "║  Price:                 %-37s ║\n", "not computable")
		fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
		return nil
	}

	clamped := ""
	if result.Clamped {
		clamped = " (ceiling)"
	}
	fmt.Fprintf(w, "║  Branch:                %-37s ║\n", result.Branch)
	fmt.Fprintf(w, "║  Reference quote:       %-37s ║\n", result.Base.String())
	fmt.Fprintf(w, "║  Raw price:             %-37s ║\n", result.Raw.String()+clamped)
	fmt.Fprintf(w, "║  Margin:                %-37s ║\n", result.Margin.String())
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Price:                 %-37s ║\n", result.Price.String())
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	return nil
}
