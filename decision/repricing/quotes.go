package repricing

import (
	"sort"

	"github.com/shopspring/decimal"

	pricingerrors "repricer/pkg/errors"
)

// Quote is a competitor-observed price for one (product, manufacturer) pair.
type Quote = decimal.Decimal

// Tier selects the pricing formula by quote count.
type Tier string

const (
	TierNoQuotes          Tier = "no_quotes"
	TierOneQuote          Tier = "one_quote"
	TierTwoQuotes         Tier = "two_quotes"
	TierThreeOrMoreQuotes Tier = "three_or_more_quotes"
)

// QuoteSet is an ingested, ascending-sorted quote list with its tier.
type QuoteSet struct {
	Sorted []Quote
	Tier   Tier
}

// Ingest validates and sorts quotes, then classifies the set.
// The input slice is left untouched.
func Ingest(quotes []Quote) (QuoteSet, error) {
	sorted := make([]Quote, len(quotes))
	for i, q := range quotes {
		if !q.IsPositive() {
			return QuoteSet{}, pricingerrors.NewInvalidQuoteError(i, q.String())
		}
		sorted[i] = q
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].LessThan(sorted[j])
	})

	return QuoteSet{Sorted: sorted, Tier: Classify(len(sorted))}, nil
}

// Classify maps a quote count to its tier.
func Classify(n int) Tier {
	switch {
	case n <= 0:
		return TierNoQuotes
	case n == 1:
		return TierOneQuote
	case n == 2:
		return TierTwoQuotes
	default:
		return TierThreeOrMoreQuotes
	}
}

// QuoteCount returns the number of quotes in the set.
func (s QuoteSet) QuoteCount() int {
	return len(s.Sorted)
}
