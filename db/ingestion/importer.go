// Package ingestion loads scraped competitor quotes into the catalog.
// Each item's active quote set is replaced as a whole, so a fresh scrape never mixes with stale prices.
package ingestion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"repricer/db/catalog"
	"repricer/pkg/api"
)

// QuoteSink stores the active quote set of one item.
type QuoteSink interface {
	ReplaceQuotes(ctx context.Context, pair api.Pair, recs []catalog.QuoteRecord) (int, error)
}

// Importer groups observations per item and writes them to the sink.
type Importer struct {
	sink   QuoteSink
	logger zerolog.Logger
}

// NewImporter creates a new quote importer
func NewImporter(sink QuoteSink, logger zerolog.Logger) *Importer {
	return &Importer{sink: sink, logger: logger}
}

// IngestionResult tracks the result of one import
type IngestionResult struct {
	Pairs    int           `json:"pairs"`
	Quotes   int           `json:"quotes"`
	Rejected int           `json:"rejected"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
	Errors   []string      `json:"errors,omitempty"`
}

// Ingest replaces the active quotes of every item present in recs.
// Non-positive prices are rejected up front; an item whose write fails is counted and skipped.
func (i *Importer) Ingest(ctx context.Context, recs []catalog.QuoteRecord) (*IngestionResult, error) {
	start := time.Now()
	result := &IngestionResult{}

	grouped := make(map[api.Pair][]catalog.QuoteRecord)
	for _, rec := range recs {
		if !rec.Pair.Valid() {
			result.Rejected++
			result.Errors = append(result.Errors, "quote without product or manufacturer id")
			continue
		}
		if !rec.Price.IsPositive() {
			result.Rejected++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: non-positive price %s", rec.Pair, rec.Price))
			continue
		}
		grouped[rec.Pair] = append(grouped[rec.Pair], rec)
	}

	pairs := make([]api.Pair, 0, len(grouped))
	for p := range grouped {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].Key() < pairs[b].Key() })

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			result.Duration = time.Since(start)
			return result, err
		}
		n, err := i.sink.ReplaceQuotes(ctx, pair, grouped[pair])
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			i.logger.Error().Err(err).Str("item", pair.Key()).Msg("Failed to store quotes")
			continue
		}
		result.Pairs++
		result.Quotes += n
	}

	result.Duration = time.Since(start)
	i.logger.Info().
		Int("pairs", result.Pairs).
		Int("quotes", result.Quotes).
		Int("rejected", result.Rejected).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Quote import finished")
	return result, nil
}

// ReadCSV parses rows of product_id,manufacturer_id,competitor,price[,observed_at].
// A leading header row is skipped; observed_at is RFC 3339.
func ReadCSV(r io.Reader) ([]catalog.QuoteRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var recs []catalog.QuoteRecord
	line := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read quotes: %w", err)
		}
		line++

		if line == 1 && len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "product_id") {
			continue
		}
		if len(row) < 4 {
			return nil, fmt.Errorf("line %d: expected at least 4 columns, got %d", line, len(row))
		}

		price, err := decimal.NewFromString(strings.TrimSpace(row[3]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid price %q", line, row[3])
		}
		rec := catalog.QuoteRecord{
			Pair: api.Pair{
				ProductID:      strings.TrimSpace(row[0]),
				ManufacturerID: strings.TrimSpace(row[1]),
			},
			Competitor: strings.TrimSpace(row[2]),
			Price:      price,
		}
		if len(row) > 4 && strings.TrimSpace(row[4]) != "" {
			at, err := time.Parse(time.RFC3339, strings.TrimSpace(row[4]))
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid observed_at %q", line, row[4])
			}
			rec.ObservedAt = at
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
