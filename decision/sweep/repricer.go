// Package sweep drives the pricing engine over the catalogue.
// It loads one policy snapshot per run, reprices each item from its active quotes,
// writes changed prices and fans results out to the audit log and event stream.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"repricer/db/clickhouse"
	"repricer/decision/repricing"
	"repricer/pkg/api"
	pricingerrors "repricer/pkg/errors"
)

// DefaultConcurrency bounds parallel item repricing when none is configured.
const DefaultConcurrency = 4

// ConfigSource yields the active pricing policy.
type ConfigSource interface {
	GetPricingConfig(ctx context.Context) (repricing.PricingConfig, error)
}

// QuoteSource yields the active competitor quotes for an item.
type QuoteSource interface {
	GetQuotes(ctx context.Context, pair api.Pair) ([]repricing.Quote, error)
}

// PriceStore reads and writes listed prices.
type PriceStore interface {
	ListPairs(ctx context.Context) ([]api.Pair, error)
	GetListedPrice(ctx context.Context, pair api.Pair) (decimal.Decimal, bool, error)
	UpsertListedPrice(ctx context.Context, pair api.Pair, price decimal.Decimal) error
}

// DecisionRecorder appends engine outcomes to the audit log.
type DecisionRecorder interface {
	RecordDecisions(ctx context.Context, decisions []clickhouse.Decision) error
}

// ChangePublisher announces listed-price changes.
type ChangePublisher interface {
	PublishPriceChanged(ctx context.Context, event api.PriceChanged) error
}

// Repricer recomputes listed prices. Audit and Events are optional.
type Repricer struct {
	Config      ConfigSource
	Quotes      QuoteSource
	Prices      PriceStore
	Audit       DecisionRecorder
	Events      ChangePublisher
	Logger      zerolog.Logger
	Concurrency int

	now func() time.Time
}

// Outcome is the result of repricing one item.
type Outcome struct {
	Pair          api.Pair         `json:"pair"`
	Result        repricing.Result `json:"result"`
	PreviousPrice *decimal.Decimal `json:"previous_price,omitempty"`
	Changed       bool             `json:"changed"`
	Err           error            `json:"-"`
	// Why a computable result was not produced; the item is not failed
	Skipped error `json:"-"`
}

// Failure describes an item that could not be repriced.
type Failure struct {
	Pair  api.Pair `json:"pair"`
	Code  string   `json:"code,omitempty"`
	Error string   `json:"error"`
}

// Summary aggregates one sweep.
type Summary struct {
	RunID         string        `json:"run_id"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
	Total         int           `json:"total"`
	Priced        int           `json:"priced"`
	Changed       int           `json:"changed"`
	Unchanged     int           `json:"unchanged"`
	NotComputable int           `json:"not_computable"`
	Failed        int           `json:"failed"`
	Failures      []Failure     `json:"failures,omitempty"`
}

func (r *Repricer) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now().UTC()
}

// RepriceOne recomputes a single item against a fresh policy snapshot.
// Item-level failures are returned as the error and also reported on the Outcome.
func (r *Repricer) RepriceOne(ctx context.Context, pair api.Pair) (Outcome, error) {
	cfg, err := r.Config.GetPricingConfig(ctx)
	if err != nil {
		return Outcome{Pair: pair}, err
	}

	runID := uuid.New()
	warnInverted(r.Logger.With().Str("run_id", runID.String()).Logger(), cfg)
	outcome := r.reprice(ctx, runID, cfg, pair)
	r.record(ctx, runID, []Outcome{outcome})
	return outcome, outcome.Err
}

// Sweep reprices every known item with bounded parallelism.
// A missing or invalid policy aborts the run before any item is touched;
// item failures are counted in the summary.
func (r *Repricer) Sweep(ctx context.Context) (*Summary, error) {
	runID := uuid.New()
	started := r.clock()
	logger := r.Logger.With().Str("run_id", runID.String()).Logger()

	cfg, err := r.Config.GetPricingConfig(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Sweep aborted: pricing configuration unavailable")
		return nil, err
	}
	warnInverted(logger, cfg)

	pairs, err := r.Prices.ListPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	limit := r.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	outcomes := make([]Outcome, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, pair := range pairs {
		i, pair := i, pair
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = r.reprice(gctx, runID, cfg, pair)
			return nil
		})
	}
	waitErr := g.Wait()

	summary := summarize(runID, started, outcomes)
	summary.Duration = r.clock().Sub(started)
	r.record(ctx, runID, outcomes)

	logger.Info().
		Int("total", summary.Total).
		Int("changed", summary.Changed).
		Int("unchanged", summary.Unchanged).
		Int("not_computable", summary.NotComputable).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Sweep finished")

	if waitErr != nil {
		return summary, waitErr
	}
	return summary, nil
}

func warnInverted(logger zerolog.Logger, cfg repricing.PricingConfig) {
	if !cfg.Inverted() {
		return
	}
	logger.Warn().
		Str("margin_floor", cfg.MarginFloor.String()).
		Str("margin_ceiling", cfg.MarginCeiling.String()).
		Msg("Margin ceiling is below floor; ceiling wins")
}

// reprice computes and persists one item. Item errors land in Outcome.Err.
func (r *Repricer) reprice(ctx context.Context, runID uuid.UUID, cfg repricing.PricingConfig, pair api.Pair) Outcome {
	outcome := Outcome{Pair: pair}
	logger := r.Logger.With().Str("item", pair.Key()).Logger()

	quotes, err := r.Quotes.GetQuotes(ctx, pair)
	if err != nil {
		outcome.Err = err
		logger.Error().Err(err).Msg("Failed to load quotes")
		return outcome
	}

	result, err := repricing.Compute(cfg, quotes)
	if err != nil {
		outcome.Err = pricingerrors.WithSubject(err, pair.Key())
		logger.Warn().Err(err).Int("quotes", len(quotes)).Msg("Quote set rejected")
		return outcome
	}
	outcome.Result = result

	if !result.Priced() {
		outcome.Skipped = pricingerrors.NewNoQuotesError(pair.Key())
		logger.Debug().Err(outcome.Skipped).Msg("Listed price left unchanged")
		return outcome
	}

	previous, ok, err := r.Prices.GetListedPrice(ctx, pair)
	if err != nil {
		outcome.Err = err
		logger.Error().Err(err).Msg("Failed to read listed price")
		return outcome
	}
	if ok {
		outcome.PreviousPrice = &previous
	}
	if ok && previous.Equal(result.Price) {
		return outcome
	}

	if err := r.Prices.UpsertListedPrice(ctx, pair, result.Price); err != nil {
		outcome.Err = err
		logger.Error().Err(err).Msg("Failed to write listed price")
		return outcome
	}
	outcome.Changed = true

	logger.Info().
		Str("old_price", priceString(outcome.PreviousPrice)).
		Str("new_price", result.Price.String()).
		Str("tier", string(result.Tier)).
		Str("branch", string(result.Branch)).
		Msg("Listed price updated")

	r.publish(ctx, runID, outcome)
	return outcome
}

func (r *Repricer) publish(ctx context.Context, runID uuid.UUID, o Outcome) {
	if r.Events == nil {
		return
	}
	event := api.PriceChanged{
		EventID:        uuid.NewString(),
		RunID:          runID.String(),
		ProductID:      o.Pair.ProductID,
		ManufacturerID: o.Pair.ManufacturerID,
		OldPrice:       o.PreviousPrice,
		NewPrice:       o.Result.Price,
		Tier:           string(o.Result.Tier),
		Branch:         string(o.Result.Branch),
		QuoteCount:     o.Result.QuoteCount,
		OccurredAt:     r.clock(),
	}
	if err := r.Events.PublishPriceChanged(ctx, event); err != nil {
		r.Logger.Warn().Err(err).Str("item", o.Pair.Key()).Msg("Failed to publish price change")
	}
}

// record writes outcomes to the audit log; failures are logged and otherwise ignored.
func (r *Repricer) record(ctx context.Context, runID uuid.UUID, outcomes []Outcome) {
	if r.Audit == nil || len(outcomes) == 0 {
		return
	}
	at := r.clock()
	decisions := make([]clickhouse.Decision, 0, len(outcomes))
	for _, o := range outcomes {
		if !o.Pair.Valid() {
			continue
		}
		decisions = append(decisions, toDecision(runID, at, o))
	}
	if err := r.Audit.RecordDecisions(ctx, decisions); err != nil {
		r.Logger.Warn().Err(err).Int("decisions", len(decisions)).Msg("Failed to record decisions")
	}
}

func toDecision(runID uuid.UUID, at time.Time, o Outcome) clickhouse.Decision {
	d := clickhouse.Decision{
		ID:             uuid.New(),
		RunID:          runID,
		ProductID:      o.Pair.ProductID,
		ManufacturerID: o.Pair.ManufacturerID,
		Status:         string(o.Result.Status),
		Tier:           string(o.Result.Tier),
		Branch:         string(o.Result.Branch),
		QuoteCount:     o.Result.QuoteCount,
		Base:           o.Result.Base,
		Raw:            o.Result.Raw,
		Price:          o.Result.Price,
		PreviousPrice:  o.PreviousPrice,
		Changed:        o.Changed,
		ComputedAt:     at,
	}
	switch {
	case o.Err != nil:
		d.Status = "failed"
		d.ErrorCode = pricingerrors.CodeOf(o.Err)
	case o.Skipped != nil:
		d.ErrorCode = pricingerrors.CodeOf(o.Skipped)
	}
	return d
}

func summarize(runID uuid.UUID, started time.Time, outcomes []Outcome) *Summary {
	s := &Summary{
		RunID:     runID.String(),
		StartedAt: started,
	}
	for _, o := range outcomes {
		// Slots left empty by a cancelled run carry no pair.
		if !o.Pair.Valid() {
			continue
		}
		s.Total++
		switch {
		case o.Err != nil:
			s.Failed++
			s.Failures = append(s.Failures, Failure{
				Pair:  o.Pair,
				Code:  pricingerrors.CodeOf(o.Err),
				Error: o.Err.Error(),
			})
		case !o.Result.Priced():
			s.NotComputable++
		case o.Changed:
			s.Priced++
			s.Changed++
		default:
			s.Priced++
			s.Unchanged++
		}
	}
	return s
}

func priceString(p *decimal.Decimal) string {
	if p == nil {
		return ""
	}
	return p.String()
}
