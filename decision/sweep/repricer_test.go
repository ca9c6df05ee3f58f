package sweep

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"repricer/db/clickhouse"
	"repricer/decision/repricing"
	"repricer/pkg/api"
	pricingerrors "repricer/pkg/errors"
)

// fakeCatalog is an in-memory ConfigSource, QuoteSource and PriceStore.
type fakeCatalog struct {
	mu       sync.Mutex
	cfg      *repricing.PricingConfig
	cfgErr   error
	cfgCalls int
	quotes   map[api.Pair][]repricing.Quote
	quoteErr map[api.Pair]error
	prices   map[api.Pair]decimal.Decimal
	writes   int
	writeErr error
}

func newFakeCatalog(cfg repricing.PricingConfig) *fakeCatalog {
	return &fakeCatalog{
		cfg:      &cfg,
		quotes:   map[api.Pair][]repricing.Quote{},
		quoteErr: map[api.Pair]error{},
		prices:   map[api.Pair]decimal.Decimal{},
	}
}

func (f *fakeCatalog) GetPricingConfig(ctx context.Context) (repricing.PricingConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfgCalls++
	if f.cfgErr != nil {
		return repricing.PricingConfig{}, f.cfgErr
	}
	if f.cfg == nil {
		return repricing.PricingConfig{}, pricingerrors.NewNoConfigurationError()
	}
	return *f.cfg, nil
}

func (f *fakeCatalog) GetQuotes(ctx context.Context, pair api.Pair) ([]repricing.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.quoteErr[pair]; err != nil {
		return nil, err
	}
	return f.quotes[pair], nil
}

func (f *fakeCatalog) ListPairs(ctx context.Context) ([]api.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[api.Pair]bool{}
	var pairs []api.Pair
	for p := range f.quotes {
		seen[p] = true
		pairs = append(pairs, p)
	}
	for p := range f.quoteErr {
		if !seen[p] {
			seen[p] = true
			pairs = append(pairs, p)
		}
	}
	for p := range f.prices {
		if !seen[p] {
			pairs = append(pairs, p)
		}
	}
	return pairs, nil
}

func (f *fakeCatalog) GetListedPrice(ctx context.Context, pair api.Pair) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prices[pair]
	return p, ok, nil
}

func (f *fakeCatalog) UpsertListedPrice(ctx context.Context, pair api.Pair, price decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	f.prices[pair] = price
	return nil
}

type fakeAudit struct {
	mu        sync.Mutex
	decisions []clickhouse.Decision
}

func (a *fakeAudit) RecordDecisions(ctx context.Context, decisions []clickhouse.Decision) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.decisions = append(a.decisions, decisions...)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []api.PriceChanged
	err    error
}

func (e *fakeEvents) PublishPriceChanged(ctx context.Context, event api.PriceChanged) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, event)
	return nil
}

func d(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func testConfig() repricing.PricingConfig {
	return repricing.PricingConfig{
		SurchargeOneQuotePct:  d(30),
		SurchargeTwoQuotesPct: d(20),
		MarginFloor:           d(1500),
		MarginCeiling:         d(10000),
		CompetitorDiscount:    d(200),
		DeliveryFee:           d(5000),
		DeliveryOperatorCost:  d(3333),
		FreeDeliveryThreshold: d(50000),
		RoundingUnit:          d(100),
	}
}

func newTestRepricer(cat *fakeCatalog) (*Repricer, *fakeAudit, *fakeEvents) {
	audit := &fakeAudit{}
	events := &fakeEvents{}
	return &Repricer{
		Config:      cat,
		Quotes:      cat,
		Prices:      cat,
		Audit:       audit,
		Events:      events,
		Logger:      zerolog.Nop(),
		Concurrency: 2,
		now:         func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	}, audit, events
}

var (
	splitItem  = api.Pair{ProductID: "p1", ManufacturerID: "m1"}
	steadyItem = api.Pair{ProductID: "p2", ManufacturerID: "m1"}
	orphanItem = api.Pair{ProductID: "p3", ManufacturerID: "m1"}
	badItem    = api.Pair{ProductID: "p4", ManufacturerID: "m1"}
	brokenItem = api.Pair{ProductID: "p5", ManufacturerID: "m1"}
)

func TestRepriceOne_WritesChangedPrice(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.quotes[splitItem] = []repricing.Quote{d(13200), d(13050), d(13158)}
	cat.prices[splitItem] = d(12000)

	r, audit, events := newTestRepricer(cat)
	outcome, err := r.RepriceOne(context.Background(), splitItem)
	if err != nil {
		t.Fatalf("RepriceOne failed: %v", err)
	}

	if !outcome.Changed {
		t.Error("expected a change")
	}
	if !outcome.Result.Price.Equal(d(13200)) {
		t.Errorf("price = %s, want 13200", outcome.Result.Price)
	}
	if outcome.PreviousPrice == nil || !outcome.PreviousPrice.Equal(d(12000)) {
		t.Errorf("previous price = %v, want 12000", outcome.PreviousPrice)
	}
	if got := cat.prices[splitItem]; !got.Equal(d(13200)) {
		t.Errorf("stored price = %s", got)
	}
	if len(events.events) != 1 || events.events[0].Pair() != splitItem {
		t.Errorf("events = %+v", events.events)
	}
	if len(audit.decisions) != 1 || !audit.decisions[0].Changed {
		t.Errorf("decisions = %+v", audit.decisions)
	}
}

func TestRepriceOne_UnchangedPriceIsNotRewritten(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.quotes[steadyItem] = []repricing.Quote{d(20000)}
	cat.prices[steadyItem] = d(26000)

	r, _, events := newTestRepricer(cat)
	outcome, err := r.RepriceOne(context.Background(), steadyItem)
	if err != nil {
		t.Fatalf("RepriceOne failed: %v", err)
	}
	if outcome.Changed {
		t.Error("expected no change")
	}
	if cat.writes != 0 {
		t.Errorf("writes = %d, want 0", cat.writes)
	}
	if len(events.events) != 0 {
		t.Errorf("unexpected events: %+v", events.events)
	}
}

func TestRepriceOne_NoQuotesLeavesPrice(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.prices[orphanItem] = d(5000)

	r, audit, _ := newTestRepricer(cat)
	outcome, err := r.RepriceOne(context.Background(), orphanItem)
	if err != nil {
		t.Fatalf("RepriceOne failed: %v", err)
	}
	if outcome.Result.Priced() {
		t.Error("expected not computable")
	}
	if got := cat.prices[orphanItem]; !got.Equal(d(5000)) {
		t.Errorf("price changed to %s", got)
	}
	if !errors.Is(outcome.Skipped, pricingerrors.ErrNoQuotes) {
		t.Errorf("skipped = %v, want NO_QUOTES", outcome.Skipped)
	}
	if outcome.Err != nil {
		t.Errorf("no-quote item must not fail: %v", outcome.Err)
	}
	if len(audit.decisions) != 1 || audit.decisions[0].ErrorCode != pricingerrors.ErrCodeNoQuotes {
		t.Errorf("decisions = %+v", audit.decisions)
	}
}

func TestInvertedBoundsAreLogged(t *testing.T) {
	cfg := testConfig()
	cfg.MarginFloor = d(5000)
	cfg.MarginCeiling = d(100)

	runs := map[string]func(r *Repricer) error{
		"reprice one": func(r *Repricer) error {
			_, err := r.RepriceOne(context.Background(), splitItem)
			return err
		},
		"sweep": func(r *Repricer) error {
			_, err := r.Sweep(context.Background())
			return err
		},
	}

	for name, run := range runs {
		t.Run(name, func(t *testing.T) {
			cat := newFakeCatalog(cfg)
			cat.quotes[splitItem] = []repricing.Quote{d(20000)}

			var buf bytes.Buffer
			r, _, _ := newTestRepricer(cat)
			r.Logger = zerolog.New(&buf)

			if err := run(r); err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if !bytes.Contains(buf.Bytes(), []byte("Margin ceiling is below floor")) {
				t.Errorf("expected inverted-bounds warning, got log %s", buf.String())
			}
		})
	}
}

func TestRepriceOne_InvalidQuote(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.quotes[badItem] = []repricing.Quote{d(100), d(0)}

	r, audit, _ := newTestRepricer(cat)
	_, err := r.RepriceOne(context.Background(), badItem)
	if !errors.Is(err, pricingerrors.ErrInvalidQuote) {
		t.Fatalf("expected INVALID_QUOTE, got %v", err)
	}
	if len(audit.decisions) != 1 || audit.decisions[0].ErrorCode != pricingerrors.ErrCodeInvalidQuote {
		t.Errorf("decisions = %+v", audit.decisions)
	}
}

func TestRepriceOne_NoConfiguration(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.cfg = nil

	r, audit, _ := newTestRepricer(cat)
	_, err := r.RepriceOne(context.Background(), splitItem)
	if !errors.Is(err, pricingerrors.ErrNoConfiguration) {
		t.Fatalf("expected NO_CONFIGURATION, got %v", err)
	}
	if len(audit.decisions) != 0 {
		t.Errorf("nothing should be audited: %+v", audit.decisions)
	}
}

func TestSweep_Summary(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.quotes[splitItem] = []repricing.Quote{d(13050), d(13158), d(13200)}
	cat.quotes[steadyItem] = []repricing.Quote{d(20000)}
	cat.prices[steadyItem] = d(26000)
	cat.prices[orphanItem] = d(5000)
	cat.quotes[badItem] = []repricing.Quote{d(-1)}
	cat.quoteErr[brokenItem] = errors.New("connection reset")

	r, audit, events := newTestRepricer(cat)
	summary, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	if summary.Total != 5 {
		t.Errorf("total = %d, want 5", summary.Total)
	}
	if summary.Priced != 2 || summary.Changed != 1 || summary.Unchanged != 1 {
		t.Errorf("priced/changed/unchanged = %d/%d/%d", summary.Priced, summary.Changed, summary.Unchanged)
	}
	if summary.NotComputable != 1 {
		t.Errorf("not computable = %d, want 1", summary.NotComputable)
	}
	if summary.Failed != 2 || len(summary.Failures) != 2 {
		t.Errorf("failed = %d (%d failures)", summary.Failed, len(summary.Failures))
	}
	if summary.RunID == "" {
		t.Error("expected run id")
	}
	if cat.cfgCalls != 1 {
		t.Errorf("config loaded %d times, want one snapshot per run", cat.cfgCalls)
	}
	if len(audit.decisions) != 5 {
		t.Errorf("audited %d decisions, want 5", len(audit.decisions))
	}
	for _, dec := range audit.decisions {
		if dec.RunID.String() != summary.RunID {
			t.Errorf("decision run id %s, want %s", dec.RunID, summary.RunID)
		}
	}
	if len(events.events) != 1 {
		t.Errorf("events = %d, want 1", len(events.events))
	}
}

func TestSweep_NoConfigurationAborts(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.cfg = nil
	cat.quotes[splitItem] = []repricing.Quote{d(100)}

	r, _, _ := newTestRepricer(cat)
	summary, err := r.Sweep(context.Background())
	if !errors.Is(err, pricingerrors.ErrNoConfiguration) {
		t.Fatalf("expected NO_CONFIGURATION, got %v", err)
	}
	if summary != nil {
		t.Errorf("expected no summary, got %+v", summary)
	}
	if cat.writes != 0 {
		t.Errorf("writes = %d, want 0", cat.writes)
	}
}

func TestSweep_PublishFailureDoesNotFailItem(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.quotes[splitItem] = []repricing.Quote{d(20000)}

	r, _, events := newTestRepricer(cat)
	events.err = errors.New("broker down")
	r.Audit = nil

	summary, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if summary.Changed != 1 || summary.Failed != 0 {
		t.Errorf("changed/failed = %d/%d", summary.Changed, summary.Failed)
	}
}

func TestSweep_WriteFailureCounted(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	cat.quotes[splitItem] = []repricing.Quote{d(20000)}
	cat.writeErr = errors.New("disk full")

	r, _, _ := newTestRepricer(cat)
	summary, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
}

func TestRunEvery(t *testing.T) {
	cat := newFakeCatalog(testConfig())
	r, _, _ := newTestRepricer(cat)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.RunEvery(ctx, 5*time.Millisecond) }()

	deadline := time.After(2 * time.Second)
	for {
		cat.mu.Lock()
		calls := cat.cfgCalls
		cat.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("scheduler ran %d sweeps", calls)
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunEvery returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	if err := r.RunEvery(context.Background(), 0); err == nil {
		t.Error("expected error for zero interval")
	}
}
