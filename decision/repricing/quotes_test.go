package repricing

import (
	"errors"
	"testing"

	pricingerrors "repricer/pkg/errors"
)

func TestIngest_SortsAndClassifies(t *testing.T) {
	tests := []struct {
		name   string
		quotes []Quote
		want   []int64
		tier   Tier
	}{
		{"empty", nil, nil, TierNoQuotes},
		{"one", quotes(500), []int64{500}, TierOneQuote},
		{"two unsorted", quotes(900, 100), []int64{100, 900}, TierTwoQuotes},
		{"duplicates kept", quotes(300, 100, 300, 200), []int64{100, 200, 300, 300}, TierThreeOrMoreQuotes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Ingest(tt.quotes)
			if err != nil {
				t.Fatalf("Ingest failed: %v", err)
			}
			if set.Tier != tt.tier {
				t.Errorf("tier = %s, want %s", set.Tier, tt.tier)
			}
			if set.QuoteCount() != len(tt.want) {
				t.Fatalf("count = %d, want %d", set.QuoteCount(), len(tt.want))
			}
			for i, w := range tt.want {
				if !set.Sorted[i].Equal(d(w)) {
					t.Errorf("sorted[%d] = %s, want %d", i, set.Sorted[i], w)
				}
			}
		})
	}
}

func TestIngest_RejectsNonPositive(t *testing.T) {
	_, err := Ingest(quotes(100, -1))
	if !errors.Is(err, pricingerrors.ErrInvalidQuote) {
		t.Fatalf("expected INVALID_QUOTE, got %v", err)
	}
	if code := pricingerrors.CodeOf(err); code != pricingerrors.ErrCodeInvalidQuote {
		t.Errorf("code = %s", code)
	}
}

func TestClassify(t *testing.T) {
	cases := map[int]Tier{
		-1: TierNoQuotes,
		0:  TierNoQuotes,
		1:  TierOneQuote,
		2:  TierTwoQuotes,
		3:  TierThreeOrMoreQuotes,
		42: TierThreeOrMoreQuotes,
	}
	for n, want := range cases {
		if got := Classify(n); got != want {
			t.Errorf("Classify(%d) = %s, want %s", n, got, want)
		}
	}
}

func TestPricingConfig_Validate(t *testing.T) {
	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := testConfig()
	cfg.MarginFloor = d(5000)
	cfg.MarginCeiling = d(100)
	if err := cfg.Validate(); err != nil {
		t.Errorf("inverted bounds should be accepted: %v", err)
	}
	if !cfg.Inverted() {
		t.Error("expected Inverted to be true")
	}

	cfg = testConfig()
	cfg.RoundingUnit = d(-100)
	if err := cfg.Validate(); !errors.Is(err, pricingerrors.ErrInvalidConfig) {
		t.Errorf("expected INVALID_CONFIG, got %v", err)
	}
}
