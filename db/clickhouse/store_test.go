package clickhouse

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNormalize(t *testing.T) {
	d := normalize(Decision{ProductID: "p1", ManufacturerID: "m1"})
	if d.ID == uuid.Nil {
		t.Error("expected generated id")
	}
	if d.ComputedAt.IsZero() {
		t.Error("expected computed_at to be set")
	}

	fixedID := uuid.New()
	fixedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d = normalize(Decision{ID: fixedID, ComputedAt: fixedAt})
	if d.ID != fixedID || !d.ComputedAt.Equal(fixedAt) {
		t.Errorf("normalize overwrote caller values: %v %v", d.ID, d.ComputedAt)
	}
}

func TestDecisionPair(t *testing.T) {
	d := Decision{ProductID: "p1", ManufacturerID: "m1"}
	if got := d.Pair().Key(); got != "p1:m1" {
		t.Errorf("pair key = %q", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 9000 || cfg.Database != "repricer" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}
