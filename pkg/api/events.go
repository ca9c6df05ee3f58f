package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceChanged is emitted whenever a listed price is written with a new value.
type PriceChanged struct {
	EventID        string           `json:"event_id"`
	RunID          string           `json:"run_id"`
	ProductID      string           `json:"product_id"`
	ManufacturerID string           `json:"manufacturer_id"`
	OldPrice       *decimal.Decimal `json:"old_price,omitempty"`
	NewPrice       decimal.Decimal  `json:"new_price"`
	Tier           string           `json:"tier"`
	Branch         string           `json:"branch"`
	QuoteCount     int              `json:"quote_count"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// Pair returns the item the event refers to.
func (e PriceChanged) Pair() Pair {
	return Pair{ProductID: e.ProductID, ManufacturerID: e.ManufacturerID}
}
