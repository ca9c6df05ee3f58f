package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"repricer/decision/repricing"
	"repricer/pkg/api"
)

// QuoteRecord is one observed competitor price.
type QuoteRecord struct {
	Pair       api.Pair
	Competitor string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// GetQuotes returns the active quotes for a pair in storage order.
func (s *Store) GetQuotes(ctx context.Context, pair api.Pair) ([]repricing.Quote, error) {
	query := `
		SELECT price FROM competitor_quotes
		WHERE product_id = ? AND manufacturer_id = ? AND active = ?
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), pair.ProductID, pair.ManufacturerID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes for %s: %w", pair, err)
	}
	defer rows.Close()

	var quotes []repricing.Quote
	for rows.Next() {
		var price decimal.Decimal
		if err := rows.Scan(&price); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		quotes = append(quotes, price)
	}
	return quotes, rows.Err()
}

// AddQuote stores a newly observed quote as active.
func (s *Store) AddQuote(ctx context.Context, rec QuoteRecord) error {
	if !rec.Pair.Valid() {
		return fmt.Errorf("quote requires product and manufacturer ids")
	}
	if rec.ObservedAt.IsZero() {
		rec.ObservedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO competitor_quotes (product_id, manufacturer_id, competitor, price, active, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, s.rebind(query),
		rec.Pair.ProductID, rec.Pair.ManufacturerID, rec.Competitor, rec.Price.String(), true, rec.ObservedAt,
	); err != nil {
		return fmt.Errorf("failed to insert quote for %s: %w", rec.Pair, err)
	}
	return nil
}

// DeactivateQuotes retires every active quote for a pair, typically before a fresh scrape lands.
func (s *Store) DeactivateQuotes(ctx context.Context, pair api.Pair) (int64, error) {
	query := `
		UPDATE competitor_quotes SET active = ?
		WHERE product_id = ? AND manufacturer_id = ? AND active = ?
	`
	res, err := s.db.ExecContext(ctx, s.rebind(query), false, pair.ProductID, pair.ManufacturerID, true)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate quotes for %s: %w", pair, err)
	}
	return res.RowsAffected()
}

// ReplaceQuotes atomically retires a pair's active quotes and stores recs as the new active set.
func (s *Store) ReplaceQuotes(ctx context.Context, pair api.Pair, recs []QuoteRecord) (int, error) {
	if !pair.Valid() {
		return 0, fmt.Errorf("quote requires product and manufacturer ids")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin quote replacement: %w", err)
	}
	defer tx.Rollback()

	retire := `
		UPDATE competitor_quotes SET active = ?
		WHERE product_id = ? AND manufacturer_id = ? AND active = ?
	`
	if _, err := tx.ExecContext(ctx, s.rebind(retire), false, pair.ProductID, pair.ManufacturerID, true); err != nil {
		return 0, fmt.Errorf("failed to retire quotes for %s: %w", pair, err)
	}

	insert := s.rebind(`
		INSERT INTO competitor_quotes (product_id, manufacturer_id, competitor, price, active, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	now := time.Now().UTC()
	for _, rec := range recs {
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = now
		}
		if _, err := tx.ExecContext(ctx, insert,
			pair.ProductID, pair.ManufacturerID, rec.Competitor, rec.Price.String(), true, observed,
		); err != nil {
			return 0, fmt.Errorf("failed to insert quote for %s: %w", pair, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit quotes for %s: %w", pair, err)
	}
	return len(recs), nil
}
