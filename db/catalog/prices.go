package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"repricer/pkg/api"
)

// ListPairs returns every item that has a listed price or an active quote.
func (s *Store) ListPairs(ctx context.Context) ([]api.Pair, error) {
	query := `
		SELECT product_id, manufacturer_id FROM listed_prices
		UNION
		SELECT product_id, manufacturer_id FROM competitor_quotes WHERE active = ?
		ORDER BY 1, 2
	`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), true)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []api.Pair
	for rows.Next() {
		var p api.Pair
		if err := rows.Scan(&p.ProductID, &p.ManufacturerID); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

// GetListedPrice returns the current listed price, with ok=false when none is stored.
func (s *Store) GetListedPrice(ctx context.Context, pair api.Pair) (decimal.Decimal, bool, error) {
	query := `SELECT price FROM listed_prices WHERE product_id = ? AND manufacturer_id = ?`

	var price decimal.Decimal
	err := s.db.QueryRowContext(ctx, s.rebind(query), pair.ProductID, pair.ManufacturerID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get listed price for %s: %w", pair, err)
	}
	return price, true, nil
}

// UpsertListedPrice writes the listed price for a pair.
func (s *Store) UpsertListedPrice(ctx context.Context, pair api.Pair, price decimal.Decimal) error {
	query := `
		INSERT INTO listed_prices (product_id, manufacturer_id, price, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (product_id, manufacturer_id)
		DO UPDATE SET price = excluded.price, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := s.db.ExecContext(ctx, s.rebind(query), pair.ProductID, pair.ManufacturerID, price.String()); err != nil {
		return fmt.Errorf("failed to upsert listed price for %s: %w", pair, err)
	}
	return nil
}
