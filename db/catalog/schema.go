package catalog

import (
	"context"
	"fmt"
)

func (s *Store) schema() []string {
	idColumn := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		idColumn = "BIGSERIAL PRIMARY KEY"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS pricing_config (
			id INTEGER PRIMARY KEY,
			surcharge_one_quote_pct NUMERIC,
			surcharge_two_quotes_pct NUMERIC,
			margin_floor NUMERIC,
			margin_ceiling NUMERIC,
			competitor_discount NUMERIC,
			delivery_fee NUMERIC,
			delivery_operator_cost NUMERIC,
			free_delivery_threshold NUMERIC,
			rounding_unit NUMERIC,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS competitor_quotes (
			id %s,
			product_id TEXT NOT NULL,
			manufacturer_id TEXT NOT NULL,
			competitor TEXT NOT NULL DEFAULT '',
			price NUMERIC NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			observed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`, idColumn),
		`CREATE INDEX IF NOT EXISTS idx_competitor_quotes_pair
			ON competitor_quotes (product_id, manufacturer_id)`,
		`CREATE TABLE IF NOT EXISTS listed_prices (
			product_id TEXT NOT NULL,
			manufacturer_id TEXT NOT NULL,
			price NUMERIC NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (product_id, manufacturer_id)
		)`,
	}
}

// Migrate creates the catalogue tables when absent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate catalog schema: %w", err)
		}
	}
	return nil
}
