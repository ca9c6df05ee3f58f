// Package clickhouse provides the ClickHouse decision audit log.
// Every engine outcome is appended as an immutable row for pricing analytics.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"repricer/pkg/api"
)

// Decision is one recorded engine outcome for a catalogue item.
type Decision struct {
	ID             uuid.UUID        `ch:"id" json:"id"`
	RunID          uuid.UUID        `ch:"run_id" json:"run_id"`
	ProductID      string           `ch:"product_id" json:"product_id"`
	ManufacturerID string           `ch:"manufacturer_id" json:"manufacturer_id"`
	Status         string           `ch:"status" json:"status"`
	Tier           string           `ch:"tier" json:"tier"`
	Branch         string           `ch:"branch" json:"branch,omitempty"`
	QuoteCount     int              `ch:"quote_count" json:"quote_count"`
	Base           decimal.Decimal  `ch:"base" json:"base"`
	Raw            decimal.Decimal  `ch:"raw" json:"raw"`
	Price          decimal.Decimal  `ch:"price" json:"price"`
	PreviousPrice  *decimal.Decimal `ch:"previous_price" json:"previous_price,omitempty"`
	Changed        bool             `ch:"changed" json:"changed"`
	ErrorCode      string           `ch:"error_code" json:"error_code,omitempty"`
	ComputedAt     time.Time        `ch:"computed_at" json:"computed_at"`
}

// Pair returns the item the decision refers to.
func (d Decision) Pair() api.Pair {
	return api.Pair{ProductID: d.ProductID, ManufacturerID: d.ManufacturerID}
}

// Config holds ClickHouse connection configuration
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Debug    bool
}

// DefaultConfig returns default development configuration
func DefaultConfig() *Config {
	return &Config{
		Host:     "localhost",
		Port:     9000,
		Database: "repricer",
		Username: "default",
		Password: "",
		Debug:    false,
	}
}

// Store records pricing decisions in ClickHouse
type Store struct {
	conn clickhouse.Conn
}

// NewStore opens a ClickHouse connection for the audit log
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: cfg.Debug,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	return &Store{conn: conn}, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.conn.Close()
}

// EnsureSchema creates the decisions table when absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pricing_decisions (
			id UUID,
			run_id UUID,
			product_id String,
			manufacturer_id String,
			status LowCardinality(String),
			tier LowCardinality(String),
			branch LowCardinality(String),
			quote_count UInt32,
			base Decimal(18, 4),
			raw Decimal(18, 4),
			price Decimal(18, 4),
			previous_price Nullable(Decimal(18, 4)),
			changed UInt8,
			error_code LowCardinality(String),
			computed_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		PARTITION BY toYYYYMM(computed_at)
		ORDER BY (product_id, manufacturer_id, computed_at)
	`
	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create pricing_decisions: %w", err)
	}
	return nil
}

// RecordDecisions appends decisions using a single batch insert
func (s *Store) RecordDecisions(ctx context.Context, decisions []Decision) error {
	if len(decisions) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO pricing_decisions (
			id, run_id, product_id, manufacturer_id, status, tier, branch, quote_count,
			base, raw, price, previous_price, changed, error_code, computed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, d := range decisions {
		d = normalize(d)
		if err := batch.Append(
			d.ID, d.RunID, d.ProductID, d.ManufacturerID,
			d.Status, d.Tier, d.Branch, uint32(d.QuoteCount),
			d.Base, d.Raw, d.Price, d.PreviousPrice,
			boolToUInt8(d.Changed), d.ErrorCode, d.ComputedAt,
		); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	return batch.Send()
}

// ListDecisions returns the most recent decisions for an item, newest first
func (s *Store) ListDecisions(ctx context.Context, pair api.Pair, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, run_id, product_id, manufacturer_id, status, tier, branch, quote_count,
			   base, raw, price, previous_price, changed, error_code, computed_at
		FROM pricing_decisions
		WHERE product_id = ? AND manufacturer_id = ?
		ORDER BY computed_at DESC
		LIMIT ?
	`
	rows, err := s.conn.Query(ctx, query, pair.ProductID, pair.ManufacturerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []Decision
	for rows.Next() {
		var d Decision
		var quoteCount uint32
		var changed uint8
		if err := rows.Scan(
			&d.ID, &d.RunID, &d.ProductID, &d.ManufacturerID,
			&d.Status, &d.Tier, &d.Branch, &quoteCount,
			&d.Base, &d.Raw, &d.Price, &d.PreviousPrice,
			&changed, &d.ErrorCode, &d.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.QuoteCount = int(quoteCount)
		d.Changed = changed == 1
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// normalize fills identifiers and timestamps left unset by the caller.
func normalize(d Decision) Decision {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.ComputedAt.IsZero() {
		d.ComputedAt = time.Now().UTC()
	}
	return d
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
