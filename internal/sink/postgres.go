package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/fortuna/edge-engine/internal/domain"
)

// PostgresSink persists every routed opportunity to the opportunities
// table, modeled on the teacher's HolocronWriter
// (edge-detector/internal/writer/holocron_writer.go) but against a single
// flat table rather than a legs join, since an Opportunity here carries no
// multi-leg structure.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens a connection pool against dsn using the lib/pq
// driver. The caller owns the returned *sql.DB's lifetime.
func NewPostgresSink(dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

const insertOpportunityQuery = `
INSERT INTO opportunities (
	channel, platform, market_id, category, price, edge, confidence,
	direction, urgency, source
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// Deliver inserts one row per opportunity. Errors are wrapped and returned
// to the caller, not logged here; Deliver never retries internally.
func (s *PostgresSink) Deliver(ctx context.Context, channel domain.Channel, o domain.Opportunity) error {
	_, err := s.db.ExecContext(ctx, insertOpportunityQuery,
		string(channel),
		o.Market.Platform,
		o.Market.ID,
		string(o.Market.Category),
		o.Market.Price,
		o.Edge,
		o.Confidence,
		string(o.Direction),
		string(o.Urgency),
		o.Source,
	)
	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresSink) Close() error {
	return s.db.Close()
}
