// Package source provides concrete FetchFunc implementations registerable
// against the registry as primary and auxiliary sources. PostgresMarketSource
// is grounded on the ESPN client's thin-wrapper-plus-context style
// (game-stats-service/internal/providers/espn/client.go) adapted to a
// database/sql query instead of an HTTP call.
package source

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/fortuna/edge-engine/internal/domain"
)

// PostgresMarketSource queries the primary exchange's market snapshot table.
type PostgresMarketSource struct {
	db *sql.DB
}

// NewPostgresMarketSource opens a connection pool against dsn.
func NewPostgresMarketSource(dsn string) (*PostgresMarketSource, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(10)
	return &PostgresMarketSource{db: db}, nil
}

const selectOpenMarketsQuery = `
SELECT platform, id, ticker, title, subtitle, category, price, volume, liquidity, url
FROM markets
WHERE close_time IS NULL OR close_time > now()
`

// Fetch implements registry.FetchFunc: it returns []domain.Market, the
// shape Phase C expects from the primary source.
func (s *PostgresMarketSource) Fetch(ctx context.Context) (any, error) {
	rows, err := s.db.QueryContext(ctx, selectOpenMarketsQuery)
	if err != nil {
		return nil, fmt.Errorf("query open markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		var volume, liquidity sql.NullFloat64
		var subtitle, url sql.NullString
		if err := rows.Scan(&m.Platform, &m.ID, &m.Ticker, &m.Title, &subtitle, &m.Category, &m.Price, &volume, &liquidity, &url); err != nil {
			return nil, fmt.Errorf("scan market row: %w", err)
		}
		if subtitle.Valid {
			m.Subtitle = subtitle.String
		}
		if url.Valid {
			m.URL = url.String
		}
		if volume.Valid {
			v := volume.Float64
			m.Volume = &v
		}
		if liquidity.Valid {
			l := liquidity.Float64
			m.Liquidity = &l
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market rows: %w", err)
	}
	return markets, nil
}

// Close releases the underlying connection pool.
func (s *PostgresMarketSource) Close() error {
	return s.db.Close()
}

// NewPostgresMarketSourceForTest wraps an already-open *sql.DB, letting
// tests substitute a sqlmock connection without dialing a real database.
func NewPostgresMarketSourceForTest(db *sql.DB) *PostgresMarketSource {
	return &PostgresMarketSource{db: db}
}
