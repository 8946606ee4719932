package source_test

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/source"
)

func TestPostgresMarketSource_Fetch_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"platform", "id", "ticker", "title", "subtitle", "category", "price", "volume", "liquidity", "url"}).
		AddRow("kalshi", "M1", "KXTICK", "Will it happen", nil, "sports", 0.42, 1000.0, nil, nil)
	mock.ExpectQuery("SELECT platform, id, ticker").WillReturnRows(rows)

	s := source.NewPostgresMarketSourceForTest(db)
	payload, err := s.Fetch(context.Background())
	require.NoError(t, err)

	markets, ok := payload.([]domain.Market)
	require.True(t, ok)
	require.Len(t, markets, 1)
	require.Equal(t, "kalshi", markets[0].Platform)
	require.Equal(t, "M1", markets[0].ID)
	require.InDelta(t, 0.42, markets[0].Price, 1e-9)
	require.NotNil(t, markets[0].Volume)
	require.NoError(t, mock.ExpectationsWereMet())
}
