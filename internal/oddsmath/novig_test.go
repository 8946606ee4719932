package oddsmath_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortuna/edge-engine/internal/oddsmath"
)

func TestRemoveVig_NormalizesOverround(t *testing.T) {
	fairYes, fairNo, err := oddsmath.RemoveVig(0.55, 0.50)
	require.NoError(t, err)
	require.InDelta(t, 1.0, fairYes+fairNo, 1e-9)
	require.Greater(t, fairYes, fairNo)
}

func TestRemoveVig_NoOverroundPassesThrough(t *testing.T) {
	fairYes, fairNo, err := oddsmath.RemoveVig(0.40, 0.40)
	require.NoError(t, err)
	require.Equal(t, 0.40, fairYes)
	require.Equal(t, 0.40, fairNo)
}

func TestRemoveVig_RejectsOutOfRangePrices(t *testing.T) {
	_, _, err := oddsmath.RemoveVig(1.2, 0.5)
	require.Error(t, err)
}

func TestVigPercentage(t *testing.T) {
	pct, err := oddsmath.VigPercentage([]float64{0.55, 0.50})
	require.NoError(t, err)
	require.InDelta(t, 5.0, pct, 1e-9)
}

func TestEdge_PositiveWhenFairAboveQuote(t *testing.T) {
	edge, err := oddsmath.Edge(0.60, 0.50)
	require.NoError(t, err)
	require.InDelta(t, 0.20, edge, 1e-9)
}

func TestCrossPlatformConsensus_AveragesAcrossPlatforms(t *testing.T) {
	quotes := []oddsmath.TwoSidedQuote{
		{Platform: "kalshi", PriceYes: 0.55, PriceNo: 0.50},
		{Platform: "polymarket", PriceYes: 0.60, PriceNo: 0.45},
	}
	fairYes, fairNo, err := oddsmath.CrossPlatformConsensus(quotes)
	require.NoError(t, err)
	require.InDelta(t, 1.0, fairYes+fairNo, 1e-9)
	require.Greater(t, fairYes, 0.5)
}

func TestCrossPlatformConsensus_RejectsEmpty(t *testing.T) {
	_, _, err := oddsmath.CrossPlatformConsensus(nil)
	require.Error(t, err)
}
