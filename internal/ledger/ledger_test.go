package ledger_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/ledger"
)

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(t.TempDir(), zerolog.Nop())
}

func TestRecordAndResolve_RoundTrip(t *testing.T) {
	l := newLedger(t)

	id := l.RecordPrediction(ledger.RecordFields{
		Platform:    "kalshi",
		MarketID:    "M1",
		Category:    domain.CategoryCrypto,
		Estimate:    0.8,
		MarketPrice: 0.6,
		Confidence:  0.5,
	})
	require.NotEmpty(t, id)

	rec := l.ResolvePrediction("kalshi", "M1", true, nil)
	require.NotNil(t, rec)
	require.True(t, rec.IsResolved())
	require.NotNil(t, rec.BrierContribution)
	require.InDelta(t, 0.04, *rec.BrierContribution, 1e-9)
}

func TestResolvePrediction_NoMatchReturnsNil(t *testing.T) {
	l := newLedger(t)
	require.Nil(t, l.ResolvePrediction("kalshi", "missing", true, nil))
}

func TestCheckAndResolvePredictions_ResolvesSettledOnly(t *testing.T) {
	l := newLedger(t)
	l.RecordPrediction(ledger.RecordFields{Platform: "kalshi", MarketID: "A", Category: domain.CategorySports, Estimate: 0.7, MarketPrice: 0.6})
	l.RecordPrediction(ledger.RecordFields{Platform: "kalshi", MarketID: "B", Category: domain.CategorySports, Estimate: 0.7, MarketPrice: 0.6})

	resolved := l.CheckAndResolvePredictions(func(platform, marketID string) (bool, bool) {
		return marketID == "A", true
	})

	require.Equal(t, 1, resolved)
	var gotA, gotB bool
	for _, rec := range l.Records() {
		if rec.MarketID == "A" {
			gotA = rec.IsResolved()
		}
		if rec.MarketID == "B" {
			gotB = rec.IsResolved()
		}
	}
	require.True(t, gotA)
	require.False(t, gotB)
}

func TestPersistence_SurvivesReload(t *testing.T) {
	dir := t.TempDir()
	l1 := ledger.New(dir, zerolog.Nop())
	l1.RecordPrediction(ledger.RecordFields{Platform: "kalshi", MarketID: "A", Category: domain.CategorySports, Estimate: 0.7, MarketPrice: 0.6})

	l2 := ledger.New(dir, zerolog.Nop())
	require.Len(t, l2.Records(), 1)
	require.Equal(t, "A", l2.Records()[0].MarketID)
}

// CalibrationRoundTrip mirrors the seed-suite scenario: 10 crypto
// predictions at estimate 0.80, 4 resolve true and 6 resolve false. The
// category bias should land at 0.80 - 0.40 == 0.40, and adjusting a fresh
// 0.80 estimate against that history should land back at 0.40.
func TestCalibrationRoundTrip(t *testing.T) {
	l := newLedger(t)

	for i := 0; i < 10; i++ {
		l.RecordPrediction(ledger.RecordFields{
			Platform:    "kalshi",
			MarketID:    marketID(i),
			Category:    domain.CategoryCrypto,
			Estimate:    0.80,
			MarketPrice: 0.50,
			Confidence:  0.6,
		})
	}
	for i := 0; i < 10; i++ {
		outcome := i < 4
		require.NotNil(t, l.ResolvePrediction("kalshi", marketID(i), outcome, nil))
	}

	bias := l.GetCategoryBias(domain.CategoryCrypto)
	require.InDelta(t, 0.40, bias, 1e-9)

	adj := l.AdjustForCalibration(0.80, domain.CategoryCrypto, nil)
	require.InDelta(t, 0.40, adj.AdjustedEstimate, 1e-9)
	require.NotEmpty(t, adj.Reasoning)
}

// TestAdjustForCalibration_MultiplierCompoundsAcrossSignals confirms the
// confidence multiplier multiplies per qualifying signal (spec.md §4.5)
// rather than being overwritten by the last one evaluated: two accurate
// signal sources should compound to 1.1*1.1 == 1.21, not land on 1.1.
func TestAdjustForCalibration_MultiplierCompoundsAcrossSignals(t *testing.T) {
	l := newLedger(t)

	const tagA, tagB = domain.SignalTag("signalA"), domain.SignalTag("signalB")
	for i := 0; i < 10; i++ {
		outcome := i < 8
		l.RecordPrediction(ledger.RecordFields{
			Platform: "kalshi", MarketID: marketID(i), Category: domain.CategorySports,
			Estimate: 0.5, MarketPrice: 0.5, SignalSources: []domain.SignalTag{tagA, tagB},
		})
		require.NotNil(t, l.ResolvePrediction("kalshi", marketID(i), outcome, nil))
	}

	adj := l.AdjustForCalibration(0.5, domain.CategorySports, []domain.SignalTag{tagA, tagB})
	require.InDelta(t, clampForTest(0.7*1.1*1.1, 0.3, 0.95), adj.Confidence, 1e-9)
}

func clampForTest(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func TestGetCategoryBias_BelowSampleFloorReturnsZero(t *testing.T) {
	l := newLedger(t)
	for i := 0; i < 5; i++ {
		l.RecordPrediction(ledger.RecordFields{Platform: "kalshi", MarketID: marketID(i), Category: domain.CategoryCrypto, Estimate: 0.9, MarketPrice: 0.5})
		l.ResolvePrediction("kalshi", marketID(i), false, nil)
	}
	require.Zero(t, l.GetCategoryBias(domain.CategoryCrypto))
}

func TestCalculateCalibration_EmptyLedger(t *testing.T) {
	l := newLedger(t)
	report := l.CalculateCalibration()
	require.Zero(t, report.ResolvedCount)
}

func TestCalculateCalibration_ReliabilityBuckets(t *testing.T) {
	l := newLedger(t)
	for i := 0; i < 6; i++ {
		l.RecordPrediction(ledger.RecordFields{Platform: "kalshi", MarketID: marketID(i), Category: domain.CategorySports, Estimate: 0.85, MarketPrice: 0.5})
		l.ResolvePrediction("kalshi", marketID(i), i < 5, nil)
	}

	report := l.CalculateCalibration()
	require.Equal(t, 6, report.ResolvedCount)
	require.Len(t, report.Reliability, 10)

	bucket := report.Reliability[8]
	require.Equal(t, 6, bucket.Count)
	require.InDelta(t, 0.85, bucket.MeanEstimate, 1e-9)
	require.InDelta(t, 5.0/6.0, bucket.ActualOutcome, 1e-9)
	require.InDelta(t, 0.85-5.0/6.0, bucket.CalibrationGap, 1e-9)
	require.InDelta(t, bucket.CalibrationGap, report.CalibrationError, 1e-9)

	catMetrics, ok := report.ByCategory[domain.CategorySports]
	require.True(t, ok)
	require.Equal(t, 6, catMetrics.Count)
}

func marketID(i int) string {
	return "M" + string(rune('A'+i))
}
