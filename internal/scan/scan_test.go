package scan_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/ledger"
	"github.com/fortuna/edge-engine/internal/registry"
	"github.com/fortuna/edge-engine/internal/router"
	"github.com/fortuna/edge-engine/internal/scan"
	"github.com/fortuna/edge-engine/internal/sourcecache"
)

type capturingSink struct {
	delivered []domain.Opportunity
}

func (s *capturingSink) Deliver(_ context.Context, _ domain.Channel, o domain.Opportunity) error {
	s.delivered = append(s.delivered, o)
	return nil
}

func newPipeline(t *testing.T, markets []domain.Market) (*scan.Pipeline, *capturingSink) {
	t.Helper()
	log := zerolog.Nop()
	reg := registry.New(log)

	reg.RegisterSource(registry.SourceDescriptor{
		Name:     "primary",
		Category: domain.CategorySports,
		CacheTTL: time.Minute,
		Fetch: func(context.Context) (any, error) {
			return markets, nil
		},
	})

	reg.RegisterDetector(registry.DetectorDescriptor{
		Name:    "always-edge",
		Sources: []string{"primary"},
		Detect: func(_ context.Context, markets []domain.Market, _ domain.SourceData) ([]domain.Opportunity, error) {
			var out []domain.Opportunity
			for _, m := range markets {
				out = append(out, domain.Opportunity{
					Market:     m,
					Source:     "sports",
					Edge:       0.1,
					Confidence: 0.6,
					Estimate:   0.6,
				})
			}
			return out, nil
		},
	})

	sink := &capturingSink{}
	sc := sourcecache.New(reg, 0, log)
	led := ledger.New(t.TempDir(), log)
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelSports: sink}, log)

	return &scan.Pipeline{
		Registry:      reg,
		SourceCache:   sc,
		Ledger:        led,
		Router:        r,
		PrimarySource: "primary",
		ScanDeadline:  5 * time.Second,
		Log:           log,
	}, sink
}

func TestRun_HappyPath_RoutesAndRecords(t *testing.T) {
	markets := []domain.Market{
		{Platform: "kalshi", ID: "A", Category: domain.CategorySports, Price: 0.5},
		{Platform: "kalshi", ID: "B", Category: domain.CategorySports, Price: 0.5},
	}
	p, sink := newPipeline(t, markets)

	result := p.Run(context.Background())

	require.Equal(t, scan.StateDone, result.State)
	require.Equal(t, 2, result.MarketCount)
	require.Equal(t, 2, result.EmittedCount)
	require.Len(t, sink.delivered, 2)
	require.Len(t, p.Ledger.Records(), 2)
}

func TestRun_NoMarkets_DoneWithoutEmitting(t *testing.T) {
	p, sink := newPipeline(t, nil)

	result := p.Run(context.Background())

	require.Equal(t, scan.StateDone, result.State)
	require.Zero(t, result.MarketCount)
	require.Empty(t, sink.delivered)
}

// TestRun_PrimarySourceFetchedEvenWhenNoDetectorDeclaresIt guards against a
// Phase A planning gap: the primary market source must always be fetched in
// Phase B, even if every enabled detector's declared Sources happen to omit
// it by name (they may depend only on a processor's derived output).
func TestRun_PrimarySourceFetchedEvenWhenNoDetectorDeclaresIt(t *testing.T) {
	markets := []domain.Market{{Platform: "kalshi", ID: "A", Category: domain.CategorySports, Price: 0.5}}
	p, sink := newPipeline(t, markets)
	p.Registry.Reset()

	p.Registry.RegisterSource(registry.SourceDescriptor{
		Name: "primary", CacheTTL: time.Minute,
		Fetch: func(context.Context) (any, error) { return markets, nil },
	})
	p.Registry.RegisterProcessor(registry.ProcessorDescriptor{
		Name:   "derive",
		Output: "other-derived-source",
		Process: func(context.Context, domain.SourceData) (any, error) {
			return "derived", nil
		},
	})
	p.Registry.RegisterDetector(registry.DetectorDescriptor{
		Name:    "no-primary-declared",
		Sources: []string{"other-derived-source"},
		Detect: func(_ context.Context, markets []domain.Market, _ domain.SourceData) ([]domain.Opportunity, error) {
			var out []domain.Opportunity
			for _, m := range markets {
				out = append(out, domain.Opportunity{Market: m, Source: "sports", Edge: 0.1, Confidence: 0.6, Estimate: 0.6})
			}
			return out, nil
		},
	})

	result := p.Run(context.Background())

	require.Equal(t, scan.StateDone, result.State)
	require.Equal(t, 1, result.MarketCount)
	require.Len(t, sink.delivered, 1)
}

func TestRun_GateDropsExtremePrice(t *testing.T) {
	markets := []domain.Market{{Platform: "kalshi", ID: "A", Category: domain.CategorySports, Price: 0.01}}
	p, sink := newPipeline(t, markets)
	p.Registry.Reset()

	p.Registry.RegisterSource(registry.SourceDescriptor{
		Name: "primary", CacheTTL: time.Minute,
		Fetch: func(context.Context) (any, error) { return markets, nil },
	})
	p.Registry.RegisterDetector(registry.DetectorDescriptor{
		Name:    "always-edge",
		Sources: []string{"primary"},
		Detect: func(_ context.Context, markets []domain.Market, _ domain.SourceData) ([]domain.Opportunity, error) {
			return []domain.Opportunity{{Market: markets[0], Edge: 0.1, Confidence: 0.6}}, nil
		},
	})

	result := p.Run(context.Background())
	require.Equal(t, scan.StateDone, result.State)
	require.Equal(t, 1, result.DetectedCount)
	require.Zero(t, result.EmittedCount)
	require.Len(t, result.Drops, 1)
	require.Empty(t, sink.delivered)
}

func TestRun_DeadlineExceeded_AbortsButKeepsPartialResults(t *testing.T) {
	markets := []domain.Market{{Platform: "kalshi", ID: "A", Category: domain.CategorySports, Price: 0.5}}
	log := zerolog.Nop()
	reg := registry.New(log)
	reg.RegisterSource(registry.SourceDescriptor{
		Name: "primary", CacheTTL: time.Minute,
		Fetch: func(context.Context) (any, error) { return markets, nil },
	})
	reg.RegisterDetector(registry.DetectorDescriptor{
		Name:    "slow",
		Sources: []string{"primary"},
		Detect: func(ctx context.Context, markets []domain.Market, _ domain.SourceData) ([]domain.Opportunity, error) {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
			}
			return []domain.Opportunity{{Market: markets[0], Edge: 0.1, Confidence: 0.6}}, nil
		},
	})

	sink := &capturingSink{}
	sc := sourcecache.New(reg, 0, log)
	led := ledger.New(t.TempDir(), log)
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelSports: sink}, log)

	p := &scan.Pipeline{
		Registry: reg, SourceCache: sc, Ledger: led, Router: r,
		PrimarySource: "primary", ScanDeadline: 10 * time.Millisecond, Log: log,
	}

	result := p.Run(context.Background())
	require.Equal(t, scan.StateAborted, result.State)
	require.Equal(t, scan.StateDetecting, result.AbortedAtPhase)
	require.Zero(t, result.DetectedCount)
}

func TestRun_ZeroDeadline_AbortsWithNoEmissions(t *testing.T) {
	markets := []domain.Market{{Platform: "kalshi", ID: "A", Category: domain.CategorySports, Price: 0.5}}
	p, sink := newPipeline(t, markets)
	p.ScanDeadline = 0

	result := p.Run(context.Background())

	require.Equal(t, scan.StateAborted, result.State)
	require.Equal(t, scan.StatePlanning, result.AbortedAtPhase)
	require.Zero(t, result.MarketCount)
	require.Zero(t, result.DetectedCount)
	require.Zero(t, result.EmittedCount)
	require.Empty(t, sink.delivered)
}
