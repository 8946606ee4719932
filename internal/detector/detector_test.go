package detector_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/edge-engine/internal/detector"
	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/registry"
)

func TestShouldSkip_MissingRequiredSource(t *testing.T) {
	desc := registry.DetectorDescriptor{Name: "sports-edge", Sources: []string{"espn", "sharp-books"}}
	skip, missing := detector.ShouldSkip(desc, domain.SourceData{"espn": 1})

	require.True(t, skip)
	require.Equal(t, []string{"sharp-books"}, missing)
}

func TestShouldSkip_TolerantDetectorNeverSkips(t *testing.T) {
	desc := registry.DetectorDescriptor{Name: "best-effort", Sources: []string{"espn"}, ToleratesMissingSources: true}
	skip, _ := detector.ShouldSkip(desc, domain.SourceData{})

	require.False(t, skip)
}

func TestInvoke_FailureYieldsEmptyNotPanic(t *testing.T) {
	desc := registry.DetectorDescriptor{
		Name: "broken",
		Detect: func(context.Context, []domain.Market, domain.SourceData) ([]domain.Opportunity, error) {
			return nil, fmt.Errorf("boom")
		},
	}

	out := detector.Invoke(context.Background(), zerolog.Nop(), desc, nil, domain.SourceData{})
	require.Empty(t, out)
}

func TestInvoke_PanicIsIsolated(t *testing.T) {
	desc := registry.DetectorDescriptor{
		Name: "panics",
		Detect: func(context.Context, []domain.Market, domain.SourceData) ([]domain.Opportunity, error) {
			panic("kaboom")
		},
	}

	require.NotPanics(t, func() {
		out := detector.Invoke(context.Background(), zerolog.Nop(), desc, nil, domain.SourceData{})
		require.Empty(t, out)
	})
}

func TestInvoke_Success(t *testing.T) {
	want := []domain.Opportunity{{Market: domain.Market{Platform: "kalshi", ID: "X", Price: 0.5}, Edge: 0.1, Confidence: 0.5}}
	desc := registry.DetectorDescriptor{
		Name: "works",
		Detect: func(context.Context, []domain.Market, domain.SourceData) ([]domain.Opportunity, error) {
			return want, nil
		},
	}

	out := detector.Invoke(context.Background(), zerolog.Nop(), desc, nil, domain.SourceData{})
	require.Equal(t, want, out)
}
