package processor_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/processor"
	"github.com/fortuna/edge-engine/internal/registry"
)

func TestRun_ExtractsDeclaredInputsOnly(t *testing.T) {
	var seen domain.SourceData
	desc := registry.ProcessorDescriptor{
		Name:   "consensus",
		Inputs: []string{"a"},
		Output: "consensus",
		Process: func(_ context.Context, inputs domain.SourceData) (any, error) {
			seen = inputs
			return "derived", nil
		},
	}

	sourceData := domain.SourceData{"a": 1, "b": 2}
	payload, ok := processor.Run(context.Background(), zerolog.Nop(), desc, sourceData)

	require.True(t, ok)
	require.Equal(t, "derived", payload)
	require.Contains(t, seen, "a")
	require.NotContains(t, seen, "b")
}

func TestRun_FailureReturnsFalse(t *testing.T) {
	desc := registry.ProcessorDescriptor{
		Name: "broken",
		Process: func(context.Context, domain.SourceData) (any, error) {
			return nil, fmt.Errorf("boom")
		},
	}

	_, ok := processor.Run(context.Background(), zerolog.Nop(), desc, domain.SourceData{})
	require.False(t, ok)
}

func TestRun_PanicIsIsolated(t *testing.T) {
	desc := registry.ProcessorDescriptor{
		Name: "panics",
		Process: func(context.Context, domain.SourceData) (any, error) {
			panic("kaboom")
		},
	}

	_, ok := processor.Run(context.Background(), zerolog.Nop(), desc, domain.SourceData{})
	require.False(t, ok)
}

func TestRunAll_ChainsOutputsForward(t *testing.T) {
	descs := []registry.ProcessorDescriptor{
		{
			Name:   "double",
			Inputs: []string{"raw"},
			Output: "doubled",
			Process: func(_ context.Context, inputs domain.SourceData) (any, error) {
				return inputs["raw"].(int) * 2, nil
			},
		},
		{
			Name:   "addOne",
			Inputs: []string{"doubled"},
			Output: "final",
			Process: func(_ context.Context, inputs domain.SourceData) (any, error) {
				return inputs["doubled"].(int) + 1, nil
			},
		},
	}

	out := processor.RunAll(context.Background(), zerolog.Nop(), descs, domain.SourceData{"raw": 3})
	require.Equal(t, 7, out["final"])
}
