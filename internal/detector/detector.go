// Package detector provides the pipeline-side half of the detector contract
// (spec.md §4.4): missing-source skip checks and a panic-isolating wrapper
// around a detector's Detect capability. The detector's actual edge-finding
// algorithm is a black box the core never inspects.
package detector

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/metrics"
	"github.com/fortuna/edge-engine/internal/registry"
)

// Metrics is optional instrumentation for Invoke, set once at process
// startup. A nil value (the default) skips instrumentation entirely.
var Metrics *metrics.Metrics

// MissingSources returns the subset of desc's declared sources absent from
// sourceData.
func MissingSources(desc registry.DetectorDescriptor, sourceData domain.SourceData) []string {
	var missing []string
	for _, name := range desc.Sources {
		if _, ok := sourceData[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// ShouldSkip reports whether the scan pipeline should skip invoking this
// detector entirely because a declared source is missing and the detector
// has not signaled tolerance for that.
func ShouldSkip(desc registry.DetectorDescriptor, sourceData domain.SourceData) (skip bool, missing []string) {
	if desc.ToleratesMissingSources {
		return false, nil
	}
	missing = MissingSources(desc, sourceData)
	return len(missing) > 0, missing
}

// Invoke runs one detector's Detect capability with panic isolation: a
// detector that fails internally (error or panic) yields an empty result
// and the failure is logged, never propagated.
func Invoke(ctx context.Context, log zerolog.Logger, desc registry.DetectorDescriptor, markets []domain.Market, sourceData domain.SourceData) []domain.Opportunity {
	if Metrics != nil {
		Metrics.DetectorInvocations.WithLabelValues(desc.Name).Inc()
	}

	opportunities, err := safeDetect(ctx, desc, markets, sourceData)
	if err != nil {
		log.Error().Str("detector", desc.Name).Err(err).Msg("detector failed")
		if Metrics != nil {
			Metrics.DetectorFailures.WithLabelValues(desc.Name).Inc()
		}
		return nil
	}
	return opportunities
}

func safeDetect(ctx context.Context, desc registry.DetectorDescriptor, markets []domain.Market, sourceData domain.SourceData) (result []domain.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("detector %q panicked: %v", desc.Name, r)
		}
	}()
	if desc.Detect == nil {
		return nil, fmt.Errorf("detector %q has no Detect function configured", desc.Name)
	}
	return desc.Detect(ctx, markets, sourceData)
}
