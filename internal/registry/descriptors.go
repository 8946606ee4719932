package registry

import (
	"context"
	"time"

	"github.com/fortuna/edge-engine/internal/domain"
)

// FetchFunc produces an opaque payload for a Source, or fails. It must never
// panic across the boundary -- failures are returned, not thrown, per
// spec.md §6.
type FetchFunc func(ctx context.Context) (any, error)

// SourceDescriptor is the immutable configuration half of a registered
// source. Mutable cache state (cachedData, lastFetch) lives in the
// mutex-guarded cells of the sourcecache package, not here.
type SourceDescriptor struct {
	Name     string
	Category domain.Category
	CacheTTL time.Duration
	Fetch    FetchFunc
}

// ProcessFunc derives a new payload from a SourceData view restricted to the
// processor's declared inputs.
type ProcessFunc func(ctx context.Context, inputs domain.SourceData) (any, error)

// ProcessorDescriptor declares a chained transform over existing source
// data, producing a new named payload that detectors (or other processors)
// can depend on like any other source.
type ProcessorDescriptor struct {
	Name    string
	Inputs  []string
	Output  string
	Process ProcessFunc
}

// DetectFunc maps markets and the scan's source data view to opportunities.
// It must tolerate missing source entries and must not panic; a detector
// that fails internally returns (nil, err) and the scan pipeline isolates
// the failure per spec.md §4.4/§7.
type DetectFunc func(ctx context.Context, markets []domain.Market, sourceData domain.SourceData) ([]domain.Opportunity, error)

// DetectorDescriptor declares one pluggable edge detector.
type DetectorDescriptor struct {
	Name          string
	Enabled       *bool // nil means enabled, per spec.md §4.1
	Sources       []string
	MinEdge       float64
	MinConfidence float64
	Detect        DetectFunc

	// ToleratesMissingSources lets a detector opt out of the "skip if any
	// declared source is absent" rule in spec.md §4.6 Phase D.
	ToleratesMissingSources bool
}

// IsEnabled applies the "absent means enabled" rule.
func (d DetectorDescriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}
