// Package registry holds the process-wide, name-indexed collections of
// Source, Processor, and Detector descriptors (spec.md §4.1). It owns
// nothing downstream of registration: reads dominate in steady state, so a
// single RWMutex protects three plain maps, the same discipline the
// normalizer service uses for its own sport-normalizer registry
// (normalizer/internal/registry/registry.go).
package registry

import (
	"sync"
	"time"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/rs/zerolog"
)

const defaultCacheTTL = 300 * time.Second

// Registry is safe for concurrent registration and lookup.
type Registry struct {
	mu         sync.RWMutex
	sources    map[string]SourceDescriptor
	processors map[string]ProcessorDescriptor
	detectors  map[string]DetectorDescriptor
	log        zerolog.Logger
}

// New creates an empty registry. log is used only for the warnings spec.md
// §4.1 calls for (overwrite, unknown dependency); no error is ever raised
// from registration.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		sources:    make(map[string]SourceDescriptor),
		processors: make(map[string]ProcessorDescriptor),
		detectors:  make(map[string]DetectorDescriptor),
		log:        log,
	}
}

// RegisterSource inserts or overwrites a source descriptor by name.
func (r *Registry) RegisterSource(d SourceDescriptor) {
	if d.CacheTTL <= 0 {
		d.CacheTTL = defaultCacheTTL
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[d.Name]; exists {
		r.log.Warn().Str("source", d.Name).Msg("overwriting existing source registration")
	}
	r.sources[d.Name] = d
}

// RegisterProcessor inserts or overwrites a processor descriptor by name.
func (r *Registry) RegisterProcessor(d ProcessorDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.processors[d.Name]; exists {
		r.log.Warn().Str("processor", d.Name).Msg("overwriting existing processor registration")
	}
	r.processors[d.Name] = d
}

// RegisterDetector inserts or overwrites a detector descriptor by name.
// Unknown source dependencies are logged as warnings, not rejected -- the
// dependency may be registered later in the same process lifetime.
func (r *Registry) RegisterDetector(d DetectorDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.detectors[d.Name]; exists {
		r.log.Warn().Str("detector", d.Name).Msg("overwriting existing detector registration")
	}
	for _, dep := range d.Sources {
		if _, ok := r.sources[dep]; !ok {
			r.log.Warn().Str("detector", d.Name).Str("missing_source", dep).
				Msg("detector declares a source that is not yet registered")
		}
	}
	r.detectors[d.Name] = d
}

// GetSource looks up a source by name.
func (r *Registry) GetSource(name string) (SourceDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.sources[name]
	return d, ok
}

// GetProcessor looks up a processor by name.
func (r *Registry) GetProcessor(name string) (ProcessorDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.processors[name]
	return d, ok
}

// GetDetector looks up a detector by name.
func (r *Registry) GetDetector(name string) (DetectorDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[name]
	return d, ok
}

// AllSources returns every registered source.
func (r *Registry) AllSources() []SourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceDescriptor, 0, len(r.sources))
	for _, d := range r.sources {
		out = append(out, d)
	}
	return out
}

// AllDetectors returns every registered detector, enabled or not.
func (r *Registry) AllDetectors() []DetectorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DetectorDescriptor, 0, len(r.detectors))
	for _, d := range r.detectors {
		out = append(out, d)
	}
	return out
}

// AllProcessors returns every registered processor.
func (r *Registry) AllProcessors() []ProcessorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProcessorDescriptor, 0, len(r.processors))
	for _, d := range r.processors {
		out = append(out, d)
	}
	return out
}

// ByCategory filters registered sources by declared category tag.
func (r *Registry) ByCategory(category domain.Category) []SourceDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SourceDescriptor
	for _, d := range r.sources {
		if d.Category == category {
			out = append(out, d)
		}
	}
	return out
}

// EnabledDetectors filters detectors whose Enabled flag is truthy (absent
// means enabled).
func (r *Registry) EnabledDetectors() []DetectorDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []DetectorDescriptor
	for _, d := range r.detectors {
		if d.IsEnabled() {
			out = append(out, d)
		}
	}
	return out
}

// Reset clears all registrations. Test-only, per spec.md §4.1.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = make(map[string]SourceDescriptor)
	r.processors = make(map[string]ProcessorDescriptor)
	r.detectors = make(map[string]DetectorDescriptor)
}

// Stats summarizes registry contents: counts per kind and a per-category
// source histogram.
type Stats struct {
	SourceCount    int
	ProcessorCount int
	DetectorCount  int
	SourcesByCategory map[domain.Category]int
}

// Stats computes counts and the per-category source histogram.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	hist := make(map[domain.Category]int)
	for _, d := range r.sources {
		hist[d.Category]++
	}
	return Stats{
		SourceCount:       len(r.sources),
		ProcessorCount:    len(r.processors),
		DetectorCount:     len(r.detectors),
		SourcesByCategory: hist,
	}
}
