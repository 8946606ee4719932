// Package processor runs the optional processor chain (spec.md §4.3):
// a processor extracts its declared inputs from the scan's SourceData,
// derives a new payload, and that payload is folded back in under its own
// output name so detectors can depend on it like any other source.
package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/registry"
)

// Run extracts a processor's declared inputs from sourceData, invokes its
// Process capability, and returns the payload -- or false on any failure.
// A processor must never panic across this boundary.
func Run(ctx context.Context, log zerolog.Logger, desc registry.ProcessorDescriptor, sourceData domain.SourceData) (any, bool) {
	inputs := make(domain.SourceData, len(desc.Inputs))
	for _, name := range desc.Inputs {
		if v, ok := sourceData[name]; ok {
			inputs[name] = v
		}
	}

	payload, err := safeProcess(ctx, desc, inputs)
	if err != nil {
		log.Error().Str("processor", desc.Name).Err(err).Msg("processor failed")
		return nil, false
	}
	return payload, true
}

// safeProcess recovers a panicking Process implementation into an error, the
// same isolation boundary spec.md §4.4 requires of detectors.
func safeProcess(ctx context.Context, desc registry.ProcessorDescriptor, inputs domain.SourceData) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicAsError(r)
		}
	}()
	if desc.Process == nil {
		return nil, errNoProcessFunc
	}
	return desc.Process(ctx, inputs)
}

// RunAll executes every registered processor in declaration order and folds
// successful outputs back into a copy of sourceData, so later processors and
// detectors see chained results. Processors are optional; a pipeline that
// registers none is conforming.
func RunAll(ctx context.Context, log zerolog.Logger, descs []registry.ProcessorDescriptor, sourceData domain.SourceData) domain.SourceData {
	out := make(domain.SourceData, len(sourceData))
	for k, v := range sourceData {
		out[k] = v
	}
	for _, desc := range descs {
		if payload, ok := Run(ctx, log, desc, out); ok {
			out[desc.Output] = payload
		}
	}
	return out
}
