// Package scan implements the orchestrator (spec.md §4.6): one scan plans,
// fetches, detects, gates, calibrates, and routes, in strict phase order.
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/detector"
	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/gate"
	"github.com/fortuna/edge-engine/internal/ledger"
	"github.com/fortuna/edge-engine/internal/metrics"
	"github.com/fortuna/edge-engine/internal/processor"
	"github.com/fortuna/edge-engine/internal/registry"
	"github.com/fortuna/edge-engine/internal/router"
	"github.com/fortuna/edge-engine/internal/sourcecache"
)

// State is a scan's position in the Idle -> ... -> Done|Aborted state
// machine of spec.md §4.6.
type State string

const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateFetching  State = "fetching"
	StateDetecting State = "detecting"
	StateGating    State = "gating"
	StateRouting   State = "routing"
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

const defaultScanDeadline = 120 * time.Second

// Result summarizes one completed (or aborted) scan.
type Result struct {
	State          State
	MarketCount    int
	DetectedCount  int
	EmittedCount   int
	Drops          []gate.Drop
	Duration       time.Duration
	AbortedAtPhase State
}

// Pipeline owns every collaborator a scan needs. PrimarySource names the
// source whose payload is the market list for the scan, per spec.md §4.6
// Phase C.
type Pipeline struct {
	Registry      *registry.Registry
	SourceCache   *sourcecache.SourceCache
	Ledger        *ledger.Ledger
	Router        *router.Router
	PrimarySource string
	ScanDeadline  time.Duration
	Log           zerolog.Logger

	// Metrics is optional; nil skips instrumentation entirely.
	Metrics *metrics.Metrics
}

// Run executes one full scan. The returned Result always reflects whatever
// work completed, even if the scan deadline aborted it partway through --
// opportunities already routed are never recalled.
func (p *Pipeline) Run(ctx context.Context) Result {
	start := time.Now()
	// A negative ScanDeadline means "unset, use the default." A deadline of
	// exactly zero is a deliberate, distinct request -- per spec.md §8's
	// boundary case, it must abort immediately with no fetches attempted,
	// so it is NOT folded into the default here.
	deadline := p.ScanDeadline
	if deadline < 0 {
		deadline = defaultScanDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	log := p.Log.With().Str("component", "scan").Logger()

	// Phase A -- Plan.
	detectors := p.Registry.EnabledDetectors()
	processors := p.Registry.AllProcessors()
	sourceNames := planSourceNames(p.PrimarySource, detectors, processors)
	log.Debug().Int("detectors", len(detectors)).Int("sources", len(sourceNames)).Msg("plan complete")

	if ctx.Err() != nil {
		return Result{State: StateAborted, AbortedAtPhase: StatePlanning, Duration: time.Since(start)}
	}

	// Phase B -- Fetch.
	sourceData := p.SourceCache.FetchSources(ctx, sourceNames)
	sourceData = processor.RunAll(ctx, log, processors, sourceData)

	// Phase C -- Markets.
	markets := sourceData.Markets(p.PrimarySource)
	if len(markets) == 0 {
		log.Info().Str("primary_source", p.PrimarySource).Msg("no markets available, scan emits nothing")
		return Result{State: StateDone, Duration: time.Since(start)}
	}

	if ctx.Err() != nil {
		return Result{State: StateAborted, AbortedAtPhase: StateFetching, MarketCount: len(markets), Duration: time.Since(start)}
	}

	// Phase D -- Detect.
	opportunities, abortedDetecting := p.detectAll(ctx, log, detectors, markets, sourceData)

	// Phase E -- Gate.
	g := gate.New()
	survivors, drops := g.Apply(opportunities)
	if p.Metrics != nil {
		for _, d := range drops {
			p.Metrics.GateDropsTotal.WithLabelValues(string(d.Reason)).Inc()
		}
	}

	// Phase F -- Calibrate.
	calibrated := p.calibrate(survivors)

	// Phase G -- Route.
	p.Router.RouteAll(ctx, calibrated)

	// Phase H -- Mark: the gate's seen-set (fresh per Run call) already
	// served as the per-scan emitted-keys tracker required here; nothing
	// further to do at scan end.

	state := StateDone
	var abortedAt State
	if abortedDetecting {
		state = StateAborted
		abortedAt = StateDetecting
	}

	result := Result{
		State:          state,
		AbortedAtPhase: abortedAt,
		MarketCount:    len(markets),
		DetectedCount:  len(opportunities),
		EmittedCount:   len(calibrated),
		Drops:          drops,
		Duration:       time.Since(start),
	}

	if p.Metrics != nil {
		p.Metrics.ObserveScan(string(result.State), result.Duration.Seconds(), result.MarketCount, result.DetectedCount, result.EmittedCount)
	}

	return result
}

// planSourceNames computes the union of source names declared by enabled
// detectors plus every processor's declared inputs, per spec.md §4.6 Phase A.
// The primary market source is always included: Phase C reads it
// unconditionally for the market list, so it must be fetched even if no
// enabled detector happens to declare it among its own Sources.
func planSourceNames(primarySource string, detectors []registry.DetectorDescriptor, processors []registry.ProcessorDescriptor) []string {
	set := map[string]struct{}{primarySource: {}}
	for _, d := range detectors {
		for _, s := range d.Sources {
			set[s] = struct{}{}
		}
	}
	for _, p := range processors {
		for _, s := range p.Inputs {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// detectAll invokes every enabled, non-skipped detector concurrently.
// Results are appended to a shared slice in arrival order, guarded by a
// mutex, matching spec.md §4.6's "no total order between detectors"
// guarantee. If ctx's deadline elapses before every detector finishes, the
// detectors still running are abandoned and abortedDetecting is true;
// whatever was already collected is returned.
func (p *Pipeline) detectAll(ctx context.Context, log zerolog.Logger, detectors []registry.DetectorDescriptor, markets []domain.Market, sourceData domain.SourceData) (opportunities []domain.Opportunity, abortedDetecting bool) {
	type outcome struct {
		opps []domain.Opportunity
	}

	results := make(chan outcome, len(detectors))
	var wg sync.WaitGroup

	for _, desc := range detectors {
		if skip, missing := detector.ShouldSkip(desc, sourceData); skip {
			log.Debug().Str("detector", desc.Name).Strs("missing", missing).Msg("detector skipped, missing sources")
			continue
		}

		wg.Add(1)
		go func(desc registry.DetectorDescriptor) {
			defer wg.Done()
			opps := detector.Invoke(ctx, log, desc, markets, sourceData)
			results <- outcome{opps: opps}
		}(desc)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	for {
		select {
		case r, ok := <-results:
			if !ok {
				return opportunities, false
			}
			opportunities = append(opportunities, r.opps...)
		case <-ctx.Done():
			return opportunities, true
		}
	}
}

// calibrate runs Phase F over every gate-surviving opportunity: the raw
// estimate is recorded for future training, and the adjusted confidence may
// only tighten (never loosen) what the detector originally reported.
func (p *Pipeline) calibrate(survivors []domain.Opportunity) []domain.Opportunity {
	out := make([]domain.Opportunity, len(survivors))
	for i, o := range survivors {
		tags := signalTags(o.Signals)
		adj := p.Ledger.AdjustForCalibration(o.Estimate, o.Market.Category, tags)

		if adj.Confidence < o.Confidence {
			o.Confidence = adj.Confidence
		}

		p.Ledger.RecordPrediction(ledger.RecordFields{
			Platform:      o.Market.Platform,
			MarketID:      o.Market.ID,
			Category:      o.Market.Category,
			Estimate:      o.Estimate,
			MarketPrice:   o.Market.Price,
			SignalSources: tags,
			Confidence:    o.Confidence,
		})

		out[i] = o
	}
	return out
}

func signalTags(signals domain.Signals) []domain.SignalTag {
	tags := make([]domain.SignalTag, 0, len(signals))
	for tag := range signals {
		tags = append(tags, tag)
	}
	return tags
}
