// Package sourcecache wraps every registered source with a TTL cache,
// stale-on-error fallback, and single-flight deduplication of concurrent
// demand for the same name (spec.md §4.2).
//
// There is no golang.org/x/sync/singleflight dependency anywhere in this
// module's retrieval pack, so the coordination below is hand-rolled in the
// same style as the teacher's marketCache sync.Map + per-key goroutine
// cleanup (edge-detector/internal/detector/engine.go).
package sourcecache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/metrics"
	"github.com/fortuna/edge-engine/internal/registry"
)

// defaultFetchCeiling is the fixed ceiling spec.md §5 falls back to when a
// source's TTL is longer than it.
const defaultFetchCeiling = 30 * time.Second

// call represents one in-flight underlying fetch, shared by every waiter
// that arrives while it is running.
type call struct {
	done   chan struct{}
	result any
	err    error
}

// cell is the mutable cache slot for one source, kept apart from the
// registry's SourceDescriptor (immutable config): the descriptor never
// changes after registration, but the cell does, on every fetch.
type cell struct {
	mu        sync.Mutex
	data      any
	hasData   bool
	lastFetch time.Time
	inflight  *call
}

// SourceCache is safe for concurrent use.
type SourceCache struct {
	reg          *registry.Registry
	fetchCeiling time.Duration
	log          zerolog.Logger

	// Metrics is optional; a nil value (the zero value) skips instrumentation
	// entirely. Callers that want the fetch-latency, fetch-error and
	// stale-served metrics wired set this after New returns. Cache hits and
	// misses are logged at debug level but not counted.
	Metrics *metrics.Metrics

	cellsMu sync.RWMutex
	cells   map[string]*cell
}

// New builds a SourceCache over reg. fetchCeiling is the fixed upper bound
// referenced in spec.md §5 ("default min(cacheTTL, 30s)"); pass 0 to use the
// spec default.
func New(reg *registry.Registry, fetchCeiling time.Duration, log zerolog.Logger) *SourceCache {
	if fetchCeiling <= 0 {
		fetchCeiling = defaultFetchCeiling
	}
	return &SourceCache{
		reg:          reg,
		fetchCeiling: fetchCeiling,
		log:          log,
		cells:        make(map[string]*cell),
	}
}

func (sc *SourceCache) cellFor(name string) *cell {
	sc.cellsMu.RLock()
	c, ok := sc.cells[name]
	sc.cellsMu.RUnlock()
	if ok {
		return c
	}

	sc.cellsMu.Lock()
	defer sc.cellsMu.Unlock()
	if c, ok := sc.cells[name]; ok {
		return c
	}
	c = &cell{}
	sc.cells[name] = c
	return c
}

func ceilingFor(ttl, fixedCeiling time.Duration) time.Duration {
	if ttl > 0 && ttl < fixedCeiling {
		return ttl
	}
	return fixedCeiling
}

// FetchSource resolves one source's payload. It never panics or returns an
// error across this boundary: a missing source or a fully-failed fetch with
// no stale fallback is reported via the boolean return, not an error value.
func (sc *SourceCache) FetchSource(ctx context.Context, name string) (any, bool) {
	desc, ok := sc.reg.GetSource(name)
	if !ok {
		sc.log.Warn().Str("source", name).Msg("fetchSource: source not registered")
		return nil, false
	}

	c := sc.cellFor(name)

	c.mu.Lock()
	if c.hasData && time.Since(c.lastFetch) < desc.CacheTTL {
		data := c.data
		age := time.Since(c.lastFetch)
		c.mu.Unlock()
		sc.log.Debug().Str("source", name).Dur("age", age).Msg("fetchSource: cache hit")
		return data, true
	}

	if c.inflight != nil {
		inflight := c.inflight
		c.mu.Unlock()
		return sc.wait(ctx, c, inflight, desc)
	}

	inflight := &call{done: make(chan struct{})}
	c.inflight = inflight
	c.mu.Unlock()

	go sc.run(c, inflight, desc)

	return sc.wait(ctx, c, inflight, desc)
}

// run executes the underlying fetch in the background, using a context
// independent of any particular caller's cancellation -- per spec.md §4.2,
// an abandoned wait does not interrupt the shared fetch.
func (sc *SourceCache) run(c *cell, call *call, desc registry.SourceDescriptor) {
	started := time.Now()
	result, err := desc.Fetch(context.Background())

	if sc.Metrics != nil {
		sc.Metrics.SourceFetchDuration.WithLabelValues(desc.Name).Observe(time.Since(started).Seconds())
		if err != nil {
			sc.Metrics.SourceFetchErrors.WithLabelValues(desc.Name).Inc()
		}
	}

	c.mu.Lock()
	c.inflight = nil
	if err == nil {
		c.data = result
		c.hasData = true
		c.lastFetch = time.Now()
	}
	c.mu.Unlock()

	call.result = result
	call.err = err
	close(call.done)
}

// wait blocks for the in-flight call to finish, the caller's context to be
// cancelled, or the fetch ceiling to elapse -- whichever comes first. On
// anything but a clean success it falls back to stale cached data if any
// exists, per the stale-on-error policy.
func (sc *SourceCache) wait(ctx context.Context, c *cell, call *call, desc registry.SourceDescriptor) (any, bool) {
	ceiling := ceilingFor(desc.CacheTTL, sc.fetchCeiling)
	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	select {
	case <-call.done:
		if call.err == nil {
			return call.result, true
		}
		sc.log.Warn().Str("source", desc.Name).Err(call.err).Msg("fetchSource: fetch failed")
		return sc.staleFallback(c, desc.Name)

	case <-ctx.Done():
		sc.log.Debug().Str("source", desc.Name).Msg("fetchSource: caller context done, fetch continues in background")
		return sc.staleFallback(c, desc.Name)

	case <-timer.C:
		sc.log.Warn().Str("source", desc.Name).Dur("ceiling", ceiling).Msg("fetchSource: fetch ceiling exceeded")
		return sc.staleFallback(c, desc.Name)
	}
}

func (sc *SourceCache) staleFallback(c *cell, name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hasData {
		sc.log.Debug().Str("source", name).Msg("fetchSource: returning stale cache")
		if sc.Metrics != nil {
			sc.Metrics.SourceStaleServed.WithLabelValues(name).Inc()
		}
		return c.data, true
	}
	return nil, false
}

// FetchSources performs FetchSource for every name concurrently and
// assembles a SourceData map containing only entries that resolved
// non-null. Ordering of the underlying fetches is not observable.
func (sc *SourceCache) FetchSources(ctx context.Context, names []string) domain.SourceData {
	type result struct {
		name string
		data any
		ok   bool
	}

	results := make(chan result, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			data, ok := sc.FetchSource(ctx, name)
			results <- result{name: name, data: data, ok: ok}
		}(name)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(domain.SourceData)
	for r := range results {
		if r.ok {
			out[r.name] = r.data
		}
	}
	return out
}

// FetchAllSources fetches every registered source.
func (sc *SourceCache) FetchAllSources(ctx context.Context) domain.SourceData {
	sources := sc.reg.AllSources()
	names := make([]string, 0, len(sources))
	for _, s := range sources {
		names = append(names, s.Name)
	}
	return sc.FetchSources(ctx, names)
}

// ClearAllCaches resets cachedData and lastFetch on every source.
func (sc *SourceCache) ClearAllCaches() {
	sc.cellsMu.Lock()
	defer sc.cellsMu.Unlock()
	sc.cells = make(map[string]*cell)
}
