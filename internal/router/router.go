// Package router implements scan pipeline Phase G (spec.md §4.7): channel
// selection by priority cascade and best-effort dispatch to keyed sinks.
package router

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/metrics"
)

// Sink delivers one opportunity to a destination. Implementations should
// respect ctx's deadline and return promptly.
type Sink interface {
	Deliver(ctx context.Context, channel domain.Channel, o domain.Opportunity) error
}

// sourceChannels is priority-cascade step 1: a direct opportunity.Source ->
// channel mapping.
var sourceChannels = map[string]domain.Channel{
	"measles":    domain.ChannelHealth,
	"earnings":   domain.ChannelMentions,
	"sports":     domain.ChannelSports,
	"macro":      domain.ChannelEconomics,
	"options":    domain.ChannelEconomics,
	"whale":      domain.ChannelEconomics,
	"new-market": domain.ChannelDigest,
}

// signalChannels is priority-cascade step 2, evaluated in the declared
// order when step 1 doesn't match. Order matters: the first signal tag
// present in the opportunity's envelope wins.
var signalChannels = []struct {
	tag     domain.SignalTag
	channel domain.Channel
}{
	{"whaleConviction", domain.ChannelEconomics},
	{domain.SignalNewMarket, domain.ChannelDigest},
	{domain.SignalFedSpeech, domain.ChannelMentions},
	{domain.SignalMeasles, domain.ChannelHealth},
	{"enhancedSports", domain.ChannelSports},
	{"sportsConsensus", domain.ChannelSports},
	{"macroEdge", domain.ChannelEconomics},
	{"optionsImplied", domain.ChannelEconomics},
	{domain.SignalEntertainment, domain.ChannelEntertainment},
}

// categoryChannels is priority-cascade step 3, the final fallback.
var categoryChannels = map[domain.Category]domain.Channel{
	domain.CategorySports:        domain.ChannelSports,
	domain.CategoryWeather:       domain.ChannelWeather,
	domain.CategoryMacro:         domain.ChannelEconomics,
	domain.CategoryPolitics:      domain.ChannelPolitics,
	domain.CategoryGeopolitics:   domain.ChannelPolitics,
	domain.CategoryCrypto:        domain.ChannelCrypto,
	domain.CategoryEntertainment: domain.ChannelEntertainment,
	domain.CategoryTech:          domain.ChannelEconomics,
}

// ChannelFor applies the three-step priority cascade of spec.md §4.7.
func ChannelFor(o domain.Opportunity) domain.Channel {
	if ch, ok := sourceChannels[o.Source]; ok {
		return ch
	}
	for _, step := range signalChannels {
		if o.Signals.Has(step.tag) {
			return step.channel
		}
	}
	if ch, ok := categoryChannels[o.Market.Category]; ok {
		return ch
	}
	return domain.ChannelDigest
}

// Router owns the seenMarkets dedup set and the channel -> sink table.
// seenMarkets is distinct from the Gate's seen-set: the gate dedups within
// one scan's gating pass, seenMarkets dedups across router delivery calls
// until explicitly cleared.
type Router struct {
	mu    sync.Mutex
	sinks map[domain.Channel]Sink
	seen  map[string]bool
	log   zerolog.Logger

	// Metrics is optional; nil skips instrumentation.
	Metrics *metrics.Metrics

	// Store is optional. When set, it replaces the built-in in-memory
	// seenMarkets map as the dedup backend -- e.g. RedisSeenStore, so
	// several engine processes behind one Redis share a dedup window.
	// Nil keeps the default in-process map.
	Store SeenStore
}

// New builds a Router with the given channel -> sink table.
func New(sinks map[domain.Channel]Sink, log zerolog.Logger) *Router {
	return &Router{
		sinks: sinks,
		seen:  make(map[string]bool),
		log:   log,
	}
}

// Route selects a channel and delivers to its sink if one is registered and
// the market hasn't already been delivered since the last ClearSeenMarkets.
// A missing sink or a duplicate market logs at debug and is not an error.
func (r *Router) Route(ctx context.Context, o domain.Opportunity) error {
	key := o.Market.Key()

	alreadySeen, err := r.checkSeen(ctx, key)
	if err != nil {
		r.log.Error().Err(err).Str("market", key).Msg("router: seen-store check failed, treating as not seen")
	} else if alreadySeen {
		r.log.Debug().Str("market", key).Msg("router: market already delivered this window, dropping")
		if r.Metrics != nil {
			r.Metrics.RouterDropped.WithLabelValues("duplicate").Inc()
		}
		return nil
	}

	channel := ChannelFor(o)
	sink, ok := r.sinks[channel]
	if !ok {
		r.log.Debug().Str("channel", string(channel)).Str("market", key).Msg("router: no sink registered for channel, dropping")
		if r.Metrics != nil {
			r.Metrics.RouterDropped.WithLabelValues("no_sink").Inc()
		}
		return nil
	}

	if err := sink.Deliver(ctx, channel, o); err != nil {
		if r.Metrics != nil {
			r.Metrics.RouterDropped.WithLabelValues("error").Inc()
		}
		return err
	}

	if r.Metrics != nil {
		r.Metrics.RouterDeliveries.WithLabelValues(string(channel)).Inc()
	}

	// The Store path already marked the key atomically in checkSeen, to
	// close the race between two concurrent Route calls for the same
	// market. The in-memory path marks here, after a successful delivery.
	if r.Store == nil {
		r.mu.Lock()
		r.seen[key] = true
		r.mu.Unlock()
	}
	return nil
}

// checkSeen reports whether key has already been delivered this window. It
// prefers Store when set; the atomic SeenOrMark contract means the check
// doubles as the mark for that path, so the caller must not mark again.
func (r *Router) checkSeen(ctx context.Context, key string) (bool, error) {
	if r.Store != nil {
		return r.Store.SeenOrMark(ctx, key)
	}
	r.mu.Lock()
	seen := r.seen[key]
	r.mu.Unlock()
	return seen, nil
}

// RouteAll delivers every opportunity in order, collecting (not
// short-circuiting on) delivery errors. Multi-outcome opportunities
// (spec.md §4.8) are grouped first; a group whose channel sink implements
// BatchCapable is delivered as one combined payload, otherwise its members
// fall back to individual Route calls.
func (r *Router) RouteAll(ctx context.Context, opportunities []domain.Opportunity) []error {
	var errs []error

	groups, singles := GroupMultiOutcome(opportunities)
	for _, g := range groups {
		if err := r.routeGroup(ctx, g); err != nil {
			errs = append(errs, err)
		}
	}
	for _, o := range singles {
		if err := r.Route(ctx, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// routeGroup delivers one multi-outcome group, batched if the destination
// sink supports it. Members already marked seen (by an earlier call in this
// window) are dropped from the group before delivery, mirroring Route's
// per-market dedup.
func (r *Router) routeGroup(ctx context.Context, g Group) error {
	if len(g.Opportunities) == 0 {
		return nil
	}

	channel := ChannelFor(g.Opportunities[0])
	s, ok := r.sinks[channel]
	if !ok {
		r.log.Debug().Str("channel", string(channel)).Str("group", g.Key).Msg("router: no sink registered for channel, dropping group")
		if r.Metrics != nil {
			r.Metrics.RouterDropped.WithLabelValues("no_sink").Inc()
		}
		return nil
	}

	batch, ok := s.(BatchCapable)
	if !ok {
		var errs []error
		for _, o := range g.Opportunities {
			if err := r.Route(ctx, o); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			return errs[0]
		}
		return nil
	}

	var fresh []domain.Opportunity
	for _, o := range g.Opportunities {
		key := o.Market.Key()
		seen, err := r.checkSeen(ctx, key)
		if err != nil {
			r.log.Error().Err(err).Str("market", key).Msg("router: seen-store check failed, treating as not seen")
		} else if seen {
			continue
		}
		fresh = append(fresh, o)
	}
	if len(fresh) == 0 {
		if r.Metrics != nil {
			r.Metrics.RouterDropped.WithLabelValues("duplicate").Inc()
		}
		return nil
	}
	g.Opportunities = fresh

	if err := batch.DeliverBatch(ctx, channel, g); err != nil {
		if r.Metrics != nil {
			r.Metrics.RouterDropped.WithLabelValues("error").Inc()
		}
		return err
	}

	if r.Metrics != nil {
		r.Metrics.RouterDeliveries.WithLabelValues(string(channel)).Inc()
	}
	if r.Store == nil {
		r.mu.Lock()
		for _, o := range fresh {
			r.seen[o.Market.Key()] = true
		}
		r.mu.Unlock()
	}
	return nil
}

// ClearSeenMarkets resets the cross-scan dedup set. Named to mirror
// clearSentMarketsCache() in spec.md §4.7. When Store is set this also
// clears it, using a background context since the call has none of its own.
func (r *Router) ClearSeenMarkets() {
	r.mu.Lock()
	r.seen = make(map[string]bool)
	r.mu.Unlock()

	if r.Store != nil {
		if err := r.Store.Clear(context.Background()); err != nil {
			r.log.Error().Err(err).Msg("router: failed to clear seen store")
		}
	}
}
