package router_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/router"
)

type recordingSink struct {
	delivered []domain.Opportunity
	err       error
}

func (s *recordingSink) Deliver(_ context.Context, _ domain.Channel, o domain.Opportunity) error {
	if s.err != nil {
		return s.err
	}
	s.delivered = append(s.delivered, o)
	return nil
}

func TestChannelFor_SourceMappingTakesPriority(t *testing.T) {
	o := domain.Opportunity{Source: "measles", Market: domain.Market{Category: domain.CategoryCrypto}}
	require.Equal(t, domain.ChannelHealth, router.ChannelFor(o))
}

func TestChannelFor_SignalEnvelopeFallback(t *testing.T) {
	o := domain.Opportunity{
		Market:  domain.Market{Category: domain.CategoryCrypto},
		Signals: domain.Signals{"whaleConviction": 1},
	}
	require.Equal(t, domain.ChannelEconomics, router.ChannelFor(o))
}

func TestChannelFor_CategoryFallback(t *testing.T) {
	o := domain.Opportunity{Market: domain.Market{Category: domain.CategoryWeather}}
	require.Equal(t, domain.ChannelWeather, router.ChannelFor(o))
}

func TestChannelFor_DefaultDigest(t *testing.T) {
	o := domain.Opportunity{Market: domain.Market{Category: domain.CategoryOther}}
	require.Equal(t, domain.ChannelDigest, router.ChannelFor(o))
}

func TestRoute_MissingSinkDoesNotError(t *testing.T) {
	r := router.New(map[domain.Channel]router.Sink{}, zerolog.Nop())
	o := domain.Opportunity{Market: domain.Market{Platform: "kalshi", ID: "A", Category: domain.CategorySports}}
	require.NoError(t, r.Route(context.Background(), o))
}

func TestRoute_DedupsAcrossCalls(t *testing.T) {
	sink := &recordingSink{}
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelSports: sink}, zerolog.Nop())
	o := domain.Opportunity{Market: domain.Market{Platform: "kalshi", ID: "A", Category: domain.CategorySports}}

	require.NoError(t, r.Route(context.Background(), o))
	require.NoError(t, r.Route(context.Background(), o))
	require.Len(t, sink.delivered, 1)
}

func TestClearSeenMarkets_AllowsRedelivery(t *testing.T) {
	sink := &recordingSink{}
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelSports: sink}, zerolog.Nop())
	o := domain.Opportunity{Market: domain.Market{Platform: "kalshi", ID: "A", Category: domain.CategorySports}}

	require.NoError(t, r.Route(context.Background(), o))
	r.ClearSeenMarkets()
	require.NoError(t, r.Route(context.Background(), o))
	require.Len(t, sink.delivered, 2)
}

func TestRoute_PropagatesSinkError(t *testing.T) {
	sink := &recordingSink{err: fmt.Errorf("boom")}
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelSports: sink}, zerolog.Nop())
	o := domain.Opportunity{Market: domain.Market{Platform: "kalshi", ID: "A", Category: domain.CategorySports}}

	require.Error(t, r.Route(context.Background(), o))
}

func TestGroupMultiOutcome_GroupsByEarningsCompany(t *testing.T) {
	opps := []domain.Opportunity{
		{Market: domain.Market{Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.1},
		{Market: domain.Market{Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.3},
		{Market: domain.Market{Title: "Will it rain"}, Edge: 0.2},
	}

	groups, singles := router.GroupMultiOutcome(opps)
	require.Len(t, groups, 1)
	require.Len(t, singles, 1)
	require.Len(t, groups[0].Opportunities, 2)
	require.InDelta(t, 0.3, groups[0].Opportunities[0].Edge, 1e-9)
}

func TestIsMultiOutcome_SubtitleTriggers(t *testing.T) {
	o := domain.Opportunity{Market: domain.Market{Subtitle: "multiple candidates"}}
	require.True(t, router.IsMultiOutcome(o))
}

// recordingBatchSink implements router.BatchCapable in addition to
// router.Sink, to confirm RouteAll prefers DeliverBatch when a sink offers
// it and otherwise falls back to per-opportunity Deliver.
type recordingBatchSink struct {
	recordingSink
	batches []router.Group
}

func (s *recordingBatchSink) DeliverBatch(_ context.Context, _ domain.Channel, g router.Group) error {
	s.batches = append(s.batches, g)
	return nil
}

func TestRouteAll_BatchesMultiOutcomeGroupToCapableSink(t *testing.T) {
	sink := &recordingBatchSink{}
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelDigest: sink}, zerolog.Nop())
	opps := []domain.Opportunity{
		{Market: domain.Market{Platform: "kalshi", ID: "A", Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.1},
		{Market: domain.Market{Platform: "kalshi", ID: "B", Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.3},
	}

	errs := r.RouteAll(context.Background(), opps)
	require.Empty(t, errs)
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0].Opportunities, 2)
	require.Empty(t, sink.delivered, "capable sink should receive the group, not individual Deliver calls")
}

func TestRouteAll_FallsBackToDeliverForNonBatchSink(t *testing.T) {
	sink := &recordingSink{}
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelDigest: sink}, zerolog.Nop())
	opps := []domain.Opportunity{
		{Market: domain.Market{Platform: "kalshi", ID: "A", Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.1},
		{Market: domain.Market{Platform: "kalshi", ID: "B", Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.3},
	}

	errs := r.RouteAll(context.Background(), opps)
	require.Empty(t, errs)
	require.Len(t, sink.delivered, 2)
}

func TestRouteAll_GroupDedupsAlreadySeenMembers(t *testing.T) {
	sink := &recordingBatchSink{}
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelDigest: sink}, zerolog.Nop())
	first := domain.Opportunity{Market: domain.Market{Platform: "kalshi", ID: "A", Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.1}
	second := domain.Opportunity{Market: domain.Market{Platform: "kalshi", ID: "B", Title: "AAPL Q3"}, Signals: domain.Signals{domain.SignalEarnings: 1}, Edge: 0.3}

	require.NoError(t, r.Route(context.Background(), first))

	errs := r.RouteAll(context.Background(), []domain.Opportunity{first, second})
	require.Empty(t, errs)
	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0].Opportunities, 1, "already-delivered member should be dropped from the group")
	require.Equal(t, "B", sink.batches[0].Opportunities[0].Market.ID)
}

// fakeSeenStore is an in-process SeenStore stand-in for RedisSeenStore, used
// to exercise the Router's Store wiring without a live Redis.
type fakeSeenStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeSeenStore() *fakeSeenStore { return &fakeSeenStore{seen: make(map[string]bool)} }

func (s *fakeSeenStore) SeenOrMark(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return true, nil
	}
	s.seen[key] = true
	return false, nil
}

func (s *fakeSeenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]bool)
	return nil
}

func TestRoute_UsesPluggableSeenStore(t *testing.T) {
	sink := &recordingSink{}
	store := newFakeSeenStore()
	r := router.New(map[domain.Channel]router.Sink{domain.ChannelSports: sink}, zerolog.Nop())
	r.Store = store
	o := domain.Opportunity{Market: domain.Market{Platform: "kalshi", ID: "A", Category: domain.CategorySports}}

	require.NoError(t, r.Route(context.Background(), o))
	require.NoError(t, r.Route(context.Background(), o))
	require.Len(t, sink.delivered, 1)

	r.ClearSeenMarkets()
	require.NoError(t, r.Route(context.Background(), o))
	require.Len(t, sink.delivered, 2)
}
