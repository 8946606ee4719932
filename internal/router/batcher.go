package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/fortuna/edge-engine/internal/domain"
)

// BatchCapable is implemented by sinks that can accept one combined payload
// for a multi-outcome group (spec.md §4.8) instead of a Deliver call per
// opportunity. RouteAll falls back to per-opportunity Route calls for sinks
// that don't implement it, so adding batch support to a sink is opt-in.
type BatchCapable interface {
	DeliverBatch(ctx context.Context, channel domain.Channel, group Group) error
}

// IsMultiOutcome reports whether an opportunity belongs to a multi-outcome
// market, per spec.md §4.8: earnings/fedSpeech signals, or a non-empty
// market subtitle.
func IsMultiOutcome(o domain.Opportunity) bool {
	if o.Signals.Has(domain.SignalEarnings) || o.Signals.Has(domain.SignalFedSpeech) {
		return true
	}
	return o.Market.Subtitle != ""
}

// GroupKey derives the batching key for a multi-outcome opportunity.
func GroupKey(o domain.Opportunity) string {
	switch {
	case o.Signals.Has(domain.SignalEarnings):
		return "earnings:" + companyFromTitle(o.Market.Title)
	case o.Signals.Has(domain.SignalFedSpeech):
		return "fed:speech"
	default:
		return "market:" + o.Market.Title
	}
}

// companyFromTitle returns the market title unchanged ("unknown" when it is
// empty). No company name is parsed out of the title, so earnings markets
// for the same company with different titles fall into different groups.
func companyFromTitle(title string) string {
	if title == "" {
		return "unknown"
	}
	return title
}

// Group is one batched payload: opportunities sharing a key, sorted by
// descending edge.
type Group struct {
	Key           string
	Opportunities []domain.Opportunity
}

// GroupMultiOutcome splits opportunities into multi-outcome groups (sorted
// by descending edge within each group) and a remainder of singletons that
// should be routed individually. This is a presentation optimization only:
// gating and ledger recording already happened per opportunity before this
// step runs.
func GroupMultiOutcome(opportunities []domain.Opportunity) (groups []Group, singles []domain.Opportunity) {
	byKey := map[string][]domain.Opportunity{}
	var order []string

	for _, o := range opportunities {
		if !IsMultiOutcome(o) {
			singles = append(singles, o)
			continue
		}
		key := GroupKey(o)
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], o)
	}

	for _, key := range order {
		members := byKey[key]
		sort.SliceStable(members, func(i, j int) bool {
			return members[i].Edge > members[j].Edge
		})
		groups = append(groups, Group{Key: key, Opportunities: members})
	}
	return groups, singles
}

func (g Group) String() string {
	return fmt.Sprintf("%s (%d opportunities)", g.Key, len(g.Opportunities))
}
