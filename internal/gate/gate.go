// Package gate implements scan pipeline Phase E (spec.md §4.6): the ordered
// sequence of checks an opportunity must clear before it reaches
// calibration and routing.
package gate

import (
	"fmt"

	"github.com/fortuna/edge-engine/internal/domain"
)

// Reason identifies why an opportunity was dropped.
type Reason string

const (
	ReasonExtremePrice   Reason = "extreme"
	ReasonSuspiciousEdge Reason = "suspicious"
	ReasonLowConfidence  Reason = "low_confidence"
	ReasonDuplicate      Reason = "duplicate"
)

// Drop records one rejected opportunity and why.
type Drop struct {
	Opportunity domain.Opportunity
	Reason      Reason
}

func (d Drop) String() string {
	return fmt.Sprintf("%s: %s", d.Opportunity.Market.Key(), d.Reason)
}

// Gate applies the Phase E checks in the fixed order spec.md §4.6
// prescribes. seen tracks (platform,id) keys already emitted within the
// current scan; it is mutated as opportunities pass.
type Gate struct {
	seen map[string]bool
}

// New returns a Gate with a fresh seen-set.
func New() *Gate {
	return &Gate{seen: make(map[string]bool)}
}

// Check runs one opportunity through the four ordered checks. On success it
// marks the market seen and returns (true, ""); on failure it returns
// (false, reason) and leaves the seen-set untouched.
func (g *Gate) Check(o domain.Opportunity) (bool, Reason) {
	if o.Market.Price < 0.02 || o.Market.Price > 0.98 {
		return false, ReasonExtremePrice
	}
	if o.Edge < 0 || o.Edge > o.MaxEdgeForKind() {
		return false, ReasonSuspiciousEdge
	}
	if o.Confidence < 0.35 {
		return false, ReasonLowConfidence
	}
	key := o.Market.Key()
	if g.seen[key] {
		return false, ReasonDuplicate
	}
	g.seen[key] = true
	return true, ""
}

// Apply filters a batch in order, returning the survivors and every drop
// with its reason.
func (g *Gate) Apply(opportunities []domain.Opportunity) (survivors []domain.Opportunity, drops []Drop) {
	for _, o := range opportunities {
		if ok, reason := g.Check(o); ok {
			survivors = append(survivors, o)
		} else {
			drops = append(drops, Drop{Opportunity: o, Reason: reason})
		}
	}
	return survivors, drops
}

// Reset clears the seen-set, for reuse across a new scan.
func (g *Gate) Reset() {
	g.seen = make(map[string]bool)
}
