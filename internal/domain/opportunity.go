package domain

// Direction is the recommended trade side for an opportunity.
type Direction string

const (
	DirectionBuyYes Direction = "BUY_YES"
	DirectionBuyNo  Direction = "BUY_NO"
)

// Urgency classifies how quickly an opportunity should be acted on.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyStandard Urgency = "standard"
	UrgencyFYI      Urgency = "fyi"
)

// SignalTag is one of the closed set of provenance tags an opportunity's
// signals envelope may carry.
type SignalTag string

const (
	SignalSports         SignalTag = "sports"
	SignalEarnings       SignalTag = "earnings"
	SignalMeasles        SignalTag = "measles"
	SignalFedSpeech      SignalTag = "fedSpeech"
	SignalWhale          SignalTag = "whale"
	SignalNewMarket      SignalTag = "newMarket"
	SignalCrossPlatform  SignalTag = "crossPlatform"
	SignalSentiment      SignalTag = "sentiment"
	SignalEntertainment  SignalTag = "entertainment"
	SignalMacro          SignalTag = "macro"
	SignalOptions        SignalTag = "options"
	SignalLineMove       SignalTag = "lineMove"
	SignalPlayerProp     SignalTag = "playerProp"
	SignalRecencyBias    SignalTag = "recencyBias"
	SignalWeatherBias    SignalTag = "weatherBias"
	SignalTimeDecay      SignalTag = "timeDecay"
)

// Signals is the open-ended envelope of signal-tag -> strength/weight.
// Keys outside the closed SignalTag set are tolerated but never produced by
// the core itself.
type Signals map[SignalTag]float64

// Has reports whether the tag is present in the envelope.
func (s Signals) Has(tag SignalTag) bool {
	_, ok := s[tag]
	return ok
}

// Sizing is an optional suggested position-sizing block; its shape is owned
// by whichever detector populated it, not by the core.
type Sizing struct {
	StakeNotional float64
	KellyFraction float64
}

// Opportunity is the pipeline's output unit: an edge detected against one
// market, carrying enough provenance for gating, calibration, and routing.
type Opportunity struct {
	Market     Market
	Source     string // the detector family that produced it, e.g. "sports", "macro"
	Edge       float64
	Confidence float64
	Direction  Direction
	Urgency    Urgency
	Signals    Signals
	Sizing     *Sizing

	// Estimate is the detector's raw probability estimate, prior to
	// calibration adjustment. It feeds the ledger (§4.6 Phase F).
	Estimate float64
}

// MaxEdgeForKind returns the gate's maxEdge ceiling for this opportunity,
// per spec.md §4.6 Phase E.2: higher-confidence families get a looser cap.
func (o Opportunity) MaxEdgeForKind() float64 {
	highEdgeTags := []SignalTag{SignalPlayerProp, "sportsConsensus", "enhancedSports", SignalEarnings, SignalFedSpeech}
	for _, tag := range highEdgeTags {
		if _, ok := o.Signals[tag]; ok {
			return 0.90
		}
	}
	return 0.50
}

// IsValid checks the emission invariants of spec.md §3/§8: price band, edge
// ceiling, and confidence floor. An invalid opportunity must not be emitted.
func (o Opportunity) IsValid() bool {
	if o.Market.Price < 0.02 || o.Market.Price > 0.98 {
		return false
	}
	if o.Edge < 0 || o.Edge > o.MaxEdgeForKind() {
		return false
	}
	if o.Confidence < 0.35 {
		return false
	}
	return true
}
