package domain

import "time"

// PredictionRecord is one append-only ledger entry: a prediction made at
// emission time, and (eventually) its resolved outcome.
type PredictionRecord struct {
	ID             string
	Platform       string
	MarketID       string
	Category       Category
	PredictedAt    time.Time
	Estimate       float64
	MarketPrice    float64
	SignalSources  []SignalTag
	Confidence     float64

	ResolvedAt  *time.Time
	Outcome     *bool
	FinalPrice  *float64

	// Derived fields, populated only once ResolvedAt is set.
	BrierContribution   *float64
	WasCorrectDirection *bool
	ProfitLoss          *float64
}

// IsResolved reports whether this record has been settled.
func (p PredictionRecord) IsResolved() bool {
	return p.ResolvedAt != nil
}

// notionalStake is the fixed assumption behind simulated profit/loss, per
// spec.md §3.
const notionalStake = 100.0

// Resolve fills in the derived fields for a settled prediction. It does not
// mutate p in place (PredictionRecord is treated as a value within the
// ledger) -- callers assign the result back into the stored slice.
func (p PredictionRecord) Resolve(now time.Time, outcome bool, finalPrice *float64) PredictionRecord {
	p.ResolvedAt = &now
	p.Outcome = &outcome

	outcomeF := 0.0
	if outcome {
		outcomeF = 1.0
	}
	brier := (p.Estimate - outcomeF) * (p.Estimate - outcomeF)
	p.BrierContribution = &brier

	predictedYes := p.Estimate >= p.MarketPrice
	correct := predictedYes == outcome
	p.WasCorrectDirection = &correct

	pnl := simulatedProfitLoss(p.MarketPrice, outcome)
	p.ProfitLoss = &pnl

	if finalPrice != nil {
		p.FinalPrice = finalPrice
	}
	return p
}

// simulatedProfitLoss computes the $100-notional P&L of a YES position
// bought at marketPrice once the outcome is known.
func simulatedProfitLoss(marketPrice float64, outcome bool) float64 {
	shares := notionalStake / marketPrice
	if outcome {
		return shares*1.0 - notionalStake
	}
	return -notionalStake
}
