// Package oddsmath removes bid/ask vig from a two-sided market price and
// scores the edge of a single quote against that fair value. Prediction
// markets already quote in probability (a market's Price is P(yes) in
// (0,1)), so only the multiplicative no-vig method and its edge/vig
// derivatives apply here -- American/decimal odds conversion does not, since
// nothing upstream of this engine speaks American odds.
package oddsmath

import "fmt"

// RemoveVig normalizes two platform-implied probabilities for the same
// binary contract so they sum to 1.0, proportionally distributing the
// overround across both sides. A pair that already sums to 1.0 or less is
// returned unchanged.
func RemoveVig(priceYes, priceNo float64) (fairYes, fairNo float64, err error) {
	if priceYes <= 0 || priceYes >= 1 || priceNo <= 0 || priceNo >= 1 {
		return 0, 0, fmt.Errorf("oddsmath: prices must be in (0,1), got %.4f and %.4f", priceYes, priceNo)
	}
	total := priceYes + priceNo
	if total <= 1.0 {
		return priceYes, priceNo, nil
	}
	return priceYes / total, priceNo / total, nil
}

// VigPercentage reports the overround across a set of outcome prices that
// are expected to sum to 1.0 in a fair market.
func VigPercentage(prices []float64) (float64, error) {
	if len(prices) == 0 {
		return 0, fmt.Errorf("oddsmath: no prices provided")
	}
	total := 0.0
	for _, p := range prices {
		if p <= 0 || p >= 1 {
			return 0, fmt.Errorf("oddsmath: price %.4f out of (0,1)", p)
		}
		total += p
	}
	if total <= 1.0 {
		return 0, nil
	}
	return (total - 1.0) * 100.0, nil
}

// Edge returns the fractional edge (fair/quoted - 1, so 0.2 means 20%) of a
// quoted price against a fair probability: positive means the quote is
// mispriced in the buyer's favor.
func Edge(fairProbability, quotedPrice float64) (float64, error) {
	if fairProbability <= 0 || fairProbability >= 1 {
		return 0, fmt.Errorf("oddsmath: fair probability must be in (0,1)")
	}
	if quotedPrice <= 0 || quotedPrice >= 1 {
		return 0, fmt.Errorf("oddsmath: quoted price must be in (0,1)")
	}
	return (fairProbability / quotedPrice) - 1.0, nil
}

// CrossPlatformConsensus averages the no-vig fair YES probability for the
// same contract quoted across multiple platforms, following the teacher's
// sharp-consensus averaging approach but over prediction-market quotes
// instead of sportsbook lines.
func CrossPlatformConsensus(quotes []TwoSidedQuote) (fairYes, fairNo float64, err error) {
	if len(quotes) == 0 {
		return 0, 0, fmt.Errorf("oddsmath: no quotes provided")
	}
	var sumYes, sumNo float64
	for _, q := range quotes {
		y, n, err := RemoveVig(q.PriceYes, q.PriceNo)
		if err != nil {
			return 0, 0, fmt.Errorf("oddsmath: remove vig for platform %s: %w", q.Platform, err)
		}
		sumYes += y
		sumNo += n
	}
	count := float64(len(quotes))
	return sumYes / count, sumNo / count, nil
}

// TwoSidedQuote is one platform's YES/NO price pair for the same contract.
type TwoSidedQuote struct {
	Platform string
	PriceYes float64
	PriceNo  float64
}
