package ledger

import (
	"fmt"
	"strings"

	"github.com/fortuna/edge-engine/internal/domain"
)

// Adjustment is the result of folding historical calibration into a fresh
// estimate, per spec.md §4.5/§4.6 Phase F.
type Adjustment struct {
	AdjustedEstimate float64
	Confidence       float64
	Reasoning        string
}

// AdjustForCalibration shifts estimate by the category's historical bias and
// derives a confidence from the accuracy of the signal sources behind it.
// With no calibration history to draw on, it returns estimate unchanged at
// the baseline confidence.
func (l *Ledger) AdjustForCalibration(estimate float64, category domain.Category, signalSources []domain.SignalTag) Adjustment {
	bias := l.GetCategoryBias(category)
	adjusted := clamp(estimate-bias, 0.01, 0.99)

	const baseConfidence = 0.7
	multiplier := 1.0
	var notes []string

	if bias != 0 {
		notes = append(notes, fmt.Sprintf("%s bias %.3f applied", category, bias))
	} else {
		notes = append(notes, fmt.Sprintf("no %s bias history (need %d+ resolved)", category, minCategorySamples))
	}

	for _, tag := range signalSources {
		accuracy, count := l.signalAccuracy(tag)
		if count < minCategorySamples {
			continue
		}
		switch {
		case accuracy > 0.6:
			multiplier *= 1.1
			notes = append(notes, fmt.Sprintf("%s signal accuracy %.2f boosts confidence", tag, accuracy))
		case accuracy < 0.4:
			multiplier *= 0.8
			notes = append(notes, fmt.Sprintf("%s signal accuracy %.2f lowers confidence", tag, accuracy))
		}
	}

	confidence := clamp(baseConfidence*multiplier, 0.3, 0.95)

	return Adjustment{
		AdjustedEstimate: adjusted,
		Confidence:       confidence,
		Reasoning:        strings.Join(notes, "; "),
	}
}
