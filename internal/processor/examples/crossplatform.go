// Package examples holds ready-to-register ProcessorDescriptor and
// DetectorDescriptor factories that demonstrate the registry contract
// against a concrete, wired algorithm rather than leaving it purely
// abstract. They are opt-in: cmd/fortuna-engine only registers the primary
// market source by default, and an operator wires these in alongside their
// own detectors.
package examples

import (
	"context"
	"fmt"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/oddsmath"
	"github.com/fortuna/edge-engine/internal/registry"
)

// CrossPlatformConsensusProcessor declares a processor that reads the named
// secondary-platform market sources (each expected to yield []domain.Market
// quoting the same contracts as the primary source) and folds them into a
// no-vig consensus fair price keyed by market ticker. Detectors can depend
// on the processor's Output name like any other source to compare a
// platform's quote against the cross-platform fair value.
func CrossPlatformConsensusProcessor(outputName string, platformSourceNames ...string) registry.ProcessorDescriptor {
	return registry.ProcessorDescriptor{
		Name:   "cross-platform-consensus",
		Inputs: platformSourceNames,
		Output: outputName,
		Process: func(_ context.Context, inputs domain.SourceData) (any, error) {
			byTicker := make(map[string][]oddsmath.TwoSidedQuote)
			for _, name := range platformSourceNames {
				raw, ok := inputs[name]
				if !ok {
					continue
				}
				markets, ok := raw.([]domain.Market)
				if !ok {
					return nil, fmt.Errorf("cross-platform-consensus: source %q did not yield []domain.Market", name)
				}
				for _, m := range markets {
					byTicker[m.Ticker] = append(byTicker[m.Ticker], oddsmath.TwoSidedQuote{
						Platform: m.Platform,
						PriceYes: m.Price,
						PriceNo:  1 - m.Price,
					})
				}
			}

			consensus := make(map[string]float64, len(byTicker))
			for ticker, quotes := range byTicker {
				if len(quotes) < 2 {
					continue
				}
				fairYes, _, err := oddsmath.CrossPlatformConsensus(quotes)
				if err != nil {
					return nil, fmt.Errorf("cross-platform-consensus: ticker %q: %w", ticker, err)
				}
				consensus[ticker] = fairYes
			}
			return consensus, nil
		},
	}
}

// CrossPlatformEdgeDetector declares a detector that compares the primary
// source's quoted price against the cross-platform consensus processor's
// output, emitting an opportunity wherever the primary quote diverges from
// consensus by at least minEdge.
func CrossPlatformEdgeDetector(primarySourceName, consensusSourceName string, minEdge, minConfidence float64) registry.DetectorDescriptor {
	return registry.DetectorDescriptor{
		Name:          "cross-platform-edge",
		Sources:       []string{primarySourceName, consensusSourceName},
		MinEdge:       minEdge,
		MinConfidence: minConfidence,
		Detect: func(_ context.Context, markets []domain.Market, sourceData domain.SourceData) ([]domain.Opportunity, error) {
			raw, ok := sourceData[consensusSourceName]
			if !ok {
				return nil, nil
			}
			consensus, ok := raw.(map[string]float64)
			if !ok {
				return nil, fmt.Errorf("cross-platform-edge: consensus source %q had unexpected shape", consensusSourceName)
			}

			var opportunities []domain.Opportunity
			for _, m := range markets {
				fairYes, ok := consensus[m.Ticker]
				if !ok {
					continue
				}
				direction := domain.DirectionBuyYes
				edge, err := oddsmath.Edge(fairYes, m.Price)
				if fairYes < m.Price {
					direction = domain.DirectionBuyNo
					edge, err = oddsmath.Edge(1-fairYes, 1-m.Price)
				}
				if err != nil || edge < minEdge {
					continue
				}
				opportunities = append(opportunities, domain.Opportunity{
					Market:     m,
					Source:     "cross-platform-edge",
					Edge:       edge,
					Confidence: minConfidence,
					Direction:  direction,
					Urgency:    domain.UrgencyStandard,
					Signals:    domain.Signals{domain.SignalCrossPlatform: edge},
					Estimate:   fairYes,
				})
			}
			return opportunities, nil
		},
	}
}
