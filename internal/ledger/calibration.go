package ledger

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/fortuna/edge-engine/internal/domain"
)

// minCategorySamples is the floor below which per-category/per-signal bias
// and calibration figures are considered too noisy to trust, per spec.md
// §4.5.
const minCategorySamples = 10

// minReportSamples is the floor for a breakdown bucket (category or signal)
// to appear in a Report at all.
const minReportSamples = 5

// bucketCount is the number of equal-width reliability buckets across
// [0,1], e.g. [0,0.1) ... [0.9,1.0].
const bucketCount = 10

// ReliabilityBucket summarizes one [lo,hi) estimate range: how many
// predictions fell in it and what fraction actually resolved true.
type ReliabilityBucket struct {
	Lo, Hi        float64
	Count         int
	MeanEstimate  float64
	ActualOutcome float64

	// CalibrationGap is |midpoint - ActualOutcome|, per spec.md §4.5: the
	// bucket's own calibration error, using the bucket's midpoint rather
	// than the mean of the estimates that landed in it.
	CalibrationGap float64
}

// CategoryMetrics is the resolved-only breakdown for one category or signal
// source, gated on minReportSamples.
type CategoryMetrics struct {
	Count             int
	BrierScore        float64
	DirectionAccuracy float64
	MeanBias          float64
}

// WindowMetrics summarizes predictions resolved within a rolling window.
type WindowMetrics struct {
	Count             int
	BrierScore        float64
	DirectionAccuracy float64
}

// Report is the full calibration snapshot computed from resolved records.
type Report struct {
	GeneratedAt time.Time

	ResolvedCount     int
	BrierScore        float64
	DirectionAccuracy float64
	CalibrationError  float64
	Overconfident     bool

	Reliability []ReliabilityBucket

	ByCategory map[domain.Category]CategoryMetrics
	BySignal   map[domain.SignalTag]CategoryMetrics

	Last7Days  *WindowMetrics
	Last30Days *WindowMetrics
}

// CalculateCalibration computes a fresh Report from every resolved record
// and persists it to calibration.json. With no resolved records it returns
// a zero-value Report (ResolvedCount == 0) rather than an error.
func (l *Ledger) CalculateCalibration() Report {
	l.mu.Lock()
	resolved := l.resolvedSnapshotLocked()
	l.mu.Unlock()

	report := buildReport(resolved, time.Now())

	l.mu.Lock()
	l.persistCalibrationLocked(report)
	metricsHandle := l.Metrics
	l.mu.Unlock()

	if metricsHandle != nil && report.ResolvedCount > 0 {
		metricsHandle.LedgerBrierScore.Set(report.BrierScore)
	}

	return report
}

func buildReport(resolved []domain.PredictionRecord, now time.Time) Report {
	report := Report{
		GeneratedAt: now,
		ByCategory:  map[domain.Category]CategoryMetrics{},
		BySignal:    map[domain.SignalTag]CategoryMetrics{},
	}
	if len(resolved) == 0 {
		return report
	}

	report.ResolvedCount = len(resolved)
	report.BrierScore = meanBrier(resolved)
	report.DirectionAccuracy = directionAccuracy(resolved)
	report.Reliability = reliabilityBuckets(resolved)
	report.CalibrationError = weightedCalibrationError(report.Reliability, len(resolved))

	meanConf := stat.Mean(confidences(resolved), nil)
	report.Overconfident = meanConf > report.DirectionAccuracy+0.1

	byCategory := map[domain.Category][]domain.PredictionRecord{}
	bySignal := map[domain.SignalTag][]domain.PredictionRecord{}
	for _, rec := range resolved {
		byCategory[rec.Category] = append(byCategory[rec.Category], rec)
		for _, tag := range rec.SignalSources {
			bySignal[tag] = append(bySignal[tag], rec)
		}
	}
	for cat, recs := range byCategory {
		if len(recs) < minReportSamples {
			continue
		}
		report.ByCategory[cat] = categoryMetrics(recs)
	}
	for tag, recs := range bySignal {
		if len(recs) < minReportSamples {
			continue
		}
		report.BySignal[tag] = categoryMetrics(recs)
	}

	if w := windowMetrics(resolved, now, 7*24*time.Hour, 3); w != nil {
		report.Last7Days = w
	}
	if w := windowMetrics(resolved, now, 30*24*time.Hour, 10); w != nil {
		report.Last30Days = w
	}

	return report
}

func categoryMetrics(recs []domain.PredictionRecord) CategoryMetrics {
	estimates := make([]float64, len(recs))
	outcomes := make([]float64, len(recs))
	for i, rec := range recs {
		estimates[i] = rec.Estimate
		outcomes[i] = outcomeFloat(rec)
	}
	return CategoryMetrics{
		Count:             len(recs),
		BrierScore:        meanBrier(recs),
		DirectionAccuracy: directionAccuracy(recs),
		MeanBias:          stat.Mean(estimates, nil) - stat.Mean(outcomes, nil),
	}
}

func windowMetrics(resolved []domain.PredictionRecord, now time.Time, window time.Duration, minSamples int) *WindowMetrics {
	cutoff := now.Add(-window)
	var recs []domain.PredictionRecord
	for _, rec := range resolved {
		if rec.ResolvedAt != nil && rec.ResolvedAt.After(cutoff) {
			recs = append(recs, rec)
		}
	}
	if len(recs) < minSamples {
		return nil
	}
	return &WindowMetrics{
		Count:             len(recs),
		BrierScore:        meanBrier(recs),
		DirectionAccuracy: directionAccuracy(recs),
	}
}

func meanBrier(recs []domain.PredictionRecord) float64 {
	vals := make([]float64, len(recs))
	for i, rec := range recs {
		if rec.BrierContribution != nil {
			vals[i] = *rec.BrierContribution
		}
	}
	return stat.Mean(vals, nil)
}

func directionAccuracy(recs []domain.PredictionRecord) float64 {
	correct := 0
	for _, rec := range recs {
		if rec.WasCorrectDirection != nil && *rec.WasCorrectDirection {
			correct++
		}
	}
	return float64(correct) / float64(len(recs))
}

func confidences(recs []domain.PredictionRecord) []float64 {
	out := make([]float64, len(recs))
	for i, rec := range recs {
		out[i] = rec.Confidence
	}
	return out
}

func outcomeFloat(rec domain.PredictionRecord) float64 {
	if rec.Outcome != nil && *rec.Outcome {
		return 1.0
	}
	return 0.0
}

func reliabilityBuckets(recs []domain.PredictionRecord) []ReliabilityBucket {
	buckets := make([]ReliabilityBucket, bucketCount)
	width := 1.0 / float64(bucketCount)
	for i := range buckets {
		buckets[i].Lo = float64(i) * width
		buckets[i].Hi = float64(i+1) * width
	}

	sums := make([]float64, bucketCount)
	outcomeSums := make([]float64, bucketCount)
	for _, rec := range recs {
		idx := bucketIndex(rec.Estimate)
		buckets[idx].Count++
		sums[idx] += rec.Estimate
		outcomeSums[idx] += outcomeFloat(rec)
	}
	for i := range buckets {
		if buckets[i].Count == 0 {
			continue
		}
		buckets[i].MeanEstimate = sums[i] / float64(buckets[i].Count)
		buckets[i].ActualOutcome = outcomeSums[i] / float64(buckets[i].Count)
		buckets[i].CalibrationGap = absFloat(midpoint(buckets[i]) - buckets[i].ActualOutcome)
	}
	return buckets
}

func midpoint(b ReliabilityBucket) float64 {
	return (b.Lo + b.Hi) / 2
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func bucketIndex(estimate float64) int {
	idx := int(estimate * bucketCount)
	if idx >= bucketCount {
		idx = bucketCount - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// weightedCalibrationError is the sample-count-weighted mean of each
// bucket's |midpoint - empiricalFrequency| gap across non-empty buckets,
// per spec.md §4.5.
func weightedCalibrationError(buckets []ReliabilityBucket, total int) float64 {
	if total == 0 {
		return 0
	}
	var sum float64
	for _, b := range buckets {
		if b.Count == 0 {
			continue
		}
		sum += b.CalibrationGap * float64(b.Count)
	}
	return sum / float64(total)
}

// GetCategoryBias returns mean(estimate) - fraction(outcome==true) over
// resolved records in category. Returns 0 if fewer than minCategorySamples
// resolved records exist, since the bias is too noisy to act on below that.
func (l *Ledger) GetCategoryBias(category domain.Category) float64 {
	l.mu.Lock()
	resolved := l.resolvedSnapshotLocked()
	l.mu.Unlock()

	var recs []domain.PredictionRecord
	for _, rec := range resolved {
		if rec.Category == category {
			recs = append(recs, rec)
		}
	}
	if len(recs) < minCategorySamples {
		return 0
	}

	estimates := make([]float64, len(recs))
	outcomes := make([]float64, len(recs))
	for i, rec := range recs {
		estimates[i] = rec.Estimate
		outcomes[i] = outcomeFloat(rec)
	}
	return stat.Mean(estimates, nil) - stat.Mean(outcomes, nil)
}

// signalAccuracy returns the directional accuracy of resolved records
// carrying tag, and the sample count backing it.
func (l *Ledger) signalAccuracy(tag domain.SignalTag) (accuracy float64, count int) {
	l.mu.Lock()
	resolved := l.resolvedSnapshotLocked()
	l.mu.Unlock()

	var recs []domain.PredictionRecord
	for _, rec := range resolved {
		for _, t := range rec.SignalSources {
			if t == tag {
				recs = append(recs, rec)
				break
			}
		}
	}
	if len(recs) == 0 {
		return 0, 0
	}
	return directionAccuracy(recs), len(recs)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
