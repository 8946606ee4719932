// Package ledger implements the append-only calibration ledger (spec.md
// §4.5): predictions are recorded at emission time, resolved once outcomes
// are known, and the resolved set feeds Brier/bias statistics the scan
// pipeline uses to adjust confidences going forward.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/metrics"
)

// Ledger is the in-memory record set backed by a JSON file on disk. A
// single writer lock serializes mutations; readers (CalculateCalibration,
// GetCategoryBias, AdjustForCalibration) take a snapshot under the same lock
// so they always see a consistent view.
type Ledger struct {
	mu      sync.Mutex
	dir     string
	records []domain.PredictionRecord
	log     zerolog.Logger

	// Metrics is optional; nil skips instrumentation.
	Metrics *metrics.Metrics
}

// New loads the ledger from dir. A missing predictions file starts the
// ledger empty without logging; an unreadable or schema-invalid one resets
// to empty and logs an error rather than failing the caller, per spec.md
// §4.5/§6.
func New(dir string, log zerolog.Logger) *Ledger {
	l := &Ledger{dir: dir, log: log}
	records, err := loadPredictions(dir)
	if err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("ledger: failed to load predictions, starting empty")
		l.records = nil
		return l
	}
	l.records = records
	return l
}

// RecordFields is the caller-supplied half of a new prediction record; ID
// and PredictedAt are generated here.
type RecordFields struct {
	Platform      string
	MarketID      string
	Category      domain.Category
	Estimate      float64
	MarketPrice   float64
	SignalSources []domain.SignalTag
	Confidence    float64
}

// RecordPrediction appends a new record with a generated id and timestamp,
// and persists the ledger. Returns the generated id.
func (l *Ledger) RecordPrediction(fields RecordFields) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := domain.PredictionRecord{
		ID:            uuid.NewString(),
		Platform:      fields.Platform,
		MarketID:      fields.MarketID,
		Category:      fields.Category,
		PredictedAt:   time.Now(),
		Estimate:      fields.Estimate,
		MarketPrice:   fields.MarketPrice,
		SignalSources: fields.SignalSources,
		Confidence:    fields.Confidence,
	}
	l.records = append(l.records, rec)
	l.persistPredictionsLocked()
	if l.Metrics != nil {
		l.Metrics.LedgerPredictionsRecorded.Inc()
	}
	return rec.ID
}

// ResolvePrediction finds the first unresolved record for (platform,
// marketID), stamps it resolved, computes its derived fields, and persists.
// Returns nil if no matching pending record exists.
func (l *Ledger) ResolvePrediction(platform, marketID string, outcome bool, finalPrice *float64) *domain.PredictionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		rec := l.records[i]
		if rec.Platform == platform && rec.MarketID == marketID && !rec.IsResolved() {
			resolved := rec.Resolve(time.Now(), outcome, finalPrice)
			l.records[i] = resolved
			l.persistPredictionsLocked()
			if l.Metrics != nil {
				l.Metrics.LedgerResolutionsTotal.Inc()
			}
			out := resolved
			return &out
		}
	}
	return nil
}

// Lookup reports whether a market has settled and, if so, its outcome.
// Supplied by the caller -- the ledger has no opinion on how settlement
// data is obtained.
type Lookup func(platform, marketID string) (resolved bool, outcome bool)

// CheckAndResolvePredictions iterates pending records and resolves those
// the lookup reports as settled. Returns the count resolved.
func (l *Ledger) CheckAndResolvePredictions(lookup Lookup) int {
	l.mu.Lock()
	pending := make([]domain.PredictionRecord, 0)
	for _, rec := range l.records {
		if !rec.IsResolved() {
			pending = append(pending, rec)
		}
	}
	l.mu.Unlock()

	resolved := 0
	for _, rec := range pending {
		settled, outcome := lookup(rec.Platform, rec.MarketID)
		if !settled {
			continue
		}
		if got := l.ResolvePrediction(rec.Platform, rec.MarketID, outcome, nil); got != nil {
			resolved++
		}
	}
	return resolved
}

// Records returns a snapshot copy of every record, resolved or not.
func (l *Ledger) Records() []domain.PredictionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.PredictionRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *Ledger) resolvedSnapshotLocked() []domain.PredictionRecord {
	out := make([]domain.PredictionRecord, 0, len(l.records))
	for _, rec := range l.records {
		if rec.IsResolved() {
			out = append(out, rec)
		}
	}
	return out
}
