package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fortuna/edge-engine/internal/domain"
)

const (
	predictionsFile = "predictions.json"
	calibrationFile = "calibration.json"
)

func loadPredictions(dir string) ([]domain.PredictionRecord, error) {
	path := filepath.Join(dir, predictionsFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read predictions file: %w", err)
	}

	var records []domain.PredictionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("parse predictions file: %w", err)
	}
	return records, nil
}

// persistPredictionsLocked rewrites predictions.json atomically (write to a
// temp file, then rename). Must be called with l.mu held. A disk failure is
// logged and does not roll back the in-memory mutation, per spec.md §4.5.
func (l *Ledger) persistPredictionsLocked() {
	if err := writeJSONAtomic(l.dir, predictionsFile, l.records); err != nil {
		l.log.Error().Err(err).Msg("ledger: failed to persist predictions")
	}
}

// persistCalibrationLocked rewrites calibration.json with the most recently
// computed report. Must be called with l.mu held.
func (l *Ledger) persistCalibrationLocked(report Report) {
	if err := writeJSONAtomic(l.dir, calibrationFile, report); err != nil {
		l.log.Error().Err(err).Msg("ledger: failed to persist calibration report")
	}
}

func writeJSONAtomic(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure ledger dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	target := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file for %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file into place for %s: %w", name, err)
	}
	return nil
}
