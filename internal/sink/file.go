package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fortuna/edge-engine/internal/domain"
)

// FileSink appends one JSON line per delivered opportunity, for local
// inspection or a digest channel with no external dependency wired up.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink returns a sink that appends to the file at path. Nothing is
// opened here: each Deliver opens the file (creating it if needed) and
// closes it again.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

type fileSinkRecord struct {
	Channel   domain.Channel     `json:"channel"`
	Opportunity domain.Opportunity `json:"opportunity"`
	DeliveredAt time.Time        `json:"delivered_at"`
}

// Deliver appends one JSON-encoded record to the sink's file.
func (s *FileSink) Deliver(_ context.Context, channel domain.Channel, o domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open sink file: %w", err)
	}
	defer f.Close()

	record := fileSinkRecord{Channel: channel, Opportunity: o, DeliveredAt: time.Now()}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
