// Package health reports process vitals for the HTTP /status surface
// (/healthz answers a static "ok" without it), grounded on the gopsutil cpu/mem sampling pattern used
// elsewhere in the retrieval pack (internal/server/system_handlers.go's
// getSystemStats).
package health

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// maxRecentErrors bounds the ring buffer backing RecordError, per
// SPEC_FULL.md's status-channel supplement (last N=10 error strings).
const maxRecentErrors = 10

// ScanSummary is the subset of a completed scan's result the status
// surface reports, independent of the scan package to avoid a dependency
// cycle (scan already depends on nothing in health).
type ScanSummary struct {
	State         string
	MarketCount   int
	DetectedCount int
	GatedCount    int
	EmittedCount  int
	Duration      time.Duration
}

// Snapshot is one point-in-time read of process vitals plus the most
// recent scan's outcome, per spec.md §7's status-channel health summary
// ("uptime, last-scan timestamp, markets tracked, and recent errors"),
// expanded with per-phase counts per SPEC_FULL.md.
type Snapshot struct {
	UptimeSeconds float64
	CPUPercent    float64
	MemPercent    float64

	LastScanAt           time.Time
	LastScanDuration     time.Duration
	LastScanState        string
	LastScanMarketCount  int
	LastScanDetected     int
	LastScanGated        int
	LastScanEmitted      int
	RecentErrors         []string
}

// Reporter samples process vitals and tracks the last scan outcome and a
// ring of recent error strings, for the /status endpoint and (per
// SPEC_FULL.md supplement #1) the status channel's own payload.
type Reporter struct {
	startedAt time.Time

	mu          sync.Mutex
	lastScan    ScanSummary
	lastScanAt  time.Time
	recentErrs  []string
}

// New returns a Reporter whose uptime is measured from now.
func New() *Reporter {
	return &Reporter{startedAt: time.Now()}
}

// RecordScan stores the most recently completed scan's summary.
func (r *Reporter) RecordScan(s ScanSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastScan = s
	r.lastScanAt = time.Now()
}

// RecordError appends msg to the recent-errors ring, dropping the oldest
// entry once the buffer is full.
func (r *Reporter) RecordError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recentErrs = append(r.recentErrs, msg)
	if len(r.recentErrs) > maxRecentErrors {
		r.recentErrs = r.recentErrs[len(r.recentErrs)-maxRecentErrors:]
	}
}

// Sample takes a short (100ms) CPU sample and an instant memory read, and
// folds in the last recorded scan and recent errors. A gopsutil failure on
// either metric yields zero for that metric rather than failing the whole
// snapshot.
func (r *Reporter) Sample() Snapshot {
	snapshot := Snapshot{UptimeSeconds: time.Since(r.startedAt).Seconds()}

	if percents, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		snapshot.MemPercent = vm.UsedPercent
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot.LastScanAt = r.lastScanAt
	snapshot.LastScanDuration = r.lastScan.Duration
	snapshot.LastScanState = r.lastScan.State
	snapshot.LastScanMarketCount = r.lastScan.MarketCount
	snapshot.LastScanDetected = r.lastScan.DetectedCount
	snapshot.LastScanGated = r.lastScan.GatedCount
	snapshot.LastScanEmitted = r.lastScan.EmittedCount
	snapshot.RecentErrors = append([]string(nil), r.recentErrs...)

	return snapshot
}
